package imagepipeline

import (
	"context"
	"time"

	"github.com/kean-go/imagepipeline/internal/cache"
	"github.com/kean-go/imagepipeline/internal/common"
	"github.com/kean-go/imagepipeline/internal/model"
	"github.com/kean-go/imagepipeline/internal/orchestrator"
	"github.com/kean-go/imagepipeline/internal/pacer"
	"github.com/kean-go/imagepipeline/internal/queue"
	"github.com/kean-go/imagepipeline/internal/resumable"
	"github.com/kean-go/imagepipeline/metrics"
)

// MemoryCache and DiskCache are defined in internal/cache; see
// priority.go for why the public surface re-exports internal types by
// alias instead of redefining them.
type MemoryCache = cache.MemoryCache
type DiskCache = cache.DiskCache

var NewMemoryCache = cache.NewMemoryCache

// MemoryCacheConfig is the construction-time bound set for a
// MemoryCache (cost, count and TTL — spec §4.3).
type MemoryCacheConfig = cache.Config

// OpenDiskCache opens (or creates) a byte-oriented disk cache rooted
// at dir, bounded by maxBytes, flushing its index in the background
// until ctx is done.
func OpenDiskCache(ctx context.Context, dir string, maxBytes int64, log func(string)) (*DiskCache, error) {
	return cache.OpenDiskCache(ctx, dir, maxBytes, log)
}

// Config is a Pipeline's construction-time policy (spec §6: "Named
// options with enumerated effects"). Only DataLoader is required;
// every other field has a documented default equivalent to a zero
// value.
type Config struct {
	// DataLoader is the byte-fetcher collaborator (required).
	DataLoader DataLoader
	// DataCache is the disk blob store; nil disables the disk tier.
	DataCache *DiskCache
	// ImageCache is the memory blob store; nil disables the memory tier.
	ImageCache *MemoryCache

	DecoderFactory DecoderFactory
	EncoderFactory EncoderFactory
	Decompressor   Decompressor

	DataCachePolicy DataCachePolicy

	IsProgressiveDecodingEnabled bool
	// ProgressiveDecodingInterval is the minimum spacing between two
	// previews delivered for the same Task (spec §6: "coalesce
	// window"); a preview chunk arriving before the interval has
	// elapsed since the last delivered preview is dropped rather than
	// decoded at all.
	ProgressiveDecodingInterval time.Duration

	IsStoringPreviewsInMemoryCache bool
	IsResumableDataEnabled        bool
	IsTaskCoalescingEnabled       bool
	IsDecompressionEnabled        bool

	// IsRateLimiterEnabled governs the data-loading queue's admission
	// rate; when true, RateLimiterBytesPerSecond/Burst configure it.
	IsRateLimiterEnabled      bool
	RateLimiterBytesPerSecond int64
	RateLimiterBurstBytes     int64

	// MaxInFlightDataBytes bounds the total RAM held by data-load
	// buffers in flight across every concurrent stage-4 fetch at once;
	// zero (the default) disables the bound.
	MaxInFlightDataBytes int64

	// MaxConcurrentDiskWrites bounds how many disk-cache write-backs
	// may run at once; zero (the default) leaves them unbounded.
	MaxConcurrentDiskWrites int64

	// ResumableStorePath is where the Resumable Download Store persists
	// its checkpoint file; required when IsResumableDataEnabled.
	ResumableStorePath string

	DataLoadingQueueConcurrency   common.ConfiguredInt
	DecodingQueueConcurrency      common.ConfiguredInt
	ProcessingQueueConcurrency    common.ConfiguredInt
	DecompressingQueueConcurrency common.ConfiguredInt
	EncodingQueueConcurrency      common.ConfiguredInt

	// Logger receives diagnostic output; defaults to a stderr logger at
	// LogError if nil.
	Logger common.ILoggerResetable
	// Metrics, when non-nil, instruments every Work Queue and every
	// Task's lifecycle (see the metrics package).
	Metrics *metrics.Collector
}

func (c Config) dataLoadingConcurrency() common.ConfiguredInt {
	return orDefaultConfiguredInt(c.DataLoadingQueueConcurrency, "IMAGEPIPELINE_DATA_LOADING_CONCURRENCY", 16)
}
func (c Config) decodingConcurrency() common.ConfiguredInt {
	return orDefaultConfiguredInt(c.DecodingQueueConcurrency, "IMAGEPIPELINE_DECODING_CONCURRENCY", 4)
}
func (c Config) processingConcurrency() common.ConfiguredInt {
	return orDefaultConfiguredInt(c.ProcessingQueueConcurrency, "IMAGEPIPELINE_PROCESSING_CONCURRENCY", 4)
}
func (c Config) decompressingConcurrency() common.ConfiguredInt {
	return orDefaultConfiguredInt(c.DecompressingQueueConcurrency, "IMAGEPIPELINE_DECOMPRESSING_CONCURRENCY", 4)
}
func (c Config) encodingConcurrency() common.ConfiguredInt {
	return orDefaultConfiguredInt(c.EncodingQueueConcurrency, "IMAGEPIPELINE_ENCODING_CONCURRENCY", 2)
}

// orDefaultConfiguredInt fills in env/default provenance for a
// caller-supplied ConfiguredInt that was left at its zero value
// (Value 0, no EnvVarName), matching the teacher's concurrency-knob
// pattern of always carrying an explanation even when the caller never
// set one explicitly.
func orDefaultConfiguredInt(c common.ConfiguredInt, envVar string, defaultValue int) common.ConfiguredInt {
	if c.Value > 0 || c.IsUserSpecified {
		return c
	}
	return common.NewConfiguredInt(envVar, defaultValue, "imagepipeline built-in default")
}

// Pipeline is the engine's public entry point (spec §2, §6): one
// Pipeline owns its Work Queues, cache coordinator, resumable store
// and pacer, and hands out Tasks for submitted Requests.
type Pipeline struct {
	orch    *orchestrator.Orchestrator
	logger  common.ILoggerResetable
	metrics *metrics.Collector

	resumable *resumable.Store
	pacer     *pacer.Pacer

	cancel context.CancelFunc
}

// New constructs a Pipeline from cfg. The returned Pipeline owns
// background goroutines (resumable-store flush, rate-limiter refill)
// tied to an internal context; call Close to stop them. A DiskCache's
// index flush loop runs on the ctx passed to OpenDiskCache instead.
func New(cfg Config) (*Pipeline, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = common.NewPipelineLogger("imagepipeline", common.ELogLevel.Error(), "")
	}
	logger.OpenLog()

	ctx, cancel := context.WithCancel(context.Background())

	var resumableStore *resumable.Store
	if cfg.IsResumableDataEnabled {
		store, err := resumable.Open(ctx, cfg.ResumableStorePath, func(msg string) { logger.Log(common.ELogLevel.Warning(), msg) })
		if err != nil {
			cancel()
			return nil, model.WrapError(model.CodeResumableStoreIO, err, "opening resumable store")
		}
		resumableStore = store
	}

	var rateLimiter *pacer.Pacer
	if cfg.IsRateLimiterEnabled {
		rateLimiter = pacer.New(cfg.RateLimiterBytesPerSecond, cfg.RateLimiterBurstBytes)
	}

	qcfg := []struct {
		name string
		conc common.ConfiguredInt
	}{
		{"dataLoading", cfg.dataLoadingConcurrency()},
		{"decoding", cfg.decodingConcurrency()},
		{"processing", cfg.processingConcurrency()},
		{"decompressing", cfg.decompressingConcurrency()},
		{"encoding", cfg.encodingConcurrency()},
	}
	queues := make(map[string]*queue.WorkQueue, len(qcfg))
	for _, q := range qcfg {
		queues[q.name] = queue.New(q.conc, cfg.Metrics.QueueHooks(q.name))
	}

	coordinator := cache.NewCoordinator(cfg.ImageCache, cfg.DataCache, cfg.MaxConcurrentDiskWrites)

	orch := orchestrator.New(orchestrator.Config{
		DataLoader:     cfg.DataLoader,
		DecoderFactory: cfg.DecoderFactory,
		EncoderFactory: cfg.EncoderFactory,
		Decompressor:   cfg.Decompressor,

		DataCachePolicy:            cfg.DataCachePolicy,
		ProgressiveDecodingEnabled: cfg.IsProgressiveDecodingEnabled,
		ProgressiveDecodingInterval: cfg.ProgressiveDecodingInterval,
		TaskCoalescingEnabled:      cfg.IsTaskCoalescingEnabled,
		DecompressionEnabled:       cfg.IsDecompressionEnabled,
		ResumableEnabled:           cfg.IsResumableDataEnabled,

		DataQueue:       queues["dataLoading"],
		DecodeQueue:     queues["decoding"],
		ProcessQueue:    queues["processing"],
		DecompressQueue: queues["decompressing"],
		EncodeQueue:     queues["encoding"],

		Resumable: resumableStore,
		Pacer:     rateLimiter,

		MaxInFlightDataBytes: cfg.MaxInFlightDataBytes,
	}, coordinator)

	return &Pipeline{
		orch:      orch,
		logger:    logger,
		metrics:   cfg.Metrics,
		resumable: resumableStore,
		pacer:     rateLimiter,
		cancel:    cancel,
	}, nil
}

// Load submits req and returns a Task tracking it; obs may be nil (the
// Task then reports nothing but still runs to completion and, on
// success, populates the caches). priority seeds the Task's initial
// contribution to its Job chain's effective priority and may be
// changed later via Task.SetPriority.
func (p *Pipeline) Load(req model.Request, obs model.Observer, priority model.Priority) *Task {
	if p.metrics != nil {
		p.metrics.TaskStarted()
	}
	if obs == nil {
		obs = model.DefaultObserver{}
	}
	t := newTask(p.orch, req, withMetrics(obs, p.metrics), priority)
	return t
}

// Invalidate removes every cache entry (both tiers) derived from req's
// keys — the fully-processed entry, every processor-prefix
// intermediate, and the original-bytes entry (spec §4.5.7). The
// Pipeline remains fully usable afterward; this only evicts one
// request's cache footprint.
func (p *Pipeline) Invalidate(req model.Request, obs model.Observer) {
	p.orch.Invalidate(req, obs)
}

// InvalidateAll terminates the Pipeline: every live Task ends with a
// CodePipelineInvalidated error and every request submitted afterward
// is rejected the same way (spec §4.5.7's pipeline.invalidate()). This
// is irreversible; construct a new Pipeline to resume serving requests.
func (p *Pipeline) InvalidateAll() {
	p.orch.InvalidateAll()
}

// IsInvalidated reports whether InvalidateAll has been called.
func (p *Pipeline) IsInvalidated() bool { return p.orch.IsInvalidated() }

// RemoveAll clears both cache tiers unconditionally, without
// invalidating in-flight Tasks.
func (p *Pipeline) RemoveAll() { p.orch.RemoveAll() }

// ObservedLoadBytesPerSecond reports the data-loading throughput the
// rate limiter has actually granted, as opposed to the configured
// ceiling (RateLimiterBytesPerSecond). Zero when IsRateLimiterEnabled
// is false.
func (p *Pipeline) ObservedLoadBytesPerSecond() float64 {
	return p.pacer.ObservedBytesPerSecond()
}

// Close stops the Pipeline's background goroutines (resumable-store
// flush loop, rate limiter) and flushes the resumable
// store one last time. It does not cancel in-flight Tasks; call
// InvalidateAll first if that's also wanted.
func (p *Pipeline) Close() error {
	defer p.cancel()
	if p.pacer != nil {
		p.pacer.Close()
	}
	p.logger.CloseLog()
	if p.resumable != nil {
		return p.resumable.Flush()
	}
	return nil
}

// metricsObserver decorates a caller-supplied Observer with Task
// lifecycle counters, so the Task/EventSink bridge in task.go never
// needs to know metrics exist (spec separation of concerns: Task
// translates Job events to Observer calls; instrumentation is a
// Pipeline-level concern layered on top by wrapping the Observer
// itself, the same pattern LogLevelOverrideLogger uses to layer a
// behavior change over an existing ILogger without replacing it).
type metricsObserver struct {
	model.Observer
	m *metrics.Collector
}

func withMetrics(obs model.Observer, m *metrics.Collector) model.Observer {
	if m == nil {
		return obs
	}
	return metricsObserver{Observer: obs, m: m}
}

func (o metricsObserver) Finished(req model.Request, resp model.Response) {
	o.m.TaskFinished("completed")
	o.Observer.Finished(req, resp)
}

func (o metricsObserver) Failed(req model.Request, err error) {
	o.m.TaskFinished("failed")
	o.Observer.Failed(req, err)
}

func (o metricsObserver) Cancelled(req model.Request) {
	o.m.TaskFinished("cancelled")
	o.Observer.Cancelled(req)
}
