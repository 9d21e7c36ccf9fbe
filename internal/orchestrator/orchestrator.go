// Package orchestrator is the pipeline's centerpiece (spec.md §4.5): it
// turns a Request into a sequence of coalesced stage Jobs (data load,
// decode, process), consulting the cache-lookup-order state machine
// before starting any of them, and assembles the final Response.
package orchestrator

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kean-go/imagepipeline/internal/cache"
	"github.com/kean-go/imagepipeline/internal/common"
	"github.com/kean-go/imagepipeline/internal/model"
	"github.com/kean-go/imagepipeline/internal/pacer"
	"github.com/kean-go/imagepipeline/internal/queue"
	"github.com/kean-go/imagepipeline/internal/resumable"
	"github.com/kean-go/imagepipeline/internal/task"
)

// previewPressureFactor sizes the virtual pending-preview "channel"
// CalculateChannelBackPressureDelay measures against, relative to the
// decode queue's own concurrency cap (spec.md §4.2a).
const previewPressureFactor = 4

// Config is the orchestrator's construction-time policy (spec §6).
type Config struct {
	DataLoader     model.DataLoader
	DecoderFactory model.DecoderFactory
	EncoderFactory model.EncoderFactory
	Decompressor   model.Decompressor

	DataCachePolicy            model.DataCachePolicy
	ProgressiveDecodingEnabled bool
	// ProgressiveDecodingInterval is the minimum spacing between two
	// previews delivered for the same decode Job (spec §6: "coalesce
	// window"); zero means no additional spacing beyond the
	// back-pressure delay itself.
	ProgressiveDecodingInterval time.Duration
	TaskCoalescingEnabled       bool
	DecompressionEnabled       bool
	ResumableEnabled           bool

	DataQueue       *queue.WorkQueue
	DecodeQueue     *queue.WorkQueue
	ProcessQueue    *queue.WorkQueue
	DecompressQueue *queue.WorkQueue
	EncodeQueue     *queue.WorkQueue

	Resumable *resumable.Store
	Pacer     *pacer.Pacer

	// MaxInFlightDataBytes bounds the total RAM held by buffers
	// in-flight across every concurrent data load (stage 4) at once;
	// zero disables the bound. This protects against the network
	// (producer) outrunning decode/cache (consumer) when many large
	// images load concurrently, independent of DataQueue's concurrency
	// cap, which only bounds the *count* of simultaneous loads.
	MaxInFlightDataBytes int64
}

// Orchestrator drives every request submitted to the pipeline through
// the cache-lookup-order state machine and, on a miss, the
// data/decode/process stage chain, coalescing concurrent requests that
// land on the same stage key (spec §4.5, §4.5.5).
type Orchestrator struct {
	cfg      Config
	cache    *cache.Coordinator
	registry *registry
	nonce    atomic.Uint64

	// previewPressureCap and pendingPreviews stand in for the pending-
	// preview channel spec.md §4.2a describes: rather than a literal
	// channel (previews are dispatched across many decodeSinks, not
	// funneled through one), pendingPreviews counts in-flight preview
	// decodes pipeline-wide and previewPressureCap is the virtual
	// capacity CalculateChannelBackPressureDelay measures it against.
	previewPressureCap int
	pendingPreviews     atomic.Int64

	// dataBytesLimiter bounds in-flight data-load RAM (see
	// Config.MaxInFlightDataBytes); nil when the bound is disabled.
	dataBytesLimiter common.CacheLimiter

	invalidated atomic.Bool
}

func New(cfg Config, coordinator *cache.Coordinator) *Orchestrator {
	o := &Orchestrator{cfg: cfg, cache: coordinator, registry: newRegistry()}
	if cfg.DecodeQueue != nil {
		o.previewPressureCap = cfg.DecodeQueue.MaxConcurrency() * previewPressureFactor
	}
	if cfg.MaxInFlightDataBytes > 0 {
		o.dataBytesLimiter = common.NewCacheLimiter(cfg.MaxInFlightDataBytes)
	}
	return o
}

// previewBackpressureDelayMillis reports how long a newly-submitted
// preview decode should wait before superseding any still-pending one,
// under the teacher's channel-pressure curve (common.PreviewDecodeProfile),
// measured against the current pipeline-wide count of in-flight preview
// decodes rather than a literal channel's depth.
func (o *Orchestrator) previewBackpressureDelayMillis() int {
	return common.CalculateChannelBackPressureDelay(o.previewPressureCap, int(o.pendingPreviews.Load()), common.PreviewDecodeProfile)
}

// policyFromOptions translates a Request's Options bitset into the
// cache package's Policy, so internal/cache never depends on the
// public Options type (spec §4.3's stated separation of concerns).
func policyFromOptions(o model.Options) cache.Policy {
	return cache.Policy{
		MemoryReadsEnabled:  o.MemoryCacheReadsEnabled(),
		MemoryWritesEnabled: o.MemoryCacheWritesEnabled(),
		DiskReadsEnabled:    o.DiskCacheReadsEnabled(),
		DiskWritesEnabled:   o.DiskCacheWritesEnabled(),
	}
}

// estimateCost approximates the memory-cache cost of a container by
// its encoded byte length when known, falling back to a small fixed
// weight for containers whose Data wasn't retained (spec §4.3 charges
// the memory cache "by a cost the caller supplies"; this is the
// orchestrator's own default for that cost when nothing more precise
// is available, e.g. a container produced straight from a
// Decoder without surviving source bytes).
func estimateCost(c model.ImageContainer) int64 {
	if len(c.Data) > 0 {
		return int64(len(c.Data))
	}
	return 1 << 16
}

func keyInputFor(req model.Request, observerKey string) cache.Input {
	identity := req.Identity()
	if observerKey != "" {
		identity = observerKey
	}
	procs := make([]cache.ProcessorKeyPart, len(req.Processors))
	for i, p := range req.Processors {
		procs[i] = cache.ProcessorKeyPart{Identifier: p.Identifier, HashableIdentifier: p.HashableIdentifier}
	}
	var thumb *cache.ThumbnailDescriptor
	if req.Thumbnail != nil {
		thumb = &cache.ThumbnailDescriptor{
			Fixed:        req.Thumbnail.IsFixed(),
			MaxPixelSize: req.Thumbnail.MaxPixelSize,
			Width:        req.Thumbnail.Width,
			Height:       req.Thumbnail.Height,
			ContentMode:  req.Thumbnail.ContentMode,
			Crop:         req.Thumbnail.Crop,
			Upscale:      req.Thumbnail.Upscale,
		}
	}
	return cache.Input{
		Identity:      identity,
		Processors:    procs,
		Thumbnail:     thumb,
		ScaleOverride: req.ScaleOverride,
	}
}

// Submit starts (or coalesces onto) the image Job for req and returns
// its Job plus a live Subscription at the given sink/priority. Callers
// in the root package wrap the pair in a public Task.
func (o *Orchestrator) Submit(req model.Request, obs model.Observer, sink task.EventSink[model.Response], priority model.Priority) (*task.Job[model.Response], *task.Subscription[model.Response]) {
	if o.invalidated.Load() {
		sink.OnError(errPipelineInvalidated)
		return nil, nil
	}
	if obs == nil {
		obs = model.DefaultObserver{}
	}
	in := keyInputFor(req, obs.CacheKey(req))
	policy := policyFromOptions(req.Options)
	obs.Created(req)

	key := cache.MemoryKey(in) + "#image"
	if !o.cfg.TaskCoalescingEnabled {
		key = fmt.Sprintf("%s#%d", key, o.nonce.Add(1))
	}
	create := func() *task.Job[model.Response] {
		var job *task.Job[model.Response]
		starter := func() { o.runImageStage(job, req, in, policy, obs) }
		job = task.New[model.Response](starter)
		return job
	}
	return getOrCreateAndSubscribe(o.registry, key, create, sink, int(priority))
}

// Invalidate removes every cache entry (both tiers) derived from req's
// keys — the current fully-processed entry, every processor-prefix
// intermediate, and the original bytes entry — ignoring read/write
// policy bits, per spec §4.5.7.
func (o *Orchestrator) Invalidate(req model.Request, obs model.Observer) {
	if obs == nil {
		obs = model.DefaultObserver{}
	}
	in := keyInputFor(req, obs.CacheKey(req))
	o.cache.RemoveCachedImage(cache.MemoryKey(in))
	o.cache.RemoveCachedImage(cache.DiskKey(in))
	for k := len(req.Processors); k >= 0; k-- {
		prefix := in.WithProcessorPrefix(k)
		o.cache.RemoveCachedImage(cache.MemoryKey(prefix))
		o.cache.RemoveCachedImage(cache.DiskKey(prefix))
	}
	o.cache.RemoveCachedImage(cache.DiskKey(in.AsOriginal()))
}

// RemoveAll clears both cache tiers unconditionally.
func (o *Orchestrator) RemoveAll() { o.cache.RemoveAll() }

var errPipelineInvalidated = model.NewError(model.CodePipelineInvalidated, "pipelineInvalidated")

// InvalidateAll implements pipeline.invalidate() (spec §4.5.7): every
// live Task ends with CodePipelineInvalidated and no request accepted
// afterwards gets any further than Submit's first check. Unlike
// Invalidate (which only clears a single request's cache entries), this
// is terminal for the whole Orchestrator.
func (o *Orchestrator) InvalidateAll() {
	o.invalidated.Store(true)

	o.registry.mu.Lock()
	jobs := o.registry.jobs
	o.registry.jobs = make(map[string]any)
	o.registry.mu.Unlock()

	for _, raw := range jobs {
		if imageJob, ok := raw.(*task.Job[model.Response]); ok {
			imageJob.SendError(errPipelineInvalidated)
		}
	}
}

// IsInvalidated reports whether InvalidateAll has been called.
func (o *Orchestrator) IsInvalidated() bool { return o.invalidated.Load() }

// decompressIfNeeded runs container through the Decompressor on the
// Decompression Work Queue unless decompression is disabled outright,
// the request opted out, or a processor already produced a container
// that counts as "processed" (spec §4.5.4: decompression is skipped
// "when at least one processor was actually applied"). next is always
// called exactly once, possibly from a different goroutine.
func (o *Orchestrator) decompressIfNeeded(req model.Request, container model.ImageContainer, next func(model.ImageContainer, error)) {
	if !o.cfg.DecompressionEnabled || req.Options.Has(model.OptionSkipDecompression) || container.Processed || o.cfg.Decompressor == nil {
		next(container, nil)
		return
	}
	o.cfg.DecompressQueue.Enqueue(int(req.Priority), func(token queue.CancelToken) {
		if token.Cancelled() {
			next(model.ImageContainer{}, errCancelled)
			return
		}
		out, err := o.cfg.Decompressor.Decompress(container)
		if err != nil {
			next(model.ImageContainer{}, model.WrapError(model.CodeDecodeFailed, err, "decompress failed"))
			return
		}
		next(out, nil)
	})
}
