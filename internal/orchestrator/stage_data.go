package orchestrator

import (
	"context"
	"net/http"

	"github.com/kean-go/imagepipeline/internal/cache"
	"github.com/kean-go/imagepipeline/internal/model"
	"github.com/kean-go/imagepipeline/internal/queue"
	"github.com/kean-go/imagepipeline/internal/resumable"
	"github.com/kean-go/imagepipeline/internal/task"
)

var errCancelled = model.NewError(model.CodeCancelled, "cancelled")

// dataKey derives the coalescing key for stage 4 (get-original-image-
// data): identity and options only — thumbnail, scale and processors
// never affect which bytes are fetched (spec §4.5, §4.5.6).
func dataKey(in cache.Input) string {
	return cache.MemoryKey(in.AsOriginal()) + "#data"
}

// createDataJob builds (but does not register or subscribe to) the
// stage-4 Job for req; the decode stage looks it up or creates it via
// the shared registry so concurrent requests on the same data key
// coalesce onto one instance (spec §4.5.5).
func (o *Orchestrator) createDataJob(req model.Request, in cache.Input, policy cache.Policy) *task.Job[[]byte] {
	originalDiskKey := cache.DiskKey(in.AsOriginal())
	var job *task.Job[[]byte]
	starter := func() { o.startDataJob(job, req, originalDiskKey, policy) }
	job = task.New[[]byte](starter)
	return job
}

func (o *Orchestrator) startDataJob(job *task.Job[[]byte], req model.Request, originalDiskKey string, policy cache.Policy) {
	switch req.Source {
	case model.ESourceKind.InlineData():
		job.SendValue(req.InlineData, true)
	case model.ESourceKind.ByteProducer():
		go o.runByteProducer(job, req)
	default:
		priority := int(req.Priority)
		enqueue := o.dataQueueFor(req)
		item := enqueue(priority, func(token queue.CancelToken) {
			o.runDataLoad(job, req, originalDiskKey, policy, token)
		})
		job.SetWorkItem(item)
	}
}

func (o *Orchestrator) dataQueueFor(req model.Request) func(priority int, work queue.Work) *queue.Item {
	if req.Options.Has(model.OptionSkipDataLoadingQueue) {
		return func(priority int, work queue.Work) *queue.Item {
			it := &immediateItem{}
			go work(it)
			return nil
		}
	}
	return o.cfg.DataQueue.Enqueue
}

// immediateItem satisfies queue.CancelToken for work that bypasses the
// data-loading WorkQueue entirely (spec §4.6:
// skipDataLoadingQueue); it is never cancelled cooperatively since the
// caller has no handle to cancel it with.
type immediateItem struct{}

func (immediateItem) Cancelled() bool { return false }

func (o *Orchestrator) runByteProducer(job *task.Job[[]byte], req model.Request) {
	var buf []byte
	err := req.ByteProducer(context.Background(), func(chunk []byte) error {
		buf = append(buf, chunk...)
		job.SendProgress(int64(len(buf)), 0)
		if o.cfg.ProgressiveDecodingEnabled {
			job.SendValue(append([]byte(nil), buf...), false)
		}
		return nil
	})
	if err != nil {
		job.SendError(model.WrapError(model.CodeLoadFailed, err, "byte producer failed"))
		return
	}
	job.SendValue(buf, true)
}

func (o *Orchestrator) runDataLoad(job *task.Job[[]byte], req model.Request, originalDiskKey string, policy cache.Policy, token queue.CancelToken) {
	resumeFrom := int64(0)
	validator := ""
	resumableCapable := o.cfg.ResumableEnabled && req.IsResumableCapable()
	var buf []byte
	if resumableCapable {
		if cp, ok := o.cfg.Resumable.Lookup(req.URL); ok {
			resumeFrom, validator = cp.Offset, cp.Validator
			// A 206 response only delivers the new tail to onChunk, so
			// the bytes already received on the failed attempt must be
			// seeded here; otherwise the decoder only ever sees
			// total-offset bytes (spec §4.4, scenario 4).
			buf = append(buf, cp.Data...)
		}
	}
	if buf == nil {
		buf = make([]byte, 0, resumeFrom)
	}
	var total int64
	cancelled := false

	onResponse := func(resp *model.URLResponse) {
		if resp == nil {
			return
		}
		// ContentLength is already absolute (see model.DataLoader), so
		// it is used as-is rather than added to resumeFrom a second time.
		total = resp.ContentLength
		if resumeFrom > 0 && resp.StatusCode != http.StatusPartialContent {
			// The server ignored the Range request and is sending the
			// resource again from byte zero, so the prefix seeded from
			// the checkpoint would otherwise be duplicated ahead of it.
			buf = buf[:0]
		}
		if v := resumable.ValidatorFromHeaders(resp.Headers["ETag"], resp.Headers["Last-Modified"]); v != "" {
			validator = v
		}
	}
	acquired := int64(0)
	relaxed := func() bool { return req.Priority > model.EPriority }
	onChunk := func(chunk []byte, completed, chunkTotal int64) error {
		if token.Cancelled() {
			cancelled = true
			return errCancelled
		}
		if err := o.cfg.Pacer.RequestBytes(context.Background(), int64(len(chunk))); err != nil {
			return err
		}
		if o.dataBytesLimiter != nil {
			if err := o.dataBytesLimiter.WaitUntilAdd(context.Background(), int64(len(chunk)), relaxed); err != nil {
				return err
			}
			acquired += int64(len(chunk))
		}
		buf = append(buf, chunk...)
		if chunkTotal > total {
			total = chunkTotal
		}
		// completed is already absolute (the DataLoader accounts for
		// resumeFrom itself, per loader.HTTPLoader.LoadData), so it is
		// reported as-is rather than added to resumeFrom a second time.
		job.SendProgress(completed, total)
		if o.cfg.ProgressiveDecodingEnabled {
			job.SendValue(append([]byte(nil), buf...), false)
		}
		return nil
	}

	_, err := o.cfg.DataLoader.LoadData(context.Background(), req, resumeFrom, validator, onResponse, onChunk)
	if o.dataBytesLimiter != nil && acquired > 0 {
		o.dataBytesLimiter.Remove(acquired)
	}
	if cancelled {
		return
	}
	if err != nil {
		if resumableCapable && len(buf) > 0 {
			o.cfg.Resumable.Record(req.URL, resumable.Checkpoint{
				Validator: validator,
				Offset:    int64(len(buf)),
				Data:      append([]byte(nil), buf...),
			})
		}
		job.SendError(model.WrapError(model.CodeLoadFailed, err, "data load failed"))
		return
	}
	if resumableCapable {
		o.cfg.Resumable.Forget(req.URL)
	}
	job.SendValue(buf, true)

	hasProcessors := len(req.Processors) > 0
	if policy.DiskWritesEnabled && !req.IsLocalOrInline() && o.cfg.DataCachePolicy.ShouldStoreOriginal(hasProcessors) {
		_ = o.cache.StoreCachedData(originalDiskKey, buf, policy)
	}
}
