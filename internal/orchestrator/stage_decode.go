package orchestrator

import (
	"sync"
	"time"

	"github.com/kean-go/imagepipeline/internal/cache"
	"github.com/kean-go/imagepipeline/internal/common"
	"github.com/kean-go/imagepipeline/internal/model"
	"github.com/kean-go/imagepipeline/internal/queue"
	"github.com/kean-go/imagepipeline/internal/task"
)

// decodeKey derives the coalescing key for stage 3 (get-decoded-image):
// identity, thumbnail and scale, but never the processor chain, which
// is applied downstream of decoding (spec §4.5).
func decodeKey(in cache.Input) string {
	return cache.MemoryKey(in.WithoutProcessors()) + "#decode"
}

// createDecodeJob builds (but does not register or subscribe to) the
// stage-3 Job for req; see createDataJob.
func (o *Orchestrator) createDecodeJob(req model.Request, in cache.Input, policy cache.Policy) *task.Job[model.ImageContainer] {
	var job *task.Job[model.ImageContainer]
	starter := func() { o.startDecodeJob(job, req, in, policy) }
	job = task.New[model.ImageContainer](starter)
	return job
}

// decodeSink bridges stage 4 (raw bytes) into stage 3 (decoded
// containers): each preview byte buffer is offered to the decoder's
// partial-decode path, and the final buffer to its full decode.
type decodeSink struct {
	o       *Orchestrator
	req     model.Request
	in      cache.Input
	job     *task.Job[model.ImageContainer]
	decoder model.Decoder

	mu            sync.Mutex
	previewItem   *queue.Item
	lastPreviewAt time.Time
}

func (s *decodeSink) OnProgress(completed, total int64) { s.job.SendProgress(completed, total) }
func (s *decodeSink) OnError(err error)                 { s.job.SendError(err) }

func (s *decodeSink) OnValue(data []byte, preview bool) {
	dctx := model.DecodingContext{Request: s.req, IsCompleted: !preview, ByteCount: len(data)}
	if s.decoder == nil {
		s.decoder = s.o.cfg.DecoderFactory(dctx)
		if s.decoder == nil {
			s.job.SendError(model.NewError(model.CodeDecodeFailed, "decoderNotRegistered"))
			return
		}
	}

	if preview {
		pd, ok := s.decoder.(model.PartialDecoder)
		if !ok || !s.o.cfg.ProgressiveDecodingEnabled {
			return
		}
		s.enqueuePreview(pd, dctx, data)
		return
	}

	s.cancelPendingPreview()
	s.enqueueFinal(dctx, data)
}

// enqueuePreview applies the teacher-style channel-pressure delay (spec
// §4.2a) before superseding any still-pending preview: as the pipeline-
// wide count of in-flight preview decodes climbs, a newly-arrived chunk
// waits a little longer before cancelling the older preview, giving a
// fast-arriving final blob a chance to pre-empt it cleanly instead of
// cancelling previews back-to-back on every chunk.
func (s *decodeSink) enqueuePreview(pd model.PartialDecoder, dctx model.DecodingContext, data []byte) {
	s.mu.Lock()
	if interval := s.o.cfg.ProgressiveDecodingInterval; interval > 0 && !s.lastPreviewAt.IsZero() && time.Since(s.lastPreviewAt) < interval {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if delay := s.o.previewBackpressureDelayMillis(); delay > 0 {
		time.Sleep(time.Duration(delay) * time.Millisecond)
	}

	s.mu.Lock()
	if s.previewItem != nil {
		s.cancelPreviewItemLocked(s.previewItem)
	}
	s.lastPreviewAt = time.Now()
	s.o.pendingPreviews.Add(1)
	item := s.o.cfg.DecodeQueue.Enqueue(int(s.req.Priority)-1, func(token queue.CancelToken) {
		defer common.AtomicSubtract[int64](&s.o.pendingPreviews, 1)
		if token.Cancelled() {
			return
		}
		container, complete, err := pd.DecodePartial(dctx, data)
		if err != nil || !complete {
			return
		}
		container.Preview = true
		s.job.SendValue(container, false)
	})
	s.previewItem = item
	s.mu.Unlock()
}

func (s *decodeSink) cancelPendingPreview() {
	s.mu.Lock()
	if s.previewItem != nil {
		s.cancelPreviewItemLocked(s.previewItem)
		s.previewItem = nil
	}
	s.mu.Unlock()
}

// cancelPreviewItemLocked cancels a pending-preview work item, correcting
// the pendingPreviews counter for the case where the item never reaches
// its closure at all (a still-queued item is removed from the heap on
// Cancel, so nothing ever runs the closure's own decrement). Callers
// must hold s.mu.
func (s *decodeSink) cancelPreviewItemLocked(it *queue.Item) {
	if it.State() == queue.StatePending {
		common.AtomicSubtract[int64](&s.o.pendingPreviews, 1)
	}
	it.Cancel()
}

func (s *decodeSink) enqueueFinal(dctx model.DecodingContext, data []byte) {
	item := s.o.cfg.DecodeQueue.Enqueue(int(s.req.Priority), func(token queue.CancelToken) {
		container, err := s.decoder.Decode(dctx, data)
		if err != nil {
			s.job.SendError(model.WrapError(model.CodeDecodeFailed, err, "decode failed"))
			return
		}
		container.Preview = false
		s.job.SendValue(container, true)
	})
	s.job.SetWorkItem(item)
}

func (o *Orchestrator) startDecodeJob(job *task.Job[model.ImageContainer], req model.Request, in cache.Input, policy cache.Policy) {
	sink := &decodeSink{o: o, req: req, in: in, job: job}
	_, sub := getOrCreateAndSubscribe(o.registry, dataKey(in),
		func() *task.Job[[]byte] { return o.createDataJob(req, in, policy) },
		sink, int(req.Priority))
	job.SetDependency(sub)
}
