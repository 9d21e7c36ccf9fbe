package orchestrator

import (
	"github.com/kean-go/imagepipeline/internal/cache"
	"github.com/kean-go/imagepipeline/internal/model"
	"github.com/kean-go/imagepipeline/internal/queue"
	"github.com/kean-go/imagepipeline/internal/task"
)

// processKey derives the coalescing key for stage 2 (get-processed-
// image) applying req's full processor chain over the decoded image.
func processKey(in cache.Input) string {
	return cache.MemoryKey(in) + "#process"
}

// createProcessJob builds the stage-2 Job applying processors in order
// to whatever stage 3 (decoding) produces. If req has no processors
// this stage is a no-op pass-through and the image stage subscribes to
// the decode Job directly instead of calling this at all.
func (o *Orchestrator) createProcessJob(req model.Request, in cache.Input, policy cache.Policy) *task.Job[model.ImageContainer] {
	var job *task.Job[model.ImageContainer]
	starter := func() { o.startProcessJob(job, req, in, policy) }
	job = task.New[model.ImageContainer](starter)
	return job
}

func (o *Orchestrator) startProcessJob(job *task.Job[model.ImageContainer], req model.Request, in cache.Input, policy cache.Policy) {
	sink := &processSink{o: o, req: req, processors: req.Processors, job: job}
	_, sub := getOrCreateAndSubscribe(o.registry, decodeKey(in),
		func() *task.Job[model.ImageContainer] { return o.createDecodeJob(req, in, policy) },
		sink, int(req.Priority))
	job.SetDependency(sub)
}

// processSink applies processors, in order, to every value the decode
// stage emits — previews at a lower priority than the eventual final
// decode, so a late-arriving final doesn't queue behind stale preview
// work (spec §4.5.2, §4.5.3).
type processSink struct {
	o          *Orchestrator
	req        model.Request
	processors []model.ProcessorDescriptor
	job        *task.Job[model.ImageContainer]
}

func (s *processSink) OnProgress(completed, total int64) { s.job.SendProgress(completed, total) }
func (s *processSink) OnError(err error)                 { s.job.SendError(err) }

func (s *processSink) OnValue(container model.ImageContainer, preview bool) {
	priority := int(s.req.Priority)
	if preview {
		priority--
	}
	item := s.o.cfg.ProcessQueue.Enqueue(priority, func(token queue.CancelToken) {
		out, err := s.o.applyProcessors(s.req, s.processors, container, !preview, token)
		if err != nil {
			s.job.SendError(err)
			return
		}
		out.Preview = preview
		s.job.SendValue(out, !preview)
	})
	if !preview {
		s.job.SetWorkItem(item)
	}
}

// applyProcessors runs processors in order over container, honoring
// cooperative cancellation between steps.
func (o *Orchestrator) applyProcessors(req model.Request, processors []model.ProcessorDescriptor, container model.ImageContainer, isCompleted bool, token queue.CancelToken) (model.ImageContainer, error) {
	out := container
	for _, p := range processors {
		if token != nil && token.Cancelled() {
			return model.ImageContainer{}, errCancelled
		}
		next, err := p.Processor.Process(model.ProcessingContext{Request: req, IsCompleted: isCompleted}, out)
		if err != nil {
			return model.ImageContainer{}, model.WrapError(model.CodeProcessFailed, err, "processor "+p.Identifier+" failed")
		}
		next.Processed = true
		out = next
	}
	return out, nil
}
