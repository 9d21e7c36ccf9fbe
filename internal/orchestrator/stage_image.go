package orchestrator

import (
	"github.com/kean-go/imagepipeline/internal/cache"
	"github.com/kean-go/imagepipeline/internal/model"
	"github.com/kean-go/imagepipeline/internal/queue"
	"github.com/kean-go/imagepipeline/internal/task"
)

// runImageStage is the entry point for a fresh image Job's starter: it
// walks the cache-lookup-order state machine (spec §4.5, stages a-f)
// synchronously — under the registry's single "serial context" — before
// deciding whether any stage Job needs to be started at all.
//
//	a. memory hit on the fully-processed key       -> done, cache=memory
//	b. disk hit on the fully-processed key         -> decode, done, cache=disk
//	c. memory hit on a processor-prefix key        -> apply remaining processors, done, cache=memory
//	d. disk hit on a processor-prefix key          -> decode, apply remaining processors, done, cache=disk
//	e. disk hit on the original (undecoded) bytes  -> decode, apply all processors, done, cache=disk
//	f. no hit anywhere                             -> full data/decode/process chain, cache=none
func (o *Orchestrator) runImageStage(job *task.Job[model.Response], req model.Request, in cache.Input, policy cache.Policy, obs model.Observer) {
	cacheOnly := req.Options.Has(model.OptionReturnCacheDataDontLoad)

	if !req.Options.Has(model.OptionReloadIgnoringCachedData) {
		fullMemKey := cache.MemoryKey(in)

		// a.
		if entry, ok := o.cache.CachedImage(fullMemKey, policy); ok {
			o.finishFromCache(job, req, entry.Value.(model.ImageContainer), model.ECacheType.Memory())
			return
		}

		// b.
		if data, ok := o.cache.CachedData(cache.DiskKey(in), policy); ok {
			if container, err := o.decodeBytesSync(req, data); err == nil {
				if policy.MemoryWritesEnabled {
					o.cache.StoreCachedImage(fullMemKey, cache.Entry{Value: container, Cost: estimateCost(container)}, policy)
				}
				o.finishFromCache(job, req, container, model.ECacheType.Disk())
				return
			}
		}

		// c.
		for k := len(req.Processors) - 1; k >= 0; k-- {
			prefixKey := cache.MemoryKey(in.WithProcessorPrefix(k))
			if entry, ok := o.cache.CachedImage(prefixKey, policy); ok {
				o.continueFromIntermediate(job, req, in, policy, entry.Value.(model.ImageContainer), k, model.ECacheType.Memory())
				return
			}
		}

		// d/e: walk disk prefixes from the longest down to the original
		// bytes (k=0 means "no processors applied yet": the original,
		// thumbnail-and-processor-independent entry, spec §4.5.6).
		for k := len(req.Processors) - 1; k >= 0; k-- {
			var diskIn cache.Input
			if k == 0 {
				diskIn = in.AsOriginal()
			} else {
				diskIn = in.WithProcessorPrefix(k)
			}
			data, ok := o.cache.CachedData(cache.DiskKey(diskIn), policy)
			if !ok {
				continue
			}
			container, err := o.decodeBytesSync(req, data)
			if err != nil {
				continue
			}
			o.continueFromIntermediate(job, req, in, policy, container, k, model.ECacheType.Disk())
			return
		}
	}

	if cacheOnly {
		job.SendError(model.NewError(model.CodeLoadFailed, "dataMissingInCache"))
		return
	}

	// f.
	o.startFullLoad(job, req, in, policy, obs)
}

func (o *Orchestrator) finishFromCache(job *task.Job[model.Response], req model.Request, container model.ImageContainer, cacheType model.CacheType) {
	container.Preview = false
	job.SendValue(model.Response{Container: container, Request: req, CacheType: cacheType}, true)
}

func (o *Orchestrator) decodeBytesSync(req model.Request, data []byte) (model.ImageContainer, error) {
	dctx := model.DecodingContext{Request: req, IsCompleted: true, ByteCount: len(data)}
	decoder := o.cfg.DecoderFactory(dctx)
	if decoder == nil {
		return model.ImageContainer{}, model.NewError(model.CodeDecodeFailed, "decoderNotRegistered")
	}
	return decoder.Decode(dctx, data)
}

// continueFromIntermediate applies the processors left in req's chain
// after prefixApplied to an already-decoded intermediate container
// recovered from a cache hit, then stores and delivers the result.
func (o *Orchestrator) continueFromIntermediate(job *task.Job[model.Response], req model.Request, in cache.Input, policy cache.Policy, container model.ImageContainer, prefixApplied int, cacheType model.CacheType) {
	remaining := req.Processors[prefixApplied:]
	item := o.cfg.ProcessQueue.Enqueue(int(req.Priority), func(token queue.CancelToken) {
		out, err := o.applyProcessors(req, remaining, container, true, token)
		if err != nil {
			job.SendError(err)
			return
		}
		out.Preview = false
		o.decompressIfNeeded(req, out, func(final model.ImageContainer, err error) {
			if err != nil {
				job.SendError(err)
				return
			}
			if policy.MemoryWritesEnabled {
				o.cache.StoreCachedImage(cache.MemoryKey(in), cache.Entry{Value: final, Cost: estimateCost(final)}, policy)
			}
			job.SendValue(model.Response{Container: final, Request: req, CacheType: cacheType}, true)
		})
	})
	job.SetWorkItem(item)
}

// startFullLoad subscribes the image Job to the top of the
// data/decode/process chain — process if req has processors, decode
// directly otherwise — and arranges for the final result to be cached
// per the data-cache policy (spec §4.5.1, §6).
func (o *Orchestrator) startFullLoad(job *task.Job[model.Response], req model.Request, in cache.Input, policy cache.Policy, obs model.Observer) {
	sink := &imageAssemblySink{o: o, req: req, in: in, policy: policy, job: job, obs: obs}
	priority := int(req.Priority)

	if len(req.Processors) == 0 {
		_, sub := getOrCreateAndSubscribe(o.registry, decodeKey(in),
			func() *task.Job[model.ImageContainer] { return o.createDecodeJob(req, in, policy) },
			sink, priority)
		job.SetDependency(sub)
		return
	}

	_, sub := getOrCreateAndSubscribe(o.registry, processKey(in),
		func() *task.Job[model.ImageContainer] { return o.createProcessJob(req, in, policy) },
		sink, priority)
	job.SetDependency(sub)
}

// imageAssemblySink receives the fully decoded-and-processed container
// (or previews of it) and turns it into the Response the public Task
// delivers, writing the final result back into the caches per policy.
type imageAssemblySink struct {
	o       *Orchestrator
	req     model.Request
	in      cache.Input
	policy  cache.Policy
	job     *task.Job[model.Response]
	obs     model.Observer
	encoder model.Encoder
}

func (s *imageAssemblySink) OnProgress(completed, total int64) { s.job.SendProgress(completed, total) }
func (s *imageAssemblySink) OnError(err error)                 { s.job.SendError(err) }

func (s *imageAssemblySink) OnValue(container model.ImageContainer, preview bool) {
	if preview {
		s.job.SendValue(model.Response{Container: container, Request: s.req, CacheType: model.ECacheType.None()}, false)
		return
	}

	s.o.decompressIfNeeded(s.req, container, func(final model.ImageContainer, err error) {
		if err != nil {
			s.job.SendError(err)
			return
		}
		s.storeAndDeliver(final)
	})
}

// storeAndDeliver backs the memory cache immediately (cheap) and the
// result to the caller, then encodes and writes the disk-cache entry
// on the Encoding Work Queue as an async side effect — a caller
// waiting on the Task is never held up by disk I/O it didn't ask for.
func (s *imageAssemblySink) storeAndDeliver(container model.ImageContainer) {
	if s.policy.MemoryWritesEnabled {
		s.o.cache.StoreCachedImage(cache.MemoryKey(s.in), cache.Entry{Value: container, Cost: estimateCost(container)}, s.policy)
	}

	s.job.SendValue(model.Response{Container: container, Request: s.req, CacheType: model.ECacheType.None()}, true)

	hasProcessors := len(s.req.Processors) > 0
	if s.policy.DiskWritesEnabled && !s.req.IsLocalOrInline() && s.req.Thumbnail == nil &&
		s.o.cfg.DataCachePolicy.ShouldStoreEncoded(hasProcessors) && s.o.cfg.EncoderFactory != nil {
		s.o.cfg.EncodeQueue.Enqueue(int(s.req.Priority), func(token queue.CancelToken) {
			if token.Cancelled() {
				return
			}
			if s.encoder == nil {
				s.encoder = s.o.cfg.EncoderFactory(s.req)
			}
			if s.encoder == nil {
				return
			}
			encoded, err := s.encoder.Encode(container)
			if err != nil || encoded == nil {
				return
			}
			if s.obs != nil {
				encoded = s.obs.WillCache(encoded, &container, s.req)
			}
			if encoded != nil {
				_ = s.o.cache.StoreCachedData(cache.DiskKey(s.in), encoded, s.policy)
			}
		})
	}
}
