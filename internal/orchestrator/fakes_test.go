package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/kean-go/imagepipeline/internal/cache"
	"github.com/kean-go/imagepipeline/internal/common"
	"github.com/kean-go/imagepipeline/internal/model"
	"github.com/kean-go/imagepipeline/internal/queue"
)

// fakeLoader serves a fixed byte slice (or an error) for every URL,
// counting invocations so tests can assert coalescing behavior.
type fakeLoader struct {
	mu      sync.Mutex
	calls   int32
	data    map[string][]byte
	err     map[string]error
	release chan struct{} // if non-nil, LoadData blocks here until closed
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{data: make(map[string][]byte), err: make(map[string]error)}
}

func (f *fakeLoader) LoadData(ctx context.Context, req model.Request, resumeFrom int64, validator string,
	onResponse func(*model.URLResponse), onChunk func(chunk []byte, completed, total int64) error) (bool, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	err := f.err[req.URL]
	data := f.data[req.URL]
	f.mu.Unlock()
	if err != nil {
		return false, err
	}
	onResponse(&model.URLResponse{StatusCode: 200, ContentLength: int64(len(data))})
	if err := onChunk(data, int64(len(data)), int64(len(data))); err != nil {
		return false, err
	}
	return resumeFrom > 0, nil
}

func (f *fakeLoader) Calls() int { return int(atomic.LoadInt32(&f.calls)) }

// resumeLoader simulates a transfer that fails partway through its
// first attempt and is completed by a second, resumed attempt,
// mirroring loader.HTTPLoader's real 206 semantics: a resumed load
// delivers only the bytes after resumeFrom to onChunk, never the
// already-received prefix.
type resumeLoader struct {
	calls   int32
	full    []byte
	failAt  int   // bytes delivered on the first attempt before it fails
	failErr error // error returned by the first attempt
}

func (f *resumeLoader) Calls() int { return int(atomic.LoadInt32(&f.calls)) }

func (f *resumeLoader) LoadData(ctx context.Context, req model.Request, resumeFrom int64, validator string,
	onResponse func(*model.URLResponse), onChunk func(chunk []byte, completed, total int64) error) (bool, error) {
	atomic.AddInt32(&f.calls, 1)

	if resumeFrom == 0 {
		onResponse(&model.URLResponse{
			StatusCode:    200,
			Headers:       map[string]string{"ETag": `"v1"`},
			ContentLength: int64(len(f.full)),
		})
		prefix := f.full[:f.failAt]
		if err := onChunk(prefix, int64(len(prefix)), int64(len(f.full))); err != nil {
			return false, err
		}
		return false, f.failErr
	}

	onResponse(&model.URLResponse{
		StatusCode:    206,
		Headers:       map[string]string{"ETag": `"v1"`},
		ContentLength: int64(len(f.full)),
	})
	tail := f.full[resumeFrom:]
	completed := resumeFrom + int64(len(tail))
	if err := onChunk(tail, completed, int64(len(f.full))); err != nil {
		return false, err
	}
	return true, nil
}

type fakeImage struct{ tag string }

// fakeDecoder decodes by treating the bytes as already being the tag.
type fakeDecoder struct {
	mu    sync.Mutex
	calls int32
}

func (d *fakeDecoder) Decode(ctx model.DecodingContext, data []byte) (model.ImageContainer, error) {
	atomic.AddInt32(&d.calls, 1)
	return model.ImageContainer{Image: fakeImage{tag: string(data)}, Type: "fake", Data: append([]byte(nil), data...)}, nil
}

func (d *fakeDecoder) Calls() int { return int(atomic.LoadInt32(&d.calls)) }

type fakeEncoder struct{ calls int32 }

func (e *fakeEncoder) Encode(c model.ImageContainer) ([]byte, error) {
	atomic.AddInt32(&e.calls, 1)
	return append([]byte(nil), c.Data...), nil
}

// upperProcessor uppercases the container's recorded tag, to make
// processor application observable in assertions.
type upperProcessor struct{ id string }

func (p upperProcessor) Process(ctx model.ProcessingContext, c model.ImageContainer) (model.ImageContainer, error) {
	img := c.Image.(fakeImage)
	c.Image = fakeImage{tag: img.tag + ":" + p.id}
	return c, nil
}

func descriptor(id string, p model.Processor) model.ProcessorDescriptor {
	return model.ProcessorDescriptor{Identifier: id, HashableIdentifier: id, Processor: p}
}

// collectingSink records every event delivered to a Task-level
// subscriber and closes done once a terminal event arrives.
type collectingSink struct {
	mu       sync.Mutex
	values   []model.Response
	previews []model.Response
	progress [][2]int64
	err      error
	done     chan struct{}
}

func newCollectingSink() *collectingSink {
	return &collectingSink{done: make(chan struct{})}
}

func (s *collectingSink) OnProgress(completed, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, [2]int64{completed, total})
}

func (s *collectingSink) OnValue(value model.Response, preview bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if preview {
		s.previews = append(s.previews, value)
		return
	}
	s.values = append(s.values, value)
	close(s.done)
}

func (s *collectingSink) OnError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	close(s.done)
}

func newTestOrchestrator(loader model.DataLoader, decoder model.Decoder, encoder model.Encoder, policy model.DataCachePolicy, coordinator *cache.Coordinator) *Orchestrator {
	cap4 := common.ConfiguredInt{Value: 4}
	cfg := Config{
		DataLoader:                 loader,
		DecoderFactory:             func(model.DecodingContext) model.Decoder { return decoder },
		EncoderFactory:             func(model.Request) model.Encoder { return encoder },
		DataCachePolicy:            policy,
		ProgressiveDecodingEnabled: false,
		TaskCoalescingEnabled:      true,
		DecompressionEnabled:       false,
		ResumableEnabled:           false,
		DataQueue:                  queue.New(cap4, queue.Hooks{}),
		DecodeQueue:                queue.New(cap4, queue.Hooks{}),
		ProcessQueue:               queue.New(cap4, queue.Hooks{}),
		DecompressQueue:            queue.New(cap4, queue.Hooks{}),
		EncodeQueue:                queue.New(cap4, queue.Hooks{}),
	}
	return New(cfg, coordinator)
}

func newTestCoordinator() *cache.Coordinator {
	mem := cache.NewMemoryCache(cache.Config{MaxCost: 1 << 20, MaxCount: 100, StorePreviews: true})
	return cache.NewCoordinator(mem, nil, 0)
}
