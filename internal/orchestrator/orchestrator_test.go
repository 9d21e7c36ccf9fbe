package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kean-go/imagepipeline/internal/common"
	"github.com/kean-go/imagepipeline/internal/model"
	"github.com/kean-go/imagepipeline/internal/queue"
	"github.com/kean-go/imagepipeline/internal/resumable"
)

func waitDone(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for terminal event")
	}
}

func TestOrchestrator_FreshLoadNoProcessors_StoresOriginalBytesOnly(t *testing.T) {
	loader := newFakeLoader()
	loader.data["http://x/a.jpg"] = []byte("bytes-a")
	decoder := &fakeDecoder{}
	encoder := &fakeEncoder{}
	o := newTestOrchestrator(loader, decoder, encoder, model.EDataCachePolicy, newTestCoordinator())

	req := model.NewRequestFromURL("http://x/a.jpg")
	sink := newCollectingSink()
	_, sub := o.Submit(req, nil, sink, model.EPriority)
	defer sub.Unsubscribe()

	waitDone(t, sink.done)
	require.NoError(t, sink.err)
	require.Len(t, sink.values, 1)
	assert.Equal(t, model.ECacheType.None(), sink.values[0].CacheType)
	assert.Equal(t, 1, loader.Calls())
	assert.Equal(t, 1, decoder.Calls())
	// automatic policy with zero processors stores the original bytes,
	// never an encoded image (spec §6).
	assert.Eventually(t, func() bool { return encoder.calls == 0 }, 200*time.Millisecond, 10*time.Millisecond)
}

func TestOrchestrator_FreshLoadWithProcessor_StoresEncodedImage(t *testing.T) {
	loader := newFakeLoader()
	loader.data["http://x/b.jpg"] = []byte("bytes-b")
	decoder := &fakeDecoder{}
	encoder := &fakeEncoder{}
	o := newTestOrchestrator(loader, decoder, encoder, model.EDataCachePolicy, newTestCoordinator())

	req := model.NewRequestFromURL("http://x/b.jpg")
	req.Processors = []model.ProcessorDescriptor{descriptor("upper", upperProcessor{id: "upper"})}
	sink := newCollectingSink()
	_, sub := o.Submit(req, nil, sink, model.EPriority)
	defer sub.Unsubscribe()

	waitDone(t, sink.done)
	require.NoError(t, sink.err)
	require.Len(t, sink.values, 1)
	img := sink.values[0].Container.Image.(fakeImage)
	assert.Equal(t, "bytes-b:upper", img.tag)
	require.True(t, sink.values[0].Container.Processed)

	assert.Eventually(t, func() bool { return encoder.calls == 1 }, 500*time.Millisecond, 10*time.Millisecond)
}

func TestOrchestrator_MemoryCacheHit_NeverTouchesLoaderOrDecoder(t *testing.T) {
	loader := newFakeLoader()
	loader.data["http://x/c.jpg"] = []byte("bytes-c")
	decoder := &fakeDecoder{}
	encoder := &fakeEncoder{}
	o := newTestOrchestrator(loader, decoder, encoder, model.EDataCachePolicy, newTestCoordinator())

	req := model.NewRequestFromURL("http://x/c.jpg")

	first := newCollectingSink()
	_, sub1 := o.Submit(req, nil, first, model.EPriority)
	waitDone(t, first.done)
	sub1.Unsubscribe()

	require.Equal(t, 1, loader.Calls())
	require.Equal(t, 1, decoder.Calls())

	second := newCollectingSink()
	_, sub2 := o.Submit(req, nil, second, model.EPriority)
	defer sub2.Unsubscribe()
	waitDone(t, second.done)

	require.NoError(t, second.err)
	assert.Equal(t, model.ECacheType.Memory(), second.values[0].CacheType)
	assert.Equal(t, 1, loader.Calls(), "second request must be served from the memory cache")
	assert.Equal(t, 1, decoder.Calls())
}

func TestOrchestrator_TaskCoalescing_SharesSingleLoadAcrossConcurrentSubmits(t *testing.T) {
	loader := newFakeLoader()
	loader.data["http://x/d.jpg"] = []byte("bytes-d")
	loader.release = make(chan struct{})
	decoder := &fakeDecoder{}
	encoder := &fakeEncoder{}
	o := newTestOrchestrator(loader, decoder, encoder, model.EDataCachePolicy, newTestCoordinator())

	req := model.NewRequestFromURL("http://x/d.jpg")

	const n = 8
	sinks := make([]*collectingSink, n)
	subs := make([]interface{ Unsubscribe() }, n)
	for i := 0; i < n; i++ {
		sinks[i] = newCollectingSink()
		_, sub := o.Submit(req, nil, sinks[i], model.EPriority)
		subs[i] = sub
	}
	close(loader.release)
	for i := 0; i < n; i++ {
		waitDone(t, sinks[i].done)
		require.NoError(t, sinks[i].err)
	}
	for i := 0; i < n; i++ {
		subs[i].Unsubscribe()
	}

	assert.Equal(t, 1, loader.Calls(), "concurrent requests for the same key must coalesce onto one load")
	assert.Equal(t, 1, decoder.Calls())
}

func TestOrchestrator_Invalidate_RemovesMemoryEntrySoNextRequestReloads(t *testing.T) {
	loader := newFakeLoader()
	loader.data["http://x/e.jpg"] = []byte("bytes-e")
	decoder := &fakeDecoder{}
	encoder := &fakeEncoder{}
	o := newTestOrchestrator(loader, decoder, encoder, model.EDataCachePolicy, newTestCoordinator())

	req := model.NewRequestFromURL("http://x/e.jpg")

	first := newCollectingSink()
	_, sub1 := o.Submit(req, nil, first, model.EPriority)
	waitDone(t, first.done)
	sub1.Unsubscribe()
	require.Equal(t, 1, loader.Calls())

	o.Invalidate(req, nil)

	second := newCollectingSink()
	_, sub2 := o.Submit(req, nil, second, model.EPriority)
	defer sub2.Unsubscribe()
	waitDone(t, second.done)

	assert.Equal(t, 2, loader.Calls(), "invalidate must force the next request to reload")
}

func TestOrchestrator_LoadFailure_DeliversError(t *testing.T) {
	loader := newFakeLoader()
	loader.err["http://x/f.jpg"] = assertError{"boom"}
	decoder := &fakeDecoder{}
	encoder := &fakeEncoder{}
	o := newTestOrchestrator(loader, decoder, encoder, model.EDataCachePolicy, newTestCoordinator())

	req := model.NewRequestFromURL("http://x/f.jpg")
	sink := newCollectingSink()
	_, sub := o.Submit(req, nil, sink, model.EPriority)
	defer sub.Unsubscribe()

	waitDone(t, sink.done)
	require.Error(t, sink.err)
	assert.Equal(t, model.CodeLoadFailed, model.CodeOf(sink.err))
}

func TestOrchestrator_CacheOnlyOption_FailsOnMissWithoutTouchingLoader(t *testing.T) {
	loader := newFakeLoader()
	loader.data["http://x/g.jpg"] = []byte("bytes-g")
	decoder := &fakeDecoder{}
	encoder := &fakeEncoder{}
	o := newTestOrchestrator(loader, decoder, encoder, model.EDataCachePolicy, newTestCoordinator())

	req := model.NewRequestFromURL("http://x/g.jpg")
	req.Options = req.Options.With(model.OptionReturnCacheDataDontLoad)

	sink := newCollectingSink()
	_, sub := o.Submit(req, nil, sink, model.EPriority)
	defer sub.Unsubscribe()

	waitDone(t, sink.done)
	require.Error(t, sink.err)
	assert.Equal(t, 0, loader.Calls())
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }

func TestOrchestrator_MaxInFlightDataBytes_StillDeliversUnderTightBound(t *testing.T) {
	loader := newFakeLoader()
	loader.data["http://x/h.jpg"] = []byte("bytes-h")
	decoder := &fakeDecoder{}
	encoder := &fakeEncoder{}

	cap4 := common.ConfiguredInt{Value: 4}
	cfg := Config{
		DataLoader:           loader,
		DecoderFactory:       func(model.DecodingContext) model.Decoder { return decoder },
		EncoderFactory:       func(model.Request) model.Encoder { return encoder },
		DataCachePolicy:      model.EDataCachePolicy,
		DataQueue:            queue.New(cap4, queue.Hooks{}),
		DecodeQueue:          queue.New(cap4, queue.Hooks{}),
		ProcessQueue:         queue.New(cap4, queue.Hooks{}),
		DecompressQueue:      queue.New(cap4, queue.Hooks{}),
		EncodeQueue:          queue.New(cap4, queue.Hooks{}),
		MaxInFlightDataBytes: 10, // strict (75%) limit is 7 = len("bytes-h"), the one a Normal-priority load uses; exercises WaitUntilAdd's admit-on-first-try path without ever blocking
	}
	o := New(cfg, newTestCoordinator())

	req := model.NewRequestFromURL("http://x/h.jpg")
	sink := newCollectingSink()
	_, sub := o.Submit(req, nil, sink, model.EPriority)
	defer sub.Unsubscribe()

	waitDone(t, sink.done)
	require.NoError(t, sink.err)
	require.Len(t, sink.values, 1)
	assert.Equal(t, []byte("bytes-h"), sink.values[0].Container.Data)
}

// TestOrchestrator_ResumedLoad_DeliversFullBytesWithContinuousProgress
// exercises spec §4.4 scenario 4 end to end: a load that fails
// mid-stream, resumes from the Resumable Store's checkpoint, and must
// hand the decoder every byte of the resource with progress that never
// exceeds the total.
func TestOrchestrator_ResumedLoad_DeliversFullBytesWithContinuousProgress(t *testing.T) {
	full := []byte("the quick brown fox jumps over the lazy dog, twenty-two thousand bytes of it")
	loader := &resumeLoader{full: full, failAt: 12, failErr: errors.New("connection reset")}
	decoder := &fakeDecoder{}
	encoder := &fakeEncoder{}

	store, err := resumable.Open(context.Background(), "", nil)
	require.NoError(t, err)

	cap4 := common.ConfiguredInt{Value: 4}
	cfg := Config{
		DataLoader:       loader,
		DecoderFactory:   func(model.DecodingContext) model.Decoder { return decoder },
		EncoderFactory:   func(model.Request) model.Encoder { return encoder },
		DataCachePolicy:  model.EDataCachePolicy,
		ResumableEnabled: true,
		Resumable:        store,
		DataQueue:        queue.New(cap4, queue.Hooks{}),
		DecodeQueue:      queue.New(cap4, queue.Hooks{}),
		ProcessQueue:     queue.New(cap4, queue.Hooks{}),
		DecompressQueue:  queue.New(cap4, queue.Hooks{}),
		EncodeQueue:      queue.New(cap4, queue.Hooks{}),
	}
	o := New(cfg, newTestCoordinator())

	req := model.NewRequestFromURL("http://x/resume.jpg")

	first := newCollectingSink()
	_, sub1 := o.Submit(req, nil, first, model.EPriority)
	waitDone(t, first.done)
	sub1.Unsubscribe()
	require.Error(t, first.err, "the first attempt must fail mid-stream")

	cp, ok := store.Lookup(req.URL)
	require.True(t, ok, "a failed resumable-capable load must leave a checkpoint")
	assert.Equal(t, int64(loader.failAt), cp.Offset)
	assert.Equal(t, full[:loader.failAt], cp.Data, "the checkpoint must persist the bytes already received")

	second := newCollectingSink()
	_, sub2 := o.Submit(req, nil, second, model.EPriority)
	defer sub2.Unsubscribe()
	waitDone(t, second.done)

	require.NoError(t, second.err)
	require.Len(t, second.values, 1)
	assert.Equal(t, full, second.values[0].Container.Data, "the decoder must see every byte, not just the tail delivered after resume")
	assert.Equal(t, 2, loader.Calls(), "one failed attempt plus one resumed attempt")

	_, stillTracked := store.Lookup(req.URL)
	assert.False(t, stillTracked, "a successful resume must forget the checkpoint")

	for _, sinkName := range []struct {
		name string
		s    *collectingSink
	}{{"first", first}, {"second", second}} {
		prevCompleted := int64(0)
		for _, p := range sinkName.s.progress {
			completed, total := p[0], p[1]
			assert.LessOrEqualf(t, completed, total, "%s attempt: completed must never exceed total", sinkName.name)
			assert.GreaterOrEqualf(t, completed, prevCompleted, "%s attempt: progress must be monotonically non-decreasing", sinkName.name)
			prevCompleted = completed
		}
	}
	require.NotEmpty(t, second.progress)
	lastCompleted, lastTotal := second.progress[len(second.progress)-1][0], second.progress[len(second.progress)-1][1]
	assert.Equal(t, int64(len(full)), lastCompleted)
	assert.Equal(t, int64(len(full)), lastTotal)
}
