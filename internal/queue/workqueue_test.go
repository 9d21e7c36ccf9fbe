package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kean-go/imagepipeline/internal/common"
)

func testConfiguredInt(v int) common.ConfiguredInt {
	return common.ConfiguredInt{Value: v}
}

func TestWorkQueue_RespectsMaxConcurrency(t *testing.T) {
	q := New(testConfiguredInt(2), Hooks{})

	var running int32
	var maxObserved int32
	var mu sync.Mutex
	release := make(chan struct{})
	var wg sync.WaitGroup

	track := func(token CancelToken) {
		mu.Lock()
		running++
		if running > maxObserved {
			maxObserved = running
		}
		mu.Unlock()
		<-release
		mu.Lock()
		running--
		mu.Unlock()
		wg.Done()
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		q.Enqueue(0, track)
	}

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.LessOrEqual(t, int(maxObserved), 2)
	mu.Unlock()

	close(release)
	wg.Wait()
}

func TestWorkQueue_DispatchesHighestPriorityFirst(t *testing.T) {
	q := New(testConfiguredInt(1), Hooks{})

	var order []int
	var mu sync.Mutex
	block := make(chan struct{})
	var wg sync.WaitGroup

	// Occupy the single slot so the next three items queue up pending.
	wg.Add(1)
	q.Enqueue(0, func(token CancelToken) {
		<-block
		wg.Done()
	})
	time.Sleep(10 * time.Millisecond)

	record := func(n int) Work {
		return func(token CancelToken) {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			wg.Done()
		}
	}

	wg.Add(3)
	q.Enqueue(1, record(1))  // low
	q.Enqueue(3, record(3))  // highest
	q.Enqueue(2, record(2))  // mid

	close(block)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{3, 2, 1}, order)
}

func TestWorkQueue_FIFOTieBreakAmongEqualPriority(t *testing.T) {
	q := New(testConfiguredInt(1), Hooks{})

	var order []int
	var mu sync.Mutex
	block := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	q.Enqueue(0, func(token CancelToken) {
		<-block
		wg.Done()
	})
	time.Sleep(10 * time.Millisecond)

	record := func(n int) Work {
		return func(token CancelToken) {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			wg.Done()
		}
	}

	wg.Add(3)
	q.Enqueue(5, record(1))
	q.Enqueue(5, record(2))
	q.Enqueue(5, record(3))

	close(block)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestItem_CancelWhilePendingRemovesFromReadySet(t *testing.T) {
	q := New(testConfiguredInt(1), Hooks{})

	block := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	q.Enqueue(0, func(token CancelToken) {
		<-block
		wg.Done()
	})
	time.Sleep(10 * time.Millisecond)

	ran := false
	pending := q.Enqueue(1, func(token CancelToken) { ran = true })
	pending.Cancel()

	close(block)
	wg.Wait()
	time.Sleep(10 * time.Millisecond)

	assert.False(t, ran)
	assert.Equal(t, StateFinishedOrCancelled, pending.State())
}

func TestItem_CancelWhileExecutingSetsCooperativeFlag(t *testing.T) {
	q := New(testConfiguredInt(1), Hooks{})

	observedCancel := make(chan bool, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	it := q.Enqueue(0, func(token CancelToken) {
		// Poll briefly for the cancel flag rather than blocking forever.
		for i := 0; i < 100; i++ {
			if token.Cancelled() {
				observedCancel <- true
				wg.Done()
				return
			}
			time.Sleep(time.Millisecond)
		}
		observedCancel <- false
		wg.Done()
	})

	time.Sleep(5 * time.Millisecond)
	it.Cancel()
	wg.Wait()

	require.True(t, <-observedCancel)
	assert.Equal(t, StateFinishedOrCancelled, it.State())
}

func TestWorkQueue_ObservabilityHooks(t *testing.T) {
	var added, prioritized, cancelled int32
	var mu sync.Mutex

	q := New(testConfiguredInt(1), Hooks{
		OnAdded:           func(*Item) { mu.Lock(); added++; mu.Unlock() },
		OnPriorityUpdated: func(*Item) { mu.Lock(); prioritized++; mu.Unlock() },
		OnCancelled:       func(*Item) { mu.Lock(); cancelled++; mu.Unlock() },
	})

	block := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	q.Enqueue(0, func(token CancelToken) { <-block; wg.Done() })
	time.Sleep(10 * time.Millisecond)

	it := q.Enqueue(1, func(token CancelToken) {})
	it.SetPriority(5)
	it.Cancel()

	close(block)
	wg.Wait()
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(2), added)
	assert.Equal(t, int32(1), prioritized)
	assert.Equal(t, int32(1), cancelled)
}
