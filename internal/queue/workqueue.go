// Package queue implements the pipeline's bounded-concurrency, priority-
// ordered work scheduler. One instance exists per resource class
// (data-loading, decoding, processing, decompressing, encoding).
package queue

import (
	"container/heap"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/kean-go/imagepipeline/internal/common"
)

// ItemState is the lifecycle of a single enqueued Item.
type ItemState uint8

const (
	StatePending ItemState = iota
	StateExecuting
	StateFinishedOrCancelled
)

// Work is the closure a dispatched Item runs. The supplied CancelToken
// must be polled periodically by long-running work so cooperative
// cancellation of an already-executing item can take effect.
type Work func(token CancelToken)

// CancelToken lets executing work observe cancellation requested after
// dispatch (spec §4.1: "sets a flag the closure inspects").
type CancelToken interface {
	Cancelled() bool
}

type cancelFlag struct {
	flag atomic.Bool
}

func (c *cancelFlag) Cancelled() bool { return c.flag.Load() }
func (c *cancelFlag) set()            { c.flag.Store(true) }

// Item is a handle to one piece of enqueued work. It is returned by
// Enqueue and remains valid for the item's whole lifetime.
type Item struct {
	work     Work
	priority int

	mu    sync.Mutex
	state ItemState
	seq   uint64 // FIFO tie-break, assigned at enqueue time
	index int    // heap index, maintained by container/heap

	flag *cancelFlag
	q    *WorkQueue
}

func (it *Item) State() ItemState {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.state
}

// SetPriority updates the item's ordering. A pending item is re-ranked
// in place; an executing item just records the new value (it does not
// preempt) per spec §4.1.
func (it *Item) SetPriority(p int) {
	it.mu.Lock()
	it.priority = p
	state := it.state
	idx := it.index
	it.mu.Unlock()

	if state == StatePending {
		it.q.reprioritize(it, idx)
	}
	it.q.notify(it.q.onPriorityUpdated, it)
}

// Cancel moves a pending item straight to the cancelled terminal state
// and removes it from the ready heap; an executing item's cancel flag
// is set so the running closure can observe it cooperatively. Either
// way the item's eventual terminal state is StateFinishedOrCancelled.
func (it *Item) Cancel() {
	it.mu.Lock()
	switch it.state {
	case StateFinishedOrCancelled:
		it.mu.Unlock()
		return
	case StatePending:
		it.state = StateFinishedOrCancelled
		idx := it.index
		it.mu.Unlock()
		it.q.removePending(it, idx)
	case StateExecuting:
		it.flag.set()
		it.mu.Unlock()
	}
	it.q.notify(it.q.onCancelled, it)
}

// Hooks are test-observability callbacks (spec §4.1: "Observability
// (tests)"); any of them may be nil.
type Hooks struct {
	OnAdded            func(*Item)
	OnPriorityUpdated  func(*Item)
	OnCancelled        func(*Item)
}

// WorkQueue is a priority-ordered, bounded-concurrency scheduler.
// Dispatch picks the highest-priority pending item, tie-broken by
// enqueue order (FIFO); at most MaxConcurrency items run at once.
type WorkQueue struct {
	mu        sync.Mutex
	ready     itemHeap
	nextSeq   uint64
	suspended bool

	maxConcurrency common.ConfiguredInt
	// slots bounds concurrent execution. A semaphore (rather than a
	// plain counter) so priority selection and admission are decoupled:
	// tryDispatchOne only pops the highest-priority ready item once a
	// slot is actually available, instead of racing goroutines for it.
	slots *semaphore.Weighted

	onAdded           func(*Item)
	onPriorityUpdated func(*Item)
	onCancelled       func(*Item)
}

// New creates a WorkQueue bounded to maxConcurrency concurrently
// executing items (see common.NewConfiguredInt for env-var overrides;
// this is the same provenance-carrying pattern the teacher uses for
// its transfer-concurrency knobs).
func New(maxConcurrency common.ConfiguredInt, hooks Hooks) *WorkQueue {
	if maxConcurrency.Value < 1 {
		maxConcurrency.Value = 1
	}
	q := &WorkQueue{
		maxConcurrency:    maxConcurrency,
		slots:             semaphore.NewWeighted(int64(maxConcurrency.Value)),
		onAdded:           hooks.OnAdded,
		onPriorityUpdated: hooks.OnPriorityUpdated,
		onCancelled:       hooks.OnCancelled,
	}
	heap.Init(&q.ready)
	return q
}

func (q *WorkQueue) MaxConcurrency() int { return q.maxConcurrency.Value }

// Enqueue attaches work to the queue's ready set at the given priority
// (higher value dispatches first) and returns its Item handle.
func (q *WorkQueue) Enqueue(priority int, work Work) *Item {
	it := &Item{
		work:     work,
		priority: priority,
		state:    StatePending,
		flag:     &cancelFlag{},
		q:        q,
	}

	q.mu.Lock()
	it.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.ready, it)
	q.mu.Unlock()

	q.notify(q.onAdded, it)
	q.dispatchLoop()
	return it
}

// SetSuspended pauses dispatch of new items without cancelling already
// pending ones; already-executing items are unaffected.
func (q *WorkQueue) SetSuspended(suspended bool) {
	q.mu.Lock()
	q.suspended = suspended
	q.mu.Unlock()
	if !suspended {
		q.dispatchLoop()
	}
}

func (q *WorkQueue) reprioritize(it *Item, wasIndex int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if wasIndex < 0 || wasIndex >= len(q.ready) || q.ready[wasIndex] != it {
		return
	}
	heap.Fix(&q.ready, wasIndex)
}

func (q *WorkQueue) removePending(it *Item, atIndex int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if atIndex < 0 || atIndex >= len(q.ready) || q.ready[atIndex] != it {
		return
	}
	heap.Remove(&q.ready, atIndex)
}

func (q *WorkQueue) notify(fn func(*Item), it *Item) {
	if fn != nil {
		fn(it)
	}
}

// dispatchLoop drains as much of the ready heap as the concurrency cap
// allows, running each dispatched item on its own goroutine.
func (q *WorkQueue) dispatchLoop() {
	for {
		it := q.tryDispatchOne()
		if it == nil {
			return
		}
		go q.run(it)
	}
}

func (q *WorkQueue) tryDispatchOne() *Item {
	q.mu.Lock()
	if q.suspended || q.ready.Len() == 0 {
		q.mu.Unlock()
		return nil
	}
	if !q.slots.TryAcquire(1) {
		q.mu.Unlock()
		return nil
	}
	it := heap.Pop(&q.ready).(*Item)
	q.mu.Unlock()

	it.mu.Lock()
	it.state = StateExecuting
	it.mu.Unlock()
	return it
}

func (q *WorkQueue) run(it *Item) {
	defer func() {
		q.slots.Release(1)
		it.mu.Lock()
		it.state = StateFinishedOrCancelled
		it.mu.Unlock()
		q.dispatchLoop()
	}()
	it.work(it.flag)
}

// itemHeap orders by descending priority, then ascending seq (FIFO
// among equal priorities). Priority updates call heap.Fix via
// WorkQueue.reprioritize rather than re-deriving ordering here.
type itemHeap []*Item

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *itemHeap) Push(x any) {
	it := x.(*Item)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}
