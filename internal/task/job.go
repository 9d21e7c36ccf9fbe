// Package task implements the single-producer, multi-subscriber "Job"
// substrate (spec.md §4.2): a generic source that emits progress,
// preview and final values, or an error, and coalesces subscribers
// behind a single unit of work.
package task

import (
	"sync"

	"github.com/kean-go/imagepipeline/internal/common"
)

// EventSink receives a Job's events. Implementations are supplied by
// whatever stage subscribes to the Job (another Job's work closure, or
// the Task exposed to the pipeline's caller).
type EventSink[T any] interface {
	OnProgress(completed, total int64)
	// OnValue delivers a preview (preview=true, may occur 0..N times)
	// or the single final value (preview=false, occurs exactly once
	// unless OnError fires instead).
	OnValue(value T, preview bool)
	OnError(err error)
}

// Dependency is the type-erased view of a Subscription[U] held by a
// Job as its (at most one) upstream dependency. It is an interface
// rather than a generic field because a Job[T] may depend on a Job[U]
// for a different U (e.g. get-decoded-image depends on
// get-original-image-data).
type Dependency interface {
	SetPriority(p int)
	Unsubscribe()
}

// WorkItem is the subset of *queue.Item a Job needs in order to
// propagate priority changes and cancellation to its active
// work-queue item, kept narrow so this package does not import queue
// (queue has no reason to import task, but keeping the dependency
// one-directional and minimal avoids an accidental cycle as both
// packages grow).
type WorkItem interface {
	SetPriority(p int)
	Cancel()
}

type terminalState uint8

const (
	terminalNone terminalState = iota
	terminalValue
	terminalError
	terminalCancelled
)

type subscriberEntry[T any] struct {
	priority int
	sink     EventSink[T]
}

// Job is the coalesced internal work node described in spec.md §3/§4.2.
// The zero value is not usable; construct with New.
type Job[T any] struct {
	nocopy common.NoCopy

	mu          sync.Mutex
	starter     *func()
	dependency  Dependency
	workItem    WorkItem
	priority    int
	subscribers map[uint64]*subscriberEntry[T]
	nextSubID   uint64
	terminal    terminalState
	terminalErr error
	disposed    bool
}

// New creates a Job whose starter closure runs exactly once, on the
// first subscription ever made, and is then released (spec §4.2: "it
// is deallocated immediately after invocation to allow it to carry
// owned resources without leaks"). starter may be nil for a Job that
// is driven entirely by an external producer (e.g. fed by another
// Job's dependency callback) rather than by its own first-subscriber
// trigger.
func New[T any](starter func()) *Job[T] {
	j := &Job[T]{
		subscribers: make(map[uint64]*subscriberEntry[T]),
	}
	if starter != nil {
		j.starter = &starter
	}
	return j
}

// SetWorkItem attaches the Job's currently active work-queue item, so
// future priority changes and disposal propagate to it. Pass nil to
// detach (e.g. once a stage's work item has finished but the Job
// itself lives on awaiting a downstream stage).
func (j *Job[T]) SetWorkItem(item WorkItem) {
	j.nocopy.Check()
	j.mu.Lock()
	defer j.mu.Unlock()
	j.workItem = item
	if item != nil {
		item.SetPriority(j.priority)
	}
}

// SetDependency records the upstream subscription this Job holds, so
// priority changes and disposal propagate along the dependency edge
// (spec §4.2: "at most one dependency"; §3 invariant: "propagates
// transitively to the dependency Job").
func (j *Job[T]) SetDependency(dep Dependency) {
	j.nocopy.Check()
	j.mu.Lock()
	defer j.mu.Unlock()
	j.dependency = dep
	if dep != nil {
		dep.SetPriority(j.priority)
	}
}

// Subscribe registers sink at the given priority. It returns nil if
// the Job has already reached a terminal state (spec §4.2:
// "subscribing to a finished or cancelled Job returns none").
func (j *Job[T]) Subscribe(sink EventSink[T], priority int) *Subscription[T] {
	j.nocopy.Check()
	j.mu.Lock()
	if j.terminal != terminalNone || j.disposed {
		j.mu.Unlock()
		return nil
	}

	id := j.nextSubID
	j.nextSubID++
	j.subscribers[id] = &subscriberEntry[T]{priority: priority, sink: sink}
	isFirst := len(j.subscribers) == 1
	j.recomputePriorityLocked()

	var run func()
	if isFirst && j.starter != nil {
		run = *j.starter
		j.starter = nil
	}
	j.mu.Unlock()

	if run != nil {
		run()
	}
	return &Subscription[T]{job: j, id: id}
}

// SendProgress delivers a progress event to all live subscribers. A
// no-op once the Job has reached a terminal state.
func (j *Job[T]) SendProgress(completed, total int64) {
	j.nocopy.Check()
	j.mu.Lock()
	if j.terminal != terminalNone {
		j.mu.Unlock()
		return
	}
	sinks := j.snapshotSinksLocked()
	j.mu.Unlock()

	for _, s := range sinks {
		s.OnProgress(completed, total)
	}
}

// SendValue delivers value to all live subscribers. isCompleted=false
// marks value as a preview; isCompleted=true is the Job's single
// terminal value and triggers disposal (spec §4.2).
func (j *Job[T]) SendValue(value T, isCompleted bool) {
	j.nocopy.Check()
	j.mu.Lock()
	if j.terminal != terminalNone {
		j.mu.Unlock()
		return
	}
	sinks := j.snapshotSinksLocked()
	if isCompleted {
		j.terminal = terminalValue
	}
	j.mu.Unlock()

	for _, s := range sinks {
		s.OnValue(value, !isCompleted)
	}
	if isCompleted {
		j.dispose(false)
	}
}

// SendError delivers a terminal error to all live subscribers and
// disposes the Job.
func (j *Job[T]) SendError(err error) {
	j.nocopy.Check()
	j.mu.Lock()
	if j.terminal != terminalNone {
		j.mu.Unlock()
		return
	}
	j.terminal = terminalError
	j.terminalErr = err
	sinks := j.snapshotSinksLocked()
	j.mu.Unlock()

	for _, s := range sinks {
		s.OnError(err)
	}
	j.dispose(false)
}

// IsTerminal reports whether the Job has produced its final value or
// error (distinct from disposal-by-last-unsubscribe, which reports
// terminalCancelled and is exposed via IsCancelled).
func (j *Job[T]) IsTerminal() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.terminal == terminalValue || j.terminal == terminalError
}

// IsCancelled reports whether the Job disposed because its last
// subscriber unsubscribed before it reached a terminal value or error.
func (j *Job[T]) IsCancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.terminal == terminalCancelled
}

func (j *Job[T]) snapshotSinksLocked() []EventSink[T] {
	sinks := make([]EventSink[T], 0, len(j.subscribers))
	for _, entry := range j.subscribers {
		sinks = append(sinks, entry.sink)
	}
	return sinks
}

// recomputePriorityLocked sets j.priority to the max over all live
// subscribers and propagates it to the work item and dependency.
// Callers must hold j.mu.
func (j *Job[T]) recomputePriorityLocked() {
	max := 0
	first := true
	for _, entry := range j.subscribers {
		if first || entry.priority > max {
			max = entry.priority
			first = false
		}
	}
	if !first && max == j.priority {
		return
	}
	if first {
		return // no subscribers left; leave priority as last-known
	}
	j.priority = max
	if j.workItem != nil {
		j.workItem.SetPriority(max)
	}
	if j.dependency != nil {
		j.dependency.SetPriority(max)
	}
}

// unsubscribe is called by a Subscription when its caller drops it.
func (j *Job[T]) unsubscribe(id uint64) {
	j.mu.Lock()
	if _, ok := j.subscribers[id]; !ok {
		j.mu.Unlock()
		return
	}
	delete(j.subscribers, id)
	wasLast := len(j.subscribers) == 0
	stillLive := j.terminal == terminalNone
	j.recomputePriorityLocked()
	j.mu.Unlock()

	if wasLast && stillLive {
		j.dispose(true)
	}
}

// setSubscriberPriority is called by a Subscription's SetPriority.
func (j *Job[T]) setSubscriberPriority(id uint64, priority int) {
	j.mu.Lock()
	entry, ok := j.subscribers[id]
	if !ok {
		j.mu.Unlock()
		return
	}
	entry.priority = priority
	j.recomputePriorityLocked()
	j.mu.Unlock()
}

// dispose tears the Job down exactly once: cancelling its work item
// (unless the Job finished with a value, which that work item
// produced) and unsubscribing from its dependency (spec §4.2: "on last-subscriber
// unsubscribe... cancels its work-queue item, cancels its dependency
// subscription"). cancelling distinguishes "last subscriber went away
// with no terminal value yet" from "terminal value/error already sent".
func (j *Job[T]) dispose(cancelling bool) {
	j.mu.Lock()
	if j.disposed {
		j.mu.Unlock()
		return
	}
	j.disposed = true
	if cancelling {
		j.terminal = terminalCancelled
	}
	workItem := j.workItem
	dep := j.dependency
	completed := j.terminal == terminalValue
	j.workItem = nil
	j.dependency = nil
	j.subscribers = map[uint64]*subscriberEntry[T]{}
	j.mu.Unlock()

	if workItem != nil && !completed {
		workItem.Cancel()
	}
	if dep != nil {
		dep.Unsubscribe()
	}
}

// Subscription is the handle returned by Job.Subscribe.
type Subscription[T any] struct {
	job *Job[T]
	id  uint64
}

// SetPriority updates this subscriber's contribution to the Job's
// effective priority (spec §4.2).
func (s *Subscription[T]) SetPriority(p int) {
	s.job.setSubscriberPriority(s.id, p)
}

// Unsubscribe removes this subscriber. If it was the last live
// subscriber and the Job has not reached a terminal value/error, the
// Job disposes and emits nothing further.
func (s *Subscription[T]) Unsubscribe() {
	s.job.unsubscribe(s.id)
}
