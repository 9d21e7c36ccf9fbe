package imagepipeline

import (
	"sync"

	"github.com/kean-go/imagepipeline/internal/common"
	"github.com/kean-go/imagepipeline/internal/model"
	"github.com/kean-go/imagepipeline/internal/orchestrator"
	"github.com/kean-go/imagepipeline/internal/task"
)

type taskState uint8

const (
	taskRunning taskState = iota
	taskCompleted
	taskFailed
	taskCancelled
)

// Task is the caller-visible handle for one in-flight image load
// (spec §3). A Task never exposes its result directly: every outcome
// (progress, previews, success, failure, cancellation) is delivered
// through the Observer supplied to Pipeline.Load. Task itself is only
// for mutating priority and requesting cancellation after the fact.
//
// A Task must not be copied after its first use; methods panic if they
// detect a copy (see internal/common.NoCopy).
type Task struct {
	nocopy common.NoCopy

	req model.Request
	obs model.Observer

	mu       sync.Mutex
	sub      *task.Subscription[model.Response]
	progress model.Progress
	state    taskState
	err      error
}

// newTask submits req to o and wires the resulting Job's events back
// through obs, applying obs's PreviewPolicy to filter previews (spec
// §4.7: PreviewPolicy is evaluated per subscriber, not per Job, since a
// coalesced Job may be shared by subscribers that disagree on it).
func newTask(o *orchestrator.Orchestrator, req model.Request, obs model.Observer, priority model.Priority) *Task {
	if obs == nil {
		obs = model.DefaultObserver{}
	}
	t := &Task{req: req, obs: obs}
	_, sub := o.Submit(req, obs, t, priority)
	t.mu.Lock()
	t.sub = sub
	t.mu.Unlock()
	return t
}

// Request returns the Request this Task was created from. Requests
// are value types; mutating the returned copy has no effect on the
// running Task.
func (t *Task) Request() model.Request { return t.req }

// Progress returns the most recently reported progress, or the zero
// value if no progress has been reported yet.
func (t *Task) Progress() model.Progress {
	t.nocopy.Check()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// Err returns the error the Task failed with, or nil if it has not
// failed (whether because it is still running, succeeded, or was
// cancelled — use IsCancelled to distinguish the latter from a nil Err).
func (t *Task) Err() error {
	t.nocopy.Check()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// IsRunning, IsCompleted, IsFailed and IsCancelled report the Task's
// lifecycle state (spec §3: a Task is running, then exactly one of
// completed/failed/cancelled).
func (t *Task) IsRunning() bool   { return t.stateIs(taskRunning) }
func (t *Task) IsCompleted() bool { return t.stateIs(taskCompleted) }
func (t *Task) IsFailed() bool    { return t.stateIs(taskFailed) }
func (t *Task) IsCancelled() bool { return t.stateIs(taskCancelled) }

func (t *Task) stateIs(s taskState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == s
}

// SetPriority changes this Task's contribution to the priority of
// every Job it depends on (spec §4.2: "a Job's effective priority is
// the max of its live subscribers' priorities").
func (t *Task) SetPriority(p model.Priority) {
	t.nocopy.Check()
	t.mu.Lock()
	sub := t.sub
	t.mu.Unlock()
	if sub != nil {
		sub.SetPriority(int(p))
	}
}

// Cancel unsubscribes this Task from its underlying Job chain. If this
// was the chain's last live subscriber, cancellation propagates all
// the way down (spec §4.2, §4.5.5). A Cancel after the Task has
// already reached a terminal state is a no-op (spec §3: "if any
// subscriber has already received finished, cancellation is a no-op").
//
// Unlike Finished/Failed, which the underlying Job delivers to every
// subscriber, nothing delivers a terminal event to the one subscriber
// that is itself unsubscribing (Job.dispose sends no event on
// cancellation) — so Cancel notifies the Observer directly.
func (t *Task) Cancel() {
	t.nocopy.Check()
	t.mu.Lock()
	if t.state != taskRunning {
		t.mu.Unlock()
		return
	}
	t.state = taskCancelled
	sub := t.sub
	t.sub = nil
	t.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	t.obs.Cancelled(t.req)
}

// OnProgress implements task.EventSink[model.Response].
func (t *Task) OnProgress(completed, total int64) {
	t.nocopy.Check()
	t.mu.Lock()
	if t.state != taskRunning {
		t.mu.Unlock()
		return
	}
	t.progress = model.Progress{Completed: completed, Total: total}
	t.mu.Unlock()
	t.obs.Progress(t.req, model.Progress{Completed: completed, Total: total})
}

// OnValue implements task.EventSink[model.Response]. A preview value
// is filtered through the Observer's PreviewPolicy before delivery —
// this is the one place spec §4.7's PreviewPolicy hook is consulted,
// since the decode stage that produces previews may be shared by
// subscribers with different Observers and so cannot decide this on
// its own.
func (t *Task) OnValue(value model.Response, preview bool) {
	t.nocopy.Check()
	if preview {
		ctx := model.DecodingContext{
			Request:     t.req,
			URLResponse: value.URLResponse,
			IsCompleted: false,
			ByteCount:   len(value.Container.Data),
		}
		if t.obs.PreviewPolicy(ctx) == model.EPreviewPolicy.Disabled() {
			return
		}
		t.obs.Preview(t.req, value.Container)
		return
	}

	t.mu.Lock()
	if t.state != taskRunning {
		t.mu.Unlock()
		return
	}
	t.state = taskCompleted
	t.mu.Unlock()
	t.obs.Finished(t.req, value)
}

// OnError implements task.EventSink[model.Response], splitting it into
// the Observer's Cancelled or Failed callback depending on the error's
// Code (spec §4.7's finished(result) is realized as three mutually
// exclusive terminal callbacks; see model.Observer).
func (t *Task) OnError(err error) {
	t.nocopy.Check()
	t.mu.Lock()
	if t.state != taskRunning {
		t.mu.Unlock()
		return
	}
	cancelled := model.IsCancelled(err)
	if cancelled {
		t.state = taskCancelled
	} else {
		t.state = taskFailed
		t.err = err
	}
	t.mu.Unlock()

	if cancelled {
		t.obs.Cancelled(t.req)
		return
	}
	t.obs.Failed(t.req, err)
}
