package orchestrator

import (
	"sync"

	"github.com/kean-go/imagepipeline/internal/task"
)

// registry is the orchestrator's task-coalescing table (spec §4.5.5):
// a map from a stage-qualified cache key to the live *task.Job[T]
// currently servicing it, guarded by a single mutex that doubles as
// the "single logical serial context" the spec asks for — cache
// lookups, registry get-or-create and Job construction for a given key
// never interleave across goroutines.
type registry struct {
	mu   sync.Mutex
	jobs map[string]any
}

func newRegistry() *registry {
	return &registry{jobs: make(map[string]any)}
}

// getOrCreateAndSubscribe implements "find or start the Job for key,
// then subscribe sink to it". If an existing Job is found but has
// already gone terminal between the lookup and the subscribe (it can:
// Subscribe and disposal both happen outside r.mu), the stale entry is
// evicted and a fresh Job is created in its place — subscribing to a
// finished Job always returns nil (task.Job.Subscribe), so this can
// never silently attach to dead work.
func getOrCreateAndSubscribe[T any](r *registry, key string, create func() *task.Job[T], sink task.EventSink[T], priority int) (*task.Job[T], *task.Subscription[T]) {
	for {
		r.mu.Lock()
		var job *task.Job[T]
		if raw, ok := r.jobs[key]; ok {
			job, _ = raw.(*task.Job[T])
		}
		if job == nil {
			job = create()
			r.jobs[key] = job
		}
		r.mu.Unlock()

		sub := job.Subscribe(sink, priority)
		if sub != nil {
			return job, sub
		}

		r.mu.Lock()
		if cur, ok := r.jobs[key]; ok && cur == job {
			delete(r.jobs, key)
		}
		r.mu.Unlock()
	}
}
