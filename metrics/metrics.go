// Package metrics instruments a running Pipeline with Prometheus
// collectors (task lifecycle counters, cache hit/miss counters, and
// per-Work-Queue added/cancelled item counters), grounded on the "factory +
// registry" shape used elsewhere in the retrieval pack for Prometheus
// instrumentation rather than on anything in the teacher itself (the
// teacher ships no metrics library; this is pure ambient enrichment —
// see DESIGN.md).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kean-go/imagepipeline/internal/queue"
)

// Collector holds every Prometheus metric a Pipeline reports. The zero
// value is not usable; construct with New. A nil *Collector is valid
// everywhere it's consulted in this module and simply records nothing,
// so instrumentation is always optional.
type Collector struct {
	tasksStarted  prometheus.Counter
	tasksFinished *prometheus.CounterVec // label: outcome (completed|failed|cancelled)
	cacheLookups  *prometheus.CounterVec // labels: tier (memory|disk), result (hit|miss)
	queueItems    *prometheus.CounterVec // labels: queue, event (added|cancelled)
}

// New creates and registers every collector against reg. Pass
// prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer to publish on the process-wide one.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		tasksStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "imagepipeline",
			Name:      "tasks_started_total",
			Help:      "Total Tasks submitted to the pipeline.",
		}),
		tasksFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imagepipeline",
			Name:      "tasks_finished_total",
			Help:      "Total Tasks that reached a terminal state, by outcome.",
		}, []string{"outcome"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imagepipeline",
			Name:      "cache_lookups_total",
			Help:      "Cache tier lookups, by tier and result.",
		}, []string{"tier", "result"}),
		queueItems: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imagepipeline",
			Name:      "queue_items_total",
			Help:      "Work items observed by a Work Queue, by queue and event.",
		}, []string{"queue", "event"}),
	}
}

// TaskStarted records a Task submission.
func (c *Collector) TaskStarted() {
	if c == nil {
		return
	}
	c.tasksStarted.Inc()
}

// TaskFinished records a Task's terminal outcome.
func (c *Collector) TaskFinished(outcome string) {
	if c == nil {
		return
	}
	c.tasksFinished.WithLabelValues(outcome).Inc()
}

// CacheLookup records one cache-tier read attempt.
func (c *Collector) CacheLookup(tier string, hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(tier, result).Inc()
}

// QueueHooks returns a queue.Hooks that keeps this Collector's
// per-queue item counters current for one named Work Queue. Pass the
// result straight through to queue.New. The Work Queue exposes no
// "finished normally" hook (only add/priority/cancel — see
// internal/queue.Hooks), so "added minus cancelled" is the closest
// this metric gets to a depth signal; a true depth gauge would need a
// dispatch-complete hook the queue package doesn't have.
func (c *Collector) QueueHooks(name string) queue.Hooks {
	if c == nil {
		return queue.Hooks{}
	}
	added := c.queueItems.WithLabelValues(name, "added")
	cancelled := c.queueItems.WithLabelValues(name, "cancelled")
	return queue.Hooks{
		OnAdded:     func(*queue.Item) { added.Inc() },
		OnCancelled: func(*queue.Item) { cancelled.Inc() },
	}
}
