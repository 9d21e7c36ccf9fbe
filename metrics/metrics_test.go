package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_TaskStarted_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.TaskStarted()
	c.TaskStarted()

	assert.Equal(t, float64(2), testutil.ToFloat64(c.tasksStarted))
}

func TestCollector_TaskFinished_LabelsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.TaskFinished("completed")
	c.TaskFinished("completed")
	c.TaskFinished("failed")

	assert.Equal(t, float64(2), testutil.ToFloat64(c.tasksFinished.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.tasksFinished.WithLabelValues("failed")))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.tasksFinished.WithLabelValues("cancelled")))
}

func TestCollector_CacheLookup_TracksHitAndMiss(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.CacheLookup("memory", true)
	c.CacheLookup("memory", false)
	c.CacheLookup("disk", true)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.cacheLookups.WithLabelValues("memory", "hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.cacheLookups.WithLabelValues("memory", "miss")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.cacheLookups.WithLabelValues("disk", "hit")))
}

func TestCollector_QueueHooks_AddedAndCancelledIncrementDistinctCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	hooks := c.QueueHooks("decoding")
	require.NotNil(t, hooks.OnAdded)
	require.NotNil(t, hooks.OnCancelled)

	hooks.OnAdded(nil)
	hooks.OnAdded(nil)
	hooks.OnCancelled(nil)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.queueItems.WithLabelValues("decoding", "added")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.queueItems.WithLabelValues("decoding", "cancelled")))
}

func TestCollector_NilReceiver_NeverPanics(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.TaskStarted()
		c.TaskFinished("completed")
		c.CacheLookup("memory", true)
	})

	// A nil Collector yields a zero-value Hooks (no-op callbacks), the
	// same shape the Work Queue already treats as "no hooks configured".
	hooks := c.QueueHooks("decoding")
	assert.Nil(t, hooks.OnAdded)
	assert.Nil(t, hooks.OnCancelled)
}
