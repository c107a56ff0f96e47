package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Counters(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter("queue_enqueued_total", map[string]string{"kind": "inbound_forward"}, "tasks")
	r.IncrementCounter("queue_enqueued_total", map[string]string{"kind": "inbound_forward"}, "tasks")
	r.IncrementCounter("queue_enqueued_total", map[string]string{"kind": "status_update"}, "tasks")

	snapshot := r.GetAllMetrics()
	counters := snapshot["counters"].(map[string]*Metric)

	inbound := counters["queue_enqueued_total_kind:inbound_forward"]
	require.NotNil(t, inbound)
	assert.Equal(t, 2.0, inbound.Value)

	status := counters["queue_enqueued_total_kind:status_update"]
	require.NotNil(t, status)
	assert.Equal(t, 1.0, status.Value)
}

func TestRegistry_LabelOrderDoesNotSplitMetrics(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter("x", map[string]string{"a": "1", "b": "2"}, "")
	r.IncrementCounter("x", map[string]string{"b": "2", "a": "1"}, "")

	counters := r.GetAllMetrics()["counters"].(map[string]*Metric)
	require.Len(t, counters, 1)
	for _, m := range counters {
		assert.Equal(t, 2.0, m.Value)
	}
}

func TestRegistry_Gauges(t *testing.T) {
	r := NewRegistry()

	r.SetGauge("queue_pending", 7, nil, "pending tasks")
	r.SetGauge("queue_pending", 3, nil, "pending tasks")

	gauges := r.GetAllMetrics()["gauges"].(map[string]*Metric)
	require.NotNil(t, gauges["queue_pending"])
	assert.Equal(t, 3.0, gauges["queue_pending"].Value)
}

func TestRegistry_Timers(t *testing.T) {
	r := NewRegistry()

	for i := 1; i <= 20; i++ {
		r.RecordTimer("task_duration", time.Duration(i)*time.Millisecond, nil, "")
	}

	timers := r.GetAllMetrics()["timers"].(map[string]*TimerMetric)
	timer := timers["task_duration"]
	require.NotNil(t, timer)

	assert.Equal(t, int64(20), timer.Count)
	assert.Equal(t, 1.0, timer.Min)
	assert.Equal(t, 20.0, timer.Max)
	assert.InDelta(t, 10.5, timer.Average, 0.01)
	assert.Greater(t, timer.P95, timer.Average)
}

func TestGlobalHelpers(t *testing.T) {
	IncrementCounter("global_test_counter", nil, "")
	SetGauge("global_test_gauge", 1, nil, "")
	RecordTimer("global_test_timer", time.Millisecond, nil, "")

	snapshot := GetAllMetrics()
	counters := snapshot["counters"].(map[string]*Metric)
	assert.NotNil(t, counters["global_test_counter"])
}
