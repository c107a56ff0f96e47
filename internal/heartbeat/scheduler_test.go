package heartbeat

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSink struct {
	count atomic.Int32
}

func (s *countingSink) EnqueueHeartbeat(context.Context, string, string) error {
	s.count.Add(1)
	return nil
}

func TestScheduler_SubmitsImmediatelyAndPeriodically(t *testing.T) {
	sink := &countingSink{}
	s := NewScheduler(sink, newMemSettings(), testLogger())

	s.scheduleEvery(context.Background(), func() time.Duration { return 20 * time.Millisecond })
	defer s.Cancel()

	assert.Eventually(t, func() bool { return sink.count.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_CancelStopsSubmissions(t *testing.T) {
	sink := &countingSink{}
	s := NewScheduler(sink, newMemSettings(), testLogger())

	s.scheduleEvery(context.Background(), func() time.Duration { return 10 * time.Millisecond })
	assert.Eventually(t, func() bool { return sink.count.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)

	s.Cancel()
	settled := sink.count.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, sink.count.Load())
}

func TestScheduler_RescheduleReplacesPriorInstance(t *testing.T) {
	first := &countingSink{}
	s := NewScheduler(first, newMemSettings(), testLogger())

	s.scheduleEvery(context.Background(), func() time.Duration { return 10 * time.Millisecond })
	assert.Eventually(t, func() bool { return first.count.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)

	// Replacing the schedule stops the old timer; only one instance runs,
	// and with an hour-long interval it submits just once, immediately.
	s.scheduleEvery(context.Background(), func() time.Duration { return time.Hour })
	time.Sleep(30 * time.Millisecond)
	settled := first.count.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, first.count.Load())

	s.Cancel()
}

func TestScheduler_CancelWithoutScheduleIsNoOp(t *testing.T) {
	s := NewScheduler(&countingSink{}, newMemSettings(), testLogger())
	s.Cancel()
}
