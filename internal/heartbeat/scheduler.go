package heartbeat

import (
	"context"
	"sync"
	"time"

	"smsrelay/internal/constants"
	"smsrelay/internal/settings"

	"github.com/sirupsen/logrus"
)

// Sink submits heartbeat work for durable execution. Satisfied by the
// delivery queue, which collapses heartbeats to at most one pending task.
type Sink interface {
	EnqueueHeartbeat(ctx context.Context, deviceID, apiKey string) error
}

// EffectiveIntervalMinutes returns the configured heartbeat interval with the
// enforced minimum applied.
func EffectiveIntervalMinutes(store settings.Store) int {
	interval := store.GetInt(settings.KeyHeartbeatIntervalMinutes, constants.DefaultHeartbeatIntervalMinutes)
	if interval < constants.MinHeartbeatIntervalMinutes {
		return constants.MinHeartbeatIntervalMinutes
	}
	return interval
}

// Scheduler owns the recurring heartbeat submission. There is at most one
// active schedule; Schedule replaces any prior one, Cancel removes it. The
// interval is re-read from settings after every submission, so a
// server-adjusted value takes effect on the next period.
type Scheduler struct {
	sink     Sink
	settings settings.Store
	logger   *logrus.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(sink Sink, store settings.Store, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		sink:     sink,
		settings: store,
		logger:   logger,
	}
}

// Schedule starts (or restarts) the recurring heartbeat with the given
// interval, clamped to the enforced minimum. The first submission happens
// immediately.
func (s *Scheduler) Schedule(ctx context.Context, intervalMinutes int) {
	interval := intervalMinutes
	if interval < constants.MinHeartbeatIntervalMinutes {
		interval = constants.MinHeartbeatIntervalMinutes
	}

	s.logger.WithField("interval_minutes", interval).Info("Heartbeat scheduled")
	s.scheduleEvery(ctx, func() time.Duration {
		return time.Duration(EffectiveIntervalMinutes(s.settings)) * time.Minute
	})
}

// scheduleEvery installs the recurring submission, replacing any prior
// schedule. The interval function is consulted after every submission.
func (s *Scheduler) scheduleEvery(ctx context.Context, interval func() time.Duration) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(runCtx, interval)
}

// Cancel removes the active schedule, if any. In-flight heartbeat tasks run
// to completion in the queue.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.cancel = nil
	s.logger.Info("Heartbeat schedule cancelled")
}

func (s *Scheduler) run(ctx context.Context, interval func() time.Duration) {
	defer s.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.submit(ctx)
			timer.Reset(interval())
		}
	}
}

func (s *Scheduler) submit(ctx context.Context) {
	deviceID := s.settings.GetString(settings.KeyDeviceID, "")
	apiKey := s.settings.GetString(settings.KeyAPIKey, "")
	if err := s.sink.EnqueueHeartbeat(ctx, deviceID, apiKey); err != nil && ctx.Err() == nil {
		s.logger.WithError(err).Error("Failed to enqueue heartbeat task")
	}
}
