package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"smsrelay/internal/constants"
	"smsrelay/internal/metrics"
	"smsrelay/internal/models"
	"smsrelay/internal/tracing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Outcome is the result of one task execution attempt.
type Outcome int

const (
	Success Outcome = iota
	RetryableFailure
	TerminalFailure
)

// Handler executes one kind of delivery task.
type Handler interface {
	Execute(ctx context.Context, task *models.DeliveryTask) Outcome
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, task *models.DeliveryTask) Outcome

func (f HandlerFunc) Execute(ctx context.Context, task *models.DeliveryTask) Outcome {
	return f(ctx, task)
}

// ConnectivityChecker gates task execution on network availability. Tasks
// stay due while offline and are picked up on the first poll after
// connectivity returns.
type ConnectivityChecker interface {
	IsOnline() bool
}

// Queue is the durable, retrying delivery queue. Enqueue returns
// immediately; a worker pool drains due tasks whenever the device is online,
// retrying retryable failures with exponential backoff up to the bounded
// maximum, after which the task is dropped with only a log trace.
type Queue struct {
	store        *Store
	connectivity ConnectivityChecker
	logger       *logrus.Logger

	handlersMu sync.RWMutex
	handlers   map[models.TaskKind]Handler

	workers      int
	pollInterval time.Duration
	maxRetries   int
	baseBackoff  time.Duration
	maxBackoff   time.Duration

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	running bool
	mu      sync.Mutex
}

type Options struct {
	Workers        int
	PollIntervalMs int
}

func New(store *Store, connectivity ConnectivityChecker, logger *logrus.Logger, opts Options) *Queue {
	workers := opts.Workers
	if workers <= 0 {
		workers = constants.DefaultQueueWorkers
	}
	pollInterval := time.Duration(opts.PollIntervalMs) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = constants.DefaultQueuePollIntervalMs * time.Millisecond
	}

	return &Queue{
		store:        store,
		connectivity: connectivity,
		logger:       logger,
		handlers:     make(map[models.TaskKind]Handler),
		workers:      workers,
		pollInterval: pollInterval,
		maxRetries:   constants.TaskMaxRetries,
		baseBackoff:  constants.TaskInitialBackoffSec * time.Second,
		maxBackoff:   constants.TaskMaxBackoffSec * time.Second,
	}
}

// RegisterHandler binds a task kind to its executor. Must be called before
// Start for every kind that can appear in the store.
func (q *Queue) RegisterHandler(kind models.TaskKind, handler Handler) {
	q.handlersMu.Lock()
	defer q.handlersMu.Unlock()
	q.handlers[kind] = handler
}

// EnqueueInboundForward submits an inbound message for forwarding. Each
// submission gets a fresh task name; inbound forwards are never collapsed.
func (q *Queue) EnqueueInboundForward(ctx context.Context, deviceID, apiKey string, msg models.InboundMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal inbound message: %w", err)
	}
	task := &models.DeliveryTask{
		Name:     fmt.Sprintf("sms_received_%s", uuid.NewString()),
		Kind:     models.TaskKindInboundForward,
		Payload:  payload,
		DeviceID: deviceID,
		APIKey:   apiKey,
	}
	if err := q.store.Insert(ctx, task, time.Now()); err != nil {
		return err
	}
	metrics.IncrementCounter("queue_enqueued_total", map[string]string{"kind": string(task.Kind)}, "Tasks submitted to the delivery queue")
	return nil
}

// EnqueueStatusUpdate submits a status report. Tasks are named by
// (message-id, status), so a newer report for the same transition replaces
// an unexecuted older one.
func (q *Queue) EnqueueStatusUpdate(ctx context.Context, deviceID, apiKey string, status models.MessageStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal message status: %w", err)
	}
	task := &models.DeliveryTask{
		Name:     fmt.Sprintf("sms_status_%s_%s", status.Status, status.MessageID),
		Kind:     models.TaskKindStatusUpdate,
		Payload:  payload,
		DeviceID: deviceID,
		APIKey:   apiKey,
	}
	if err := q.store.Upsert(ctx, task, time.Now()); err != nil {
		return err
	}
	metrics.IncrementCounter("queue_enqueued_total", map[string]string{"kind": string(task.Kind)}, "Tasks submitted to the delivery queue")
	return nil
}

// EnqueueHeartbeat submits the periodic heartbeat through the same durable
// infrastructure. There is at most one heartbeat task at a time.
func (q *Queue) EnqueueHeartbeat(ctx context.Context, deviceID, apiKey string) error {
	task := &models.DeliveryTask{
		Name:     "heartbeat",
		Kind:     models.TaskKindHeartbeat,
		Payload:  json.RawMessage(`{}`),
		DeviceID: deviceID,
		APIKey:   apiKey,
	}
	if err := q.store.Upsert(ctx, task, time.Now()); err != nil {
		return err
	}
	metrics.IncrementCounter("queue_enqueued_total", map[string]string{"kind": string(task.Kind)}, "Tasks submitted to the delivery queue")
	return nil
}

// Start launches the poll loop and worker pool.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return fmt.Errorf("delivery queue is already running")
	}

	ctx, q.cancel = context.WithCancel(ctx)
	q.running = true

	taskCh := make(chan *models.DeliveryTask)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, taskCh)
	}

	q.wg.Add(1)
	go q.pollLoop(ctx, taskCh)

	q.logger.WithFields(logrus.Fields{
		"workers":       q.workers,
		"poll_interval": q.pollInterval,
	}).Info("Delivery queue started")
	return nil
}

// Stop drains the workers and waits for in-flight executions to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}
	q.cancel()
	q.wg.Wait()
	q.running = false
	q.logger.Info("Delivery queue stopped")
}

func (q *Queue) pollLoop(ctx context.Context, taskCh chan<- *models.DeliveryTask) {
	defer q.wg.Done()
	defer close(taskCh)

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !q.connectivity.IsOnline() {
				continue
			}
			if pending, err := q.store.PendingCount(ctx); err == nil {
				metrics.SetGauge("queue_pending", float64(pending), nil, "Tasks awaiting delivery")
			}
			tasks, err := q.store.ClaimDue(ctx, time.Now(), q.workers)
			if err != nil {
				if ctx.Err() == nil {
					q.logger.WithError(err).Error("Failed to claim due tasks")
				}
				continue
			}
			for _, task := range tasks {
				select {
				case <-ctx.Done():
					// Shutting down; the claim reverts on next startup.
					return
				case taskCh <- task:
				}
			}
		}
	}
}

func (q *Queue) worker(ctx context.Context, taskCh <-chan *models.DeliveryTask) {
	defer q.wg.Done()

	for task := range taskCh {
		q.execute(ctx, task)
	}
}

func (q *Queue) execute(ctx context.Context, task *models.DeliveryTask) {
	spanCtx, span := tracing.StartSpan(ctx, "queue.execute",
		attribute.String("task.kind", string(task.Kind)),
		attribute.Int("task.retry_count", task.RetryCount),
	)
	defer span.End()

	taskLog := q.logger.WithFields(logrus.Fields{
		"task":  task.Name,
		"kind":  task.Kind,
		"retry": task.RetryCount,
	})

	q.handlersMu.RLock()
	handler, ok := q.handlers[task.Kind]
	q.handlersMu.RUnlock()
	if !ok {
		taskLog.Error("No handler registered for task kind, dropping task")
		q.finish(spanCtx, task, taskLog)
		return
	}

	start := time.Now()
	outcome := handler.Execute(spanCtx, task)
	metrics.RecordTimer("queue_execute_duration", time.Since(start), map[string]string{"kind": string(task.Kind)}, "Task execution latency")

	switch outcome {
	case Success:
		metrics.IncrementCounter("queue_executed_total", map[string]string{"kind": string(task.Kind), "outcome": "success"}, "Task execution outcomes")
		q.finish(spanCtx, task, taskLog)

	case RetryableFailure:
		next := task.RetryCount + 1
		if next > q.maxRetries {
			taskLog.Error("Maximum retry count reached, dropping task")
			metrics.IncrementCounter("queue_executed_total", map[string]string{"kind": string(task.Kind), "outcome": "exhausted"}, "Task execution outcomes")
			q.finish(spanCtx, task, taskLog)
			return
		}
		delay := q.backoffFor(next)
		taskLog.WithField("backoff", delay).Warn("Task failed, rescheduling")
		metrics.IncrementCounter("queue_executed_total", map[string]string{"kind": string(task.Kind), "outcome": "retry"}, "Task execution outcomes")
		if err := q.store.Reschedule(context.WithoutCancel(spanCtx), task.ID, next, time.Now().Add(delay)); err != nil {
			taskLog.WithError(err).Error("Failed to reschedule task")
		}

	case TerminalFailure:
		taskLog.Error("Task failed terminally, dropping")
		metrics.IncrementCounter("queue_executed_total", map[string]string{"kind": string(task.Kind), "outcome": "terminal"}, "Task execution outcomes")
		q.finish(spanCtx, task, taskLog)
	}
}

func (q *Queue) finish(ctx context.Context, task *models.DeliveryTask, taskLog *logrus.Entry) {
	// Completion must land even when the surrounding context is cancelled.
	if err := q.store.MarkDone(context.WithoutCancel(ctx), task.ID); err != nil {
		taskLog.WithError(err).Error("Failed to remove completed task")
	}
}

// backoffFor computes the delay before the given attempt: the initial
// backoff doubled per prior retry, capped.
func (q *Queue) backoffFor(retryCount int) time.Duration {
	delay := q.baseBackoff
	for i := 1; i < retryCount; i++ {
		delay *= 2
		if delay >= q.maxBackoff {
			return q.maxBackoff
		}
	}
	return delay
}
