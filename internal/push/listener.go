package push

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"smsrelay/internal/constants"
	"smsrelay/internal/metrics"
	"smsrelay/internal/models"
	"smsrelay/internal/retry"
	"smsrelay/internal/settings"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// Dispatcher consumes decoded outbound requests. Satisfied by the outbound
// dispatcher.
type Dispatcher interface {
	Send(ctx context.Context, req models.OutboundRequest) map[string]bool
}

// Listener keeps a websocket connection to the backend and turns push
// messages into outbound sends. The connection is best effort: it reconnects
// with backoff and the backend treats push purely as a wake-up channel, so a
// dropped message costs latency, not correctness.
type Listener struct {
	url        string
	dispatcher Dispatcher
	settings   settings.Store
	logger     *logrus.Logger
	backoff    *retry.Backoff

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewListener(url string, dispatcher Dispatcher, store settings.Store, logger *logrus.Logger) *Listener {
	return &Listener{
		url:        url,
		dispatcher: dispatcher,
		settings:   store,
		logger:     logger,
		backoff: retry.NewBackoff(retry.BackoffConfig{
			InitialDelay: constants.PushReconnectInitialSec * time.Second,
			MaxDelay:     constants.PushReconnectMaxSec * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		}),
	}
}

// Start launches the connection loop.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return fmt.Errorf("push listener is already running")
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.running = true

	l.wg.Add(1)
	go l.connectLoop(ctx)

	l.logger.WithField("url", l.url).Info("Push listener started")
	return nil
}

// Stop closes the connection and waits for the loop to exit.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running {
		return
	}
	l.cancel()
	l.wg.Wait()
	l.running = false
	l.logger.Info("Push listener stopped")
}

func (l *Listener) connectLoop(ctx context.Context) {
	defer l.wg.Done()

	attempt := 0
	for ctx.Err() == nil {
		if err := l.serve(ctx); err != nil && ctx.Err() == nil {
			attempt++
			delay := l.backoff.GetNextDelay(attempt)
			l.logger.WithError(err).WithField("backoff", delay).Warn("Push connection lost, reconnecting")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		attempt = 0
	}
}

// serve runs one connection until it fails or the context ends.
func (l *Listener) serve(ctx context.Context) error {
	header := http.Header{}
	header.Set("x-api-key", l.settings.GetString(settings.KeyAPIKey, ""))
	header.Set("x-device-id", l.settings.GetString(settings.KeyDeviceID, ""))

	conn, _, err := websocket.Dial(ctx, l.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("failed to dial push endpoint: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	l.logger.Info("Push connection established")
	metrics.IncrementCounter("push_connected_total", nil, "Push connection establishments")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("push read failed: %w", err)
		}
		l.handleMessage(ctx, data)
	}
}

func (l *Listener) handleMessage(ctx context.Context, data []byte) {
	req, err := decodeOutbound(data)
	if err != nil {
		metrics.IncrementCounter("push_messages_total", map[string]string{"outcome": "invalid"}, "Push messages received")
		l.logger.WithError(err).Warn("Discarding invalid push message")
		return
	}

	metrics.IncrementCounter("push_messages_total", map[string]string{"outcome": "dispatched"}, "Push messages received")
	l.logger.WithFields(logrus.Fields{
		"batch_id":   req.BatchID,
		"recipients": len(req.Recipients),
	}).Info("Outbound send requested via push")

	l.dispatcher.Send(ctx, req)
}
