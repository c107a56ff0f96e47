package heartbeat

import (
	"context"

	"smsrelay/internal/metrics"
	"smsrelay/internal/models"
	"smsrelay/internal/queue"
	"smsrelay/internal/settings"
	"smsrelay/pkg/gateway"

	"github.com/sirupsen/logrus"
)

// Eligible reports whether the periodic heartbeat should do real work: the
// device is registered, the gateway is on, and the heartbeat feature has not
// been switched off. An ineligible heartbeat is a successful no-op.
func Eligible(store settings.Store) bool {
	if store.GetString(settings.KeyDeviceID, "") == "" {
		return false
	}
	if !store.GetBool(settings.KeyGatewayEnabled, false) {
		return false
	}
	return store.GetBool(settings.KeyHeartbeatEnabled, true)
}

// Worker executes heartbeat tasks from the delivery queue: telemetry
// snapshot, one network call, then application of any server-adjusted
// settings. A changed interval takes effect on the next schedule.
type Worker struct {
	client    gateway.Client
	collector Collector
	settings  settings.Store
	logger    *logrus.Logger
}

func NewWorker(client gateway.Client, collector Collector, store settings.Store, logger *logrus.Logger) *Worker {
	return &Worker{
		client:    client,
		collector: collector,
		settings:  store,
		logger:    logger,
	}
}

func (w *Worker) Execute(ctx context.Context, task *models.DeliveryTask) queue.Outcome {
	if !Eligible(w.settings) {
		w.logger.Debug("Heartbeat not eligible, skipping")
		return queue.Success
	}

	req := w.collector.Collect(ctx)
	req.ReceiveSMSEnabled = w.settings.GetBool(settings.KeyReceiveSMSEnabled, true)

	resp, err := w.client.Heartbeat(ctx, task.DeviceID, task.APIKey, req)
	if err != nil {
		if gateway.IsRetryable(err) {
			w.logger.WithError(err).Warn("Heartbeat failed, will retry")
			return queue.RetryableFailure
		}
		w.logger.WithError(err).Error("Heartbeat failed")
		return queue.TerminalFailure
	}

	w.applyResponse(resp)
	metrics.IncrementCounter("heartbeat_sent_total", nil, "Successful heartbeats")
	w.logger.WithFields(logrus.Fields{
		"network_type": req.NetworkType,
		"battery":      req.BatteryPercentage,
	}).Info("Heartbeat sent")
	return queue.Success
}

func (w *Worker) applyResponse(resp *gateway.HeartbeatResponse) {
	if resp == nil {
		return
	}
	if resp.HeartbeatIntervalMinutes > 0 {
		if err := w.settings.SetInt(settings.KeyHeartbeatIntervalMinutes, resp.HeartbeatIntervalMinutes); err != nil {
			w.logger.WithError(err).Warn("Failed to store server-adjusted heartbeat interval")
		}
	}
	if resp.GatewayEnabled != nil {
		if err := w.settings.SetBool(settings.KeyGatewayEnabled, *resp.GatewayEnabled); err != nil {
			w.logger.WithError(err).Warn("Failed to store server-adjusted gateway flag")
		}
	}
}
