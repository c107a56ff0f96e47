package queue

import (
	"context"
	"encoding/json"

	"smsrelay/internal/models"
	"smsrelay/pkg/gateway"

	"github.com/sirupsen/logrus"
)

// ForwardHandler delivers inbound-forward tasks to the backend.
type ForwardHandler struct {
	client gateway.Client
	logger *logrus.Logger
}

func NewForwardHandler(client gateway.Client, logger *logrus.Logger) *ForwardHandler {
	return &ForwardHandler{client: client, logger: logger}
}

func (h *ForwardHandler) Execute(ctx context.Context, task *models.DeliveryTask) Outcome {
	var msg models.InboundMessage
	if err := json.Unmarshal(task.Payload, &msg); err != nil {
		h.logger.WithError(err).Error("Undecodable inbound-forward payload")
		return TerminalFailure
	}

	_, err := h.client.ForwardSMS(ctx, task.DeviceID, task.APIKey, gateway.ForwardSMSRequest{
		Sender:           msg.Sender,
		Message:          msg.Message,
		ReceivedAtMillis: msg.ReceivedAtMillis,
		Fingerprint:      msg.Fingerprint,
	})
	return classify(err, h.logger, "forward inbound SMS")
}

// StatusHandler delivers status-update tasks to the backend.
type StatusHandler struct {
	client gateway.Client
	logger *logrus.Logger
}

func NewStatusHandler(client gateway.Client, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{client: client, logger: logger}
}

func (h *StatusHandler) Execute(ctx context.Context, task *models.DeliveryTask) Outcome {
	var status models.MessageStatus
	if err := json.Unmarshal(task.Payload, &status); err != nil {
		h.logger.WithError(err).Error("Undecodable status-update payload")
		return TerminalFailure
	}

	_, err := h.client.UpdateSMSStatus(ctx, task.DeviceID, task.APIKey, gateway.StatusUpdateRequest{
		MessageID:         status.MessageID,
		BatchID:           status.BatchID,
		Status:            string(status.Status),
		SentAtMillis:      status.SentAtMillis,
		DeliveredAtMillis: status.DeliveredAtMillis,
		FailedAtMillis:    status.FailedAtMillis,
		ErrorCode:         status.ErrorCode,
		ErrorMessage:      status.ErrorMessage,
	})
	return classify(err, h.logger, "update SMS status")
}

func classify(err error, logger *logrus.Logger, op string) Outcome {
	if err == nil {
		return Success
	}
	if gateway.IsRetryable(err) {
		logger.WithError(err).Warnf("Failed to %s, will retry", op)
		return RetryableFailure
	}
	logger.WithError(err).Errorf("Failed to %s", op)
	return TerminalFailure
}
