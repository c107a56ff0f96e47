package dispatch

import (
	"context"
	"time"

	"smsrelay/internal/metrics"
	"smsrelay/internal/models"
	"smsrelay/internal/settings"
	"smsrelay/pkg/radio"

	"github.com/sirupsen/logrus"
)

// StatusSink accepts status transitions for durable delivery to the backend.
// Satisfied by the delivery queue.
type StatusSink interface {
	EnqueueStatusUpdate(ctx context.Context, deviceID, apiKey string, status models.MessageStatus) error
}

// Correlator turns per-segment radio outcomes into MessageStatus transitions.
// Callbacks arrive on the platform's completion path, tagged with the
// message-id/batch-id pair registered at send time; each callback produces
// exactly one status task. The backend reconciles multi-segment outcomes.
type Correlator struct {
	sink     StatusSink
	settings settings.Store
	logger   *logrus.Logger
	now      func() time.Time
}

func NewCorrelator(sink StatusSink, store settings.Store, logger *logrus.Logger) *Correlator {
	return &Correlator{
		sink:     sink,
		settings: store,
		logger:   logger,
		now:      time.Now,
	}
}

// OnSentResult handles one segment's send outcome.
func (c *Correlator) OnSentResult(messageID, batchID string, resultCode int) {
	status := models.MessageStatus{
		MessageID: messageID,
		BatchID:   batchID,
	}
	if resultCode == radio.ResultOK {
		status.Status = models.StatusSent
		status.SentAtMillis = c.now().UnixMilli()
	} else {
		status.Status = models.StatusFailed
		status.FailedAtMillis = c.now().UnixMilli()
		status.ErrorCode = sendErrorCode(resultCode)
		status.ErrorMessage = sendErrorMessage(resultCode)
	}
	c.submit(status, resultCode)
}

// OnDeliveredResult handles one segment's delivery report.
func (c *Correlator) OnDeliveredResult(messageID, batchID string, resultCode int) {
	status := models.MessageStatus{
		MessageID: messageID,
		BatchID:   batchID,
	}
	if resultCode == radio.ResultOK {
		status.Status = models.StatusDelivered
		status.DeliveredAtMillis = c.now().UnixMilli()
	} else {
		status.Status = models.StatusDeliveryFailed
		status.FailedAtMillis = c.now().UnixMilli()
		status.ErrorCode = deliveryErrorCode(resultCode)
		status.ErrorMessage = deliveryErrorMessage(resultCode)
	}
	c.submit(status, resultCode)
}

func (c *Correlator) submit(status models.MessageStatus, resultCode int) {
	deviceID := c.settings.GetString(settings.KeyDeviceID, "")
	apiKey := c.settings.GetString(settings.KeyAPIKey, "")

	if err := c.sink.EnqueueStatusUpdate(context.Background(), deviceID, apiKey, status); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"message_id": status.MessageID,
			"status":     status.Status,
		}).Error("Failed to enqueue status update")
		return
	}
	metrics.IncrementCounter("dispatch_status_total", map[string]string{
		"status": string(status.Status),
	}, "Status transitions produced by the correlator")

	c.logger.WithFields(logrus.Fields{
		"message_id":  status.MessageID,
		"batch_id":    status.BatchID,
		"status":      status.Status,
		"result_code": resultCode,
	}).Debug("Radio outcome correlated")
}

func sendErrorCode(resultCode int) string {
	switch resultCode {
	case radio.ResultErrorGenericFailure:
		return "GENERIC_FAILURE"
	case radio.ResultErrorRadioOff:
		return "RADIO_OFF"
	case radio.ResultErrorNullPayload:
		return "NULL_PAYLOAD"
	case radio.ResultErrorNoService:
		return "NO_SERVICE"
	case radio.ResultErrorLimitExceeded:
		return "LIMIT_EXCEEDED"
	case radio.ResultErrorShortCodeNotAllowed:
		return "SHORT_CODE_NOT_ALLOWED"
	case radio.ResultErrorShortCodeNeverAllowed:
		return "SHORT_CODE_NEVER_ALLOWED"
	default:
		return "UNKNOWN_ERROR"
	}
}

func sendErrorMessage(resultCode int) string {
	switch resultCode {
	case radio.ResultErrorGenericFailure:
		return "generic send failure"
	case radio.ResultErrorRadioOff:
		return "radio is off"
	case radio.ResultErrorNullPayload:
		return "empty message payload"
	case radio.ResultErrorNoService:
		return "no cellular service"
	case radio.ResultErrorLimitExceeded:
		return "sending limit exceeded"
	case radio.ResultErrorShortCodeNotAllowed:
		return "short code not allowed"
	case radio.ResultErrorShortCodeNeverAllowed:
		return "short code never allowed"
	default:
		return "unknown send failure"
	}
}

func deliveryErrorCode(resultCode int) string {
	if resultCode == radio.ResultDeliveryCanceled {
		return "DELIVERY_CANCELED"
	}
	return "UNKNOWN_ERROR"
}

func deliveryErrorMessage(resultCode int) string {
	if resultCode == radio.ResultDeliveryCanceled {
		return "delivery canceled"
	}
	return "unknown delivery failure"
}
