package dispatch

import (
	"context"
	"errors"
	"time"

	"smsrelay/internal/constants"
	"smsrelay/internal/metrics"
	"smsrelay/internal/models"
	"smsrelay/internal/settings"
	"smsrelay/internal/tracing"
	"smsrelay/pkg/radio"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Dispatcher initiates outbound sends. The trigger is synchronous; completion
// arrives asynchronously through the Correlator. Initiation failures produce
// a FAILED status immediately so the backend never loses track of a message.
type Dispatcher struct {
	transport  radio.Transport
	resolver   radio.SubscriptionResolver
	correlator *Correlator
	sink       StatusSink
	settings   settings.Store
	logger     *logrus.Logger
	now        func() time.Time
}

func NewDispatcher(transport radio.Transport, resolver radio.SubscriptionResolver, correlator *Correlator, sink StatusSink, store settings.Store, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		transport:  transport,
		resolver:   resolver,
		correlator: correlator,
		sink:       sink,
		settings:   store,
		logger:     logger,
		now:        time.Now,
	}
}

// Send initiates delivery of one outbound request and reports per-recipient
// initiation outcomes. True means the transport accepted the segments and
// statuses will follow through the correlator; false means a FAILED status
// was already enqueued.
func (d *Dispatcher) Send(ctx context.Context, req models.OutboundRequest) map[string]bool {
	ctx, span := tracing.StartSpan(ctx, "dispatch.send",
		attribute.String("batch.id", req.BatchID),
		attribute.Int("recipients", len(req.Recipients)),
	)
	defer span.End()

	segments := SplitSegments(req.Message)
	transport := d.selectTransport(req.SimSubscription)

	outcomes := make(map[string]bool, len(req.Recipients))
	for _, recipient := range req.Recipients {
		messageID := req.MessageID
		if messageID == "" || len(req.Recipients) > 1 {
			// Each recipient is its own logical message; the batch id ties
			// them back to the request. Requests without an id get one
			// minted here so their status tasks never collide.
			messageID = uuid.NewString()
		}

		err := transport.SendSegments(ctx, recipient, segments, radio.Callbacks{
			MessageID:   messageID,
			BatchID:     req.BatchID,
			OnSent:      d.correlator.OnSentResult,
			OnDelivered: d.correlator.OnDeliveredResult,
		})
		if err != nil {
			d.reportInitiationFailure(ctx, messageID, req.BatchID, err)
			outcomes[recipient] = false
			continue
		}

		metrics.IncrementCounter("dispatch_send_total", map[string]string{"outcome": "initiated"}, "Outbound send initiations")
		d.logger.WithFields(logrus.Fields{
			"message_id": messageID,
			"batch_id":   req.BatchID,
			"segments":   len(segments),
		}).Info("Outbound send initiated")
		outcomes[recipient] = true
	}
	return outcomes
}

// selectTransport picks the sending channel: the request's SIM subscription
// when set, else the device-wide preference, else the default transport. SIM
// selection degrades to the default transport when unsupported.
func (d *Dispatcher) selectTransport(requested int) radio.Transport {
	subscription := requested
	if subscription < 0 {
		subscription = d.settings.GetInt(settings.KeyPreferredSim, constants.DefaultSimSubscription)
	}
	if subscription < 0 {
		return d.transport
	}

	transport, err := d.resolver.ForSubscription(subscription)
	if err != nil {
		if !errors.Is(err, radio.ErrSubscriptionUnsupported) {
			d.logger.WithError(err).WithField("subscription", subscription).Warn("SIM-specific transport unavailable, using default")
		}
		return d.transport
	}
	return transport
}

func (d *Dispatcher) reportInitiationFailure(ctx context.Context, messageID, batchID string, sendErr error) {
	errorCode := "SENDING_EXCEPTION"
	if errors.Is(sendErr, radio.ErrPermissionDenied) {
		errorCode = "PERMISSION_DENIED"
	}

	d.logger.WithError(sendErr).WithFields(logrus.Fields{
		"message_id": messageID,
		"error_code": errorCode,
	}).Error("Failed to initiate outbound send")
	metrics.IncrementCounter("dispatch_send_total", map[string]string{"outcome": "failed"}, "Outbound send initiations")

	status := models.MessageStatus{
		MessageID:      messageID,
		BatchID:        batchID,
		Status:         models.StatusFailed,
		FailedAtMillis: d.now().UnixMilli(),
		ErrorCode:      errorCode,
		ErrorMessage:   sendErr.Error(),
	}
	deviceID := d.settings.GetString(settings.KeyDeviceID, "")
	apiKey := d.settings.GetString(settings.KeyAPIKey, "")
	if err := d.sink.EnqueueStatusUpdate(ctx, deviceID, apiKey, status); err != nil {
		d.logger.WithError(err).WithField("message_id", messageID).Error("Failed to enqueue initiation-failure status")
	}
}
