package ingest

import (
	"context"

	"smsrelay/internal/filter"
	"smsrelay/internal/fingerprint"
	"smsrelay/internal/metrics"
	"smsrelay/internal/models"
	"smsrelay/internal/privacy"
	"smsrelay/internal/settings"
	"smsrelay/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// ForwardSink accepts deduplicated, filtered inbound messages for durable
// forwarding. Satisfied by the delivery queue.
type ForwardSink interface {
	EnqueueInboundForward(ctx context.Context, deviceID, apiKey string, msg models.InboundMessage) error
}

// MessageStore is the device's local message store. The broadcast source
// writes reassembled messages into it; the observer and notification sources
// read recent entries from it.
type MessageStore interface {
	Insert(ctx context.Context, msg models.StoredMessage) error
	Recent(ctx context.Context, limit int) ([]models.StoredMessage, error)
}

// Pipeline is the shared downstream path for all ingestion sources:
// eligibility, fingerprint dedup, filtering, then enqueue. Sources run
// concurrently; the fingerprint cache is the only shared state and the sole
// mechanism keeping one physical SMS from being forwarded more than once.
type Pipeline struct {
	cache    *fingerprint.Cache
	filter   *filter.Engine
	sink     ForwardSink
	settings settings.Store
	logger   *logrus.Logger
}

func NewPipeline(cache *fingerprint.Cache, engine *filter.Engine, sink ForwardSink, store settings.Store, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		cache:    cache,
		filter:   engine,
		sink:     sink,
		settings: store,
		logger:   logger,
	}
}

// Eligible reports whether inbound processing is enabled and the device has
// credentials. An ineligible pipeline drops candidates without side effects.
func (p *Pipeline) Eligible() bool {
	if !p.settings.GetBool(settings.KeyReceiveSMSEnabled, true) {
		return false
	}
	if p.settings.GetString(settings.KeyDeviceID, "") == "" {
		return false
	}
	return p.settings.GetString(settings.KeyAPIKey, "") != ""
}

// OnCandidateMessage runs one observed message through the pipeline and
// reports whether it was submitted for forwarding.
func (p *Pipeline) OnCandidateMessage(ctx context.Context, source, sender, body string, receivedAtMillis int64) bool {
	ctx, span := tracing.StartSpan(ctx, "ingest.candidate",
		attribute.String("source", source),
	)
	defer span.End()

	if !p.Eligible() {
		return false
	}

	msgLog := p.logger.WithFields(logrus.Fields{
		"source": source,
		"sender": privacy.MaskSender(sender),
	})

	fp := fingerprint.Derive(sender, body, receivedAtMillis)
	defer metrics.SetGauge("fingerprint_cache_size", float64(p.cache.Len()), nil, "Entries in the dedup cache")
	if !p.cache.CheckAndRecord(fp) {
		metrics.IncrementCounter("ingest_dropped_total", map[string]string{"source": source, "reason": "duplicate"}, "Candidates dropped by the pipeline")
		msgLog.Debug("Duplicate message suppressed")
		return false
	}

	if !p.filter.ShouldProcess(sender, body) {
		metrics.IncrementCounter("ingest_dropped_total", map[string]string{"source": source, "reason": "filtered"}, "Candidates dropped by the pipeline")
		msgLog.Debug("Message dropped by filter")
		return false
	}

	deviceID := p.settings.GetString(settings.KeyDeviceID, "")
	apiKey := p.settings.GetString(settings.KeyAPIKey, "")
	if err := p.sink.EnqueueInboundForward(ctx, deviceID, apiKey, models.InboundMessage{
		Sender:           sender,
		Message:          body,
		ReceivedAtMillis: receivedAtMillis,
		Fingerprint:      fp,
	}); err != nil {
		msgLog.WithError(err).Error("Failed to enqueue inbound message")
		return false
	}

	metrics.IncrementCounter("ingest_forwarded_total", map[string]string{"source": source}, "Candidates submitted for forwarding")
	msgLog.Info("Inbound message queued for forwarding")
	return true
}
