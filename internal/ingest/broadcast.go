package ingest

import (
	"context"
	"strings"

	"smsrelay/internal/models"

	"github.com/sirupsen/logrus"
)

// Fragment is one piece of a possibly multipart SMS as delivered by the
// radio, in arrival order.
type Fragment struct {
	Sender          string
	Body            string
	TimestampMillis int64
}

// BroadcastSource handles radio-delivered messages. A single logical SMS can
// arrive as several fragments; they are reassembled in order before entering
// the pipeline, and the reassembled message is recorded in the local store so
// the other sources can cross-reference it.
type BroadcastSource struct {
	pipeline *Pipeline
	store    MessageStore
	logger   *logrus.Logger
}

func NewBroadcastSource(pipeline *Pipeline, store MessageStore, logger *logrus.Logger) *BroadcastSource {
	return &BroadcastSource{pipeline: pipeline, store: store, logger: logger}
}

// OnFragments processes one radio delivery. The sender is the first non-empty
// fragment address; the timestamp is the earliest among fragments.
func (s *BroadcastSource) OnFragments(ctx context.Context, fragments []Fragment) {
	if len(fragments) == 0 {
		return
	}
	if !s.pipeline.Eligible() {
		return
	}

	var body strings.Builder
	var sender string
	var receivedAt int64
	for _, fragment := range fragments {
		body.WriteString(fragment.Body)
		if sender == "" {
			sender = fragment.Sender
		}
		if receivedAt == 0 || (fragment.TimestampMillis > 0 && fragment.TimestampMillis < receivedAt) {
			receivedAt = fragment.TimestampMillis
		}
	}

	if s.store != nil {
		if err := s.store.Insert(ctx, models.StoredMessage{
			Address:          sender,
			Body:             body.String(),
			ReceivedAtMillis: receivedAt,
		}); err != nil {
			s.logger.WithError(err).Warn("Failed to record message in local store")
		}
	}

	s.pipeline.OnCandidateMessage(ctx, "broadcast", sender, body.String(), receivedAt)
}
