package ingest

import (
	"context"
	"sync"

	"smsrelay/internal/constants"

	"github.com/sirupsen/logrus"
)

// handledHistoryLimit bounds the set of remembered message identifiers. The
// Recent scan is a small window, so identifiers older than a few windows can
// never reappear in it.
const handledHistoryLimit = 32

// StoreObserver reacts to change notifications from the device's message
// store. Radio-delivered messages are already covered by the broadcast
// source, so only messages carrying an advanced protocol flag are processed
// here. Skipped radio-protocol rows are not remembered: a newer plain SMS
// sitting above an unprocessed advanced message must not hide it from the
// next scan.
type StoreObserver struct {
	pipeline *Pipeline
	store    MessageStore
	logger   *logrus.Logger

	mu      sync.Mutex
	handled map[string]struct{}
	order   []string
}

func NewStoreObserver(pipeline *Pipeline, store MessageStore, logger *logrus.Logger) *StoreObserver {
	return &StoreObserver{
		pipeline: pipeline,
		store:    store,
		logger:   logger,
		handled:  make(map[string]struct{}),
	}
}

// OnStoreChanged scans the most recent stored messages, newest first, and
// processes the first advanced-protocol message not already handled. The
// change notification carries no payload, so the handled set is the only
// thing keeping repeat notifications from reprocessing the same row.
func (o *StoreObserver) OnStoreChanged(ctx context.Context) {
	messages, err := o.store.Recent(ctx, constants.ObserverQueryLimit)
	if err != nil {
		o.logger.WithError(err).Error("Failed to query recent messages")
		return
	}

	for _, msg := range messages {
		if isPrimaryProtocol(msg.Protocol) {
			o.logger.WithField("id", msg.ID).Debug("Skipping radio-protocol message, broadcast source owns it")
			continue
		}
		if !o.markHandled(msg.ID) {
			continue
		}
		o.pipeline.OnCandidateMessage(ctx, "observer", msg.Address, msg.Body, msg.ReceivedAtMillis)
		return
	}
}

// markHandled records the identifier and reports whether it was new. The set
// is trimmed oldest-first once it outgrows the history limit.
func (o *StoreObserver) markHandled(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.handled[id]; ok {
		return false
	}
	o.handled[id] = struct{}{}
	o.order = append(o.order, id)
	if len(o.order) > handledHistoryLimit {
		delete(o.handled, o.order[0])
		o.order = o.order[1:]
	}
	return true
}

// isPrimaryProtocol reports whether the message came in over the primary
// radio transport. An empty or zero protocol flag means plain SMS.
func isPrimaryProtocol(protocol string) bool {
	return protocol == "" || protocol == "0"
}
