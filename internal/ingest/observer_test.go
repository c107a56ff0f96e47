package ingest

import (
	"context"
	"testing"

	"smsrelay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreObserver_AdvancedMessageBelowNewerPlainSMS(t *testing.T) {
	sink := &recordingSink{}
	msgStore := &memMessageStore{}
	p := newTestPipeline(newMemSettings(), sink)
	observer := NewStoreObserver(p, msgStore, testLogger())
	ctx := context.Background()

	require.NoError(t, msgStore.Insert(ctx, models.StoredMessage{
		ID:               "50",
		Address:          "+15551234567",
		Body:             "rcs message",
		ReceivedAtMillis: 1700000000000,
		Protocol:         "2",
	}))
	require.NoError(t, msgStore.Insert(ctx, models.StoredMessage{
		ID:               "51",
		Address:          "+15557654321",
		Body:             "plain sms on top",
		ReceivedAtMillis: 1700000001000,
		Protocol:         "0",
	}))

	// The plain SMS is the newest row; the advanced-protocol message below
	// it must still be found and forwarded exactly once.
	observer.OnStoreChanged(ctx)
	observer.OnStoreChanged(ctx)

	require.Equal(t, 1, sink.count())
	assert.Equal(t, "rcs message", sink.messages[0].Message)
	assert.Equal(t, "+15551234567", sink.messages[0].Sender)
}

func TestStoreObserver_SuccessiveAdvancedMessagesAllForwarded(t *testing.T) {
	sink := &recordingSink{}
	msgStore := &memMessageStore{}
	p := newTestPipeline(newMemSettings(), sink)
	observer := NewStoreObserver(p, msgStore, testLogger())
	ctx := context.Background()

	require.NoError(t, msgStore.Insert(ctx, models.StoredMessage{
		ID: "60", Address: "+15551234567", Body: "first", ReceivedAtMillis: 1700000000000, Protocol: "1",
	}))
	observer.OnStoreChanged(ctx)

	require.NoError(t, msgStore.Insert(ctx, models.StoredMessage{
		ID: "61", Address: "+15551234567", Body: "second", ReceivedAtMillis: 1700000002000, Protocol: "1",
	}))
	observer.OnStoreChanged(ctx)

	assert.Equal(t, 2, sink.count())
}

func TestStoreObserver_HandledSetStaysBounded(t *testing.T) {
	observer := NewStoreObserver(nil, nil, testLogger())

	for i := 0; i < handledHistoryLimit*3; i++ {
		assert.True(t, observer.markHandled(string(rune('a'+i%26))+string(rune('0'+i/26))))
	}
	assert.LessOrEqual(t, len(observer.handled), handledHistoryLimit)
	assert.LessOrEqual(t, len(observer.order), handledHistoryLimit)
}
