package push

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"smsrelay/internal/models"
	"smsrelay/internal/settings"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOutbound_CurrentShape(t *testing.T) {
	req, err := decodeOutbound([]byte(`{
		"recipients": ["+15551234567", "+15557654321"],
		"message": "hello",
		"smsId": "msg-1",
		"smsBatchId": "batch-1",
		"simSubscription": 2
	}`))

	require.NoError(t, err)
	assert.Equal(t, []string{"+15551234567", "+15557654321"}, req.Recipients)
	assert.Equal(t, "hello", req.Message)
	assert.Equal(t, "msg-1", req.MessageID)
	assert.Equal(t, "batch-1", req.BatchID)
	assert.Equal(t, 2, req.SimSubscription)
}

func TestDecodeOutbound_LegacyShape(t *testing.T) {
	req, err := decodeOutbound([]byte(`{
		"receivers": ["+15551234567"],
		"smsBody": "legacy hello",
		"smsId": "msg-1"
	}`))

	require.NoError(t, err)
	assert.Equal(t, []string{"+15551234567"}, req.Recipients)
	assert.Equal(t, "legacy hello", req.Message)
	assert.Equal(t, -1, req.SimSubscription)
}

func TestDecodeOutbound_CurrentFieldsWin(t *testing.T) {
	req, err := decodeOutbound([]byte(`{
		"recipients": ["+15550000001"],
		"message": "current",
		"receivers": ["+15559999999"],
		"smsBody": "legacy"
	}`))

	require.NoError(t, err)
	assert.Equal(t, []string{"+15550000001"}, req.Recipients)
	assert.Equal(t, "current", req.Message)
}

func TestDecodeOutbound_Invalid(t *testing.T) {
	_, err := decodeOutbound([]byte(`{"message": "no recipients"}`))
	assert.Error(t, err)

	_, err = decodeOutbound([]byte(`{"recipients": ["+15551234567"]}`))
	assert.Error(t, err)

	_, err = decodeOutbound([]byte(`not json`))
	assert.Error(t, err)
}

type recordingDispatcher struct {
	mu       sync.Mutex
	requests []models.OutboundRequest
}

func (d *recordingDispatcher) Send(_ context.Context, req models.OutboundRequest) map[string]bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	outcomes := make(map[string]bool, len(req.Recipients))
	for _, r := range req.Recipients {
		outcomes[r] = true
	}
	return outcomes
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

type memSettings struct {
	values map[string]string
}

func (m *memSettings) GetString(key, fallback string) string {
	if v, ok := m.values[key]; ok {
		return v
	}
	return fallback
}
func (m *memSettings) GetBool(string, bool) bool  { return false }
func (m *memSettings) GetInt(string, int) int     { return 0 }
func (m *memSettings) SetString(k, v string) error {
	m.values[k] = v
	return nil
}
func (m *memSettings) SetBool(string, bool) error { return nil }
func (m *memSettings) SetInt(string, int) error   { return nil }

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestListener_DispatchesPushedMessage(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		payload := `{"recipients":["+15551234567"],"message":"hello","smsId":"msg-1","smsBatchId":"batch-1"}`
		if err := conn.Write(r.Context(), websocket.MessageText, []byte(payload)); err != nil {
			return
		}
		// Hold the connection open until the client goes away.
		_, _, _ = conn.Read(r.Context())
	}))
	defer server.Close()

	dispatcher := &recordingDispatcher{}
	store := &memSettings{values: map[string]string{
		settings.KeyDeviceID: "device-1",
		settings.KeyAPIKey:   "key-1",
	}}
	listener := NewListener(server.URL, dispatcher, store, testLogger())

	require.NoError(t, listener.Start(context.Background()))
	defer listener.Stop()

	assert.Eventually(t, func() bool { return dispatcher.count() == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "key-1", gotKey)

	dispatcher.mu.Lock()
	req := dispatcher.requests[0]
	dispatcher.mu.Unlock()
	assert.Equal(t, "msg-1", req.MessageID)
	assert.Equal(t, []string{"+15551234567"}, req.Recipients)
}

func TestListener_InvalidMessagesAreDiscarded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		_ = conn.Write(r.Context(), websocket.MessageText, []byte(`garbage`))
		_ = conn.Write(r.Context(), websocket.MessageText, []byte(`{"recipients":["+15551234567"],"message":"ok"}`))
		_, _, _ = conn.Read(r.Context())
	}))
	defer server.Close()

	dispatcher := &recordingDispatcher{}
	listener := NewListener(server.URL, dispatcher, &memSettings{values: map[string]string{}}, testLogger())

	require.NoError(t, listener.Start(context.Background()))
	defer listener.Stop()

	assert.Eventually(t, func() bool { return dispatcher.count() == 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestListener_StartTwiceFails(t *testing.T) {
	listener := NewListener("http://127.0.0.1:1", &recordingDispatcher{}, &memSettings{values: map[string]string{}}, testLogger())

	require.NoError(t, listener.Start(context.Background()))
	defer listener.Stop()

	assert.Error(t, listener.Start(context.Background()))
}
