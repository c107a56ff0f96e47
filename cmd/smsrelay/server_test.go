package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"smsrelay/internal/dispatch"
	"smsrelay/internal/filter"
	"smsrelay/internal/fingerprint"
	"smsrelay/internal/ingest"
	"smsrelay/internal/models"
	"smsrelay/internal/settings"
	"smsrelay/pkg/radio"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemSettings() *memSettings {
	return &memSettings{values: make(map[string]string)}
}

func (m *memSettings) GetString(key, fallback string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.values[key]; ok {
		return v
	}
	return fallback
}

func (m *memSettings) GetBool(key string, fallback bool) bool {
	switch m.GetString(key, "") {
	case "true":
		return true
	case "false":
		return false
	}
	return fallback
}

func (m *memSettings) GetInt(key string, fallback int) int {
	return fallback
}

func (m *memSettings) SetString(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memSettings) SetBool(key string, value bool) error {
	if value {
		return m.SetString(key, "true")
	}
	return m.SetString(key, "false")
}

func (m *memSettings) SetInt(key string, value int) error {
	return m.SetString(key, "0")
}

func (m *memSettings) FilterConfigBlob() string {
	return m.GetString(settings.KeyFilterConfig, "")
}

type recordingSink struct {
	mu       sync.Mutex
	forwards []models.InboundMessage
	statuses []models.MessageStatus
}

func (r *recordingSink) EnqueueInboundForward(ctx context.Context, deviceID, apiKey string, msg models.InboundMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forwards = append(r.forwards, msg)
	return nil
}

func (r *recordingSink) EnqueueStatusUpdate(ctx context.Context, deviceID, apiKey string, status models.MessageStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	return nil
}

type memMessageStore struct {
	mu       sync.Mutex
	nextID   int
	messages []models.StoredMessage
}

func (m *memMessageStore) Insert(ctx context.Context, msg models.StoredMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	msg.ID = strconv.Itoa(m.nextID)
	m.messages = append([]models.StoredMessage{msg}, m.messages...)
	return nil
}

func (m *memMessageStore) Recent(ctx context.Context, limit int) ([]models.StoredMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) < limit {
		limit = len(m.messages)
	}
	return m.messages[:limit], nil
}

type fakeTransport struct {
	mu    sync.Mutex
	sends []string
}

func (f *fakeTransport) SendSegments(ctx context.Context, recipient string, segments []string, cb radio.Callbacks) error {
	f.mu.Lock()
	f.sends = append(f.sends, recipient)
	f.mu.Unlock()
	if cb.OnSent != nil {
		for range segments {
			cb.OnSent(cb.MessageID, cb.BatchID, radio.ResultOK)
		}
	}
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type testHarness struct {
	server *Server
	sink   *recordingSink
	store  *memSettings
}

func newTestServer(t *testing.T) *testHarness {
	t.Helper()
	logger := quietLogger()

	store := newMemSettings()
	require.NoError(t, store.SetString(settings.KeyDeviceID, "device-1"))
	require.NoError(t, store.SetString(settings.KeyAPIKey, "key-1"))

	sink := &recordingSink{}
	engine := filter.NewEngine(store, logger)
	pipeline := ingest.NewPipeline(fingerprint.NewCache(), engine, sink, store, logger)
	messageStore := &memMessageStore{}
	broadcast := ingest.NewBroadcastSource(pipeline, messageStore, logger)
	observer := ingest.NewStoreObserver(pipeline, messageStore, logger)
	notification := ingest.NewNotificationSource(pipeline, messageStore, logger)

	correlator := dispatch.NewCorrelator(sink, store, logger)
	dispatcher := dispatch.NewDispatcher(&fakeTransport{}, radio.NoSubscriptions(), correlator, sink, store, logger)

	server := NewServer(0, store, engine, nil, broadcast, observer, notification, messageStore, correlator, dispatcher, logger)
	return &testHarness{server: server, sink: sink, store: store}
}

func (h *testHarness) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.server.router.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var report map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "ok", report["status"])
	assert.Equal(t, true, report["registered"])
}

func TestServer_Metrics(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "counters")
}

func TestServer_FilterRulesRoundTrip(t *testing.T) {
	h := newTestServer(t)

	put := h.do(http.MethodPut, "/filter/rules", `{
		"enabled": true,
		"mode": "BLOCK_LIST",
		"rules": [{"pattern": "SPAM", "matchType": "EXACT", "target": "SENDER"}]
	}`)
	require.Equal(t, http.StatusOK, put.Code)

	get := h.do(http.MethodGet, "/filter/rules", "")
	require.Equal(t, http.StatusOK, get.Code)

	var cfg models.FilterConfig
	require.NoError(t, json.Unmarshal(get.Body.Bytes(), &cfg))
	assert.True(t, cfg.Enabled)
	assert.Equal(t, models.ModeBlockList, cfg.Mode)
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, "SPAM", cfg.Rules[0].Pattern)
	assert.Equal(t, models.FilterConfigVersion, cfg.Version)
}

func TestServer_PutFilterRulesRejectsInvalid(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"unknown mode", `{"mode": "DENY_ALL"}`},
		{"empty pattern", `{"rules": [{"pattern": "", "matchType": "EXACT"}]}`},
		{"unknown match type", `{"rules": [{"pattern": "x", "matchType": "REGEX"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(http.MethodPut, "/filter/rules", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestServer_BroadcastIngestsFragments(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(http.MethodPost, "/ingest/broadcast", `{
		"fragments": [
			{"sender": "+15551230001", "body": "part one, ", "timestampMillis": 1000},
			{"sender": "+15551230001", "body": "part two", "timestampMillis": 1001}
		]
	}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, h.sink.forwards, 1)
	assert.Equal(t, "part one, part two", h.sink.forwards[0].Message)
	assert.Equal(t, "+15551230001", h.sink.forwards[0].Sender)
}

func TestServer_BroadcastRejectsEmptyPayload(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(http.MethodPost, "/ingest/broadcast", `{"fragments": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_StoreChangeMirrorsAdvancedProtocolRow(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(http.MethodPost, "/ingest/store-change", `{
		"address": "+15551230002",
		"body": "rcs hello",
		"receivedAtMillis": 3000,
		"protocol": "2"
	}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, h.sink.forwards, 1)
	assert.Equal(t, "rcs hello", h.sink.forwards[0].Message)
	assert.Equal(t, "+15551230002", h.sink.forwards[0].Sender)
}

func TestServer_StoreChangeWithoutBodyIsBareNotification(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(http.MethodPost, "/ingest/store-change", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, h.sink.forwards)
}

func TestServer_NotificationIngest(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(http.MethodPost, "/ingest/notification", `{
		"appPackage": "com.android.mms",
		"title": "+1 555 123 0001",
		"text": "hello from shade",
		"postedAtMillis": 2000
	}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, h.sink.forwards, 1)
	assert.Equal(t, "hello from shade", h.sink.forwards[0].Message)
}

func TestServer_DeliveryReportFeedsCorrelator(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(http.MethodPost, "/radio/delivery-report", `{
		"messageId": "msg-1", "batchId": "batch-1", "resultCode": 0
	}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, h.sink.statuses, 1)
	assert.Equal(t, models.StatusDelivered, h.sink.statuses[0].Status)
	assert.Equal(t, "msg-1", h.sink.statuses[0].MessageID)
}

func TestServer_DeliveryReportNeedsMessageID(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(http.MethodPost, "/radio/delivery-report", `{"resultCode": 0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SendInitiatesDispatch(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(http.MethodPost, "/send", `{
		"recipients": ["+15551230001"],
		"message": "outbound hello",
		"smsId": "msg-1",
		"smsBatchId": "batch-1"
	}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var out struct {
		Initiated map[string]bool `json:"initiated"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Initiated["+15551230001"])

	// One SENT status per segment, via the sink.
	require.Len(t, h.sink.statuses, 1)
	assert.Equal(t, models.StatusSent, h.sink.statuses[0].Status)
}

func TestServer_SendRejectsMissingFields(t *testing.T) {
	h := newTestServer(t)

	rec := h.do(http.MethodPost, "/send", `{"recipients": [], "message": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
