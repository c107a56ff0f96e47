package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ForwardSMS(t *testing.T) {
	var gotPath, gotKey string
	var gotBody ForwardSMSRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(ForwardSMSResponse{Acknowledged: true})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	resp, err := client.ForwardSMS(context.Background(), "device-1", "key-1", ForwardSMSRequest{
		Sender:           "+15551234567",
		Message:          "OTP 4821",
		ReceivedAtMillis: 1700000000000,
		Fingerprint:      "abc123",
	})

	require.NoError(t, err)
	assert.True(t, resp.Acknowledged)
	assert.Equal(t, "/gateway/devices/device-1/receive-sms", gotPath)
	assert.Equal(t, "key-1", gotKey)
	assert.Equal(t, "+15551234567", gotBody.Sender)
	assert.Equal(t, "abc123", gotBody.Fingerprint)
}

func TestClient_NonSuccessStatusIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend overloaded", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	_, err := client.UpdateSMSStatus(context.Background(), "device-1", "key-1", StatusUpdateRequest{
		MessageID: "msg-1",
		Status:    "SENT",
	})

	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestClient_NetworkErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	client := NewClient(server.URL, nil)
	_, err := client.Heartbeat(context.Background(), "device-1", "key-1", HeartbeatRequest{})

	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestClient_EmptyBodyOnSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	resp, err := client.ForwardSMS(context.Background(), "device-1", "key-1", ForwardSMSRequest{})

	require.NoError(t, err)
	assert.False(t, resp.Acknowledged)
}

func TestClient_HeartbeatAppliesSettings(t *testing.T) {
	enabled := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(HeartbeatResponse{
			HeartbeatIntervalMinutes: 20,
			GatewayEnabled:           &enabled,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	resp, err := client.Heartbeat(context.Background(), "device-1", "key-1", HeartbeatRequest{NetworkType: "wifi"})

	require.NoError(t, err)
	assert.Equal(t, 20, resp.HeartbeatIntervalMinutes)
	require.NotNil(t, resp.GatewayEnabled)
	assert.True(t, *resp.GatewayEnabled)
}
