package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// RetryableError marks a failure the delivery queue should retry: a network
// error or a non-2xx backend response.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err (anywhere in its chain) is a RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// Client talks to the SMS gateway backend. Every call authenticates with the
// device's api-key and addresses a device-id path; both are per-call because
// registration can change them at runtime.
type Client interface {
	ForwardSMS(ctx context.Context, deviceID, apiKey string, req ForwardSMSRequest) (*ForwardSMSResponse, error)
	UpdateSMSStatus(ctx context.Context, deviceID, apiKey string, req StatusUpdateRequest) (*StatusUpdateResponse, error)
	Heartbeat(ctx context.Context, deviceID, apiKey string, req HeartbeatRequest) (*HeartbeatResponse, error)
}

type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  httpClient,
	}
}

func (c *HTTPClient) ForwardSMS(ctx context.Context, deviceID, apiKey string, req ForwardSMSRequest) (*ForwardSMSResponse, error) {
	var resp ForwardSMSResponse
	path := fmt.Sprintf("/gateway/devices/%s/receive-sms", deviceID)
	if err := c.post(ctx, path, apiKey, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) UpdateSMSStatus(ctx context.Context, deviceID, apiKey string, req StatusUpdateRequest) (*StatusUpdateResponse, error) {
	var resp StatusUpdateResponse
	path := fmt.Sprintf("/gateway/devices/%s/sms-status", deviceID)
	if err := c.post(ctx, path, apiKey, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Heartbeat(ctx context.Context, deviceID, apiKey string, req HeartbeatRequest) (*HeartbeatResponse, error) {
	var resp HeartbeatResponse
	path := fmt.Sprintf("/gateway/devices/%s/heartbeat", deviceID)
	if err := c.post(ctx, path, apiKey, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) post(ctx context.Context, path, apiKey string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return &RetryableError{Err: fmt.Errorf("failed to reach backend: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &RetryableError{Err: fmt.Errorf("backend returned status %d", resp.StatusCode)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// A 2xx with an undecodable body still acknowledged the request.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
