package radio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Sim describes one SIM subscription known to the send agent.
type Sim struct {
	SubscriptionID int    `json:"subscriptionId"`
	SlotIndex      int    `json:"slotIndex"`
	Carrier        string `json:"carrier,omitempty"`
	PhoneNumber    string `json:"phoneNumber,omitempty"`
}

// Bridge implements Transport against a local send agent over HTTP. The
// agent owns the actual radio hardware; the bridge posts segments to it and
// relays the per-segment acceptance codes to the sent callbacks. Delivery
// reports travel the other way, from the agent to the relay's HTTP server.
type Bridge struct {
	baseURL  string
	client   *http.Client
	multiSim bool
}

func NewBridge(baseURL string, httpClient *http.Client, multiSim bool) *Bridge {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Bridge{
		baseURL:  baseURL,
		client:   httpClient,
		multiSim: multiSim,
	}
}

type sendRequest struct {
	Recipient    string   `json:"recipient"`
	Segments     []string `json:"segments"`
	MessageID    string   `json:"messageId"`
	BatchID      string   `json:"batchId"`
	Subscription *int     `json:"simSubscription,omitempty"`
}

type sendResponse struct {
	// Results holds one result code per segment, in order. An absent entry
	// means the agent accepted the segment.
	Results []int `json:"results"`
}

func (b *Bridge) SendSegments(ctx context.Context, recipient string, segments []string, cb Callbacks) error {
	return b.send(ctx, recipient, segments, cb, nil)
}

// ForSubscription returns a Transport bound to one SIM subscription, or
// ErrSubscriptionUnsupported when the agent only drives a single SIM.
func (b *Bridge) ForSubscription(simSubscriptionID int) (Transport, error) {
	if !b.multiSim {
		return nil, ErrSubscriptionUnsupported
	}
	return &subscriptionTransport{bridge: b, subscription: simSubscriptionID}, nil
}

// ListSims fetches the agent's SIM inventory.
func (b *Bridge) ListSims(ctx context.Context) ([]Sim, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/sims", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create sims request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach send agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("send agent returned status %d", resp.StatusCode)
	}

	var out struct {
		Sims []Sim `json:"sims"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode sims response: %w", err)
	}
	return out.Sims, nil
}

func (b *Bridge) send(ctx context.Context, recipient string, segments []string, cb Callbacks, subscription *int) error {
	body, err := json.Marshal(sendRequest{
		Recipient:    recipient,
		Segments:     segments,
		MessageID:    cb.MessageID,
		BatchID:      cb.BatchID,
		Subscription: subscription,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach send agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("send rejected by agent: %w", ErrPermissionDenied)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("send agent returned status %d", resp.StatusCode)
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode send response: %w", err)
	}

	if cb.OnSent != nil {
		for i := range segments {
			code := ResultOK
			if i < len(out.Results) {
				code = out.Results[i]
			}
			cb.OnSent(cb.MessageID, cb.BatchID, code)
		}
	}
	return nil
}

type subscriptionTransport struct {
	bridge       *Bridge
	subscription int
}

func (t *subscriptionTransport) SendSegments(ctx context.Context, recipient string, segments []string, cb Callbacks) error {
	sub := t.subscription
	return t.bridge.send(ctx, recipient, segments, cb, &sub)
}

// NoSubscriptions returns a SubscriptionResolver that never resolves,
// matching a platform without SIM-level addressing.
func NoSubscriptions() SubscriptionResolver {
	return noSubscriptions{}
}

type noSubscriptions struct{}

func (noSubscriptions) ForSubscription(int) (Transport, error) {
	return nil, ErrSubscriptionUnsupported
}

// Unavailable returns a Transport that refuses every send. Used when no send
// agent is configured, keeping an inbound-only deployment honest about its
// missing capability.
func Unavailable() Transport {
	return unavailableTransport{}
}

type unavailableTransport struct{}

func (unavailableTransport) SendSegments(ctx context.Context, recipient string, segments []string, cb Callbacks) error {
	return ErrPermissionDenied
}
