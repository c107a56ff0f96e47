package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"smsrelay/internal/constants"
)

// probeChecker reports connectivity by probing the backend base URL. Any
// HTTP response counts as online; only a transport-level failure counts as
// offline. Results are cached briefly so the queue's poll loop does not turn
// into a probe storm.
type probeChecker struct {
	url    string
	client *http.Client

	mu        sync.Mutex
	checkedAt time.Time
	online    bool
}

func newProbeChecker(url string, client *http.Client) *probeChecker {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &probeChecker{url: url, client: client}
}

func (c *probeChecker) IsOnline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Since(c.checkedAt) < constants.ConnectivityCacheTTLSec*time.Second {
		return c.online
	}

	c.online = c.probe()
	c.checkedAt = time.Now()
	return c.online
}

func (c *probeChecker) probe() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.url, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
