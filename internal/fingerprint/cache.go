package fingerprint

import (
	"sync"
	"time"

	"smsrelay/internal/constants"
)

// Cache suppresses rapid-succession duplicates of the same physical SMS
// observed through multiple ingestion channels. Entries expire after a short
// TTL; expired entries are evicted inline by whichever caller trips the size
// threshold, so there is no background goroutine and the hot path never
// blocks on cleanup.
type Cache struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	ttl       time.Duration
	evictSize int
	now       func() time.Time
}

func NewCache() *Cache {
	return &Cache{
		seen:      make(map[string]time.Time),
		ttl:       constants.FingerprintTTLSec * time.Second,
		evictSize: constants.FingerprintEvictAboveLen,
		now:       time.Now,
	}
}

// ShouldProcess reports whether no entry for fp was recorded within the TTL
// window.
func (c *Cache) ShouldProcess(fp string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.seen[fp]
	return !ok || c.now().Sub(last) >= c.ttl
}

// Record marks fp as seen now. Idempotent and safe for concurrent producers.
func (c *Cache) Record(fp string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(fp)
}

// CheckAndRecord atomically performs ShouldProcess followed by Record, so two
// producers racing on the same fingerprint cannot both win. This is the call
// the ingestion pipeline uses.
func (c *Cache) CheckAndRecord(fp string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.seen[fp]; ok && c.now().Sub(last) < c.ttl {
		return false
	}
	c.record(fp)
	return true
}

// record assumes the lock is held.
func (c *Cache) record(fp string) {
	if len(c.seen) > c.evictSize {
		cutoff := c.now().Add(-c.ttl)
		for k, v := range c.seen {
			if v.Before(cutoff) {
				delete(c.seen, k)
			}
		}
	}
	c.seen[fp] = c.now()
}

// Len returns the current table size. Used by tests and the metrics gauge.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
