package quote

import (
	"sync"
	"time"

	"github.com/wofare/edgarwatch/internal/common"
	"github.com/wofare/edgarwatch/internal/models"
)

// cacheEntry holds one cached quote with its storage time.
type cacheEntry struct {
	quote    models.Quote
	storedAt time.Time
	ttl      time.Duration
}

// quoteCache is a process-local TTL cache keyed by symbol. Expired entries
// are retained for the stale-fallback path; stale-or-recompute is safe, so
// no cross-process locking is required.
type quoteCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func newQuoteCache() *quoteCache {
	return &quoteCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns a copy of the cached quote, its age, and whether it is still
// within TTL. ok=false with a non-zero quote means the entry is expired but
// available for stale fallback.
func (c *quoteCache) Get(symbol string) (*models.Quote, time.Duration, bool) {
	c.mu.RLock()
	entry, found := c.entries[symbol]
	c.mu.RUnlock()

	if !found {
		return nil, 0, false
	}

	now := c.now()
	q := entry.quote
	return &q, now.Sub(entry.storedAt), common.IsFreshAt(now, entry.storedAt, entry.ttl)
}

// Put stores a validated quote.
func (c *quoteCache) Put(symbol string, quote *models.Quote, ttl time.Duration) {
	c.mu.Lock()
	c.entries[symbol] = cacheEntry{quote: *quote, storedAt: c.now(), ttl: ttl}
	c.mu.Unlock()
}

// Prune drops entries older than the retention window. Called by the
// cleanup job so stale-fallback data does not grow unbounded.
func (c *quoteCache) Prune(retention time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-retention)
	n := 0
	for symbol, entry := range c.entries {
		if entry.storedAt.Before(cutoff) {
			delete(c.entries, symbol)
			n++
		}
	}
	return n
}
