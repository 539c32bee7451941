package oracle

import (
	"context"
	"sync"
	"time"
)

// Cache memoizes successful lookups for a bounded window, accepting
// staleness up to the TTL in exchange for bounded upstream call volume.
// Failures are never cached.
type Cache struct {
	next PriceOracle
	ttl  time.Duration
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	quote   Quote
	fetched time.Time
}

// NewCache wraps next with a TTL quote cache.
func NewCache(next PriceOracle, ttl time.Duration) *Cache {
	return &Cache{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *Cache) Lookup(ctx context.Context, symbol string) (Quote, error) {
	c.mu.RLock()
	e, ok := c.entries[symbol]
	c.mu.RUnlock()

	if ok && c.now().Sub(e.fetched) < c.ttl {
		return e.quote, nil
	}

	q, err := c.next.Lookup(ctx, symbol)
	if err != nil {
		return Quote{}, err
	}

	c.mu.Lock()
	c.entries[symbol] = cacheEntry{quote: q, fetched: c.now()}
	c.mu.Unlock()
	return q, nil
}

// Warm refreshes the cache for the given symbols, ignoring per-symbol
// failures. Used by the background warm job so interactive scoring mostly
// hits warm entries.
func (c *Cache) Warm(ctx context.Context, symbols []string) {
	for _, sym := range symbols {
		if ctx.Err() != nil {
			return
		}
		_, _ = c.Lookup(ctx, sym)
	}
}
