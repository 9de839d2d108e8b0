// Package tickers serves symbol search for the watchlist UI, caching broker
// asset lookups so repeated queries do not burn API quota.
package tickers

import (
	"context"
	"strings"
	"sync"
	"time"

	"tradeflow/internal/broker"
	"tradeflow/internal/logger"
)

// AssetSource is the slice of the broker the search needs.
type AssetSource interface {
	SearchAssets(ctx context.Context, query string) ([]broker.Asset, error)
}

type cacheEntry struct {
	assets    []broker.Asset
	fetchedAt time.Time
}

// SearchCache memoizes asset searches for a TTL. Safe for concurrent use.
type SearchCache struct {
	source AssetSource
	ttl    time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
	nowFn   func() time.Time
}

// NewSearchCache builds a cache over source. A non-positive ttl defaults to
// five minutes.
func NewSearchCache(source AssetSource, ttl time.Duration) *SearchCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SearchCache{
		source:  source,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		nowFn:   time.Now,
	}
}

// SetNow injects a clock for tests.
func (c *SearchCache) SetNow(fn func() time.Time) {
	c.mu.Lock()
	c.nowFn = fn
	c.mu.Unlock()
}

// Search returns matching assets, from cache when fresh. Queries are
// case-insensitive; a failed upstream lookup is not cached.
func (c *SearchCache) Search(ctx context.Context, query string) ([]broker.Asset, error) {
	key := strings.ToUpper(strings.TrimSpace(query))
	if key == "" {
		return nil, nil
	}

	c.mu.Lock()
	entry, ok := c.entries[key]
	now := c.nowFn()
	c.mu.Unlock()
	if ok && now.Sub(entry.fetchedAt) < c.ttl {
		logger.Debugf("tickers: cache hit for %q", key)
		return entry.assets, nil
	}

	assets, err := c.source.SearchAssets(ctx, key)
	if err != nil {
		// serve stale results over an error when we have them
		if ok {
			logger.Warnf("tickers: search %q failed, serving stale cache: %v", key, err)
			return entry.assets, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{assets: assets, fetchedAt: now}
	c.mu.Unlock()
	return assets, nil
}

// Purge drops expired entries. The search handler runs it before each lookup
// so entries for abandoned queries do not pile up.
func (c *SearchCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowFn()
	for k, e := range c.entries {
		if now.Sub(e.fetchedAt) >= c.ttl {
			delete(c.entries, k)
		}
	}
}
