package cache

import (
	"strings"
	"sync"
	"time"
)

// DefaultTTL is the dashboard memoization window: a page render within five
// minutes of the last fetch reuses the cached snapshot.
const DefaultTTL = 5 * time.Minute

// TTLCache is a thread-safe in-memory cache with time-to-live expiration.
// It backs the read-through memoization of market data fetches.
type TTLCache struct {
	mu      sync.RWMutex
	items   map[string]*cacheItem
	stats   Stats
	janitor *janitor
}

type cacheItem struct {
	value      interface{}
	expiration int64
}

// janitor periodically removes expired items.
type janitor struct {
	interval time.Duration
	stop     chan struct{}
}

// Stats reports cache effectiveness.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Sets      int64   `json:"sets"`
	ItemCount int     `json:"item_count"`
	HitRate   float64 `json:"hit_rate"`
}

// NewTTLCache creates a cache whose janitor sweeps at cleanupInterval.
func NewTTLCache(cleanupInterval time.Duration) *TTLCache {
	c := &TTLCache{
		items: make(map[string]*cacheItem),
	}
	c.janitor = &janitor{
		interval: cleanupInterval,
		stop:     make(chan struct{}),
	}
	go c.janitor.run(c)
	return c
}

// Set stores a value with the specified TTL.
func (c *TTLCache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Sets++
	c.items[key] = &cacheItem{
		value:      value,
		expiration: time.Now().Add(ttl).UnixNano(),
	}
}

// Get retrieves a value, reporting false for missing or expired keys.
func (c *TTLCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found || time.Now().UnixNano() > item.expiration {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return item.value, true
}

// Delete removes a single key.
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Clear removes all items.
func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*cacheItem)
}

// Flush removes expired items and returns how many were dropped.
func (c *TTLCache) Flush() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixNano()
	removed := 0
	for key, item := range c.items {
		if now > item.expiration {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// GetStats returns a snapshot of cache statistics.
func (c *TTLCache) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.ItemCount = len(c.items)
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Close stops the janitor and clears the cache.
func (c *TTLCache) Close() {
	close(c.janitor.stop)
	c.Clear()
}

func (j *janitor) run(cache *TTLCache) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cache.Flush()
		case <-j.stop:
			return
		}
	}
}

// Key builds a deterministic cache key from components, so an instrument
// set always maps to the same memoization entry.
func Key(components ...string) string {
	return strings.Join(components, ":")
}
