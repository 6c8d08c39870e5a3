package perf

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// CacheEntry is the spec.md §3 cache record: value plus bookkeeping for
// eviction and hit tracking. The original_source implementation this
// runtime is based on stubs its hit ratio at a constant 0.0; this cache
// tracks real hits per entry instead.
type CacheEntry struct {
	Value     []byte
	InsertedAt time.Time
	ExpiresAt time.Time
	Hits      uint64
}

// Cache is a fixed-capacity, TTL-bound map from string key to bytes.
// Eviction is LRU-by-inserted-time when capacity is reached: expirable.LRU
// evicts its oldest entry, and reads use Peek so they never refresh an
// entry's position; expired entries are removed lazily on read
// and by a periodic sweep (also native to expirable.LRU, which runs its own
// background reaper).
type Cache struct {
	lru *lru.LRU[string, *CacheEntry]
	ttl time.Duration

	mu        sync.Mutex
	hits      uint64
	misses    uint64
}

// NewCache builds a cache with room for capacity entries, each expiring
// ttl after insertion.
func NewCache(capacity int, ttl time.Duration) *Cache {
	return &Cache{
		lru: lru.NewLRU[string, *CacheEntry](capacity, nil, ttl),
		ttl: ttl,
	}
}

// Get returns a live entry's value only if not expired, incrementing its
// hit counter. expirable.LRU already evicts expired entries from its own
// sweep; the ExpiresAt check here additionally covers the gap between the
// sweep interval and an exactly-expired read.
func (c *Cache) Get(key string) ([]byte, bool) {
	entry, ok := c.lru.Peek(key)
	if !ok {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return nil, false
	}
	if !entry.ExpiresAt.IsZero() && time.Now().After(entry.ExpiresAt) {
		c.lru.Remove(key)
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return nil, false
	}

	entry.Hits++
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return entry.Value, true
}

// Set inserts value under key, evicting the least-recently-inserted entry
// if the cache is at capacity (handled natively by expirable.LRU).
func (c *Cache) Set(key string, value []byte) {
	now := time.Now()
	entry := &CacheEntry{Value: value, InsertedAt: now}
	if c.ttl > 0 {
		entry.ExpiresAt = now.Add(c.ttl)
	}
	c.lru.Add(key, entry)
}

// Len reports the number of live entries.
func (c *Cache) Len() int { return c.lru.Len() }

// HitRatio reports hits / (hits + misses) across this cache's lifetime, or
// 0 if there have been no lookups yet.
func (c *Cache) HitRatio() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// Purge removes every entry, e.g. between test cases.
func (c *Cache) Purge() { c.lru.Purge() }
