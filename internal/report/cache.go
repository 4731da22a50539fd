package report

import (
	"sync"
	"time"
)

const DefaultCacheTTL = 5 * time.Minute

// CacheEntry stores cached data with expiration
type CacheEntry struct {
	Data      any
	ExpiresAt time.Time
}

// Cache keeps computed reports in memory until they expire.
type Cache struct {
	mu    sync.RWMutex
	cache map[string]*CacheEntry
	ttl   time.Duration
	now   func() time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		cache: make(map[string]*CacheEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.cache[key]
	if !exists || c.now().After(entry.ExpiresAt) {
		return nil, false
	}
	return entry.Data, true
}

func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictExpired()
	c.cache[key] = &CacheEntry{
		Data:      value,
		ExpiresAt: c.now().Add(c.ttl),
	}
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[string]*CacheEntry)
}

// evictExpired must be called with mu held for writing.
func (c *Cache) evictExpired() {
	now := c.now()
	for key, entry := range c.cache {
		if now.After(entry.ExpiresAt) {
			delete(c.cache, key)
		}
	}
}
