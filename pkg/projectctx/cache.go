package projectctx

import (
	"sync"
	"time"
)

// cached holds one resolved document with its resolution time for TTL checks.
type cached struct {
	body       string
	resolvedAt time.Time
}

// Cache is a thread-safe in-memory cache for resolved context documents.
// Entries expire after the configured TTL and are evicted lazily on Get();
// there is no background sweeper.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cached
	ttl     time.Duration
}

// NewCache creates a cache whose entries expire after ttl.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]cached),
		ttl:     ttl,
	}
}

// Get returns the cached document for key if present and not expired.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return "", false
	}

	if time.Since(entry.resolvedAt) > c.ttl {
		// Re-check under the write lock: a concurrent Set() may have
		// stored a fresh entry between RUnlock and Lock.
		c.mu.Lock()
		if current, ok := c.entries[key]; ok && time.Since(current.resolvedAt) > c.ttl {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return "", false
	}

	return entry.body, true
}

// Set stores body under key, stamped with the current time.
func (c *Cache) Set(key, body string) {
	c.mu.Lock()
	c.entries[key] = cached{body: body, resolvedAt: time.Now()}
	c.mu.Unlock()
}
