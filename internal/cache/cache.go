package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Cache keys. A whole resource family is invalidated by substring, so the
// singular "document" matches both the list key and every per-document key.
const (
	KeyCurrentUser   = "current-user"
	KeyDocumentsList = "documents-list"

	FamilyDocument = "document"
	FamilyUser     = "user"
)

// DocumentKey returns the cache key for a single document.
func DocumentKey(id string) string {
	return "document-" + id
}

type entry struct {
	data any
	at   time.Time
}

// Cache is a short-TTL in-memory cache for idempotent GET responses. Entries
// past the TTL are treated as absent and evicted on read.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   clock.Clock
	entries map[string]entry
}

func New(ttl time.Duration, clk clock.Clock) *Cache {
	if clk == nil {
		clk = clock.New()
	}
	return &Cache{
		ttl:     ttl,
		clock:   clk,
		entries: make(map[string]entry),
	}
}

// Get returns the cached value for key, or false if absent or stale.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.clock.Since(e.at) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.data, true
}

// Set stores data under key with the current timestamp.
func (c *Cache) Set(key string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{data: data, at: c.clock.Now()}
}

// Invalidate removes every key containing any of the given patterns as a
// substring. With no patterns it clears the whole cache. Mutating calls must
// invalidate their resource family after success so no caller ever reads data
// older than its own last write.
func (c *Cache) Invalidate(patterns ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(patterns) == 0 {
		c.entries = make(map[string]entry)
		return
	}
	for key := range c.entries {
		for _, p := range patterns {
			if strings.Contains(key, p) {
				delete(c.entries, key)
				break
			}
		}
	}
}

// Len reports the number of live entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
