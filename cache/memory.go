package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryConfig configures the in-process cache.
type MemoryConfig struct {
	// MaxEntries bounds the cache; the least recently used entry is
	// evicted past it.
	// Default: 1024
	MaxEntries int

	// MaxTTL is the hard lifetime cap. Per-call TTLs shorter than it
	// are honored exactly; longer ones are clamped.
	// Default: 1 hour
	MaxTTL time.Duration
}

// MemoryCache is a bounded in-process cache. Recency and the lifetime
// cap are handled by the underlying expirable LRU; per-entry TTLs
// shorter than the cap are checked lazily on read.
type MemoryCache struct {
	config MemoryConfig
	lru    *expirable.LRU[string, memoryEntry]
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates a bounded in-memory cache.
func NewMemoryCache(config MemoryConfig) *MemoryCache {
	if config.MaxEntries <= 0 {
		config.MaxEntries = 1024
	}
	if config.MaxTTL <= 0 {
		config.MaxTTL = time.Hour
	}

	return &MemoryCache{
		config: config,
		lru:    expirable.NewLRU[string, memoryEntry](config.MaxEntries, nil, config.MaxTTL),
	}
}

// Get retrieves a value. Returns (nil, false) on miss or expiry.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.lru.Remove(key)
		return nil, false
	}
	return entry.value, true
}

// Set stores a value for the given TTL. TTL<=0 means no caching.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if ttl > c.config.MaxTTL {
		ttl = c.config.MaxTTL
	}

	c.lru.Add(key, memoryEntry{value: value, expiresAt: time.Now().Add(ttl)})
	return nil
}

// Delete removes a value. Idempotent, no error on miss.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// Len reports how many entries are currently held.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

var _ Cache = (*MemoryCache)(nil)
