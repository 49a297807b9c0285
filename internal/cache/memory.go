package cache

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryCache is an in-memory LRU cache whose entries expire after a fixed TTL
type MemoryCache struct {
	entries *expirable.LRU[string, []byte]
	hits    atomic.Uint64
	misses  atomic.Uint64
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates a cache holding at most size replies for ttl each
func NewMemoryCache(size int, ttl time.Duration) (*MemoryCache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", size)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive, got %s", ttl)
	}
	return &MemoryCache{
		entries: expirable.NewLRU[string, []byte](size, nil, ttl),
	}, nil
}

// Get returns an unexpired reply
func (mc *MemoryCache) Get(key string) ([]byte, bool) {
	data, ok := mc.entries.Get(key)
	if !ok {
		mc.misses.Add(1)
		return nil, false
	}
	mc.hits.Add(1)
	return data, true
}

// Set stores a reply, evicting the least recently used one when full
func (mc *MemoryCache) Set(key string, value []byte) {
	mc.entries.Add(key, value)
}

// Len returns the number of entries not yet swept
func (mc *MemoryCache) Len() int {
	return mc.entries.Len()
}

// Stats returns the hit and miss counts since creation
func (mc *MemoryCache) Stats() (hits, misses uint64) {
	return mc.hits.Load(), mc.misses.Load()
}

// Close drops every entry
func (mc *MemoryCache) Close() {
	mc.entries.Purge()
}
