package rules

import "sync"

// MemoryCache is a concurrency-safe ProgramCache.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]any
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: map[string]any{}}
}

func (c *MemoryCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.items[key]
	return value, ok
}

func (c *MemoryCache) Set(key string, value any) {
	c.mu.Lock()
	c.items[key] = value
	c.mu.Unlock()
}

// Len returns the number of cached programs.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
