package geocode

import (
	"strings"
	"sync"
)

// memoryCache stores geocode results keyed by normalized query. Negative
// results (nil Point) are cached too.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*Point
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]*Point)}
}

func (c *memoryCache) get(query string) (*Point, bool) {
	key := cacheKey(query)
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.entries[key]
	return p, ok
}

func (c *memoryCache) put(query string, p *Point) {
	key := cacheKey(query)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = p
}

func cacheKey(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}
