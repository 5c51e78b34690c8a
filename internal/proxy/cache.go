package proxy

import (
	"sync"
	"time"
)

type cacheEntry struct {
	resp    *Response
	expires time.Time
}

// Cache holds successful GET responses for a fixed TTL.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func cacheKey(method, url string) string {
	return method + " " + url
}

// Get returns a copy of the cached response. Expired entries and entries whose
// payload signals a block are evicted instead.
func (c *Cache) Get(key string) (*Response, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if !c.now().Before(e.expires) || IsBlocked(e.resp.Body) {
		c.Delete(key)
		return nil, false
	}

	return e.resp.clone(), true
}

func (c *Cache) Put(key string, resp *Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{resp: resp.clone(), expires: c.now().Add(c.ttl)}
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
