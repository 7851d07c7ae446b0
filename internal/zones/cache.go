package zones

import "sync"

// Cache remembers zones known to exist. Implementations must be safe for
// concurrent use.
type Cache interface {
	Has(zone string) bool
	Add(zone string)
	Remove(zone string)
	// Reset replaces the cached set.
	Reset(zones []string)
}

type memoryCache struct {
	mu    sync.RWMutex
	zones map[string]struct{}
}

// NewCache returns an in-memory Cache.
func NewCache() Cache {
	return &memoryCache{zones: make(map[string]struct{})}
}

func (c *memoryCache) Has(zone string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.zones[zone]
	return ok
}

func (c *memoryCache) Add(zone string) {
	c.mu.Lock()
	c.zones[zone] = struct{}{}
	c.mu.Unlock()
}

func (c *memoryCache) Remove(zone string) {
	c.mu.Lock()
	delete(c.zones, zone)
	c.mu.Unlock()
}

func (c *memoryCache) Reset(zones []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.zones = make(map[string]struct{}, len(zones))
	for _, z := range zones {
		c.zones[z] = struct{}{}
	}
}
