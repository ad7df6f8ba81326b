package cache

import (
	"context"
	"sync"
	"time"
)

// Item represents a cached item with expiration
type Item struct {
	Value      any
	Expiration int64
}

// Expired checks if the cache item has expired at now (unix nanos)
func (item Item) Expired(now int64) bool {
	return item.Expiration > 0 && now > item.Expiration
}

// Cache is a thread-safe in-memory set-if-absent cache with expiration
type Cache struct {
	items      map[string]Item
	mu         sync.Mutex
	expiration time.Duration
	maxItems   int
	now        func() time.Time
}

// New creates a cache whose entries live for expiration (forever when <= 0).
// maxItems <= 0 means unbounded.
func New(expiration time.Duration, maxItems int) *Cache {
	return &Cache{
		items:      make(map[string]Item),
		expiration: expiration,
		maxItems:   maxItems,
		now:        time.Now,
	}
}

func (c *Cache) expiry(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return c.now().Add(d).UnixNano()
}

// Add stores value for the cache's expiration only if key is absent or
// expired, and reports whether it did.
func (c *Cache) Add(key string, value any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if found && !item.Expired(c.now().UnixNano()) {
		return false
	}
	if !found {
		c.makeRoom()
	}
	c.items[key] = Item{Value: value, Expiration: c.expiry(c.expiration)}
	return true
}

// Run deletes expired items every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.deleteExpired()
		}
	}
}

func (c *Cache) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UnixNano()
	for k, v := range c.items {
		if v.Expired(now) {
			delete(c.items, k)
		}
	}
}

// makeRoom must be called with mu held. It drops expired entries first and the
// soonest-expiring entry if the cache is still full.
func (c *Cache) makeRoom() {
	if c.maxItems <= 0 || len(c.items) < c.maxItems {
		return
	}

	now := c.now().UnixNano()
	var oldestKey string
	var oldest int64
	for k, v := range c.items {
		if v.Expired(now) {
			delete(c.items, k)
			continue
		}
		if oldestKey == "" || (v.Expiration != 0 && (oldest == 0 || v.Expiration < oldest)) {
			oldestKey, oldest = k, v.Expiration
		}
	}

	if len(c.items) >= c.maxItems && oldestKey != "" {
		delete(c.items, oldestKey)
	}
}
