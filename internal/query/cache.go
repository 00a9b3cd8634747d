// Package query is the data layer over the loyalty API: typed reads cached
// for a per-resource staleness window, and mutations that invalidate every
// resource whose values derive from what they changed.
package query

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type Resource string

const (
	Users        Resource = "users"
	Transactions Resource = "transactions"
	Stores       Resource = "stores"
	Settings     Resource = "settings"
	Analytics    Resource = "analytics"
)

// DefaultStaleness is how long a cached read of each resource is served
// without a round trip.
var DefaultStaleness = map[Resource]time.Duration{
	Users:        5 * time.Minute,
	Transactions: 2 * time.Minute,
	Stores:       10 * time.Minute,
	Settings:     15 * time.Minute,
	Analytics:    5 * time.Minute,
}

// Key identifies one cached read. An empty ID is the resource's list.
type Key struct {
	Resource Resource
	ID       string
}

func (k Key) String() string {
	if k.ID == "" {
		return string(k.Resource)
	}
	return string(k.Resource) + "/" + k.ID
}

type entry struct {
	value     any
	fetchedAt time.Time
	stale     bool
}

// Cache holds read results. Each resource carries a generation that every
// invalidation bumps; a fetch started under an older generation never
// overwrites the cache, so invalidation always wins over a slow read.
type Cache struct {
	mu          sync.Mutex
	entries     map[Key]*entry
	generations map[Resource]uint64
	staleness   map[Resource]time.Duration

	group   singleflight.Group
	metrics *Metrics
	now     func() time.Time
}

// NewCache creates a cache. Resources missing from staleness use
// DefaultStaleness. m may be nil.
func NewCache(staleness map[Resource]time.Duration, m *Metrics) *Cache {
	windows := make(map[Resource]time.Duration, len(DefaultStaleness))
	for r, d := range DefaultStaleness {
		windows[r] = d
	}
	for r, d := range staleness {
		windows[r] = d
	}
	return &Cache{
		entries:     make(map[Key]*entry),
		generations: make(map[Resource]uint64),
		staleness:   windows,
		metrics:     m,
		now:         time.Now,
	}
}

// Fetch returns the cached value for key when it is fresh, or calls fetch.
// Concurrent misses for the same key share one call.
func Fetch[T any](ctx context.Context, c *Cache, key Key, fetch func(context.Context) (T, error)) (T, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.freshLocked(key, e) {
		v := e.value.(T)
		c.mu.Unlock()
		c.metrics.observeLookup(key.Resource, "hit")
		return v, nil
	}
	gen := c.generations[key.Resource]
	c.mu.Unlock()
	c.metrics.observeLookup(key.Resource, "miss")

	flight := fmt.Sprintf("%s@%d", key, gen)
	v, err, _ := c.group.Do(flight, func() (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, gen, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Set stores value for key as freshly fetched.
func (c *Cache) Set(key Key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{value: value, fetchedAt: c.now()}
}

func (c *Cache) store(key Key, gen uint64, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[key.Resource] != gen {
		return
	}
	c.entries[key] = &entry{value: value, fetchedAt: c.now()}
}

func (c *Cache) freshLocked(key Key, e *entry) bool {
	return !e.stale && c.now().Sub(e.fetchedAt) < c.staleness[key.Resource]
}

// Fresh reports whether key would be served from the cache.
func (c *Cache) Fresh(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && c.freshLocked(key, e)
}

// Invalidate marks every entry of the given resources stale.
func (c *Cache) Invalidate(resources ...Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range resources {
		c.generations[r]++
		for k, e := range c.entries {
			if k.Resource == r {
				e.stale = true
			}
		}
	}
	c.metrics.observeInvalidation(resources)
}

// Remove drops a single entry.
func (c *Cache) Remove(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Reset drops everything, typically on logout.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for r := range c.staleness {
		c.generations[r]++
	}
	c.entries = make(map[Key]*entry)
}

// Len returns the number of entries, fresh or stale.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Prune deletes entries that are no longer fresh and were fetched more than
// maxAge ago. It returns how many were deleted.
func (c *Cache) Prune(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-maxAge)
	n := 0
	for k, e := range c.entries {
		if !c.freshLocked(k, e) && e.fetchedAt.Before(cutoff) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}
