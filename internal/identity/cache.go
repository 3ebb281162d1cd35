package identity

import (
	"sync"
	"time"
)

// Identity is a resolved Farcaster identity
type Identity struct {
	// HandleID is the numeric fid as a string, used for cast mentions
	HandleID string
	// DisplayName is the profile name
	DisplayName string
}

// cacheEntry holds a resolution result. A nil identity is a valid entry: it
// records that an address has no known identity, so the lookup is not
// repeated until the entry expires.
type cacheEntry struct {
	identity   *Identity
	insertedAt time.Time
}

// Cache is a bounded TTL cache for identity lookups, keyed by lowercased
// address. When the capacity bound is reached the whole cache is cleared
// before the next insert; there is no per-entry eviction.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewCache creates a cache with the given TTL and capacity bound
func NewCache(ttl time.Duration, maxEntries int) *Cache {
	return &Cache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the cached identity for a key. The second return value is true
// only for a live entry; a true with a nil identity means the address is
// known to have no identity.
func (c *Cache) Get(key string) (*Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.insertedAt) >= c.ttl {
		return nil, false
	}
	return entry.identity, true
}

// Set stores a resolution result, clearing the whole cache first if the
// capacity bound has been reached.
func (c *Cache) Set(key string, identity *Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.entries = make(map[string]cacheEntry)
	}

	c.entries[key] = cacheEntry{
		identity:   identity,
		insertedAt: c.now(),
	}
}

// Len returns the number of entries currently held, expired or not
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
