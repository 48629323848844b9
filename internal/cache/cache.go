// Package cache holds completed responses for a bounded time so identical
// requests are not dispatched twice.
package cache

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	DefaultTTL        = 300 * time.Second
	DefaultMaxEntries = 1000
)

// Entry is a cached completion.
type Entry struct {
	Text       string
	ProviderID string
	CreatedAt  time.Time

	digest [32]byte
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Entries   int    `json:"entries"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Expired   uint64 `json:"expired"`
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Cache is a fixed-capacity map with insertion-order eviction and a TTL
// checked on read. It is not safe for concurrent use; the owner serialises
// access.
type Cache struct {
	entries *simplelru.LRU[uint64, Entry]
	ttl     time.Duration
	now     func() time.Time

	hits      uint64
	misses    uint64
	evictions uint64
	expired   uint64
}

// New creates a cache holding at most maxEntries responses for ttl each.
// Non-positive values select the defaults.
func New(maxEntries int, ttl time.Duration, opts ...Option) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &Cache{ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}

	lru, err := simplelru.NewLRU[uint64, Entry](maxEntries, nil)
	if err != nil {
		return nil, fmt.Errorf("cache: creating LRU: %w", err)
	}
	c.entries = lru
	return c, nil
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the entry for key if it is still fresh. An expired entry is
// removed. Reads do not change eviction order.
func (c *Cache) Get(key Key) (Entry, bool) {
	e, ok := c.entries.Peek(key.Hash)
	if !ok || e.digest != key.Digest {
		c.misses++
		return Entry{}, false
	}
	if !c.fresh(e) {
		c.entries.Remove(key.Hash)
		c.expired++
		c.misses++
		return Entry{}, false
	}
	c.hits++
	return e, true
}

// Add stores e under key, stamping CreatedAt. When the cache is full the
// oldest-inserted entry is evicted. Re-adding a key counts as a new insert,
// and an entry whose Hash collides with key is replaced.
func (c *Cache) Add(key Key, e Entry) {
	e.CreatedAt = c.now()
	e.digest = key.Digest
	if c.entries.Add(key.Hash, e) {
		c.evictions++
	}
}

// Sweep drops every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	removed := 0
	// Keys are ordered oldest first and all entries share one TTL, so the
	// first fresh entry ends the sweep.
	for _, key := range c.entries.Keys() {
		e, ok := c.entries.Peek(key)
		if !ok {
			continue
		}
		if c.fresh(e) {
			break
		}
		c.entries.Remove(key)
		c.expired++
		removed++
	}
	return removed
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache) Len() int { return c.entries.Len() }

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries:   c.entries.Len(),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
	}
}

func (c *Cache) fresh(e Entry) bool {
	return c.now().Sub(e.CreatedAt) < c.ttl
}
