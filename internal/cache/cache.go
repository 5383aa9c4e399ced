// Package cache provides a generic in-memory TTL cache for the recommendation
// core. Each entry carries its own TTL chosen by the caller: short-lived
// per-user records and long-lived catalog snapshots share the same
// implementation. Thread-safe via a single sync.Mutex.
//
// Expiry is lazy (checked on Get) plus periodic: once the cache is more than
// 80% full or the cleanup interval has elapsed, the next Set purges expired
// entries inline. If the cache is still full after the purge, the
// lowest-priority 20% of entries are evicted. An entry's priority grows
// multiplicatively on every hit, which approximates LFU without frequency lists.
package cache

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"
)

// DefaultTTL is used when Set is called with a non-positive TTL.
const DefaultTTL = 5 * time.Minute

// DefaultMaxEntries is the default maximum number of cache entries.
const DefaultMaxEntries = 1000

// DefaultCleanupInterval is the default interval after which the next Set
// triggers a cleanup pass regardless of size.
const DefaultCleanupInterval = time.Minute

const (
	cleanupThreshold = 0.8 // fraction of MaxEntries that triggers cleanup
	evictFraction    = 0.2 // fraction of entries evicted when still full
	hitBoost         = 1.1 // priority multiplier per successful Get
	maxPriority      = 1e9
)

// Options configures a Cache instance.
type Options struct {
	// DefaultTTL applies to Set calls with ttl <= 0. Zero uses DefaultTTL (5m).
	DefaultTTL time.Duration

	// MaxEntries is the maximum number of entries before eviction. Zero uses DefaultMaxEntries (1000).
	MaxEntries int

	// CleanupInterval bounds how long expired entries may linger. Zero uses DefaultCleanupInterval (1m).
	CleanupInterval time.Duration

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// entry holds a cached value with its expiry bookkeeping.
type entry[V any] struct {
	value     V
	ttl       time.Duration
	createdAt time.Time
	priority  float64
}

func (e entry[V]) expired(now time.Time) bool {
	return now.After(e.createdAt.Add(e.ttl))
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Expirations int64 // entries removed because their TTL elapsed
	Evictions   int64 // entries removed to make room
	Entries     int
	LastCleanup time.Time
}

// Cache is a generic in-memory cache with per-entry TTL and priority-weighted eviction.
type Cache[K comparable, V any] struct {
	mu              sync.Mutex
	entries         map[K]*entry[V]
	defaultTTL      time.Duration
	maxEntries      int
	cleanupInterval time.Duration
	now             func() time.Time

	lastCleanup time.Time
	stats       Stats
}

// New creates a new Cache with the given options.
func New[K comparable, V any](opts Options) *Cache[K, V] {
	ttl := opts.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	interval := opts.CleanupInterval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Cache[K, V]{
		entries:         make(map[K]*entry[V]),
		defaultTTL:      ttl,
		maxEntries:      maxEntries,
		cleanupInterval: interval,
		now:             now,
		lastCleanup:     now(),
	}
}

// Get retrieves a value by key. Returns the value and true if found and not expired.
// An expired entry is removed under the same lock that observed it, so two
// concurrent readers never both count the expiry.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		c.stats.Expirations++
		c.stats.Misses++
		return zero, false
	}

	e.priority = math.Min(e.priority*hitBoost, maxPriority)
	c.stats.Hits++
	return e.value, true
}

// GetOr returns the cached value for key, or def when absent or expired.
func (c *Cache[K, V]) GetOr(key K, def V) V {
	if v, ok := c.Get(key); ok {
		return v
	}
	return def
}

// Set adds or replaces an entry. A non-positive ttl uses the cache's default.
// Replacing an entry resets its TTL and priority.
func (c *Cache[K, V]) Set(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists {
		c.maybeCleanupLocked(now)
	}

	c.entries[key] = &entry[V]{
		value:     value,
		ttl:       ttl,
		createdAt: now,
		priority:  1,
	}
}

// Delete removes a single entry by key. No-op if the key doesn't exist.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries from the cache. Counters are kept.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]*entry[V])
}

// Len returns the number of entries currently held (including expired but not yet cleaned).
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// TTL returns the default TTL applied to Set calls without an explicit TTL.
func (c *Cache[K, V]) TTL() time.Duration {
	return c.defaultTTL
}

// MaxEntries returns the configured maximum number of entries.
func (c *Cache[K, V]) MaxEntries() int {
	return c.maxEntries
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	s.LastCleanup = c.lastCleanup
	return s
}

// Cleanup purges expired entries and, if the cache is still full, evicts the
// lowest-priority entries. Returns the number of entries removed.
func (c *Cache[K, V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleanupLocked(c.now())
}

// StartJanitor runs Cleanup every interval until ctx is cancelled. Inline
// cleanup on Set already bounds memory; the janitor only keeps idle caches tidy.
func (c *Cache[K, V]) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.cleanupInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Cleanup()
			}
		}
	}()
}

// maybeCleanupLocked runs a cleanup pass when an insert would push the cache
// past the size threshold or the interval has elapsed.
// Caller must hold c.mu.
func (c *Cache[K, V]) maybeCleanupLocked(now time.Time) {
	threshold := int(float64(c.maxEntries) * cleanupThreshold)
	if len(c.entries) >= threshold || now.Sub(c.lastCleanup) >= c.cleanupInterval {
		c.cleanupLocked(now)
	}
}

// cleanupLocked removes expired entries, then evicts if still at capacity.
// Caller must hold c.mu.
func (c *Cache[K, V]) cleanupLocked(now time.Time) int {
	removed := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			c.stats.Expirations++
			removed++
		}
	}
	if len(c.entries) >= c.maxEntries {
		removed += c.evictLocked()
	}
	c.lastCleanup = now
	return removed
}

// evictLocked removes the lowest-priority 20% of entries (at least one).
// Ties go to the oldest entry.
// Caller must hold c.mu.
func (c *Cache[K, V]) evictLocked() int {
	type candidate struct {
		key       K
		priority  float64
		createdAt time.Time
	}
	candidates := make([]candidate, 0, len(c.entries))
	for k, e := range c.entries {
		candidates = append(candidates, candidate{key: k, priority: e.priority, createdAt: e.createdAt})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority < candidates[j].priority
		}
		return candidates[i].createdAt.Before(candidates[j].createdAt)
	})

	n := int(float64(len(candidates)) * evictFraction)
	if n < 1 {
		n = 1
	}
	if n > len(candidates) {
		n = len(candidates)
	}
	for _, cand := range candidates[:n] {
		delete(c.entries, cand.key)
	}
	c.stats.Evictions += int64(n)
	return n
}
