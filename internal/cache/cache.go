package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"
)

// ErrInvalidTTL is returned by Set for non-positive TTLs.
var ErrInvalidTTL = errors.New("ttl must be positive")

// entry is one cached value with its expiry bookkeeping.
type entry struct {
	value      any
	createdAt  time.Time
	expiresAt  time.Time
	approxSize int
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Stats summarizes cache occupancy.
type Stats struct {
	Total      int `json:"total"`
	Active     int `json:"active"`
	Expired    int `json:"expired"`
	ApproxSize int `json:"approx_size_bytes"`
}

// Cache is a mutex-guarded key→value store with per-entry TTL.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*entry)}
}

// Get returns the value for key. Expired entries are reported as
// absent and evicted as a side effect. Never blocks on I/O.
func (c *Cache) Get(key string) (any, bool) {
	now := time.Now()

	c.mu.RLock()
	e, ok := c.entries[key]
	if ok && !e.expired(now) {
		v := e.value
		c.mu.RUnlock()
		return v, true
	}
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	// Lazy eviction; re-check under the write lock in case of a
	// concurrent Set.
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && e.expired(time.Now()) {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	return nil, false
}

// Set upserts key with the given TTL. A non-positive TTL is an error.
func (c *Cache) Set(key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTTL, ttl)
	}
	now := time.Now()
	e := &entry{
		value:      value,
		createdAt:  now,
		expiresAt:  now.Add(ttl),
		approxSize: approxSize(key, value),
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

// Delete removes key, reporting whether it was present.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	return ok
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// InvalidatePattern deletes all keys matching the regular expression
// and returns how many were removed.
func (c *Cache) InvalidatePattern(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var count int
	for key := range c.entries {
		if re.MatchString(key) {
			delete(c.entries, key)
			count++
		}
	}
	return count, nil
}

// Stats returns occupancy counts. Expired-but-unevicted entries are
// counted separately from active ones.
func (c *Cache) Stats() Stats {
	now := time.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{Total: len(c.entries)}
	for _, e := range c.entries {
		if e.expired(now) {
			s.Expired++
			continue
		}
		s.Active++
		s.ApproxSize += e.approxSize
	}
	return s
}

// purgeExpired removes all expired entries and returns the count.
func (c *Cache) purgeExpired() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	var count int
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			count++
		}
	}
	return count
}

// StartSweep purges expired entries on a background ticker until ctx
// is done.
func (c *Cache) StartSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.purgeExpired()
			}
		}
	}()
}

// approxSize estimates the stored footprint of an entry. Values that
// fail to marshal contribute only their key length.
func approxSize(key string, value any) int {
	size := len(key)
	if b, err := json.Marshal(value); err == nil {
		size += len(b)
	}
	return size
}
