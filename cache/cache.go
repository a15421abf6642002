// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package cache

import (
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultMaxBytes bounds the cache at 100 MB unless configured otherwise.
	DefaultMaxBytes = 100 * 1024 * 1024

	// fallbackEntrySize is charged for values the sizer cannot measure.
	// Deliberately conservative so eviction bounds hold even when sizing fails.
	fallbackEntrySize = 1024
)

// ErrUnsizable is returned by sizers that cannot measure a value.
var ErrUnsizable = errors.New("value size cannot be estimated")

// Sizer estimates the in-memory footprint of a value in bytes. Estimates
// only need to be order-of-magnitude correct; a Sizer that cannot measure a
// value should return ErrUnsizable and the cache charges a fixed fallback.
type Sizer[V any] func(V) (int64, error)

// Options configures a Cache.
type Options[V any] struct {
	// MaxBytes is the total size budget. Defaults to DefaultMaxBytes.
	MaxBytes int64

	// MaxItems bounds the entry count. Zero means unbounded.
	MaxItems int

	// TTL expires entries after the given duration. Zero disables expiry.
	TTL time.Duration

	// Sizer estimates entry sizes. Defaults to EstimateSize.
	Sizer Sizer[V]

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Cache is a byte-bounded LRU cache with optional TTL expiry and
// prefix/regexp bulk invalidation. Get, Set and Delete are O(1); the
// pattern operations are linear scans.
//
// All methods are safe for concurrent use. The recency list is mutated on
// every Get, so a single mutex guards all operations.
type Cache[K ~string, V any] struct {
	mu       sync.Mutex
	entries  map[K]*entry[K, V]
	head     *entry[K, V] // most recently used
	tail     *entry[K, V] // least recently used
	total    int64
	maxBytes int64
	maxItems int
	ttl      time.Duration
	sizer    Sizer[V]
	logger   *slog.Logger

	hits      uint64
	misses    uint64
	evictions uint64
}

type entry[K ~string, V any] struct {
	key      K
	value    V
	size     int64
	storedAt time.Time
	prev     *entry[K, V]
	next     *entry[K, V]
}

// New creates a cache with the given options.
func New[K ~string, V any](opts Options[V]) *Cache[K, V] {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Sizer == nil {
		opts.Sizer = EstimateSize[V]
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Cache[K, V]{
		entries:  make(map[K]*entry[K, V]),
		maxBytes: opts.MaxBytes,
		maxItems: opts.MaxItems,
		ttl:      opts.TTL,
		sizer:    opts.Sizer,
		logger:   opts.Logger,
	}
}

// EstimateSize is the default sizer. It measures byte slices and strings
// exactly and defers to a SizeBytes method when the value provides one.
// Everything else is unsizable and falls back to the fixed estimate.
func EstimateSize[V any](v V) (int64, error) {
	switch t := any(v).(type) {
	case []byte:
		return int64(len(t)), nil
	case string:
		return int64(len(t)), nil
	case interface{ SizeBytes() int64 }:
		return t.SizeBytes(), nil
	}
	return 0, ErrUnsizable
}

// Get returns the cached value for key. A hit promotes the entry to the
// most-recently-used position. Expired entries count as misses.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}
	if c.expired(e) {
		c.remove(e)
		c.misses++
		return zero, false
	}

	c.moveToFront(e)
	c.hits++
	return e.value, true
}

// Set inserts or updates the value for key at the most-recently-used
// position, then evicts from the least-recently-used end until both the
// byte and item bounds are satisfied.
func (c *Cache[K, V]) Set(key K, value V) {
	size, err := c.sizer(value)
	if err != nil || size < 0 {
		size = fallbackEntrySize
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.total += size - e.size
		e.value = value
		e.size = size
		e.storedAt = time.Now()
		c.moveToFront(e)
	} else {
		e = &entry[K, V]{key: key, value: value, size: size, storedAt: time.Now()}
		c.entries[key] = e
		c.total += size
		c.pushFront(e)
	}

	c.evict()
}

// Delete removes the entry for key, reporting whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.remove(e)
	return true
}

// GetMany looks up multiple keys, returning only the hits.
func (c *Cache[K, V]) GetMany(keys ...K) map[K]V {
	result := make(map[K]V, len(keys))
	for _, key := range keys {
		if v, ok := c.Get(key); ok {
			result[key] = v
		}
	}
	return result
}

// SetMany inserts every pair with single-Set semantics.
func (c *Cache[K, V]) SetMany(pairs map[K]V) {
	for key, value := range pairs {
		c.Set(key, value)
	}
}

// DeleteMany removes the given keys, returning how many were present.
func (c *Cache[K, V]) DeleteMany(keys ...K) int {
	count := 0
	for _, key := range keys {
		if c.Delete(key) {
			count++
		}
	}
	return count
}

// InvalidatePrefix removes every entry whose key starts with prefix and
// returns the number removed.
func (c *Cache[K, V]) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key, e := range c.entries {
		if strings.HasPrefix(string(key), prefix) {
			c.remove(e)
			count++
		}
	}
	return count
}

// InvalidateRegexp removes every entry whose key matches re and returns the
// number removed.
func (c *Cache[K, V]) InvalidateRegexp(re *regexp.Regexp) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key, e := range c.entries {
		if re.MatchString(string(key)) {
			c.remove(e)
			count++
		}
	}
	return count
}

// Clear removes all entries. Hit/miss/eviction counters are preserved.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*entry[K, V])
	c.head = nil
	c.tail = nil
	c.total = 0
}

// Prune removes all expired entries and returns the number removed.
func (c *Cache[K, V]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl <= 0 {
		return 0
	}
	count := 0
	for _, e := range c.entries {
		if c.expired(e) {
			c.remove(e)
			count++
		}
	}
	return count
}

// Len returns the current entry count.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// SizeBytes returns the current estimated total size.
func (c *Cache[K, V]) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Stats is a point-in-time snapshot of cache effectiveness counters.
type Stats struct {
	Hits         uint64
	Misses       uint64
	HitRate      float64
	SizeBytes    int64
	MaxSizeBytes int64
	Items        int
	Evictions    uint64
	OldestEntry  time.Time
	NewestEntry  time.Time
}

// GetStats returns a snapshot of the cache counters.
func (c *Cache[K, V]) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Hits:         c.hits,
		Misses:       c.misses,
		SizeBytes:    c.total,
		MaxSizeBytes: c.maxBytes,
		Items:        len(c.entries),
		Evictions:    c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	for _, e := range c.entries {
		if stats.OldestEntry.IsZero() || e.storedAt.Before(stats.OldestEntry) {
			stats.OldestEntry = e.storedAt
		}
		if e.storedAt.After(stats.NewestEntry) {
			stats.NewestEntry = e.storedAt
		}
	}
	return stats
}

// Internal list maintenance. Callers must hold c.mu.

func (c *Cache[K, V]) expired(e *entry[K, V]) bool {
	return c.ttl > 0 && time.Since(e.storedAt) > c.ttl
}

func (c *Cache[K, V]) evict() {
	for c.tail != nil && (c.total > c.maxBytes || (c.maxItems > 0 && len(c.entries) > c.maxItems)) {
		evicted := c.tail
		c.remove(evicted)
		c.evictions++
		c.logger.Debug("cache entry evicted", "key", string(evicted.key), "size", evicted.size)
	}
}

func (c *Cache[K, V]) pushFront(e *entry[K, V]) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache[K, V]) moveToFront(e *entry[K, V]) {
	if c.head == e {
		return
	}
	c.unlink(e)
	c.pushFront(e)
}

func (c *Cache[K, V]) remove(e *entry[K, V]) {
	c.unlink(e)
	delete(c.entries, e.key)
	c.total -= e.size
}

func (c *Cache[K, V]) unlink(e *entry[K, V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else if c.head == e {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else if c.tail == e {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}
