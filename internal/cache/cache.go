package cache

import (
	"context"
	"sync"
	"time"
)

// Cache is a TTL key/value store. Get returns ok=false once an entry's TTL has
// elapsed since it was set; implementations may reclaim expired memory lazily.
// Values returned by Get never alias stored state: callers may modify them.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool, error)
	Set(ctx context.Context, key string, value T, ttl time.Duration) error
}

// Cloner is implemented by values holding slices or pointers. InMemoryCache
// clones such values on Set and Get.
type Cloner[T any] interface {
	Clone() T
}

func cloneValue[T any](v T) T {
	if c, ok := any(v).(Cloner[T]); ok {
		return c.Clone()
	}
	return v
}

// InMemoryCache implements Cache with a mutex-guarded map. Expired entries are
// removed on access or when room is needed for a new key.
type InMemoryCache[T any] struct {
	mu         sync.Mutex
	data       map[string]cacheEntry[T]
	defaultTTL time.Duration
	capacity   int // 0 = unbounded
	now        func() time.Time
}

type cacheEntry[T any] struct {
	value      T
	insertedAt time.Time
	ttl        time.Duration
}

func (e cacheEntry[T]) expired(now time.Time) bool {
	return now.Sub(e.insertedAt) >= e.ttl
}

// NewInMemoryCache creates an in-memory cache. defaultTTL applies when Set is
// called with ttl <= 0; capacity bounds the number of entries (0 = unbounded).
func NewInMemoryCache[T any](defaultTTL time.Duration, capacity int) *InMemoryCache[T] {
	return &InMemoryCache[T]{
		data:       make(map[string]cacheEntry[T]),
		defaultTTL: defaultTTL,
		capacity:   capacity,
		now:        time.Now,
	}
}

// Get returns (value, true, nil) on a live hit and (zero, false, nil) on miss or expiry.
func (c *InMemoryCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return zero, false, nil
	}
	if entry.expired(c.now()) {
		delete(c.data, key)
		return zero, false, nil
	}
	return cloneValue(entry.value), true, nil
}

// Set stores value under key, replacing any previous entry.
func (c *InMemoryCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.data[key]; !exists && c.capacity > 0 && len(c.data) >= c.capacity {
		c.makeRoomLocked(now)
	}
	c.data[key] = cacheEntry[T]{value: cloneValue(value), insertedAt: now, ttl: ttl}
	return nil
}

// Len returns the number of stored entries, including expired ones not yet reclaimed.
func (c *InMemoryCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// makeRoomLocked purges expired entries, then evicts the entry closest to
// expiry if the cache is still full. Caller holds mu.
func (c *InMemoryCache[T]) makeRoomLocked(now time.Time) {
	for k, e := range c.data {
		if e.expired(now) {
			delete(c.data, k)
		}
	}
	if len(c.data) < c.capacity {
		return
	}
	var (
		victim       string
		victimExpiry time.Time
		found        bool
	)
	for k, e := range c.data {
		exp := e.insertedAt.Add(e.ttl)
		if !found || exp.Before(victimExpiry) {
			victim, victimExpiry, found = k, exp, true
		}
	}
	if found {
		delete(c.data, victim)
	}
}
