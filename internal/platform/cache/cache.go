// Package cache implements the keyed read-through cache used for directory
// lookups. Each bucket is an independent Cache instance with its own
// time-to-idle and capacity; entries are evicted when idle past the TTL or,
// at capacity, in least-recently-accessed order.
package cache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLoaderRequired is returned when Get is invoked without a loader on a miss.
var ErrLoaderRequired = errors.New("cache: loader is required")

// Loader fetches the value for a key on a cache miss.
type Loader[V any] func(ctx context.Context) (V, error)

// Option customises cache construction.
type Option func(*options)

type options struct {
	clock func() time.Time
}

// WithClock injects a custom clock (tests).
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	lastAccess time.Time
}

// Cache is a size-bounded cache with time-to-idle expiry. The idle clock of an
// entry resets on every hit, not only on writes. Safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu       sync.RWMutex
	ttl      time.Duration
	capacity int
	now      func() time.Time
	items    map[K]*list.Element
	lru      *list.List // front = most recently accessed
}

// New constructs a cache bucket with the given time-to-idle and capacity.
// A non-positive ttl disables expiry; capacity must be positive.
func New[K comparable, V any](ttl time.Duration, capacity int, opts ...Option) *Cache[K, V] {
	o := options{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if capacity < 1 {
		capacity = 1
	}
	return &Cache[K, V]{
		ttl:      ttl,
		capacity: capacity,
		now:      o.clock,
		items:    make(map[K]*list.Element, capacity),
		lru:      list.New(),
	}
}

// Get returns the cached value for key, resetting its idle clock on a hit.
// On a miss (or an expired entry) the loader is invoked, its result stored
// and returned. Loader errors are returned as-is and nothing is cached.
func (c *Cache[K, V]) Get(ctx context.Context, key K, load Loader[V]) (V, error) {
	if value, ok := c.lookup(key); ok {
		return value, nil
	}

	var zero V
	if load == nil {
		return zero, ErrLoaderRequired
	}

	value, err := load(ctx)
	if err != nil {
		return zero, err
	}
	c.store(key, value)
	return value, nil
}

// Peek returns the cached value without invoking a loader or touching recency.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}
	ent := elem.Value.(*entry[K, V])
	if c.expired(ent, c.now()) {
		return zero, false
	}
	return ent.value, true
}

// Put stores the value under key, refreshing recency and evicting if needed.
func (c *Cache[K, V]) Put(key K, value V) {
	c.store(key, value)
}

// Invalidate removes the key. It is a no-op when the key is absent.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.remove(elem)
	}
}

// Len reports the number of resident entries, including not-yet-collected
// expired ones.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// lookup returns the live value and refreshes its idle clock.
func (c *Cache[K, V]) lookup(key K) (V, bool) {
	var zero V

	c.mu.RLock()
	elem, ok := c.items[key]
	if !ok {
		c.mu.RUnlock()
		return zero, false
	}
	ent := elem.Value.(*entry[K, V])
	now := c.now()
	if c.expired(ent, now) {
		c.mu.RUnlock()
		c.mu.Lock()
		// Recheck under the write lock; a concurrent store may have refreshed it.
		if elem, ok := c.items[key]; ok {
			ent := elem.Value.(*entry[K, V])
			if c.expired(ent, c.now()) {
				c.remove(elem)
			} else {
				value := ent.value
				c.touch(elem, ent)
				c.mu.Unlock()
				return value, true
			}
		}
		c.mu.Unlock()
		return zero, false
	}
	value := ent.value
	c.mu.RUnlock()

	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		c.touch(elem, elem.Value.(*entry[K, V]))
	}
	c.mu.Unlock()
	return value, true
}

func (c *Cache[K, V]) store(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry[K, V])
		ent.value = value
		ent.lastAccess = now
		c.lru.MoveToFront(elem)
		return
	}

	for len(c.items) >= c.capacity {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.remove(oldest)
	}

	elem := c.lru.PushFront(&entry[K, V]{key: key, value: value, lastAccess: now})
	c.items[key] = elem
}

func (c *Cache[K, V]) touch(elem *list.Element, ent *entry[K, V]) {
	ent.lastAccess = c.now()
	c.lru.MoveToFront(elem)
}

func (c *Cache[K, V]) remove(elem *list.Element) {
	ent := elem.Value.(*entry[K, V])
	delete(c.items, ent.key)
	c.lru.Remove(elem)
}

func (c *Cache[K, V]) expired(ent *entry[K, V], now time.Time) bool {
	if c.ttl <= 0 {
		return false
	}
	return now.Sub(ent.lastAccess) >= c.ttl
}
