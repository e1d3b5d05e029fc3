package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultSize bounds a cache built with a non-positive size.
const DefaultSize = 1024

// Event reports a change to one key. Deleted is set by Invalidate.
type Event[V any] struct {
	Key     string
	Value   V
	Deleted bool
}

// Cache is a size-bounded LRU with per-entry TTL and change listeners.
// Expired entries read as misses. Set drops expired entries from the cold
// end, so keys that are never read again still leave the cache.
// Capacity evictions do not notify listeners.
type Cache[V any] struct {
	mu        sync.Mutex
	items     *lru.Cache
	listeners map[int]func(Event[V])
	nextID    int
	clock     func() time.Time
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// New returns an empty cache holding at most size entries.
// A nil clock uses time.Now.
func New[V any](size int, clock func() time.Time) *Cache[V] {
	if size <= 0 {
		size = DefaultSize
	}
	if clock == nil {
		clock = time.Now
	}
	items, err := lru.New(size)
	if err != nil {
		// lru.New only rejects non-positive sizes.
		panic(err)
	}
	return &Cache[V]{
		items:     items,
		listeners: map[int]func(Event[V]){},
		clock:     clock,
	}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	raw, ok := c.items.Get(key)
	if !ok {
		return zero, false
	}
	e := raw.(entry[V])
	if e.expired(c.clock()) {
		c.items.Remove(key)
		return zero, false
	}
	return e.value, true
}

// Set stores v for ttl; ttl <= 0 keeps it until invalidated or evicted.
func (c *Cache[V]) Set(key string, v V, ttl time.Duration) {
	c.mu.Lock()
	now := c.clock()
	c.sweepLocked(now)
	e := entry[V]{value: v}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	c.items.Add(key, e)
	ls := c.snapshotLocked()
	c.mu.Unlock()
	notify(ls, Event[V]{Key: key, Value: v})
}

func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	existed := c.items.Contains(key)
	c.items.Remove(key)
	ls := c.snapshotLocked()
	c.mu.Unlock()
	if existed {
		notify(ls, Event[V]{Key: key, Deleted: true})
	}
}

// Subscribe registers fn for every Set and Invalidate. Listeners run on the
// caller's goroutine after the cache lock is released.
func (c *Cache[V]) Subscribe(fn func(Event[V])) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// Len reports live entries. It drops every expired entry first.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	for _, k := range c.items.Keys() {
		if raw, ok := c.items.Peek(k); ok && raw.(entry[V]).expired(now) {
			c.items.Remove(k)
		}
	}
	return c.items.Len()
}

// sweepLocked removes expired entries from the least recently used end,
// stopping at the first live one.
func (c *Cache[V]) sweepLocked(now time.Time) {
	for {
		k, raw, ok := c.items.GetOldest()
		if !ok || !raw.(entry[V]).expired(now) {
			return
		}
		c.items.Remove(k)
	}
}

func (c *Cache[V]) snapshotLocked() []func(Event[V]) {
	out := make([]func(Event[V]), 0, len(c.listeners))
	for _, fn := range c.listeners {
		out = append(out, fn)
	}
	return out
}

func notify[V any](ls []func(Event[V]), ev Event[V]) {
	for _, fn := range ls {
		fn(ev)
	}
}
