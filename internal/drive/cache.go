package drive

import (
	"container/list"
	"sync"
	"time"
)

// ttlCache is a bounded LRU cache with per-entry expiry. Expiry is checked
// lazily on read; the least recently used entry is evicted when the bound is
// reached.
type ttlCache[V any] struct {
	mu         sync.Mutex
	maxEntries int
	defaultTTL time.Duration
	entries    map[string]*list.Element
	order      *list.List
}

type cacheEntry[V any] struct {
	key     string
	value   V
	expires time.Time
}

func newTTLCache[V any](maxEntries int, defaultTTL time.Duration) *ttlCache[V] {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &ttlCache[V]{
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

func (c *ttlCache[V]) get(key string) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	entry := elem.Value.(*cacheEntry[V])
	if time.Now().After(entry.expires) {
		c.order.Remove(elem)
		delete(c.entries, key)
		return zero, false
	}
	c.order.MoveToFront(elem)
	return entry.value, true
}

func (c *ttlCache[V]) set(key string, value V) {
	c.setTTL(key, value, c.defaultTTL)
}

func (c *ttlCache[V]) setTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := time.Now().Add(ttl)
	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry[V])
		entry.value = value
		entry.expires = expires
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&cacheEntry[V]{key: key, value: value, expires: expires})
	c.entries[key] = elem

	for len(c.entries) > c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry[V]).key)
	}
}

func (c *ttlCache[V]) delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.order.Remove(elem)
		delete(c.entries, key)
	}
}

func (c *ttlCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
