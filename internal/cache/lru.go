package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// LRUCache keeps at most maxSize entries, dropping the least recently read
// one first. An entry older than ttl reads as a miss and is removed.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	index   map[string]*list.Element
	order   *list.List // front is most recently used
	now     func() time.Time

	hits, misses, evictions uint64
}

// Stats reports cache effectiveness.
type Stats struct {
	Size      int    `json:"size"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

type entry[T any] struct {
	key     string
	value   T
	expires time.Time
}

func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	return &LRUCache[T]{
		maxSize: max(maxSize, 1),
		ttl:     ttl,
		index:   map[string]*list.Element{},
		order:   list.New(),
		now:     time.Now,
	}
}

// lookup returns the live element for key, dropping it when expired.
// Callers hold mu.
func (c *LRUCache[T]) lookup(key string) *list.Element {
	el, ok := c.index[key]
	if !ok {
		return nil
	}
	if c.now().After(el.Value.(*entry[T]).expires) {
		c.unlink(el)
		return nil
	}
	return el
}

func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el := c.lookup(key)
	if el == nil {
		c.misses++
		var zero T
		return zero, false
	}
	c.hits++
	c.order.MoveToFront(el)
	return el.Value.(*entry[T]).value, true
}

// Set stores value under key with a fresh TTL.
func (c *LRUCache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry[T]{key: key, value: value, expires: c.now().Add(c.ttl)}
	if el, ok := c.index[key]; ok {
		el.Value = e
		c.order.MoveToFront(el)
		return
	}
	c.index[key] = c.order.PushFront(e)
	for c.order.Len() > c.maxSize {
		c.unlink(c.order.Back())
		c.evictions++
	}
}

func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.unlink(el)
	}
}

func (c *LRUCache[T]) unlink(el *list.Element) {
	delete(c.index, el.Value.(*entry[T]).key)
	c.order.Remove(el)
}

// removeIf unlinks every entry matching pred and returns the count.
// Callers hold mu.
func (c *LRUCache[T]) removeIf(pred func(*entry[T]) bool) int {
	n := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if pred(el.Value.(*entry[T])) {
			c.unlink(el)
			n++
		}
		el = next
	}
	return n
}

// CleanExpired removes all expired entries and returns how many it removed.
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	return c.removeIf(func(e *entry[T]) bool { return now.After(e.expires) })
}

// DeletePrefix drops every entry whose key starts with prefix, such as all
// views of one namespace.
func (c *LRUCache[T]) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeIf(func(e *entry[T]) bool { return strings.HasPrefix(e.key, prefix) })
}

func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LRUCache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Size: c.order.Len(), Hits: c.hits, Misses: c.misses, Evictions: c.evictions}
}
