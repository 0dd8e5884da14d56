// ABOUTME: Thread-safe TTL cache of request keys for rejecting replayed sends
// ABOUTME: A key is claimed while its request runs and remembers the result once completed

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

const maxSweepInterval = time.Minute

type entry[V any] struct {
	key       string
	value     V
	completed bool
	expires   time.Time
}

// Cache tracks request keys for a TTL window. Each key is either in flight
// (claimed) or completed with a result. The oldest key is evicted when the
// cache is full.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // *entry[V], oldest claim at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache. A background goroutine sweeps expired keys until Close.
func New[V any](ttl time.Duration, maxSize int) *Cache[V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &Cache[V]{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweepLoop(min(ttl, maxSweepInterval))
	return c
}

// Claim marks key as in flight. It returns false when the key is already
// claimed or completed within the TTL, meaning the request is a replay.
func (c *Cache[V]) Claim(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.liveLocked(key); ok {
		return false
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.entries[key] = c.order.PushBack(&entry[V]{
		key:     key,
		expires: c.now().Add(c.ttl),
	})
	return true
}

// Complete stores the result for a claimed key and restarts its TTL.
func (c *Cache[V]) Complete(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.liveLocked(key)
	if !ok {
		return
	}
	e.value = value
	e.completed = true
	e.expires = c.now().Add(c.ttl)
}

// Release forgets key so a failed request can be retried with it.
func (c *Cache[V]) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.order.Remove(elem)
		delete(c.entries, key)
	}
}

// Lookup returns the result stored for key. It reports false when the key
// is unknown, expired, or still in flight.
func (c *Cache[V]) Lookup(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.liveLocked(key)
	if !ok || !e.completed {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Len returns the number of tracked keys, expired ones included until swept.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// liveLocked returns the unexpired entry for key, dropping it if expired.
func (c *Cache[V]) liveLocked(key string) (*entry[V], bool) {
	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := elem.Value.(*entry[V])
	if !c.now().Before(e.expires) {
		c.order.Remove(elem)
		delete(c.entries, key)
		return nil, false
	}
	return e, true
}

func (c *Cache[V]) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	c.order.Remove(front)
	delete(c.entries, front.Value.(*entry[V]).key)
}

func (c *Cache[V]) sweepLoop(interval time.Duration) {
	if interval <= 0 {
		interval = maxSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep removes every expired key.
func (c *Cache[V]) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		e := elem.Value.(*entry[V])
		if !now.Before(e.expires) {
			c.order.Remove(elem)
			delete(c.entries, e.key)
		}
		elem = next
	}
}

// Close stops the background sweep. It is safe to call multiple times.
func (c *Cache[V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
