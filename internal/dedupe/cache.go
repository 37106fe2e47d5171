// ABOUTME: TTL cache guarding the pipeline against duplicate inbound message delivery.
// ABOUTME: Retries and overlapping adapter subscriptions can replay the same message id.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry stores the timestamp and order-list element for a cached message id.
type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache is a thread-safe, TTL-based, size-limited record of processed message
// ids. Insertion order is kept in a linked list for O(1) eviction of the
// oldest id at capacity.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a dedupe cache with the given TTL and maximum size. A background
// goroutine drops expired ids once a minute.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// CheckAndMark atomically reports whether the id was already processed and
// marks it when it was not. The atomic form avoids a check/mark race between
// concurrent deliveries of the same id.
func (c *Cache) CheckAndMark(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.seen[id]; ok && time.Since(e.seenAt) < c.ttl {
		return true
	}

	if e, ok := c.seen[id]; ok {
		// Expired: refresh in place
		e.seenAt = time.Now()
		c.order.MoveToBack(e.element)
		return false
	}

	if len(c.seen) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			oldest, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.seen, oldest)
		}
	}

	c.seen[id] = &entry{
		seenAt:  time.Now(),
		element: c.order.PushBack(id),
	}
	return false
}

// cleanupLoop periodically removes expired ids.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for id, e := range c.seen {
				if now.Sub(e.seenAt) > c.ttl {
					c.order.Remove(e.element)
					delete(c.seen, id)
				}
			}
			c.mu.Unlock()
		case <-c.done:
			return
		}
	}
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
