// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package cache

import (
	"container/list"
	"sync"
	"time"
)

const (
	defaultLRUCapacity = 10000
	defaultLRUTTL      = 5 * time.Minute
)

type slot[V any] struct {
	key      string
	value    V
	deadline time.Time
}

// LRU is a bounded, TTL-aware cache keyed by string. The engine keeps
// recommendation pages in it, the CEL filter keeps compiled programs and
// the kNN scorer keeps neighbor lists.
//
// Expired slots are dropped lazily when they are read, or in bulk by
// CleanupExpired. Front of the list is the most recently used slot.
type LRU[V any] struct {
	mu      sync.Mutex
	order   *list.List
	index   map[string]*list.Element
	maxLen  int
	ttl     time.Duration
	clock   func() time.Time
	hits    int64
	misses  int64
	evicted int64
}

// NewLRU returns a cache of at most capacity slots, each living ttl.
// Non-positive arguments fall back to 10000 slots and five minutes.
func NewLRU[V any](capacity int, ttl time.Duration) *LRU[V] {
	if capacity <= 0 {
		capacity = defaultLRUCapacity
	}
	if ttl <= 0 {
		ttl = defaultLRUTTL
	}
	return &LRU[V]{
		order:  list.New(),
		index:  make(map[string]*list.Element, capacity),
		maxLen: capacity,
		ttl:    ttl,
		clock:  time.Now,
	}
}

// SetClock swaps the time source for tests.
func (c *LRU[V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.clock = now
	c.mu.Unlock()
}

// lookup returns the live slot for key, dropping it when expired.
// Caller holds c.mu.
func (c *LRU[V]) lookup(key string) (*list.Element, bool) {
	el, ok := c.index[key]
	if !ok {
		return nil, false
	}
	if c.clock().After(el.Value.(*slot[V]).deadline) {
		c.drop(el)
		return nil, false
	}
	return el, true
}

// Get returns the cached value and promotes it.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.lookup(key)
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return el.Value.(*slot[V]).value, true
}

// Contains reports a live slot for key. It neither promotes nor drops.
func (c *LRU[V]) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[key]
	return ok && !c.clock().After(el.Value.(*slot[V]).deadline)
}

// Set stores value for the default TTL.
func (c *LRU[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value for ttl, replacing any previous slot.
func (c *LRU[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, value, ttl)
}

// SetIfAbsent stores value unless a live slot exists. It reports whether
// one did, which makes it a test-and-set for deduplication.
func (c *LRU[V]) SetIfAbsent(key string, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.lookup(key); ok {
		c.order.MoveToFront(el)
		c.hits++
		return true
	}
	c.misses++
	c.put(key, value, c.ttl)
	return false
}

// put writes a slot and trims the tail. Caller holds c.mu.
func (c *LRU[V]) put(key string, value V, ttl time.Duration) {
	deadline := c.clock().Add(ttl)
	if el, ok := c.index[key]; ok {
		s := el.Value.(*slot[V])
		s.value, s.deadline = value, deadline
		c.order.MoveToFront(el)
		return
	}
	c.index[key] = c.order.PushFront(&slot[V]{key: key, value: value, deadline: deadline})
	for c.order.Len() > c.maxLen {
		c.drop(c.order.Back())
		c.evicted++
	}
}

func (c *LRU[V]) drop(el *list.Element) {
	c.order.Remove(el)
	delete(c.index, el.Value.(*slot[V]).key)
}

// Remove deletes key and reports whether it was cached.
func (c *LRU[V]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[key]
	if ok {
		c.drop(el)
	}
	return ok
}

// RemoveIf deletes every key match accepts. The engine uses it to drop
// all pages of one user after feedback.
func (c *LRU[V]) RemoveIf(match func(key string) bool) int {
	return c.sweep(func(s *slot[V], _ time.Time) bool { return match(s.key) })
}

// CleanupExpired deletes expired slots and returns how many it dropped.
func (c *LRU[V]) CleanupExpired() int {
	return c.sweep(func(s *slot[V], now time.Time) bool { return now.After(s.deadline) })
}

func (c *LRU[V]) sweep(doomed func(s *slot[V], now time.Time) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	n := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if doomed(el.Value.(*slot[V]), now) {
			c.drop(el)
			n++
		}
		el = prev
	}
	return n
}

// Len counts stored slots, expired ones included until they are dropped.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear empties the cache. Counters are kept.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.index = make(map[string]*list.Element, c.maxLen)
}

func (c *LRU[V]) Stats() (hits, misses, evictions int64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.evicted, c.order.Len()
}
