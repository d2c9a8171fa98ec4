// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package cache

import (
	"container/heap"
	"sync"
	"time"
)

// QueueEntry is an entry of a TimeQueue.
type QueueEntry[T any] struct {
	Key       string
	Value     T
	Timestamp time.Time
	index     int
}

// TimeQueue is a keyed min-heap ordered by timestamp with optional capacity.
// When full, pushing a new key evicts the oldest entry.
type TimeQueue[T any] struct {
	mu     sync.Mutex
	h      entryHeap[T]
	byKey  map[string]*QueueEntry[T]
	maxLen int
}

// NewTimeQueue creates a queue. maxLen 0 means unbounded.
func NewTimeQueue[T any](maxLen int) *TimeQueue[T] {
	return &TimeQueue[T]{
		byKey:  make(map[string]*QueueEntry[T]),
		maxLen: maxLen,
	}
}

// Push inserts or updates key. It returns the evicted entry, if any.
func (q *TimeQueue[T]) Push(key string, value T, ts time.Time) *QueueEntry[T] {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e, ok := q.byKey[key]; ok {
		e.Value = value
		e.Timestamp = ts
		heap.Fix(&q.h, e.index)
		return nil
	}

	e := &QueueEntry[T]{Key: key, Value: value, Timestamp: ts}
	heap.Push(&q.h, e)
	q.byKey[key] = e

	if q.maxLen > 0 && q.h.Len() > q.maxLen {
		return q.popLocked()
	}
	return nil
}

// Get returns the entry for key.
func (q *TimeQueue[T]) Get(key string) (*QueueEntry[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byKey[key]
	return e, ok
}

// Update mutates the value for key in place under the queue lock.
// It returns false if key is absent.
func (q *TimeQueue[T]) Update(key string, fn func(value *T)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byKey[key]
	if !ok {
		return false
	}
	fn(&e.Value)
	return true
}

// PopBefore removes and returns entries older than t, oldest first.
func (q *TimeQueue[T]) PopBefore(t time.Time) []*QueueEntry[T] {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*QueueEntry[T]
	for q.h.Len() > 0 && q.h[0].Timestamp.Before(t) {
		out = append(out, q.popLocked())
	}
	return out
}

// Range calls fn for entries with Timestamp >= since, in no particular
// order, until fn returns false.
func (q *TimeQueue[T]) Range(since time.Time, fn func(e *QueueEntry[T]) bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.h {
		if e.Timestamp.Before(since) {
			continue
		}
		if !fn(e) {
			return
		}
	}
}

// Len returns the number of entries.
func (q *TimeQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}

func (q *TimeQueue[T]) popLocked() *QueueEntry[T] {
	if q.h.Len() == 0 {
		return nil
	}
	e := heap.Pop(&q.h).(*QueueEntry[T])
	delete(q.byKey, e.Key)
	return e
}

// entryHeap implements heap.Interface.
type entryHeap[T any] []*QueueEntry[T]

func (h entryHeap[T]) Len() int { return len(h) }

func (h entryHeap[T]) Less(i, j int) bool {
	if h[i].Timestamp.Equal(h[j].Timestamp) {
		return h[i].Key < h[j].Key
	}
	return h[i].Timestamp.Before(h[j].Timestamp)
}

func (h entryHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap[T]) Push(x any) {
	e := x.(*QueueEntry[T])
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap[T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
