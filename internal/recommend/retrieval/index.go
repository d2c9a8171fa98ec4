// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package retrieval

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tomtom215/scentmatch/internal/recommend"
	"github.com/tomtom215/scentmatch/internal/recommend/vectormath"
)

// ctxCheckEvery is how many vectors are scanned between context checks.
const ctxCheckEvery = 256

// MemoryIndex is an exact in-memory cosine index. It is safe for
// concurrent use.
type MemoryIndex struct {
	mu      sync.RWMutex
	dim     int
	ids     []string // sorted
	vectors map[string][]float64
}

// NewMemoryIndex creates an empty index for vectors of length dim.
func NewMemoryIndex(dim int) *MemoryIndex {
	return &MemoryIndex{dim: dim, vectors: make(map[string][]float64)}
}

// Upsert adds or replaces the vector for id. The vector is stored normalized.
func (m *MemoryIndex) Upsert(id string, vector []float64) error {
	if err := vectormath.Validate(vector, m.dim); err != nil {
		return fmt.Errorf("index %s: %w", id, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vectors[id]; !ok {
		i := sort.SearchStrings(m.ids, id)
		m.ids = append(m.ids, "")
		copy(m.ids[i+1:], m.ids[i:])
		m.ids[i] = id
	}
	m.vectors[id] = vectormath.Normalize(vector)
	return nil
}

// Remove deletes id from the index.
func (m *MemoryIndex) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vectors[id]; !ok {
		return false
	}
	delete(m.vectors, id)
	i := sort.SearchStrings(m.ids, id)
	m.ids = append(m.ids[:i], m.ids[i+1:]...)
	return true
}

// Len returns the number of indexed vectors.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// IndexItems upserts every item that has an embedding and returns how
// many were indexed.
func (m *MemoryIndex) IndexItems(items []recommend.Item) (int, error) {
	n := 0
	for i := range items {
		if len(items[i].Embedding) == 0 {
			continue
		}
		if err := m.Upsert(items[i].ID, items[i].Embedding); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Query implements recommend.ANNIndex.
func (m *MemoryIndex) Query(ctx context.Context, vector []float64, k int, exclude map[string]struct{}) ([]recommend.Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(vector) != m.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", recommend.ErrDimensionMismatch, len(vector), m.dim)
	}
	q := vectormath.Normalize(vector)

	m.mu.RLock()
	defer m.mu.RUnlock()

	h := &neighborHeap{}
	heap.Init(h)
	for i, id := range m.ids {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if _, skip := exclude[id]; skip {
			continue
		}
		sim, _ := vectormath.Dot(q, m.vectors[id])
		n := recommend.Neighbor{ID: id, Similarity: sim}
		if h.Len() < k {
			heap.Push(h, n)
		} else if worse((*h)[0], n) {
			(*h)[0] = n
			heap.Fix(h, 0)
		}
	}

	out := make([]recommend.Neighbor, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(recommend.Neighbor)
	}
	return out, nil
}

// worse reports whether a ranks below b: lower similarity, or equal
// similarity and a larger ID.
func worse(a, b recommend.Neighbor) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity < b.Similarity
	}
	return a.ID > b.ID
}

// neighborHeap keeps the current worst neighbour at the root.
type neighborHeap []recommend.Neighbor

func (h neighborHeap) Len() int           { return len(h) }
func (h neighborHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h neighborHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *neighborHeap) Push(x any)        { *h = append(*h, x.(recommend.Neighbor)) }
func (h *neighborHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

var _ recommend.ANNIndex = (*MemoryIndex)(nil)
