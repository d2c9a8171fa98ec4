// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package cache

import (
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Deduplicator tracks keys that were already processed.
type Deduplicator interface {
	// IsDuplicate reports whether key was seen within the TTL and records it otherwise.
	IsDuplicate(key string) bool

	// Contains reports whether key was seen without recording it.
	Contains(key string) bool

	// Forget drops key so that it is processed again. Used when processing failed.
	Forget(key string)

	// Len returns the number of tracked keys.
	Len() int

	// Stats returns (bloomNegatives, lruChecks, duplicates).
	Stats() (bloomNegatives, lruChecks, duplicates int64)
}

var (
	_ Deduplicator = (*BloomLRU)(nil)
	_ Deduplicator = (*ExactLRU)(nil)
)

// BloomFilter is a probabilistic set with no false negatives.
type BloomFilter struct {
	mu      sync.RWMutex
	bits    []uint64
	size    uint64
	hashFns int
	count   int
}

// NewBloomFilter sizes a filter for expectedItems at the target false positive rate.
func NewBloomFilter(expectedItems int, falsePositiveRate float64) *BloomFilter {
	if expectedItems <= 0 {
		expectedItems = 10000
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	// m = -n ln(p) / ln(2)^2, k = (m/n) ln(2)
	m := int(math.Ceil(-float64(expectedItems) * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2)))
	if m < 64 {
		m = 64
	}
	k := int(math.Round(float64(m) / float64(expectedItems) * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 10 {
		k = 10
	}

	words := (m + 63) / 64
	return &BloomFilter{
		bits:    make([]uint64, words),
		size:    uint64(words * 64),
		hashFns: k,
	}
}

// Add inserts key.
func (bf *BloomFilter) Add(key string) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	h1, h2 := bloomHashes(key)
	for i := 0; i < bf.hashFns; i++ {
		idx := (h1 + uint64(i)*h2) % bf.size
		bf.bits[idx/64] |= 1 << (idx % 64)
	}
	bf.count++
}

// Test reports whether key may have been added. False is definitive.
func (bf *BloomFilter) Test(key string) bool {
	bf.mu.RLock()
	defer bf.mu.RUnlock()

	h1, h2 := bloomHashes(key)
	for i := 0; i < bf.hashFns; i++ {
		idx := (h1 + uint64(i)*h2) % bf.size
		if bf.bits[idx/64]&(1<<(idx%64)) == 0 {
			return false
		}
	}
	return true
}

// Count returns the number of Add calls.
func (bf *BloomFilter) Count() int {
	bf.mu.RLock()
	defer bf.mu.RUnlock()
	return bf.count
}

// bloomHashes derives two FNV hashes for double hashing h(i) = h1 + i*h2.
func bloomHashes(key string) (uint64, uint64) {
	h1 := fnv.New64a()
	_, _ = h1.Write([]byte(key))

	h2 := fnv.New64()
	_, _ = h2.Write([]byte(key))
	_, _ = h2.Write([]byte{0xff})

	return h1.Sum64(), h2.Sum64() | 1
}

// BloomLRU combines a Bloom filter with an LRU. Most unseen keys are answered
// by the filter alone; possible hits are confirmed against the LRU.
type BloomLRU struct {
	bloom *BloomFilter
	lru   *LRU[struct{}]

	bloomNegatives atomic.Int64
	lruChecks      atomic.Int64
	duplicates     atomic.Int64
}

// NewBloomLRU creates a deduplicator for about capacity keys kept for ttl.
func NewBloomLRU(capacity int, ttl time.Duration, falsePositiveRate float64) *BloomLRU {
	return &BloomLRU{
		bloom: NewBloomFilter(capacity, falsePositiveRate),
		lru:   NewLRU[struct{}](capacity, ttl),
	}
}

// IsDuplicate implements Deduplicator.
func (bl *BloomLRU) IsDuplicate(key string) bool {
	if !bl.bloom.Test(key) {
		bl.bloomNegatives.Add(1)
		bl.bloom.Add(key)
		bl.lru.Set(key, struct{}{})
		return false
	}

	bl.lruChecks.Add(1)
	if bl.lru.SetIfAbsent(key, struct{}{}) {
		bl.duplicates.Add(1)
		return true
	}
	return false
}

// Contains implements Deduplicator.
func (bl *BloomLRU) Contains(key string) bool {
	return bl.bloom.Test(key) && bl.lru.Contains(key)
}

// Forget implements Deduplicator. The filter bit stays set; the LRU is the
// authority for positives.
func (bl *BloomLRU) Forget(key string) {
	bl.lru.Remove(key)
}

// Len implements Deduplicator.
func (bl *BloomLRU) Len() int {
	return bl.lru.Len()
}

// Stats implements Deduplicator.
func (bl *BloomLRU) Stats() (bloomNegatives, lruChecks, duplicates int64) {
	return bl.bloomNegatives.Load(), bl.lruChecks.Load(), bl.duplicates.Load()
}

// ExactLRU is a deduplicator with zero false positives.
type ExactLRU struct {
	lru *LRU[struct{}]

	checks     atomic.Int64
	duplicates atomic.Int64
}

// NewExactLRU creates an exact deduplicator for capacity keys kept for ttl.
func NewExactLRU(capacity int, ttl time.Duration) *ExactLRU {
	return &ExactLRU{lru: NewLRU[struct{}](capacity, ttl)}
}

// IsDuplicate implements Deduplicator.
func (el *ExactLRU) IsDuplicate(key string) bool {
	el.checks.Add(1)
	if el.lru.SetIfAbsent(key, struct{}{}) {
		el.duplicates.Add(1)
		return true
	}
	return false
}

// Contains implements Deduplicator.
func (el *ExactLRU) Contains(key string) bool {
	return el.lru.Contains(key)
}

// Forget implements Deduplicator.
func (el *ExactLRU) Forget(key string) {
	el.lru.Remove(key)
}

// Len implements Deduplicator.
func (el *ExactLRU) Len() int {
	return el.lru.Len()
}

// Stats implements Deduplicator. bloomNegatives is always 0.
func (el *ExactLRU) Stats() (bloomNegatives, lruChecks, duplicates int64) {
	return 0, el.checks.Load(), el.duplicates.Load()
}
