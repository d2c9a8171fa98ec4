// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package cache

import (
	"sync"
	"time"
)

// SlidingWindowCounter counts events over a trailing window split into buckets.
//
// Increment is O(1); Count is O(buckets).
type SlidingWindowCounter struct {
	mu         sync.Mutex
	buckets    []int64
	bucketSize time.Duration
	current    int
	bucketTime time.Time // start of the current bucket
	now        func() time.Time
}

// NewSlidingWindowCounter creates a counter over window split into numBuckets.
func NewSlidingWindowCounter(window time.Duration, numBuckets int) *SlidingWindowCounter {
	return newSlidingWindowCounter(window, numBuckets, time.Now)
}

func newSlidingWindowCounter(window time.Duration, numBuckets int, now func() time.Time) *SlidingWindowCounter {
	if numBuckets <= 0 {
		numBuckets = 10
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	bucketSize := window / time.Duration(numBuckets)
	if bucketSize <= 0 {
		bucketSize = time.Nanosecond
	}
	return &SlidingWindowCounter{
		buckets:    make([]int64, numBuckets),
		bucketSize: bucketSize,
		bucketTime: now().Truncate(bucketSize),
		now:        now,
	}
}

// Increment adds delta to the current bucket.
func (sw *SlidingWindowCounter) Increment(delta int64) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.advance()
	sw.buckets[sw.current] += delta
}

// Count returns the sum over the window.
func (sw *SlidingWindowCounter) Count() int64 {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.advance()

	var total int64
	for _, c := range sw.buckets {
		total += c
	}
	return total
}

// Reset clears all buckets.
func (sw *SlidingWindowCounter) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	for i := range sw.buckets {
		sw.buckets[i] = 0
	}
	sw.current = 0
	sw.bucketTime = sw.now().Truncate(sw.bucketSize)
}

// advance rotates out buckets that fell outside the window. Caller holds sw.mu.
func (sw *SlidingWindowCounter) advance() {
	elapsed := int(sw.now().Sub(sw.bucketTime) / sw.bucketSize)
	if elapsed <= 0 {
		return
	}
	if elapsed >= len(sw.buckets) {
		for i := range sw.buckets {
			sw.buckets[i] = 0
		}
		sw.current = 0
	} else {
		for i := 0; i < elapsed; i++ {
			sw.current = (sw.current + 1) % len(sw.buckets)
			sw.buckets[sw.current] = 0
		}
	}
	// Keep bucket boundaries aligned so partial buckets are not lost.
	sw.bucketTime = sw.bucketTime.Add(time.Duration(elapsed) * sw.bucketSize)
}

// RatioWindow tracks the share of positive observations over a trailing window.
type RatioWindow struct {
	hits  *SlidingWindowCounter
	total *SlidingWindowCounter
}

// NewRatioWindow creates a ratio tracker over window split into numBuckets.
func NewRatioWindow(window time.Duration, numBuckets int) *RatioWindow {
	return newRatioWindow(window, numBuckets, time.Now)
}

func newRatioWindow(window time.Duration, numBuckets int, now func() time.Time) *RatioWindow {
	return &RatioWindow{
		hits:  newSlidingWindowCounter(window, numBuckets, now),
		total: newSlidingWindowCounter(window, numBuckets, now),
	}
}

// Observe records one observation.
func (r *RatioWindow) Observe(hit bool) {
	r.total.Increment(1)
	if hit {
		r.hits.Increment(1)
	}
}

// Ratio returns hits/total over the window and the total. The ratio is 0
// when nothing was observed.
func (r *RatioWindow) Ratio() (ratio float64, total int64) {
	total = r.total.Count()
	if total == 0 {
		return 0, 0
	}
	return float64(r.hits.Count()) / float64(total), total
}
