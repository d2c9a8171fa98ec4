// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package cache

import (
	"testing"
	"time"
)

func TestSlidingWindowCounter(t *testing.T) {
	clock := newFakeClock()
	sw := newSlidingWindowCounter(time.Minute, 6, clock.Now)

	sw.Increment(1)
	clock.Advance(15 * time.Second)
	sw.Increment(2)
	if got := sw.Count(); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}

	// The first bucket leaves the window after a full minute.
	clock.Advance(50 * time.Second)
	if got := sw.Count(); got != 2 {
		t.Errorf("Count() after 65s = %d, want 2", got)
	}

	clock.Advance(10 * time.Minute)
	if got := sw.Count(); got != 0 {
		t.Errorf("Count() after window = %d, want 0", got)
	}

	sw.Increment(5)
	sw.Reset()
	if got := sw.Count(); got != 0 {
		t.Errorf("Count() after Reset = %d, want 0", got)
	}
}

func TestRatioWindow(t *testing.T) {
	clock := newFakeClock()
	r := newRatioWindow(time.Minute, 6, clock.Now)

	if ratio, total := r.Ratio(); ratio != 0 || total != 0 {
		t.Errorf("Ratio() empty = %v, %d, want 0, 0", ratio, total)
	}

	r.Observe(true)
	r.Observe(false)
	r.Observe(false)
	r.Observe(true)
	if ratio, total := r.Ratio(); ratio != 0.5 || total != 4 {
		t.Errorf("Ratio() = %v, %d, want 0.5, 4", ratio, total)
	}

	clock.Advance(2 * time.Minute)
	if _, total := r.Ratio(); total != 0 {
		t.Errorf("total after window = %d, want 0", total)
	}
}
