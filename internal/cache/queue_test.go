// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package cache

import (
	"testing"
	"time"
)

func TestTimeQueue_EvictsOldest(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := NewTimeQueue[int](2)

	if ev := q.Push("b", 2, base.Add(2*time.Second)); ev != nil {
		t.Fatalf("Push(b) evicted %v", ev.Key)
	}
	if ev := q.Push("a", 1, base.Add(time.Second)); ev != nil {
		t.Fatalf("Push(a) evicted %v", ev.Key)
	}
	ev := q.Push("c", 3, base.Add(3*time.Second))
	if ev == nil || ev.Key != "a" {
		t.Fatalf("Push(c) evicted %v, want a", ev)
	}
	if _, ok := q.Get("a"); ok {
		t.Error("a should be gone")
	}
	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}
}

func TestTimeQueue_UpdateAndRange(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := NewTimeQueue[[]string](0)
	q.Push("s1", nil, base)
	q.Push("s2", nil, base.Add(time.Hour))

	if !q.Update("s1", func(v *[]string) { *v = append(*v, "x") }) {
		t.Fatal("Update(s1) = false")
	}
	if q.Update("missing", func(*[]string) {}) {
		t.Error("Update(missing) = true")
	}
	e, _ := q.Get("s1")
	if len(e.Value) != 1 {
		t.Errorf("s1 value = %v, want [x]", e.Value)
	}

	var seen []string
	q.Range(base.Add(time.Minute), func(e *QueueEntry[[]string]) bool {
		seen = append(seen, e.Key)
		return true
	})
	if len(seen) != 1 || seen[0] != "s2" {
		t.Errorf("Range() = %v, want [s2]", seen)
	}

	popped := q.PopBefore(base.Add(time.Minute))
	if len(popped) != 1 || popped[0].Key != "s1" {
		t.Errorf("PopBefore() = %v, want [s1]", popped)
	}

	// Re-pushing an existing key updates it in place.
	q.Push("s2", []string{"y"}, base)
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}
}
