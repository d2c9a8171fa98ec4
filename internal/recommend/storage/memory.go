// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/scentmatch/internal/recommend"
)

// MemoryInteractionStore is an in-process interaction log.
type MemoryInteractionStore struct {
	mu     sync.RWMutex
	seen   map[string]struct{}
	byUser map[string][]recommend.InteractionEvent
}

// NewMemoryInteractionStore creates an empty store.
func NewMemoryInteractionStore() *MemoryInteractionStore {
	return &MemoryInteractionStore{
		seen:   make(map[string]struct{}),
		byUser: make(map[string][]recommend.InteractionEvent),
	}
}

// Append implements recommend.InteractionStore.
//
//nolint:gocritic // hugeParam: events are values in the store API
func (s *MemoryInteractionStore) Append(_ context.Context, event recommend.InteractionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(event)
}

// AppendBatch implements recommend.BatchAppender.
func (s *MemoryInteractionStore) AppendBatch(_ context.Context, events []recommend.InteractionEvent) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	duplicates := make(map[string]bool)
	for i := range events {
		if _, ok := s.seen[events[i].ID]; ok {
			duplicates[events[i].ID] = true
			continue
		}
		if err := s.appendLocked(events[i]); err != nil {
			return duplicates, err
		}
	}
	return duplicates, nil
}

//nolint:gocritic // hugeParam: see Append
func (s *MemoryInteractionStore) appendLocked(event recommend.InteractionEvent) error {
	if _, ok := s.seen[event.ID]; ok {
		return fmt.Errorf("append %s: %w", event.ID, recommend.ErrDuplicateEvent)
	}
	s.seen[event.ID] = struct{}{}

	list := s.byUser[event.UserID]
	idx := sort.Search(len(list), func(i int) bool {
		return eventLess(&event, &list[i])
	})
	list = append(list, recommend.InteractionEvent{})
	copy(list[idx+1:], list[idx:])
	list[idx] = event
	s.byUser[event.UserID] = list
	return nil
}

// History implements recommend.InteractionStore.
func (s *MemoryInteractionStore) History(_ context.Context, userID string, since time.Time) ([]recommend.InteractionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.byUser[userID]
	start := 0
	if !since.IsZero() {
		start = sort.Search(len(list), func(i int) bool {
			return !list[i].Timestamp.Before(since)
		})
	}
	out := make([]recommend.InteractionEvent, len(list)-start)
	copy(out, list[start:])
	return out, nil
}

// Users implements recommend.UserLister.
func (s *MemoryInteractionStore) Users(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.byUser))
	for id := range s.byUser {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Len returns the total number of stored events.
func (s *MemoryInteractionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}

// eventLess orders events by timestamp, then ID.
func eventLess(a, b *recommend.InteractionEvent) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ID < b.ID
}

var (
	_ recommend.InteractionStore = (*MemoryInteractionStore)(nil)
	_ recommend.BatchAppender    = (*MemoryInteractionStore)(nil)
	_ recommend.UserLister       = (*MemoryInteractionStore)(nil)
)
