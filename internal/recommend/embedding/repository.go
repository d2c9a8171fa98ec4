// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package embedding

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/tomtom215/scentmatch/internal/recommend"
)

// ErrNotFound is returned by a Repository when no embedding is stored.
var ErrNotFound = errors.New("embedding not found")

// Repository persists user embeddings.
type Repository interface {
	Load(ctx context.Context, userID string) (*recommend.UserEmbedding, error)
	Save(ctx context.Context, emb *recommend.UserEmbedding) error
	List(ctx context.Context) ([]string, error)
}

// MemoryRepository is an in-process Repository.
type MemoryRepository struct {
	mu   sync.RWMutex
	data map[string]*recommend.UserEmbedding
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{data: make(map[string]*recommend.UserEmbedding)}
}

// Load implements Repository.
func (r *MemoryRepository) Load(_ context.Context, userID string) (*recommend.UserEmbedding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	emb, ok := r.data[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return emb.Clone(), nil
}

// Save implements Repository.
func (r *MemoryRepository) Save(_ context.Context, emb *recommend.UserEmbedding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[emb.UserID] = emb.Clone()
	return nil
}

// List implements Repository.
func (r *MemoryRepository) List(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.data))
	for id := range r.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

var _ Repository = (*MemoryRepository)(nil)
