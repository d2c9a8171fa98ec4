// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package catalog

import (
	"context"
	"strings"
	"sync"

	"github.com/tomtom215/scentmatch/internal/recommend"
)

// Directory is an in-memory UserDirectory.
//
// With open registration any well-formed id is accepted. Accepted ids are
// not stored: Exists runs on every read path and callers choose the ids.
type Directory struct {
	mu    sync.RWMutex
	users map[string]struct{}
	open  bool
}

// NewDirectory creates a directory of known users.
func NewDirectory(open bool, users ...string) *Directory {
	d := &Directory{users: make(map[string]struct{}, len(users)), open: open}
	for _, u := range users {
		d.users[u] = struct{}{}
	}
	return d
}

// Register adds users.
func (d *Directory) Register(users ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range users {
		d.users[u] = struct{}{}
	}
}

// Exists implements recommend.UserDirectory.
func (d *Directory) Exists(_ context.Context, userID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, nil
	}
	if d.open {
		return true, nil
	}
	d.mu.RLock()
	_, ok := d.users[userID]
	d.mu.RUnlock()
	return ok, nil
}

// Len returns the number of known users.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

var _ recommend.UserDirectory = (*Directory)(nil)
