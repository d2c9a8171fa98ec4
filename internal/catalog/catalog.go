// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tomtom215/scentmatch/internal/recommend"
)

// Catalog is an in-memory fragrance catalog. It is safe for concurrent use.
type Catalog struct {
	mu    sync.RWMutex
	items map[string]recommend.Item
	order []string // sorted ids, rebuilt on write
}

// New creates a catalog holding items.
func New(items ...recommend.Item) *Catalog {
	c := &Catalog{items: make(map[string]recommend.Item, len(items))}
	for i := range items {
		c.items[items[i].ID] = items[i]
	}
	c.rebuildOrder()
	return c
}

// Upsert adds or replaces items.
func (c *Catalog) Upsert(items ...recommend.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range items {
		c.items[items[i].ID] = items[i]
	}
	c.rebuildOrder()
}

// Remove deletes an item. It reports whether the item existed.
func (c *Catalog) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; !ok {
		return false
	}
	delete(c.items, id)
	c.rebuildOrder()
	return true
}

// UpdateMetadata refreshes popularity and rating fields of an existing item.
func (c *Catalog) UpdateMetadata(id string, popularity, trend, ratingAvg float64, ratingCount int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[id]
	if !ok {
		return fmt.Errorf("item %s: %w", id, recommend.ErrUnknownItem)
	}
	item.Popularity = popularity
	item.TrendScore = trend
	item.RatingAverage = ratingAvg
	item.RatingCount = ratingCount
	c.items[id] = item
	return nil
}

// GetItem implements recommend.CatalogLookup.
func (c *Catalog) GetItem(ctx context.Context, id string) (recommend.Item, error) {
	if err := ctx.Err(); err != nil {
		return recommend.Item{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	if !ok {
		return recommend.Item{}, fmt.Errorf("item %s: %w", id, recommend.ErrUnknownItem)
	}
	return item, nil
}

// SearchByFilters implements recommend.CatalogLookup. Results are ordered by ID.
// The CEL expression, if any, is not evaluated here.
//
//nolint:gocritic // hugeParam: Filters passed by value for immutability
func (c *Catalog) SearchByFilters(ctx context.Context, filters recommend.Filters) ([]recommend.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]recommend.Item, 0, len(c.order))
	for _, id := range c.order {
		item := c.items[id]
		if filters.Match(&item) {
			out = append(out, item)
		}
	}
	return out, nil
}

// All returns every item ordered by ID.
func (c *Catalog) All() []recommend.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]recommend.Item, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

// Len returns the number of items.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Families returns the distinct primary families, sorted.
func (c *Catalog) Families() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, item := range c.items {
		seen[item.PrimaryFamily()] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (c *Catalog) rebuildOrder() {
	c.order = c.order[:0]
	for id := range c.items {
		c.order = append(c.order, id)
	}
	sort.Strings(c.order)
}

var _ recommend.CatalogLookup = (*Catalog)(nil)
