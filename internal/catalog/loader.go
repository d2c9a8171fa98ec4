// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tomtom215/scentmatch/internal/recommend"
	"github.com/tomtom215/scentmatch/internal/recommend/vectormath"
)

// Seed is the on-disk catalog format.
type Seed struct {
	Users []string   `yaml:"users"`
	Items []SeedItem `yaml:"items"`
}

// SeedItem is one fragrance in a seed file.
type SeedItem struct {
	ID            string    `yaml:"id"`
	Name          string    `yaml:"name"`
	Brand         string    `yaml:"brand"`
	Families      []string  `yaml:"families"`
	Notes         []string  `yaml:"notes"`
	Seasons       []string  `yaml:"seasons"`
	Occasions     []string  `yaml:"occasions"`
	Popularity    float64   `yaml:"popularity"`
	TrendScore    float64   `yaml:"trend_score"`
	RatingAverage float64   `yaml:"rating_average"`
	RatingCount   int       `yaml:"rating_count"`
	Embedding     []float64 `yaml:"embedding"`
	LaunchedAt    string    `yaml:"launched_at"`
}

// ParseSeed decodes a YAML seed document.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &seed, nil
}

// LoadFile reads a seed file.
func LoadFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseSeed(data)
}

// Build converts the seed into items, generating embeddings for items that
// have none. Every resulting embedding has gen.Dimension() entries.
func (s *Seed) Build(ctx context.Context, gen recommend.EmbeddingGenerator) ([]recommend.Item, error) {
	items := make([]recommend.Item, 0, len(s.Items))
	seen := make(map[string]struct{}, len(s.Items))

	for i := range s.Items {
		si := &s.Items[i]
		if strings.TrimSpace(si.ID) == "" {
			return nil, fmt.Errorf("item %d: missing id", i)
		}
		if _, dup := seen[si.ID]; dup {
			return nil, fmt.Errorf("item %s: duplicate id", si.ID)
		}
		seen[si.ID] = struct{}{}

		item := recommend.Item{
			ID:            si.ID,
			Name:          si.Name,
			Brand:         si.Brand,
			Families:      lower(si.Families),
			Notes:         lower(si.Notes),
			Seasons:       lower(si.Seasons),
			Occasions:     lower(si.Occasions),
			Popularity:    vectormath.Clamp01(si.Popularity),
			TrendScore:    vectormath.Clamp01(si.TrendScore),
			RatingAverage: si.RatingAverage,
			RatingCount:   si.RatingCount,
			Embedding:     si.Embedding,
		}
		if si.LaunchedAt != "" {
			t, err := time.Parse("2006-01-02", si.LaunchedAt)
			if err != nil {
				return nil, fmt.Errorf("item %s: launched_at: %w", si.ID, err)
			}
			item.LaunchedAt = t
		}

		if len(item.Embedding) == 0 {
			vec, err := gen.Embed(ctx, ItemInput(&item))
			if err != nil {
				return nil, fmt.Errorf("item %s: embed: %w", si.ID, err)
			}
			item.Embedding = vec
		}
		if err := vectormath.Validate(item.Embedding, gen.Dimension()); err != nil {
			return nil, fmt.Errorf("item %s: %w", si.ID, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func lower(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}
