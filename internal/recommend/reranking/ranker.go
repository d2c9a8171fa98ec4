// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package reranking

import (
	"context"
	"sort"

	"github.com/tomtom215/scentmatch/internal/recommend"
	"github.com/tomtom215/scentmatch/internal/recommend/vectormath"
)

// Ranker implements recommend.Ranker: the MMR page, themed sections and the
// cold-start list, with optional family calibration.
type Ranker struct {
	cfg         recommend.DiversityConfig
	mmr         *MMR
	calibration *Calibration
}

// NewRanker creates a ranker from diversity configuration.
//
//nolint:gocritic // hugeParam: config passed by value for immutability
func NewRanker(cfg recommend.DiversityConfig) *Ranker {
	return &Ranker{
		cfg:         cfg,
		mmr:         NewMMR(cfg.MMRLambda, cfg.RelevanceFloor, cfg.MinFamilies),
		calibration: NewCalibration(cfg.CalibrationLambda),
	}
}

// Rank returns the MMR page.
func (r *Ranker) Rank(ctx context.Context, pool []recommend.ScoredCandidate, pageSize int) []recommend.ScoredCandidate {
	return r.mmr.Rerank(ctx, pool, pageSize)
}

// RankCalibrated narrows the pool to twice the page size by family
// calibration against target, then applies MMR. Without calibration
// enabled or a target it is Rank.
func (r *Ranker) RankCalibrated(ctx context.Context, pool []recommend.ScoredCandidate, pageSize int, target map[string]float64) []recommend.ScoredCandidate {
	if !r.cfg.CalibrationEnabled || len(target) == 0 || pageSize <= 0 {
		return r.Rank(ctx, pool, pageSize)
	}
	narrowed := r.calibration.Rerank(ctx, pool, 2*pageSize, target, r.cfg.RelevanceFloor)
	return r.mmr.Rerank(ctx, narrowed, pageSize)
}

// Sections buckets the pool by independent passes. Every section key is
// present; a section may be empty.
func (r *Ranker) Sections(_ context.Context, pool []recommend.ScoredCandidate, size int) map[recommend.SectionName][]recommend.ScoredCandidate {
	if size <= 0 {
		size = r.cfg.SectionSize
	}
	sections := make(map[recommend.SectionName][]recommend.ScoredCandidate, len(recommend.AllSections))

	sections[recommend.SectionPerfectMatches] = pick(pool, size,
		func(c *recommend.ScoredCandidate) bool { return c.CombinedScore >= r.cfg.PerfectMatchThreshold },
		func(c *recommend.ScoredCandidate) float64 { return c.CombinedScore })

	sections[recommend.SectionTrending] = pick(pool, size,
		func(c *recommend.ScoredCandidate) bool { return c.Item.TrendScore > 0 },
		func(c *recommend.ScoredCandidate) float64 { return c.Item.TrendScore })

	sections[recommend.SectionAdventurous] = pick(pool, size,
		func(c *recommend.ScoredCandidate) bool {
			return c.ContentScore < r.cfg.AdventurousMaxContent && c.CollaborativeScore > 0
		},
		func(c *recommend.ScoredCandidate) float64 { return c.CollaborativeScore })

	sections[recommend.SectionSeasonal] = pick(pool, size,
		func(c *recommend.ScoredCandidate) bool { return c.ContextualScore >= r.cfg.SeasonalMinContextual },
		func(c *recommend.ScoredCandidate) float64 { return c.ContextualScore })

	return sections
}

// pick filters pool and returns up to size candidates sorted by key, then
// combined score, then ID.
func pick(pool []recommend.ScoredCandidate, size int, keep func(*recommend.ScoredCandidate) bool, key func(*recommend.ScoredCandidate) float64) []recommend.ScoredCandidate {
	matched := make([]recommend.ScoredCandidate, 0)
	for i := range pool {
		if keep(&pool[i]) {
			matched = append(matched, pool[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		ki, kj := key(&matched[i]), key(&matched[j])
		if ki != kj {
			return ki > kj
		}
		if matched[i].CombinedScore != matched[j].CombinedScore {
			return matched[i].CombinedScore > matched[j].CombinedScore
		}
		return matched[i].ItemID < matched[j].ItemID
	})
	if len(matched) > size {
		matched = matched[:size]
	}
	return matched
}

// ColdStart returns up to n popular items spread round-robin over primary
// families. Families are visited in the order of their most popular item.
// The result is empty only when items is.
func (r *Ranker) ColdStart(items []recommend.Item, n int) []recommend.ScoredCandidate {
	if len(items) == 0 || n <= 0 {
		return nil
	}

	ranked := make([]recommend.Item, len(items))
	copy(ranked, items)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := &ranked[i], &ranked[j]
		if a.Popularity != b.Popularity {
			return a.Popularity > b.Popularity
		}
		if a.RatingAverage != b.RatingAverage {
			return a.RatingAverage > b.RatingAverage
		}
		return a.ID < b.ID
	})

	var order []string
	byFamily := make(map[string][]recommend.Item)
	for i := range ranked {
		fam := ranked[i].PrimaryFamily()
		if _, ok := byFamily[fam]; !ok {
			order = append(order, fam)
		}
		byFamily[fam] = append(byFamily[fam], ranked[i])
	}

	n = min(n, len(ranked))
	out := make([]recommend.ScoredCandidate, 0, n)
	for round := 0; len(out) < n; round++ {
		for _, fam := range order {
			if len(out) == n {
				break
			}
			if round < len(byFamily[fam]) {
				out = append(out, popularityCandidate(&byFamily[fam][round]))
			}
		}
	}
	return out
}

func popularityCandidate(item *recommend.Item) recommend.ScoredCandidate {
	return recommend.ScoredCandidate{
		ItemID:        item.ID,
		Item:          *item,
		CombinedScore: vectormath.Clamp01(item.Popularity),
	}
}

var _ recommend.Ranker = (*Ranker)(nil)
