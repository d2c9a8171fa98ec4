// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package reranking

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/tomtom215/scentmatch/internal/recommend"
	"github.com/tomtom215/scentmatch/internal/recommend/vectormath"
)

// Calibration implements calibrated recommendations over olfactive families.
// Reference: "Calibrated Recommendations" (Steck, 2018)
//
// Calibration makes the family distribution of a page follow the user's
// historical taste, so a user who wears 70% woody and 30% citrus is not
// served a page of woody scents only.
//
// The objective function balances relevance and calibration:
// score(S) = lambda * relevance(S) + (1-lambda) * (1 - KL(p || q))
//
// where p is the target distribution and q is the distribution of the page.
type Calibration struct {
	// lambda balances relevance and calibration (0=pure calibration, 1=pure relevance).
	lambda float64
}

// NewCalibration creates a new calibration reranker.
func NewCalibration(lambda float64) *Calibration {
	return &Calibration{lambda: vectormath.Clamp01(lambda)}
}

// Name returns the reranker identifier.
func (c *Calibration) Name() string {
	return "calibration"
}

// Rerank greedily selects min(k, len(pool)) candidates so that the page's
// family distribution tracks target. Candidates at or above floor are kept
// first. With an empty target the pool order is kept.
func (c *Calibration) Rerank(ctx context.Context, pool []recommend.ScoredCandidate, k int, target map[string]float64, floor float64) []recommend.ScoredCandidate {
	if len(pool) == 0 || k <= 0 {
		return nil
	}

	// Bound k to prevent excessive memory allocation
	k = min(k, maxRerankSize, len(pool))

	remaining := byRelevance(pool)
	if len(target) == 0 {
		return remaining[:k]
	}

	result := make([]recommend.ScoredCandidate, 0, k)
	for len(remaining) > 0 && len(result) < k && remaining[0].CombinedScore >= floor {
		result = append(result, remaining[0])
		remaining = remaining[1:]
	}

	// Greedy selection
	for len(result) < k && len(remaining) > 0 {
		if ctx.Err() != nil {
			result = append(result, remaining[:k-len(result)]...)
			break
		}

		bestIdx := -1
		bestScore := math.Inf(-1)

		for i := range remaining {
			// Compute score if we add this item
			dist := computeDistribution(result, &remaining[i])
			calibScore := 1.0 - math.Min(klDivergence(target, dist), 1.0)

			// Combined score: lambda * relevance + (1-lambda) * calibration
			combinedScore := c.lambda*remaining[i].CombinedScore + (1-c.lambda)*calibScore

			if combinedScore > bestScore {
				bestScore = combinedScore
				bestIdx = i
			}
		}

		result = append(result, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return result
}

// computeDistribution computes the family distribution of page plus extra.
func computeDistribution(page []recommend.ScoredCandidate, extra *recommend.ScoredCandidate) map[string]float64 {
	dist := make(map[string]float64)
	add := func(item *recommend.Item) {
		if len(item.Families) == 0 {
			return
		}
		share := 1 / float64(len(item.Families))
		for _, fam := range item.Families {
			dist[strings.ToLower(fam)] += share
		}
	}
	for i := range page {
		add(&page[i].Item)
	}
	if extra != nil {
		add(&extra.Item)
	}
	normalizeDistribution(dist)
	return dist
}

// klDivergence computes KL divergence from p to q. Keys are visited in
// sorted order so equal inputs give bit-identical sums.
func klDivergence(p, q map[string]float64) float64 {
	var kl float64
	epsilon := 1e-10 // Smoothing to avoid log(0)

	keys := make([]string, 0, len(p))
	for key := range p {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		pVal := p[key]
		qVal := q[key]
		if qVal <= 0 {
			qVal = epsilon
		}
		if pVal > 0 {
			kl += pVal * math.Log(pVal/qVal)
		}
	}

	return kl
}

// normalizeDistribution normalizes a distribution to sum to 1.
func normalizeDistribution(dist map[string]float64) {
	keys := make([]string, 0, len(dist))
	for k := range dist {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var total float64
	for _, k := range keys {
		total += dist[k]
	}

	if total > 0 {
		for k := range dist {
			dist[k] /= total
		}
	}
}
