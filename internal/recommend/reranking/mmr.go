// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package reranking

import (
	"context"
	"sort"
	"strings"

	"github.com/tomtom215/scentmatch/internal/recommend"
	"github.com/tomtom215/scentmatch/internal/recommend/vectormath"
)

// maxRerankSize limits slice allocations to prevent excessive memory usage.
// k is also bounded by len(pool).
const maxRerankSize = 10000

// familyGuardMinPage is the smallest page the family guard applies to.
const familyGuardMinPage = 4

// familyGuardMinPool is the number of families the pool must offer before
// the guard applies.
const familyGuardMinPool = 3

// MMR implements Maximal Marginal Relevance reranking.
// It balances relevance and diversity by iteratively selecting items
// that are both relevant and dissimilar to already selected items.
//
// The MMR formula is:
//
//	MMR = argmax[lambda * score(i) - (1-lambda) * max(sim(i, s)) for s in selected]
//
// Where:
//   - lambda: balance parameter (1.0 = pure relevance, 0.0 = pure diversity)
//   - score(i): combined score of candidate i
//   - sim(i, s): embedding cosine between i and s, or family Jaccard when
//     either embedding is missing
//
// Candidates at or above the relevance floor are never displaced: they are
// placed first, in relevance order, before any diversity trade-off.
//
// Reference:
// Carbonell, J., & Goldstein, J. (1998). "The Use of MMR, Diversity-Based
// Reranking for Reordering Documents and Producing Summaries." SIGIR 1998.
type MMR struct {
	// Lambda balances relevance vs. diversity (0.0 to 1.0)
	lambda float64

	// floor protects candidates with a combined score at or above it.
	floor float64

	// minFamilies is the family coverage guarantee for larger pages.
	minFamilies int
}

// NewMMR creates a new MMR reranker.
func NewMMR(lambda, floor float64, minFamilies int) *MMR {
	return &MMR{
		lambda:      vectormath.Clamp01(lambda),
		floor:       floor,
		minFamilies: minFamilies,
	}
}

// Name returns the reranker identifier.
func (m *MMR) Name() string {
	return "mmr"
}

// Rerank returns min(k, len(pool)) candidates. The input is not modified.
func (m *MMR) Rerank(ctx context.Context, pool []recommend.ScoredCandidate, k int) []recommend.ScoredCandidate {
	if len(pool) == 0 || k <= 0 {
		return nil
	}

	// Bound k to prevent excessive memory allocation
	k = min(k, maxRerankSize, len(pool))

	items := byRelevance(pool)
	selected := make([]int, 0, k)
	taken := make([]bool, len(items))

	// Protected candidates go first, in relevance order.
	protected := 0
	for i := range items {
		if len(selected) == k || items[i].CombinedScore < m.floor {
			break
		}
		selected = append(selected, i)
		taken[i] = true
		protected++
	}

	if m.lambda >= 1.0 {
		for i := range items {
			if len(selected) == k {
				break
			}
			if !taken[i] {
				selected = append(selected, i)
				taken[i] = true
			}
		}
	} else {
		sims := newSimilarityCache(items)
		for len(selected) < k {
			if ctx.Err() != nil {
				break
			}
			bestIdx := -1
			bestMMR := 0.0
			for i := range items {
				if taken[i] {
					continue
				}
				maxSim := 0.0
				for _, j := range selected {
					if sim := sims.get(i, j); sim > maxSim {
						maxSim = sim
					}
				}
				mmrScore := m.lambda*items[i].CombinedScore - (1-m.lambda)*maxSim
				if bestIdx < 0 || mmrScore > bestMMR {
					bestMMR = mmrScore
					bestIdx = i
				}
			}
			if bestIdx < 0 {
				break
			}
			selected = append(selected, bestIdx)
			taken[bestIdx] = true
		}
		// A canceled context still yields a full page, filled by relevance.
		for i := range items {
			if len(selected) == k {
				break
			}
			if !taken[i] {
				selected = append(selected, i)
				taken[i] = true
			}
		}
	}

	m.guardFamilies(items, selected, taken, protected)

	out := make([]recommend.ScoredCandidate, len(selected))
	for i, idx := range selected {
		out[i] = items[idx]
	}
	return out
}

// guardFamilies swaps unprotected picks for candidates of unseen families
// until the page covers minFamilies, when page and pool are large enough.
func (m *MMR) guardFamilies(items []recommend.ScoredCandidate, selected []int, taken []bool, protected int) {
	if m.minFamilies < 2 || len(selected) < familyGuardMinPage {
		return
	}
	if len(distinctFamilies(items)) < familyGuardMinPool {
		return
	}

	for {
		counts := make(map[string]int)
		for _, idx := range selected {
			counts[items[idx].Item.PrimaryFamily()]++
		}
		if len(counts) >= m.minFamilies {
			return
		}

		// Best unselected candidate from a family not on the page.
		in := -1
		for i := range items {
			if !taken[i] && counts[items[i].Item.PrimaryFamily()] == 0 {
				in = i
				break
			}
		}
		// Lowest-ranked unprotected pick whose family repeats.
		out := -1
		for p := len(selected) - 1; p >= protected; p-- {
			if counts[items[selected[p]].Item.PrimaryFamily()] > 1 {
				out = p
				break
			}
		}
		if in < 0 || out < 0 {
			return
		}
		taken[selected[out]] = false
		taken[in] = true
		selected[out] = in
	}
}

// byRelevance returns a copy of pool sorted by combined score, then ID.
func byRelevance(pool []recommend.ScoredCandidate) []recommend.ScoredCandidate {
	items := make([]recommend.ScoredCandidate, len(pool))
	copy(items, pool)
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CombinedScore != items[j].CombinedScore {
			return items[i].CombinedScore > items[j].CombinedScore
		}
		return items[i].ItemID < items[j].ItemID
	})
	return items
}

// distinctFamilies returns the primary families present in items.
func distinctFamilies(items []recommend.ScoredCandidate) map[string]struct{} {
	set := make(map[string]struct{})
	for i := range items {
		set[items[i].Item.PrimaryFamily()] = struct{}{}
	}
	return set
}

// similarityCache computes pairwise similarities on demand.
type similarityCache struct {
	items []recommend.ScoredCandidate
	sims  map[[2]int]float64
}

func newSimilarityCache(items []recommend.ScoredCandidate) *similarityCache {
	return &similarityCache{items: items, sims: make(map[[2]int]float64)}
}

func (c *similarityCache) get(i, j int) float64 {
	if i > j {
		i, j = j, i
	}
	key := [2]int{i, j}
	if sim, ok := c.sims[key]; ok {
		return sim
	}
	sim := ItemSimilarity(&c.items[i].Item, &c.items[j].Item)
	c.sims[key] = sim
	return sim
}

// ItemSimilarity is the embedding cosine of a and b, falling back to family
// Jaccard similarity when either embedding is missing or they disagree in
// dimension.
func ItemSimilarity(a, b *recommend.Item) float64 {
	if len(a.Embedding) > 0 && len(a.Embedding) == len(b.Embedding) {
		if sim, err := vectormath.Cosine(a.Embedding, b.Embedding); err == nil {
			return sim
		}
	}
	return FamilySimilarity(a.Families, b.Families)
}

// FamilySimilarity is the case-insensitive Jaccard similarity of two family
// lists. Two empty lists have similarity 0.
func FamilySimilarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(a))
	for _, g := range a {
		setA[strings.ToLower(g)] = struct{}{}
	}

	setB := make(map[string]struct{}, len(b))
	for _, g := range b {
		setB[strings.ToLower(g)] = struct{}{}
	}

	intersection := 0
	for g := range setA {
		if _, ok := setB[g]; ok {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}
