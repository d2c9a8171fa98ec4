// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package evaluation

import (
	"math"

	"github.com/tomtom215/scentmatch/internal/recommend"
	"github.com/tomtom215/scentmatch/internal/recommend/reranking"
)

// PrecisionAtK is the share of the first k ranked items that are relevant.
// Lists shorter than k are judged on their own length.
func PrecisionAtK(ranked []string, relevant map[string]struct{}, k int) float64 {
	n := min(k, len(ranked))
	if n <= 0 {
		return 0
	}
	return float64(hits(ranked[:n], relevant)) / float64(n)
}

// RecallAtK is the share of relevant items found in the first k ranked items.
func RecallAtK(ranked []string, relevant map[string]struct{}, k int) float64 {
	n := min(k, len(ranked))
	if n <= 0 || len(relevant) == 0 {
		return 0
	}
	return float64(hits(ranked[:n], relevant)) / float64(len(relevant))
}

// NDCGAtK is the binary-gain NDCG of the first k ranked items.
func NDCGAtK(ranked []string, relevant map[string]struct{}, k int) float64 {
	n := min(k, len(ranked))
	if n <= 0 || len(relevant) == 0 {
		return 0
	}

	var dcg float64
	for i, id := range ranked[:n] {
		if _, ok := relevant[id]; ok {
			dcg += 1 / math.Log2(float64(i+2))
		}
	}

	var idcg float64
	for i := 0; i < min(k, len(relevant)); i++ {
		idcg += 1 / math.Log2(float64(i+2))
	}
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

// IntraListDiversity is the mean pairwise family dissimilarity of items.
// Lists with fewer than two items have diversity 0.
func IntraListDiversity(items []recommend.Item) float64 {
	if len(items) < 2 {
		return 0
	}
	var total float64
	pairs := 0
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			total += 1 - reranking.FamilySimilarity(items[i].Families, items[j].Families)
			pairs++
		}
	}
	return total / float64(pairs)
}

func hits(ranked []string, relevant map[string]struct{}) int {
	n := 0
	for _, id := range ranked {
		if _, ok := relevant[id]; ok {
			n++
		}
	}
	return n
}
