// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

// Package reranking turns a scored candidate pool into the page a user sees.
//
// Reranking is applied after hybrid scoring:
//
//	Retrieval -> Hybrid Scoring -> Ranker -> Page + Sections
//	(content)    (relevance)       (diversity, calibration)
//
// # Ranker
//
// Ranker implements recommend.Ranker and combines the pieces below:
//
//   - Rank: MMR page of min(page size, pool) candidates
//   - RankCalibrated: calibration pre-selection followed by MMR
//   - Sections: perfect_matches, trending, adventurous and seasonal, each an
//     independent pass over the full pool
//   - ColdStart: a deterministic popularity list spread round-robin over
//     primary families
//
// # MMR Algorithm
//
// Maximal Marginal Relevance iteratively selects items that are both
// relevant and dissimilar to already-selected items:
//
//	MMR = argmax[lambda * score(i) - (1-lambda) * max_similarity(i, selected)]
//
// Similarity is the embedding cosine, or family Jaccard when an embedding is
// missing. Two guarantees sit on top of the greedy loop:
//
//   - Candidates with a combined score at or above the relevance floor are
//     selected first and never displaced for diversity.
//   - A page of four or more items drawn from a pool with at least three
//     primary families covers at least MinFamilies families, swapping out
//     the lowest-ranked unprotected duplicate when needed.
//
// Lambda Guidelines:
//   - 0.9-1.0: Mostly relevance, minimal diversity
//   - 0.7-0.9: Balanced (0.7 is the default)
//   - 0.0-0.5: Diversity-focused (may sacrifice relevance)
//
// # Calibration Algorithm
//
// Calibration makes the family distribution of the page follow the user's
// history:
//
//	target_dist = user family distribution from positive interactions
//	actual_dist = family distribution of the page so far
//	score       = lambda * relevance + (1-lambda) * (1 - min(KL(target, actual), 1))
//
// # Performance
//
// MMR Complexity:
//   - Time: O(k * n * k) similarity lookups, each computed once and cached
//   - Space: O(n * k) cached similarities
//
// # Thread Safety
//
// All rerankers are stateless and safe for concurrent use.
package reranking
