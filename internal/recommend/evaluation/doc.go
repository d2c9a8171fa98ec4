// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

// Package evaluation measures ranking quality from served lists and the
// interactions that follow them.
//
// The Evaluator keeps a bounded log of served recommendation lists. Every
// positive interaction (a rating of 4 or more, a collection add or a sample
// request) is attached to the lists previously served to the same user.
// Evaluate then reports, over a time window:
//
//   - PrecisionAtK: share of the top K that received a positive interaction
//   - RecallAtK: share of the user's positively engaged items found in the top K
//   - NDCG: binary-gain normalized discounted cumulative gain at K
//   - Diversity: mean pairwise family dissimilarity of each list
//   - Freshness: share of listed items that were new to the user or launched
//     within the freshness horizon
//
// Recall and NDCG average over lists with at least one positive interaction;
// the other metrics average over all lists. Reports are broken down per
// experiment variant for A/B comparison.
//
// The metric functions are exported for offline use against held-out data.
package evaluation
