// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

// Package explain turns a hybrid score breakdown into a human-facing
// explanation.
//
// Each explanation carries one factor per scoring signal. A factor's weight
// is its share of the weighted contribution to the combined score:
//
//	contribution(s) = weight(s) * score(s)
//	factor.Weight   = contribution(s) / sum(contributions)
//
// so factor weights always sum to 1. When no signal contributes, weights
// are split uniformly. Cold-start candidates, which carry no personal
// signal, are explained by a single popularity factor.
//
// Overall confidence is the user's embedding confidence multiplied by the
// combined score. Below the exploration threshold the explanation is
// flagged and worded as a suggestion to explore, never as a confident
// match.
package explain
