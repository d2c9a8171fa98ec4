// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

// Package scoring fuses content, collaborative and contextual signals into
// one combined score per retrieved candidate.
//
// # Hybrid Score
//
//	combined = w_content*content + w_collab*collaborative + w_context*contextual
//
// Content similarity in [-1, 1] is mapped to [0, 1] by (s+1)/2. All three
// sub-scores and the combined score are clamped to [0, 1]. Identical inputs
// and weights always produce identical scores and the same order.
//
// # Collaborative Signal
//
// UserKNN is the bundled recommend.CollaborativeSignal. It keeps a sparse
// vector of positive interactions per user, finds the K most similar users
// by shrunk cosine similarity and scores an item by how much neighbour
// similarity mass liked it. It also implements recommend.FeedbackObserver
// so the learner keeps it current.
//
// # Context
//
// The contextual score matches item season and occasion tags against the
// request context. Requests without a season use the season of the request
// clock (northern hemisphere).
package scoring
