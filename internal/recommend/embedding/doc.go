// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

// Package embedding owns per-user taste vectors.
//
// A user embedding is the weighted average of the embeddings of the items
// the user interacted with. Each interaction contributes
//
//	weight = signal_weight(event) * 0.5^(age / half_life)
//
// where signal_weight maps ratings 1..5 linearly onto 0.2..1.0 and uses a
// fixed table for implicit events. Dislikes carry a negative weight and pull
// the vector away from the disliked item.
//
// # Updates
//
// UpdateFromInteraction folds a single event into the cached vector in
// O(dimension) using an online weighted mean. Every RecomputeEvery updates
// (or on demand) the vector is recomputed from the full history so that
// floating point drift and late, out-of-order events are corrected.
//
// # Concurrency
//
// Users are spread over lock shards by FNV-1a hash. Each user has its own
// writer mutex and an atomically swapped snapshot pointer. Readers always
// load the snapshot and never wait on a writer: if a recompute is needed
// while a learner holds the user's lock, the last known snapshot is served.
// Snapshots are immutable once published.
package embedding
