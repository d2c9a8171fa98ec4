// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

// Package resultcache provides the shared second-level cache for
// recommendation results, backed by Redis.
//
// The engine keeps its own in-process LRU in front of this cache. Redis
// lets several server replicas share results and invalidations: when a
// user sends feedback, every replica stops serving that user's old
// results.
//
// Keys:
//
//	<prefix>:result:<user>|<hash>   JSON RecommendationResult, TTL bound
//	<prefix>:user:<user>            set of the user's result keys
//
// Redis is never on the critical path. Each call has a short timeout and
// runs through a circuit breaker; failures count as misses.
package resultcache
