// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

/*
Package cache provides thread-safe in-memory data structures used by the
recommendation engine.

# Components

  - LRU: generic least-recently-used cache with per-entry TTL. The engine uses
    it as the L1 result cache and the dedupe layers use it for exact lookups.
  - BloomLRU / ExactLRU: event deduplication. A Bloom filter short-circuits
    unseen keys; the LRU confirms candidates and expires them after a TTL.
  - SlidingWindowCounter / RatioWindow: bucketed counts over a trailing
    window. The engine's degraded ratio, which gates readiness, is a
    RatioWindow.
  - TimeQueue: a keyed min-heap ordered by timestamp, used to bound and age
    out the quality evaluator's served-list log.

# Thread Safety

Every type is safe for concurrent use. Time is read through an injectable
clock so tests can advance it deterministically.

# Usage Example

	results := cache.NewLRU[*recommend.RecommendationResult](10000, 2*time.Minute)
	results.Set("u1|9f2c", res)
	if res, ok := results.Get("u1|9f2c"); ok {
	    // serve cached
	}
	results.RemoveIf(func(key string) bool { return strings.HasPrefix(key, "u1|") })
*/
package cache
