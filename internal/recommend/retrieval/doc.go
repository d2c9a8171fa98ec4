// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

/*
Package retrieval fetches nearest-neighbour candidates for a user vector.

Retriever wraps any recommend.ANNIndex with:

  - a per-query deadline (QueryTimeout), enforced even when the index
    ignores its context
  - a sony/gobreaker circuit breaker; an open breaker maps to
    recommend.ErrIndexUnavailable
  - hard filters (excluded ids, families, seasons, brands, minimum rating
    and an optional CEL expression) applied before the k-limit, with
    overfetching until k items pass or the index is exhausted

Results are ordered by raw content similarity, ties broken by item ID.

MemoryIndex is a brute-force cosine index over catalog embeddings. It is
exact and deterministic, which makes it the default for small catalogs and
for tests.

CEL expressions see a single variable, item, with the fields id, name,
brand, families, notes, seasons, occasions, popularity, trend_score,
rating_average, rating_count and launched_year:

	item.popularity > 0.5 && "woody" in item.families
*/
package retrieval
