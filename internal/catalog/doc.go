// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

// Package catalog provides in-process implementations of the catalog-side
// capabilities the recommendation engine consumes:
//
//   - Catalog: a read-mostly fragrance store implementing CatalogLookup
//   - HashingEmbedder: a deterministic EmbeddingGenerator based on feature hashing
//   - Directory: a UserDirectory backed by a known-user set
//
// Catalogs are seeded from a YAML file (see LoadFile). Items without an
// embedding get one from the configured EmbeddingGenerator at load time.
//
// # Seed File Format
//
//	users: [u1, u2]
//	items:
//	  - id: f1
//	    name: Terre
//	    brand: Hermes
//	    families: [woody, citrus]
//	    notes: [grapefruit, vetiver]
//	    seasons: [spring, summer]
//	    occasions: [office]
//	    popularity: 0.8
//	    trend_score: 0.4
//	    rating_average: 4.4
//	    rating_count: 1200
//	    launched_at: 2006-01-01
package catalog
