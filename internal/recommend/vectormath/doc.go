// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

// Package vectormath provides the dense vector primitives used by the
// recommendation engine: cosine similarity, weighted averaging and basic
// arithmetic over []float64 embeddings.
//
// All functions are pure and safe for concurrent use. Inputs are never
// mutated unless the function name says so (NormalizeInPlace).
//
// # Zero Vectors
//
// A zero vector has no direction. Cosine returns 0 for it rather than NaN,
// so callers can treat "no signal" as neutral similarity.
//
// # Dimensions
//
// Functions that combine two vectors return ErrDimensionMismatch when the
// lengths differ. Embedding dimensions are fixed per deployment (for example
// 1536), and a mismatch always indicates a data or wiring error.
package vectormath
