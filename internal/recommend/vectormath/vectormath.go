// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package vectormath

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDimensionMismatch is returned when two vectors have different lengths.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrEmptyInput is returned when an operation receives no vectors.
	ErrEmptyInput = errors.New("empty input")

	// ErrZeroWeight is returned when weights sum to zero in absolute value.
	ErrZeroWeight = errors.New("weights sum to zero")

	// ErrNonFinite is returned when a vector contains NaN or Inf.
	ErrNonFinite = errors.New("vector contains non-finite value")
)

// epsilon below which a norm is treated as zero.
const epsilon = 1e-12

// Dot returns the dot product of a and b.
func Dot(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum, nil
}

// Norm returns the L2 norm of v.
func Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// IsZero reports whether v has (near) zero magnitude.
func IsZero(v []float64) bool {
	return Norm(v) < epsilon
}

// Cosine returns the cosine similarity of a and b in [-1, 1].
//
// If either vector is the zero vector the similarity is 0.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na < epsilon*epsilon || nb < epsilon*epsilon {
		return 0, nil
	}

	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// Guard against floating point drift outside [-1, 1]
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return sim, nil
}

// CosineDistance returns 1 - Cosine(a, b), in [0, 2].
func CosineDistance(a, b []float64) (float64, error) {
	sim, err := Cosine(a, b)
	if err != nil {
		return 0, err
	}
	return 1 - sim, nil
}

// WeightedAverage returns sum(w_i * v_i) / sum(|w_i|).
//
// A nil weights slice means uniform weights. Negative weights pull the
// average away from the corresponding vector. The denominator uses
// absolute weights so that a mix of positive and negative signals never
// flips the sign of the whole result.
func WeightedAverage(vectors [][]float64, weights []float64) ([]float64, error) {
	if len(vectors) == 0 {
		return nil, ErrEmptyInput
	}
	if weights != nil && len(weights) != len(vectors) {
		return nil, fmt.Errorf("%w: %d weights for %d vectors", ErrDimensionMismatch, len(weights), len(vectors))
	}

	dim := len(vectors[0])
	out := make([]float64, dim)
	var mass float64

	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		if w == 0 {
			continue
		}
		mass += math.Abs(w)
		for j, x := range v {
			out[j] += w * x
		}
	}

	if mass < epsilon {
		return nil, ErrZeroWeight
	}
	for j := range out {
		out[j] /= mass
	}
	return out, nil
}

// Normalize returns a unit-length copy of v. The zero vector is returned as
// a zero copy.
func Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	NormalizeInPlace(out)
	return out
}

// NormalizeInPlace scales v to unit length. Zero vectors are left unchanged.
func NormalizeInPlace(v []float64) {
	n := Norm(v)
	if n < epsilon {
		return
	}
	for i := range v {
		v[i] /= n
	}
}

// Add returns a + b.
func Add(a, b []float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out, nil
}

// Scale returns s * v.
func Scale(v []float64, s float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x * s
	}
	return out
}

// Lerp returns a + t*(b - a). t = 0 yields a, t = 1 yields b.
func Lerp(a, b []float64, t float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] + t*(b[i]-a[i])
	}
	return out, nil
}

// Validate checks that v has the expected dimension and only finite values.
// A dim of 0 skips the dimension check.
func Validate(v []float64, dim int) error {
	if dim > 0 && len(v) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dim)
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w at index %d", ErrNonFinite, i)
		}
	}
	return nil
}

// Clone returns a copy of v.
func Clone(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

// Clamp01 clamps x to [0, 1]. NaN maps to 0.
func Clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
