// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package learner

import (
	"github.com/tomtom215/scentmatch/internal/recommend/vectormath"
)

// shortWindow is a fixed-capacity ring of the most recent item vectors
// and their signal weights. Not safe for concurrent use; the owning
// userState lock guards it.
type shortWindow struct {
	vectors [][]float64
	weights []float64
	next    int
	size    int
}

func newShortWindow(capacity int) *shortWindow {
	return &shortWindow{
		vectors: make([][]float64, capacity),
		weights: make([]float64, capacity),
	}
}

// push adds a sample, overwriting the oldest one when full.
func (w *shortWindow) push(vec []float64, weight float64) {
	if weight == 0 || len(vec) == 0 {
		return
	}
	w.vectors[w.next] = vec
	w.weights[w.next] = weight
	w.next = (w.next + 1) % len(w.vectors)
	if w.size < len(w.vectors) {
		w.size++
	}
}

func (w *shortWindow) len() int { return w.size }

func (w *shortWindow) reset() {
	for i := range w.vectors {
		w.vectors[i] = nil
		w.weights[i] = 0
	}
	w.next = 0
	w.size = 0
}

// samples returns the filled slots, oldest first.
func (w *shortWindow) samples() (vectors [][]float64, weights []float64) {
	vectors = make([][]float64, 0, w.size)
	weights = make([]float64, 0, w.size)
	start := (w.next - w.size + len(w.vectors)) % len(w.vectors)
	for i := 0; i < w.size; i++ {
		j := (start + i) % len(w.vectors)
		vectors = append(vectors, w.vectors[j])
		weights = append(weights, w.weights[j])
	}
	return vectors, weights
}

// shift describes a detected divergence between short- and long-run taste.
type shift struct {
	shortRun   []float64
	distance   float64
	confidence float64
	samples    int
}

// detect compares the short-run vector with longRun. It reports a shift
// when the window holds at least minSamples and the cosine distance is at
// or above threshold.
func (w *shortWindow) detect(longRun []float64, threshold float64, minSamples int) (shift, bool) {
	if w.size < minSamples || len(longRun) == 0 {
		return shift{}, false
	}
	vectors, weights := w.samples()
	shortRun, err := vectormath.WeightedAverage(vectors, weights)
	if err != nil || vectormath.IsZero(shortRun) || vectormath.IsZero(longRun) {
		return shift{}, false
	}
	dist, err := vectormath.CosineDistance(longRun, shortRun)
	if err != nil || dist < threshold {
		return shift{}, false
	}
	return shift{
		shortRun:   shortRun,
		distance:   dist,
		confidence: ShiftConfidence(dist, threshold, w.size, len(w.vectors)),
		samples:    w.size,
	}, true
}

// ShiftConfidence scores a detected shift in [0, 1]. It grows with how far
// the distance exceeds the threshold and with how full the window is.
func ShiftConfidence(distance, threshold float64, samples, window int) float64 {
	if window < 1 {
		return 0
	}
	fill := float64(samples) / float64(window)
	excess := 1.0
	if span := 1 - threshold; span > 0 {
		excess = (distance - threshold) / span
	}
	return vectormath.Clamp01(min(1, excess*fill+0.5*fill))
}
