// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package embedding

import (
	"math"
	"time"
)

// Decay returns the exponential decay factor 0.5^(age/halfLife).
// Events in the future (negative age) are not boosted and return 1.
func Decay(age, halfLife time.Duration) float64 {
	if age <= 0 || halfLife <= 0 {
		return 1
	}
	return math.Exp(-math.Ln2 * float64(age) / float64(halfLife))
}

// WeeklyFactor returns the per-week decay factor for halfLife.
// A 90 day half-life yields roughly 0.947.
func WeeklyFactor(halfLife time.Duration) float64 {
	return Decay(7*24*time.Hour, halfLife)
}

// Confidence maps an effective (decayed) interaction count to [0, 1).
// It is 0 for no interactions, 0.5 at halfPoint and approaches 1.
func Confidence(effectiveCount, halfPoint float64) float64 {
	if effectiveCount <= 0 {
		return 0
	}
	if halfPoint <= 0 {
		halfPoint = 1
	}
	return effectiveCount / (effectiveCount + halfPoint)
}
