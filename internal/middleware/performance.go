// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package middleware

import (
	"net/http"
	"sort"
	"sync"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tomtom215/scentmatch/internal/logging"
)

// DefaultSlowThreshold is the latency above which a request is logged as
// slow. It matches the recommendation latency target.
const DefaultSlowThreshold = 100 * time.Millisecond

// RequestSample is one observed request.
type RequestSample struct {
	Route     string
	Method    string
	Duration  time.Duration
	Status    int
	Timestamp time.Time
}

// EndpointStats aggregates the samples of one route. Durations are in
// milliseconds.
type EndpointStats struct {
	Endpoint     string  `json:"endpoint"`
	RequestCount int64   `json:"request_count"`
	ErrorCount   int64   `json:"error_count"`
	AvgMS        float64 `json:"avg_ms"`
	P50MS        float64 `json:"p50_ms"`
	P95MS        float64 `json:"p95_ms"`
	P99MS        float64 `json:"p99_ms"`
	MaxMS        float64 `json:"max_ms"`
}

// PerformanceMonitor keeps the most recent requests in a ring buffer and
// computes per-route percentiles on demand.
type PerformanceMonitor struct {
	mu            sync.RWMutex
	samples       []RequestSample
	next          int
	full          bool
	slowThreshold time.Duration
}

// NewPerformanceMonitor keeps the last window requests. slowThreshold <= 0
// uses DefaultSlowThreshold.
func NewPerformanceMonitor(window int, slowThreshold time.Duration) *PerformanceMonitor {
	if window < 1 {
		window = 1000
	}
	if slowThreshold <= 0 {
		slowThreshold = DefaultSlowThreshold
	}
	return &PerformanceMonitor{
		samples:       make([]RequestSample, window),
		slowThreshold: slowThreshold,
	}
}

// Record adds a sample, overwriting the oldest once the window is full.
func (pm *PerformanceMonitor) Record(sample RequestSample) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.samples[pm.next] = sample
	pm.next++
	if pm.next == len(pm.samples) {
		pm.next = 0
		pm.full = true
	}
}

// Len returns the number of samples held.
func (pm *PerformanceMonitor) Len() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	if pm.full {
		return len(pm.samples)
	}
	return pm.next
}

// Stats returns per-route statistics, busiest route first.
func (pm *PerformanceMonitor) Stats() []EndpointStats {
	pm.mu.RLock()
	n := pm.next
	if pm.full {
		n = len(pm.samples)
	}
	byEndpoint := make(map[string][]time.Duration)
	errorsByEndpoint := make(map[string]int64)
	for i := 0; i < n; i++ {
		s := pm.samples[i]
		key := s.Method + " " + s.Route
		byEndpoint[key] = append(byEndpoint[key], s.Duration)
		if s.Status >= http.StatusInternalServerError {
			errorsByEndpoint[key]++
		}
	}
	pm.mu.RUnlock()

	stats := make([]EndpointStats, 0, len(byEndpoint))
	for endpoint, durations := range byEndpoint {
		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
		var sum time.Duration
		for _, d := range durations {
			sum += d
		}
		stats = append(stats, EndpointStats{
			Endpoint:     endpoint,
			RequestCount: int64(len(durations)),
			ErrorCount:   errorsByEndpoint[endpoint],
			AvgMS:        ms(sum / time.Duration(len(durations))),
			P50MS:        ms(percentile(durations, 0.50)),
			P95MS:        ms(percentile(durations, 0.95)),
			P99MS:        ms(percentile(durations, 0.99)),
			MaxMS:        ms(durations[len(durations)-1]),
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].RequestCount != stats[j].RequestCount {
			return stats[i].RequestCount > stats[j].RequestCount
		}
		return stats[i].Endpoint < stats[j].Endpoint
	})
	return stats
}

// Middleware records every request and logs the slow ones.
func (pm *PerformanceMonitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		duration := time.Since(start)

		route := RoutePattern(r)
		pm.Record(RequestSample{
			Route:     route,
			Method:    r.Method,
			Duration:  duration,
			Status:    status(ww),
			Timestamp: start,
		})

		if duration > pm.slowThreshold {
			logging.Ctx(r.Context()).Warn().
				Str("method", r.Method).
				Str("route", route).
				Dur("duration", duration).
				Dur("threshold", pm.slowThreshold).
				Msg("slow request")
		}
	})
}

// percentile uses the nearest-rank method on sorted durations.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[int(float64(len(sorted)-1)*p)]
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
