// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the recommendation service:
// - API endpoint latency and throughput
// - Recommendation pipeline latency, fallbacks and cache efficiency
// - Preference learning and shift detection
// - Candidate retrieval and circuit breakers
// - Feedback bus throughput
// - Ranking quality per experiment variant

var (
	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Recommendation Pipeline Metrics
	RecommendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommend_duration_seconds",
			Help:    "End-to-end recommendation latency in seconds",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5},
		},
		[]string{"path"}, // personalized, cold_start, degraded, cache
	)

	RecommendStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommend_stage_duration_seconds",
			Help:    "Per-stage recommendation latency in seconds",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
		[]string{"stage"}, // embedding, retrieval, scoring, ranking, explain
	)

	RecommendFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommend_fallbacks_total",
			Help: "Total number of degraded or cold-start responses",
		},
		[]string{"reason"},
	)

	RecommendCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommend_candidates",
			Help:    "Number of scored candidates per request",
			Buckets: []float64{0, 10, 25, 50, 100, 200, 500, 1000},
		},
	)

	RecommendExperiment = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommend_experiment_requests_total",
			Help: "Recommendation requests per experiment weight set",
		},
		[]string{"experiment"},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_invalidations_total",
			Help: "Total number of cache entries invalidated by feedback",
		},
		[]string{"cache"},
	)

	// Learning Metrics
	LearningEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learning_events_total",
			Help: "Total number of ingested feedback events",
		},
		[]string{"type", "outcome"}, // outcome: updated, duplicate, skipped, error
	)

	LearningShifts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "learning_preference_shifts_total",
			Help: "Total number of detected preference shifts",
		},
	)

	LearningStateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learning_state_transitions_total",
			Help: "Total number of learner state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	LearningBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "learning_batch_size",
			Help:    "Number of events per batch ingestion",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000},
		},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "learning_sweep_duration_seconds",
			Help:    "Duration of background re-embedding sweeps",
			Buckets: prometheus.DefBuckets,
		},
	)

	SweepUsers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learning_sweep_users_total",
			Help: "Users visited by background sweeps",
		},
		[]string{"result"}, // recomputed, shift, error
	)

	// Retrieval Metrics
	RetrievalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retrieval_query_duration_seconds",
			Help:    "Nearest-neighbour index query latency in seconds",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
		},
	)

	RetrievalErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrieval_errors_total",
			Help: "Total number of index query failures",
		},
		[]string{"reason"}, // timeout, unavailable, breaker_open
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Feedback Bus Metrics
	FeedbackPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_messages_published_total",
			Help: "Total number of feedback messages published",
		},
		[]string{"result"},
	)

	FeedbackConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_messages_consumed_total",
			Help: "Total number of feedback messages consumed",
		},
		[]string{"result"}, // processed, duplicate, poison, retry
	)

	FeedbackProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feedback_processing_duration_seconds",
			Help:    "Time to ingest one feedback message",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	// Quality Metrics
	RecommendQuality = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recommend_quality",
			Help: "Latest ranking quality by experiment variant",
		},
		[]string{"variant", "metric"}, // precision_at_k, recall_at_k, ndcg, diversity, freshness
	)

	RecommendQualitySessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recommend_quality_sessions",
			Help: "Served lists in the latest quality window by experiment variant",
		},
		[]string{"variant"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	CatalogItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_items",
			Help: "Number of fragrances in the catalog",
		},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordRecommendation records one recommendation response.
func RecordRecommendation(path, experiment string, candidates int, duration time.Duration) {
	RecommendDuration.WithLabelValues(path).Observe(duration.Seconds())
	RecommendCandidates.Observe(float64(candidates))
	if experiment != "" {
		RecommendExperiment.WithLabelValues(experiment).Inc()
	}
}

// RecordStage records the latency of one pipeline stage.
func RecordStage(stage string, duration time.Duration) {
	RecommendStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordFallback records a degraded or cold-start response.
func RecordFallback(reason string) {
	RecommendFallbacks.WithLabelValues(reason).Inc()
}

// RecordCacheLookup records a cache hit or miss.
func RecordCacheLookup(cache string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cache).Inc()
	} else {
		CacheMisses.WithLabelValues(cache).Inc()
	}
}

// RecordCacheInvalidation records invalidated entries.
func RecordCacheInvalidation(cache string, n int) {
	if n > 0 {
		CacheInvalidations.WithLabelValues(cache).Add(float64(n))
	}
}

// RecordLearningEvent records the outcome of one ingested event.
func RecordLearningEvent(eventType, outcome string) {
	LearningEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordStateTransition records a learner state change. No-op when unchanged.
func RecordStateTransition(from, to string) {
	if from == to {
		return
	}
	LearningStateTransitions.WithLabelValues(from, to).Inc()
}

// RecordShift records a detected preference shift.
func RecordShift() {
	LearningShifts.Inc()
}

// RecordSweep records a finished sweep.
func RecordSweep(duration time.Duration, recomputed, shifts, errors int) {
	SweepDuration.Observe(duration.Seconds())
	SweepUsers.WithLabelValues("recomputed").Add(float64(recomputed))
	SweepUsers.WithLabelValues("shift").Add(float64(shifts))
	SweepUsers.WithLabelValues("error").Add(float64(errors))
}

// RecordRetrieval records an index query and its failure reason, if any.
func RecordRetrieval(duration time.Duration, failureReason string) {
	RetrievalDuration.Observe(duration.Seconds())
	if failureReason != "" {
		RetrievalErrors.WithLabelValues(failureReason).Inc()
	}
}

// RecordBreakerTransition records a circuit breaker state change. States
// use gobreaker's names and are encoded 0=closed, 1=half-open, 2=open.
func RecordBreakerTransition(name, from, to string) {
	CircuitBreakerState.WithLabelValues(name).Set(BreakerStateCode(to))
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}

// BreakerStateCode encodes a breaker state name for the state gauge.
func BreakerStateCode(state string) float64 {
	switch state {
	case "closed":
		return 0
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return -1
	}
}

// RecordFeedbackPublish records a publish attempt.
func RecordFeedbackPublish(err error) {
	if err != nil {
		FeedbackPublished.WithLabelValues("error").Inc()
		return
	}
	FeedbackPublished.WithLabelValues("ok").Inc()
}

// RecordFeedbackConsumed records a consumed message.
func RecordFeedbackConsumed(result string, duration time.Duration) {
	FeedbackConsumed.WithLabelValues(result).Inc()
	FeedbackProcessingDuration.Observe(duration.Seconds())
}

// RecordQuality publishes one variant's quality report values.
func RecordQuality(variant string, sessions int, values map[string]float64) {
	RecommendQualitySessions.WithLabelValues(variant).Set(float64(sessions))
	for metric, v := range values {
		RecommendQuality.WithLabelValues(variant, metric).Set(v)
	}
}
