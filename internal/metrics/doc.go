// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

/*
Package metrics provides Prometheus metrics collection and export for observability.

Metrics are registered on the default registry at init time through promauto
and exposed at /metrics in Prometheus text format:

	curl http://localhost:8080/metrics

# Available Metrics

API Metrics:
  - api_requests_total (method, endpoint, status_code)
  - api_request_duration_seconds (method, endpoint)
  - api_active_requests
  - api_rate_limit_hits_total (endpoint)

Recommendation Metrics:
  - recommend_duration_seconds (path: personalized, cold_start, degraded, cache)
  - recommend_stage_duration_seconds (stage)
  - recommend_fallbacks_total (reason)
  - recommend_candidates
  - recommend_experiment_requests_total (experiment)

Cache Metrics:
  - cache_hits_total, cache_misses_total, cache_invalidations_total (cache: l1, redis)

Learning Metrics:
  - learning_events_total (type, outcome)
  - learning_preference_shifts_total
  - learning_state_transitions_total (from_state, to_state)
  - learning_batch_size
  - learning_sweep_duration_seconds, learning_sweep_users_total (result)

Retrieval Metrics:
  - retrieval_query_duration_seconds
  - retrieval_errors_total (reason)
  - circuit_breaker_state, circuit_breaker_state_transitions_total

Feedback Bus Metrics:
  - feedback_messages_published_total (result)
  - feedback_messages_consumed_total (result)
  - feedback_processing_duration_seconds

# Usage

	start := time.Now()
	res, err := engine.GenerateRecommendations(ctx, userID, opts)
	metrics.RecordRecommendation("personalized", res.Metadata.Experiment,
	    res.Metadata.TotalCandidates, time.Since(start))
*/
package metrics
