// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

/*
Package middleware provides the HTTP middleware shared by the API router.

Every middleware has the chi signature func(http.Handler) http.Handler.

Key Components:

  - RequestID: accepts or generates X-Request-ID and stores it in the
    logging context so every log line of the request carries it
  - AccessLog: one structured zerolog line per request
  - Metrics: Prometheus request counters and latency histograms, labelled
    by chi route pattern to keep cardinality bounded
  - PerformanceMonitor: a sliding window of recent latencies with
    per-route percentiles, served by /api/v1/stats
  - Gzip: response compression for clients sending Accept-Encoding: gzip

Typical stack, outermost first:

	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog)
	r.Use(middleware.Metrics)
	r.Use(perfMon.Middleware)
	r.Use(middleware.Gzip)

Metrics and the performance monitor read the route pattern after the
handler ran, so they must be mounted on a chi router.
*/
package middleware
