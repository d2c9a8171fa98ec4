// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

/*
Package api exposes the recommendation engine over HTTP/JSON.

Routes:

	GET  /healthz                                          liveness
	GET  /readyz                                           readiness (degraded ratio + dependency checks)
	GET  /metrics                                          Prometheus exposition

	POST /api/v1/recommendations                           recommendations, options in the body
	GET  /api/v1/users/{userID}/recommendations            recommendations, options in the query
	GET  /api/v1/users/{userID}/items/{itemID}/explanation explain one item
	GET  /api/v1/users/{userID}/state                      learner state
	POST /api/v1/feedback                                  submit one event (202)
	POST /api/v1/feedback/batch                            ingest a batch synchronously
	GET  /api/v1/quality?window=24h                        ranking quality report
	GET  /api/v1/stats                                     engine counters and endpoint latency

Every /api/v1 response uses the APIResponse envelope:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "...", "duration_ms": 3}}
	{"success": false, "error": {"code": "UNKNOWN_ITEM", "message": "..."}, "meta": {...}}

Error codes come from recommend.CodeOf, so clients see the same
classification the engine logs. Degraded and cold-start results are
successes; the result metadata says which path served them.

Query parameters for GET recommendations:

	limit, explain, season, occasion, experiment, skip_cache,
	family, exclude_family, brand, exclude (comma separated),
	min_rating, filter (a CEL expression over item)

Middleware, outermost first: request id, real ip, recoverer, access log,
Prometheus metrics, latency monitor, CORS, body size limit, then a
per-client rate limit and gzip on /api/v1.
*/
package api
