// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/scentmatch/internal/metrics"
	"github.com/tomtom215/scentmatch/internal/middleware"
)

// rateLimitedEndpoint labels rate limit rejections; the route is not
// resolved yet when the limiter runs.
const rateLimitedEndpoint = "/api/v1"

func recordRateLimitHit() {
	metrics.APIRateLimitHits.WithLabelValues(rateLimitedEndpoint).Inc()
}

// NewRouter builds the chi router for h.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.AccessLog)
	r.Use(middleware.Metrics)
	r.Use(h.perfMon.Middleware)
	r.Use(corsHandler(&cfg)) // global so OPTIONS preflight is answered everywhere
	r.Use(maxBody(cfg.MaxBodyBytes))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		NewResponseWriter(w, req).NotFound("no route for " + req.Method + " " + req.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		NewResponseWriter(w, req).Error(http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
	})

	// ========================
	// Probes
	// ========================
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// ========================
	// API
	// ========================
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimit(&cfg))
		r.Use(middleware.Gzip)

		r.Post("/recommendations", h.PostRecommendations)
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/recommendations", h.GetRecommendations)
			r.Get("/items/{itemID}/explanation", h.ExplainRecommendation)
			r.Get("/state", h.LearnerState)
		})

		r.Post("/feedback", h.SubmitFeedback)
		r.Post("/feedback/batch", h.SubmitFeedbackBatch)

		r.Get("/quality", h.Quality)
		r.Get("/stats", h.Stats)
	})

	return r
}
