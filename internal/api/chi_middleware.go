// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/scentmatch/internal/middleware"
)

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	// CORS. Empty origins disables cross-origin access.
	CORSAllowedOrigins []string
	CORSMaxAge         int // seconds

	// Per-client rate limit on /api/v1.
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64
}

// DefaultRouterConfig returns a closed-by-default configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CORSAllowedOrigins: []string{},
		CORSMaxAge:         86400,
		RateLimitRequests:  600,
		RateLimitWindow:    time.Minute,
		MaxBodyBytes:       1 << 20,
	}
}

// corsHandler builds the go-chi/cors middleware. go-chi/cors treats an
// empty origin list as "*", so no origins means no CORS middleware at all.
func corsHandler(cfg *RouterConfig) func(http.Handler) http.Handler {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader, headerResultPath, headerCache},
		AllowCredentials: false,
		MaxAge:           cfg.CORSMaxAge,
	})
}

// rateLimit returns a per-IP limiter, or a no-op when disabled.
func rateLimit(cfg *RouterConfig) func(http.Handler) http.Handler {
	if cfg.RateLimitDisabled || cfg.RateLimitRequests <= 0 || cfg.RateLimitWindow <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return httprate.Limit(
		cfg.RateLimitRequests,
		cfg.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			recordRateLimitHit()
			NewResponseWriter(w, r).Error(http.StatusTooManyRequests, ErrCodeTooManyRequests, "rate limit exceeded")
		}),
	)
}

// maxBody caps request bodies; oversized reads fail with *http.MaxBytesError.
func maxBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
