// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package api

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scentmatch/internal/middleware"
	"github.com/tomtom215/scentmatch/internal/recommend"
)

// Engine is the part of *recommend.Engine the handlers call.
type Engine interface {
	GenerateRecommendations(ctx context.Context, userID string, opts recommend.Options) (*recommend.RecommendationResult, error)
	SubmitFeedback(ctx context.Context, event recommend.InteractionEvent) (string, error)
	IngestBatch(ctx context.Context, events []recommend.InteractionEvent) ([]recommend.LearningResult, error)
	ExplainRecommendation(ctx context.Context, userID, itemID string, rc recommend.RequestContext) (*recommend.Explanation, error)
	EvaluateQuality(ctx context.Context, window time.Duration) (*recommend.QualityReport, error)
	LearnerState(userID string) recommend.LearnerState
	Stats() recommend.EngineStats
	Healthy(maxDegraded float64) bool
}

// HandlerConfig tunes the handlers.
type HandlerConfig struct {
	// MaxDegradedRatio is the degraded share above which /readyz fails.
	MaxDegradedRatio float64

	// MaxBatchSize caps POST /feedback/batch.
	MaxBatchSize int

	// ReadinessTimeout bounds each readiness check.
	ReadinessTimeout time.Duration

	// DefaultQualityWindow is used when /quality has no window parameter.
	DefaultQualityWindow time.Duration
}

// DefaultHandlerConfig returns production defaults.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		MaxDegradedRatio:     0.5,
		MaxBatchSize:         500,
		ReadinessTimeout:     2 * time.Second,
		DefaultQualityWindow: 24 * time.Hour,
	}
}

// ReadinessCheck probes one dependency; nil means ready.
type ReadinessCheck func(ctx context.Context) error

// Handler serves the API routes.
type Handler struct {
	engine    Engine
	cfg       HandlerConfig
	perfMon   *middleware.PerformanceMonitor
	startTime time.Time
	logger    zerolog.Logger

	draining atomic.Bool

	mu           sync.RWMutex
	checks       map[string]ReadinessCheck
	statsSources map[string]func() any
}

// NewHandler creates the API handler. Zero config fields take defaults.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewHandler(engine Engine, cfg HandlerConfig, logger zerolog.Logger) *Handler {
	def := DefaultHandlerConfig()
	if cfg.MaxDegradedRatio <= 0 {
		cfg.MaxDegradedRatio = def.MaxDegradedRatio
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.ReadinessTimeout <= 0 {
		cfg.ReadinessTimeout = def.ReadinessTimeout
	}
	if cfg.DefaultQualityWindow <= 0 {
		cfg.DefaultQualityWindow = def.DefaultQualityWindow
	}
	return &Handler{
		engine:       engine,
		cfg:          cfg,
		perfMon:      middleware.NewPerformanceMonitor(1000, middleware.DefaultSlowThreshold),
		startTime:    time.Now(),
		logger:       logger.With().Str("component", "api").Logger(),
		checks:       make(map[string]ReadinessCheck),
		statsSources: make(map[string]func() any),
	}
}

// AddReadinessCheck registers a dependency probe for /readyz, such as the
// shared cache ping or the feedback consumer subscription.
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// AddStatsSource adds a named section to /api/v1/stats.
func (h *Handler) AddStatsSource(name string, source func() any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statsSources[name] = source
}

// PerformanceMonitor returns the latency window the router feeds.
func (h *Handler) PerformanceMonitor() *middleware.PerformanceMonitor {
	return h.perfMon
}

// BeginDrain makes /readyz fail so load balancers stop routing here
// before the server shuts down. It cannot be undone.
func (h *Handler) BeginDrain() {
	if h.draining.CompareAndSwap(false, true) {
		h.logger.Info().Msg("readiness draining, new traffic should stop")
	}
}
