// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scentmatch/internal/recommend/learner"
)

// Task is one unit of periodic work.
type Task func(ctx context.Context) error

// PeriodicConfig configures a PeriodicService.
type PeriodicConfig struct {
	// RunOnStart runs the task once before the first tick.
	RunOnStart bool

	// Interval between runs. Defaults to one hour.
	Interval time.Duration

	// Timeout bounds one run. Zero means no bound beyond ctx.
	Timeout time.Duration
}

// PeriodicService runs a task on a ticker under suture. A failed run is
// logged and retried on the next tick; it never crashes the service.
type PeriodicService struct {
	name   string
	task   Task
	config PeriodicConfig
	logger zerolog.Logger
}

// NewPeriodicService wraps task.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewPeriodicService(name string, task Task, cfg PeriodicConfig, logger zerolog.Logger) *PeriodicService {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &PeriodicService{
		name:   name,
		task:   task,
		config: cfg,
		logger: logger.With().Str("service", name).Logger(),
	}
}

// Serve implements suture.Service.
func (s *PeriodicService) Serve(ctx context.Context) error {
	s.logger.Info().
		Bool("run_on_start", s.config.RunOnStart).
		Dur("interval", s.config.Interval).
		Msg("periodic service starting")

	if s.config.RunOnStart {
		s.run(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *PeriodicService) run(ctx context.Context) {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	if err := s.task(ctx); err != nil {
		if ctx.Err() != nil && s.config.Timeout == 0 {
			return
		}
		s.logger.Warn().Err(err).Dur("duration", time.Since(start)).Msg("periodic run failed")
		return
	}
	s.logger.Debug().Dur("duration", time.Since(start)).Msg("periodic run complete")
}

// String implements fmt.Stringer for suture.
func (s *PeriodicService) String() string {
	return s.name
}

// Sweeper recomputes stale user embeddings. *learner.Learner implements it.
type Sweeper interface {
	Sweep(ctx context.Context) (learner.SweepReport, error)
}

// NewSweepService runs the preference sweep every interval.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewSweepService(sweeper Sweeper, interval time.Duration, logger zerolog.Logger) *PeriodicService {
	task := func(ctx context.Context) error {
		_, err := sweeper.Sweep(ctx)
		return err
	}
	return NewPeriodicService("preference-sweep", task, PeriodicConfig{Interval: interval}, logger)
}

// PopularityRefresher rebuilds the popularity fallback list.
// *recommend.Engine implements it.
type PopularityRefresher interface {
	RefreshPopular(ctx context.Context) (int, error)
}

// NewPopularityService refreshes the popularity list on start and every
// interval afterwards.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewPopularityService(refresher PopularityRefresher, interval time.Duration, logger zerolog.Logger) *PeriodicService {
	task := func(ctx context.Context) error {
		_, err := refresher.RefreshPopular(ctx)
		return err
	}
	cfg := PeriodicConfig{RunOnStart: true, Interval: interval, Timeout: 30 * time.Second}
	return NewPeriodicService("popularity-refresh", task, cfg, logger)
}
