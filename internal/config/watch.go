// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package config

import (
	"fmt"
	"sync"

	"github.com/knadh/koanf/providers/file"
	"github.com/rs/zerolog"

	"github.com/tomtom215/scentmatch/internal/logging"
	"github.com/tomtom215/scentmatch/internal/recommend"
)

// EngineConfigurer is the part of the engine the reloader drives.
// *recommend.Engine implements it.
type EngineConfigurer interface {
	Config() *recommend.Config
	UpdateConfig(cfg *recommend.Config) error
}

// Reloader applies weight and experiment changes from the config file to
// a running engine, plus the log level. Every other change needs a
// restart and is ignored.
type Reloader struct {
	path     string
	engine   EngineConfigurer
	provider *file.File
	logger   zerolog.Logger

	mu      sync.Mutex
	reloads int
}

// NewReloader watches path on behalf of engine.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewReloader(path string, engine EngineConfigurer, logger zerolog.Logger) *Reloader {
	return &Reloader{
		path:   path,
		engine: engine,
		logger: logger.With().Str("component", "config-reloader").Logger(),
	}
}

// Start begins watching. The file must exist.
func (r *Reloader) Start() error {
	r.provider = file.Provider(r.path)
	err := r.provider.Watch(func(_ interface{}, err error) {
		if err != nil {
			r.logger.Warn().Err(err).Msg("config watch error")
			return
		}
		if err := r.Reload(); err != nil {
			r.logger.Error().Err(err).Msg("config reload rejected, keeping current weights")
		}
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", r.path, err)
	}
	r.logger.Info().Str("path", r.path).Msg("watching config for weight changes")
	return nil
}

// Reload re-reads the file and swaps in its weights and experiments. The
// engine keeps its current config if the file no longer validates.
func (r *Reloader) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	loaded, err := LoadFrom(r.path)
	if err != nil {
		return err
	}

	next := r.engine.Config()
	next.Weights = loaded.Recommend.Weights
	next.Experiments = loaded.Recommend.Experiments
	if err := r.engine.UpdateConfig(next); err != nil {
		return err
	}
	if logging.SetLevel(loaded.Logging.Level) {
		r.logger.Info().Str("level", loaded.Logging.Level).Msg("log level changed")
	}
	r.reloads++
	r.logger.Info().Strs("experiments", next.ExperimentNames()).Int("reloads", r.reloads).Msg("weights reloaded")
	return nil
}

// Reloads returns how many reloads succeeded.
func (r *Reloader) Reloads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reloads
}

// Stop ends the watch.
func (r *Reloader) Stop() error {
	if r.provider == nil {
		return nil
	}
	return r.provider.Unwatch()
}
