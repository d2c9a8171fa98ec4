// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scentmatch/internal/api"
	"github.com/tomtom215/scentmatch/internal/config"
	"github.com/tomtom215/scentmatch/internal/logging"
	"github.com/tomtom215/scentmatch/internal/recommend"
	"github.com/tomtom215/scentmatch/internal/resultcache"
	"github.com/tomtom215/scentmatch/internal/supervisor"
	"github.com/tomtom215/scentmatch/internal/supervisor/services"
)

// snapshotSaveTimeout bounds the final embedding snapshot on shutdown.
const snapshotSaveTimeout = 30 * time.Second

var (
	_ api.Engine              = (*recommend.Engine)(nil)
	_ config.EngineConfigurer = (*recommend.Engine)(nil)
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(cfg.Logging)
	logger := logging.Logger()

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("storage", cfg.Storage.Backend).
		Str("feedback_transport", cfg.Feedback.Transport).
		Bool("shared_cache", cfg.Cache.Enabled).
		Str("catalog", cfg.Catalog.SeedFile).
		Msg("Starting Scentmatch with supervisor tree")

	if err := run(cfg, logger); err != nil {
		logging.Fatal().Err(err).Msg("Scentmatch stopped with an error")
	}
	logging.Info().Msg("Application stopped gracefully")
}

// run wires every component, serves until SIGINT or SIGTERM and tears
// everything down in reverse order.
//
//nolint:gocritic,gocyclo // hugeParam: logger by value; sequential setup steps
func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(cfg.Server.CORSOrigins) == 1 && cfg.Server.CORSOrigins[0] == "*" {
		logging.Warn().Msg("CORS allows every origin (CORS_ORIGINS=*); set explicit origins in production")
	}
	if cfg.Server.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (server.rate_limit_disabled=true)")
	}

	// === CATALOG AND STORAGE ===
	cat, dir, err := loadCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	logging.Info().Int("items", cat.Len()).Int("seeded_users", dir.Len()).Msg("Catalog loaded")

	store, err := initStorage(ctx, &cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer func() {
		saveCtx, saveCancel := context.WithTimeout(context.Background(), snapshotSaveTimeout)
		defer saveCancel()
		if err := store.SaveSnapshot(saveCtx); err != nil {
			logging.Error().Err(err).Msg("Final embedding snapshot failed")
		}
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing storage")
		}
	}()

	// === SHARED RESULT CACHE (optional) ===
	var (
		cache      recommend.ResultCache
		redisCache *resultcache.Redis
	)
	if cfg.Cache.Enabled {
		redisCache = resultcache.New(cfg.Cache.Redis, logger)
		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisCache.Ping(pingCtx); err != nil {
			logging.Warn().Err(err).Str("addr", cfg.Cache.Redis.Addr).Msg("Redis unreachable, results are cached in process only until it recovers")
		} else {
			logging.Info().Str("addr", cfg.Cache.Redis.Addr).Msg("Redis result cache connected")
		}
		pingCancel()
		cache = redisCache
		defer func() {
			if err := redisCache.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing redis client")
			}
		}()
	}

	// === FEEDBACK BUS (optional) ===
	fb, err := initFeedback(ctx, cfg.Feedback, logger)
	if err != nil {
		return err
	}
	var publisher recommend.FeedbackPublisher
	if fb != nil {
		publisher = fb.Publisher
		defer func() {
			if err := fb.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing feedback bus")
			}
		}()
	}

	// === ENGINE ===
	ec, err := initEngine(ctx, cfg, cat, dir, store, cache, publisher, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := ec.Engine.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing engine")
		}
	}()

	// === SUPERVISOR TREE ===
	tree := supervisor.NewTree(logging.NewSlogLogger(logger), cfg.Supervisor)

	// Learning layer
	tree.AddLearningService(services.NewSweepService(ec.Learner, cfg.Recommend.Learner.SweepInterval, logger))
	tree.AddLearningService(services.NewPopularityService(ec.Engine, cfg.Catalog.RefreshInterval, logger))
	if store.Snapshots != nil {
		tree.AddLearningService(services.NewPeriodicService("embedding-snapshot", store.SaveSnapshot,
			services.PeriodicConfig{Interval: cfg.Storage.SnapshotInterval, Timeout: snapshotSaveTimeout}, logger))
	}

	// Messaging layer
	if fb != nil {
		tree.AddMessagingService(fb.AttachConsumer(ec.Engine))
		logging.Info().Str("transport", fb.Bus.Transport()).Msg("Feedback consumer added to supervisor tree")
	}

	// === HTTP API ===
	handler := api.NewHandler(ec.Engine, api.HandlerConfig{MaxDegradedRatio: cfg.Server.MaxDegradedRatio}, logger)
	for name, source := range ec.componentStats() {
		handler.AddStatsSource(name, source)
	}
	if fb != nil {
		handler.AddReadinessCheck("feedback_consumer", fb.Ready)
		handler.AddStatsSource("feedback_consumer", func() any { return fb.Consumer.Stats() })
	}
	if redisCache != nil {
		handler.AddReadinessCheck("redis", redisCache.Ping)
		handler.AddStatsSource("redis", func() any { return map[string]string{"breaker": redisCache.BreakerState()} })
	}

	router := api.NewRouter(handler, api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		CORSMaxAge:         api.DefaultRouterConfig().CORSMaxAge,
		RateLimitRequests:  cfg.Server.RateLimitRequests,
		RateLimitWindow:    cfg.Server.RateLimitWindow,
		RateLimitDisabled:  cfg.Server.RateLimitDisabled,
		MaxBodyBytes:       cfg.Server.MaxBodyBytes,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// API layer
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout, logger,
		services.WithDrain(handler.BeginDrain, cfg.Server.DrainDelay)))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// === CONFIG HOT RELOAD ===
	if path := config.FindConfigFile(); path != "" {
		reloader := config.NewReloader(path, ec.Engine, logger)
		if err := reloader.Start(); err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("Config file watch disabled")
		} else {
			logging.Info().Str("path", path).Msg("Watching config file for weight changes")
			defer func() {
				if err := reloader.Stop(); err != nil {
					logging.Error().Err(err).Msg("Error stopping config watcher")
				}
			}()
		}
	}

	// === START SUPERVISOR TREE ===

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	var serveErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			serveErr = fmt.Errorf("supervisor tree: %w", err)
		}
		cancel()
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	return serveErr
}
