// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const defaultShutdownTimeout = 10 * time.Second

// HTTPServer is the part of *http.Server the service drives.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPOption configures an HTTPServerService.
type HTTPOption func(*HTTPServerService)

// WithDrain calls hook when the service is asked to stop and waits delay
// before shutting the listener down. The API uses it to fail readiness
// while the load balancer still routes requests here.
func WithDrain(hook func(), delay time.Duration) HTTPOption {
	return func(h *HTTPServerService) {
		h.drainHook = hook
		h.drainDelay = delay
	}
}

// HTTPServerService runs the API server under suture. Stopping drains
// first, then shuts down gracefully within shutdownTimeout.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
	drainHook       func()
	drainDelay      time.Duration
	logger          zerolog.Logger
}

// NewHTTPServerService wraps server.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration, logger zerolog.Logger, opts ...HTTPOption) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	h := &HTTPServerService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		logger:          logger.With().Str("service", "http-server").Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve implements suture.Service. A listener that stops on its own with
// http.ErrServerClosed ends the service without error.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	listenErr := make(chan error, 1)
	go func() {
		err := h.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		listenErr <- err
	}()

	addr := ""
	if srv, ok := h.server.(*http.Server); ok {
		addr = srv.Addr
	}
	h.logger.Info().Str("addr", addr).Msg("api listening")

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	if err := h.stop(); err != nil {
		return err
	}
	if err := <-listenErr; err != nil {
		h.logger.Warn().Err(err).Msg("listener reported an error during shutdown")
	}
	h.logger.Info().Msg("api stopped")
	return ctx.Err()
}

// stop drains and shuts down. ctx of Serve is already done, so shutdown
// gets its own deadline.
func (h *HTTPServerService) stop() error {
	if h.drainHook != nil {
		h.drainHook()
	}
	if h.drainDelay > 0 {
		h.logger.Info().Dur("delay", h.drainDelay).Msg("draining before shutdown")
		time.Sleep(h.drainDelay)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()
	if err := h.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func (h *HTTPServerService) String() string {
	return "http-server"
}
