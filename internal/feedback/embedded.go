// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// EmbeddedServer is an in-process NATS server with JetStream, for
// single-node deployments.
type EmbeddedServer struct {
	server *server.Server
}

// StartEmbeddedServer starts the server and waits until it accepts
// connections.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func StartEmbeddedServer(cfg NATSConfig, logger zerolog.Logger) (*EmbeddedServer, error) {
	opts := &server.Options{
		ServerName: "scentmatch",
		Host:       cfg.Host,
		Port:       cfg.Port,
		JetStream:  true,
		StoreDir:   cfg.StoreDir,
		NoSigs:     true,
		MaxPayload: 1 << 20,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}
	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, errors.New("nats server not ready within 10s")
	}
	logger.Info().Str("url", ns.ClientURL()).Str("store_dir", cfg.StoreDir).Msg("embedded NATS server started")
	return &EmbeddedServer{server: ns}, nil
}

// ClientURL returns the URL clients connect to.
func (s *EmbeddedServer) ClientURL() string {
	return s.server.ClientURL()
}

// Shutdown stops the server and waits for it to exit.
func (s *EmbeddedServer) Shutdown(ctx context.Context) error {
	s.server.Shutdown()
	done := make(chan struct{})
	go func() {
		s.server.WaitForShutdown()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnsureStream creates or updates the feedback and poison streams.
func EnsureStream(ctx context.Context, url string, cfg Config) error {
	nc, err := natsgo.Connect(url, natsgo.Timeout(5*time.Second))
	if err != nil {
		return fmt.Errorf("connect to nats %s: %w", url, err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("jetstream context: %w", err)
	}

	streams := []jetstream.StreamConfig{
		{
			Name:       cfg.NATS.Stream,
			Subjects:   []string{cfg.Topic},
			Retention:  jetstream.LimitsPolicy,
			MaxAge:     cfg.NATS.Retention,
			Duplicates: cfg.NATS.DuplicateWindow,
			Storage:    jetstream.FileStorage,
			Discard:    jetstream.DiscardOld,
		},
		{
			// Poisoned messages keep their ids, so they live in their own
			// stream with its own duplicate window.
			Name:      cfg.NATS.Stream + "_POISON",
			Subjects:  []string{cfg.PoisonTopic},
			Retention: jetstream.LimitsPolicy,
			MaxAge:    cfg.NATS.Retention,
			Storage:   jetstream.FileStorage,
			Discard:   jetstream.DiscardOld,
		},
	}
	for i := range streams {
		if err := ensureStream(ctx, js, streams[i]); err != nil {
			return err
		}
	}
	return nil
}

//nolint:gocritic // hugeParam: StreamConfig passed by value like the jetstream API
func ensureStream(ctx context.Context, js jetstream.JetStream, cfg jetstream.StreamConfig) error {
	_, err := js.Stream(ctx, cfg.Name)
	switch {
	case err == nil:
		if _, err := js.UpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("update stream %s: %w", cfg.Name, err)
		}
	case errors.Is(err, jetstream.ErrStreamNotFound):
		if _, err := js.CreateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
	default:
		return fmt.Errorf("check stream %s: %w", cfg.Name, err)
	}
	return nil
}
