// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scentmatch/internal/config"
	"github.com/tomtom215/scentmatch/internal/recommend"
	"github.com/tomtom215/scentmatch/internal/recommend/embedding"
	"github.com/tomtom215/scentmatch/internal/recommend/storage"
)

// snapshotName is the file prefix of embedding snapshots.
const snapshotName = "user_embeddings"

// StorageComponents holds the interaction log and embedding repository of
// the configured backend.
type StorageComponents struct {
	History    recommend.InteractionStore
	Embeddings embedding.Repository

	// Snapshots is nil when the embedding repository persists on its own
	// or no snapshot directory is configured.
	Snapshots *storage.SnapshotStore

	keep    int
	closers []func() error
	logger  zerolog.Logger
}

// initStorage opens the configured backend and restores the latest
// embedding snapshot when the backend keeps embeddings in memory.
//
//nolint:gocritic // hugeParam: logger passed by value for zerolog chaining
func initStorage(ctx context.Context, cfg *config.StorageConfig, logger zerolog.Logger) (*StorageComponents, error) {
	sc := &StorageComponents{
		keep:   cfg.SnapshotKeep,
		logger: logger.With().Str("component", "storage").Str("backend", cfg.Backend).Logger(),
	}

	switch cfg.Backend {
	case config.StorageBadger:
		store, err := storage.OpenBadger(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open badger at %s: %w", cfg.Path, err)
		}
		sc.History = store
		sc.Embeddings = store
		sc.closers = append(sc.closers, store.Close)
		if n, err := store.EventCount(); err == nil {
			sc.logger.Info().Str("path", cfg.Path).Int("events", n).Msg("badger store opened")
		}

	case config.StorageSQLite:
		store, err := storage.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite under %s: %w", cfg.Path, err)
		}
		sc.History = store
		sc.Embeddings = embedding.NewMemoryRepository()
		sc.closers = append(sc.closers, store.Close)
		sc.logger.Info().Str("path", cfg.Path).Msg("sqlite interaction store opened")

	case config.StorageMemory:
		sc.History = storage.NewMemoryInteractionStore()
		sc.Embeddings = embedding.NewMemoryRepository()
		sc.logger.Warn().Msg("interactions are kept in memory and lost on restart")

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	if cfg.Backend != config.StorageBadger && cfg.SnapshotDir != "" {
		snaps, err := storage.NewSnapshotStore(cfg.SnapshotDir)
		if err != nil {
			return nil, errors.Join(err, sc.Close())
		}
		sc.Snapshots = snaps
		if err := sc.restore(ctx); err != nil {
			sc.logger.Warn().Err(err).Msg("embedding snapshot restore failed, starting cold")
		}
	}
	return sc, nil
}

// restore loads the newest snapshot into the embedding repository.
func (sc *StorageComponents) restore(ctx context.Context) error {
	version, ok := sc.Snapshots.LatestVersion(snapshotName)
	if !ok {
		return nil
	}
	embeddings, meta, err := sc.Snapshots.Load(ctx, snapshotName, version)
	if err != nil {
		return fmt.Errorf("load snapshot v%d: %w", version, err)
	}
	n, err := storage.Restore(ctx, sc.Embeddings, embeddings)
	if err != nil {
		return err
	}
	sc.logger.Info().Int("version", version).Int("restored", n).Time("saved_at", meta.SavedAt).
		Msg("embedding snapshot restored")
	return nil
}

// SaveSnapshot writes the repository as a new snapshot version and prunes
// old ones. It is a no-op without a snapshot store.
func (sc *StorageComponents) SaveSnapshot(ctx context.Context) error {
	if sc.Snapshots == nil {
		return nil
	}
	embeddings, err := storage.Export(ctx, sc.Embeddings)
	if err != nil {
		return fmt.Errorf("export embeddings: %w", err)
	}
	if len(embeddings) == 0 {
		return nil
	}
	meta, err := sc.Snapshots.Save(ctx, snapshotName, embeddings)
	if err != nil {
		return err
	}
	if sc.keep > 0 {
		if err := sc.Snapshots.Prune(ctx, snapshotName, sc.keep); err != nil {
			sc.logger.Warn().Err(err).Msg("snapshot prune failed")
		}
	}
	sc.logger.Debug().Int("version", meta.Version).Int("users", meta.UserCount).Msg("embedding snapshot saved")
	return nil
}

// Users lists users known to the interaction log, if it can enumerate them.
func (sc *StorageComponents) Users(ctx context.Context) ([]string, error) {
	lister, ok := sc.History.(recommend.UserLister)
	if !ok {
		return nil, nil
	}
	return lister.Users(ctx)
}

// Close releases the backend.
func (sc *StorageComponents) Close() error {
	var errs []error
	for i := len(sc.closers) - 1; i >= 0; i-- {
		if err := sc.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	sc.closers = nil
	return errors.Join(errs...)
}
