// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scentmatch/internal/catalog"
	"github.com/tomtom215/scentmatch/internal/config"
	"github.com/tomtom215/scentmatch/internal/recommend"
	"github.com/tomtom215/scentmatch/internal/recommend/embedding"
	"github.com/tomtom215/scentmatch/internal/recommend/evaluation"
	"github.com/tomtom215/scentmatch/internal/recommend/explain"
	"github.com/tomtom215/scentmatch/internal/recommend/learner"
	"github.com/tomtom215/scentmatch/internal/recommend/reranking"
	"github.com/tomtom215/scentmatch/internal/recommend/retrieval"
	"github.com/tomtom215/scentmatch/internal/recommend/scoring"
)

// celProgramCacheSize bounds compiled filter expressions kept per process.
const celProgramCacheSize = 256

// EngineComponents holds the engine and the concrete parts the server
// wires into background services and the stats endpoint.
type EngineComponents struct {
	Engine     *recommend.Engine
	Catalog    *catalog.Catalog
	Directory  *catalog.Directory
	Embeddings *embedding.Store
	Learner    *learner.Learner
	Retriever  *retrieval.Retriever
	KNN        *scoring.UserKNN
}

// loadCatalog reads the seed file and builds the catalog, generating
// embeddings for items that ship without one.
func loadCatalog(ctx context.Context, cfg *config.Config) (*catalog.Catalog, *catalog.Directory, error) {
	seed, err := catalog.LoadFile(cfg.Catalog.SeedFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load catalog seed %s: %w", cfg.Catalog.SeedFile, err)
	}
	gen := catalog.NewHashingEmbedder(cfg.Recommend.Embedding.Dimension)
	items, err := seed.Build(ctx, gen)
	if err != nil {
		return nil, nil, fmt.Errorf("build catalog: %w", err)
	}
	return catalog.New(items...), catalog.NewDirectory(cfg.Catalog.OpenRegistration, seed.Users...), nil
}

// initEngine assembles the recommendation engine on top of the catalog
// and storage. cache and publisher may be nil.
//
//nolint:gocritic // hugeParam: logger passed by value for zerolog chaining
func initEngine(
	ctx context.Context,
	cfg *config.Config,
	cat *catalog.Catalog,
	dir *catalog.Directory,
	store *StorageComponents,
	cache recommend.ResultCache,
	publisher recommend.FeedbackPublisher,
	logger zerolog.Logger,
) (*EngineComponents, error) {
	rc := &cfg.Recommend

	index := retrieval.NewMemoryIndex(rc.Embedding.Dimension)
	indexed, err := index.IndexItems(cat.All())
	if err != nil {
		return nil, fmt.Errorf("index catalog: %w", err)
	}

	filter, err := retrieval.NewCELFilter(celProgramCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create filter: %w", err)
	}
	retriever, err := retrieval.NewRetriever(rc.Retrieval, index, cat, logger,
		retrieval.WithFilter(filter),
		retrieval.WithCatalogTimeout(rc.Limits.CatalogTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create retriever: %w", err)
	}

	embeddings := embedding.NewStore(rc.Embedding, cat, store.History, logger,
		embedding.WithRepository(store.Embeddings),
		embedding.WithCatalogTimeout(rc.Limits.CatalogTimeout),
	)

	knn := scoring.NewUserKNN(scoring.DefaultKNNConfig())
	users, err := store.Users(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("could not list users, collaborative signal starts empty")
	} else if err := knn.Load(ctx, store.History, users); err != nil {
		logger.Warn().Err(err).Msg("collaborative signal warm-up failed")
	}

	lrn := learner.New(rc.Learner, embeddings, cat, store.History, logger,
		learner.WithUserDirectory(dir),
		learner.WithObserver(knn),
	)

	engine, err := recommend.NewEngine(rc, recommend.Components{
		Catalog:    cat,
		History:    store.History,
		Embeddings: embeddings,
		Learner:    lrn,
		Retriever:  retriever,
		Scorer:     scoring.NewHybridScorer(rc.Limits.ScoringWorkers, logger, scoring.WithCollaborative(knn)),
		Ranker:     reranking.NewRanker(rc.Diversity),
		Explainer:  explain.New(rc.Explain.ExplorationThreshold),
		Evaluator:  evaluation.NewEvaluator(rc.Evaluation, logger),
		Filter:     filter,
		Cache:      cache,
		Publisher:  publisher,
		Directory:  dir,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	logger.Info().
		Int("items", cat.Len()).
		Int("indexed", indexed).
		Int("families", len(cat.Families())).
		Int("known_users", knn.Users()).
		Int("dimension", rc.Embedding.Dimension).
		Bool("shared_cache", cache != nil).
		Bool("async_feedback", publisher != nil).
		Msg("recommendation engine ready")

	return &EngineComponents{
		Engine:     engine,
		Catalog:    cat,
		Directory:  dir,
		Embeddings: embeddings,
		Learner:    lrn,
		Retriever:  retriever,
		KNN:        knn,
	}, nil
}

// componentStats are exposed under "components" in GET /api/v1/stats.
func (ec *EngineComponents) componentStats() map[string]func() any {
	return map[string]func() any{
		"embeddings": func() any {
			recomputes, incrementals, stale := ec.Embeddings.Stats()
			return map[string]int64{"recomputes": recomputes, "incremental_updates": incrementals, "stale_serves": stale}
		},
		"dedupe": func() any {
			negatives, checks, duplicates := ec.Learner.DedupeStats()
			return map[string]int64{"bloom_negatives": negatives, "lru_checks": checks, "duplicates": duplicates}
		},
		"retrieval": func() any {
			return map[string]string{"breaker": ec.Retriever.BreakerState()}
		},
		"catalog": func() any {
			return map[string]int{"items": ec.Catalog.Len(), "users": ec.Directory.Len(), "collaborative_users": ec.KNN.Users()}
		},
	}
}
