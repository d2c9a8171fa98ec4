// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

// Package recommend implements a hybrid personalized fragrance
// recommendation engine.
//
// # Architecture
//
// The engine fuses three signals into one relevance score per candidate:
//
//   - Content: cosine similarity between the user's taste embedding and the
//     fragrance embedding, mapped to [0, 1]
//   - Collaborative: what users with similar taste liked
//   - Contextual: how well the fragrance fits the requested season and occasion
//
// A request flows through the following stages:
//
//	User Embedding -> Retrieval -> Hybrid Scoring -> Ranker -> Explain
//	(embedding)       (retrieval)  (scoring)          (reranking) (explain)
//
// Each stage is a port declared in ports.go and implemented in a
// sub-package; the Engine only orchestrates them. Wiring lives in
// cmd/server.
//
// # Sub-packages
//
//   - vectormath: cosine similarity, normalization and decay helpers
//   - embedding: per-user taste vectors with decay and periodic recompute
//   - learner: feedback ingestion, state machine and shift detection
//   - retrieval: nearest-neighbour candidates with overfetch and a breaker
//   - scoring: hybrid fusion, user-kNN collaborative signal, context match
//   - reranking: MMR diversification, calibration, sections and cold start
//   - explain: factor breakdowns and human-facing reasons
//   - evaluation: precision, recall, NDCG, diversity and freshness
//   - storage: interaction log and embedding persistence backends
//
// # Degradation
//
// Users without history receive a deterministic, family-diverse popularity
// list flagged cold_start. When the index or an upstream call fails within
// the request budget, the engine serves the last good result or the
// popularity list flagged degraded. Only invalid input fails a request.
//
// # Thread Safety
//
// Engine and every component in the sub-packages are safe for concurrent
// use. Configuration can be swapped at runtime with UpdateConfig.
//
// # Usage
//
//	engine, err := recommend.NewEngine(cfg, recommend.Components{...}, logger)
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
//
//	res, err := engine.GenerateRecommendations(ctx, "user-42", recommend.Options{
//	    MaxResults:          10,
//	    IncludeExplanations: true,
//	    Context:             recommend.RequestContext{Season: "winter"},
//	})
package recommend
