// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package recommend

import (
	"context"
	"time"
)

// External capabilities consumed by the engine. Implementations live
// outside this package (catalog, storage, retrieval) so the engine has no
// dependency on any concrete backend.

// CatalogLookup resolves fragrance metadata.
type CatalogLookup interface {
	// GetItem returns the item or an error wrapping ErrUnknownItem.
	GetItem(ctx context.Context, id string) (Item, error)

	// SearchByFilters returns all items matching the structural filters,
	// ordered by ID.
	SearchByFilters(ctx context.Context, filters Filters) ([]Item, error)
}

// InteractionStore persists the append-only interaction log.
type InteractionStore interface {
	// Append stores the event. It returns an error wrapping
	// ErrDuplicateEvent when the event id was already stored.
	Append(ctx context.Context, event InteractionEvent) error

	// History returns the user's events since the given time, ordered by timestamp.
	History(ctx context.Context, userID string, since time.Time) ([]InteractionEvent, error)
}

// BatchAppender is optionally implemented by stores that can write many
// events in one transaction. Duplicates are skipped and reported.
type BatchAppender interface {
	AppendBatch(ctx context.Context, events []InteractionEvent) (duplicates map[string]bool, err error)
}

// UserLister is optionally implemented by stores that can enumerate users
// for background sweeps.
type UserLister interface {
	Users(ctx context.Context) ([]string, error)
}

// UserDirectory resolves user identities.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// EmbedInput is the text and attributes to embed.
type EmbedInput struct {
	Text       string              `json:"text,omitempty"`
	Attributes map[string][]string `json:"attributes,omitempty"`
}

// EmbeddingGenerator turns text or attributes into a fixed-length vector.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, input EmbedInput) ([]float64, error)
	Dimension() int
}

// Neighbor is one nearest-neighbour hit.
type Neighbor struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
}

// ANNIndex is a pluggable nearest-neighbour search capability.
type ANNIndex interface {
	// Query returns up to k neighbours of vector ordered by descending
	// similarity. IDs in exclude are never returned.
	Query(ctx context.Context, vector []float64, k int, exclude map[string]struct{}) ([]Neighbor, error)
}

// CollaborativeSignal scores items by what similar users liked.
type CollaborativeSignal interface {
	// Score returns a value in [0, 1] per item. Missing items score 0.
	Score(ctx context.Context, userID string, itemIDs []string) (map[string]float64, error)
}

// FeedbackObserver is notified of every newly ingested event.
type FeedbackObserver interface {
	ObserveInteraction(event InteractionEvent)
}

// Internal components. Concrete implementations live in sub-packages and
// are injected at wiring time.

// EmbeddingProvider supplies user embeddings.
type EmbeddingProvider interface {
	// GetUserEmbedding returns the current embedding or an error wrapping
	// ErrInsufficientData for users without history.
	GetUserEmbedding(ctx context.Context, userID string) (*UserEmbedding, error)

	// Snapshot returns the last known embedding without blocking or recomputing.
	Snapshot(userID string) (*UserEmbedding, bool)
}

// FeedbackLearner ingests feedback.
type FeedbackLearner interface {
	LearnFromInteraction(ctx context.Context, event InteractionEvent) (LearningResult, error)
	LearnFromBatch(ctx context.Context, events []InteractionEvent) ([]LearningResult, error)
	State(userID string) LearnerState
}

// CandidateRetriever fetches nearest-neighbour candidates.
type CandidateRetriever interface {
	Retrieve(ctx context.Context, vector []float64, k int, filters Filters) ([]Candidate, error)
}

// ScoreRequest is the input to a Scorer.
type ScoreRequest struct {
	UserID     string
	Candidates []Candidate
	Context    RequestContext
	Weights    Weights
	Now        time.Time
}

// Scorer fuses content, collaborative and contextual signals.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) ([]ScoredCandidate, error)
}

// Ranker diversifies and buckets scored candidates.
type Ranker interface {
	// Rank returns min(pageSize, len(pool)) diversified candidates.
	Rank(ctx context.Context, pool []ScoredCandidate, pageSize int) []ScoredCandidate

	// Sections buckets the pool into themed sections of up to size items each.
	Sections(ctx context.Context, pool []ScoredCandidate, size int) map[SectionName][]ScoredCandidate

	// ColdStart returns a deterministic family-diverse popularity list.
	ColdStart(items []Item, n int) []ScoredCandidate
}

// Explainer derives explanations from score breakdowns.
type Explainer interface {
	Explain(candidate *ScoredCandidate, weights Weights, userConfidence float64) Explanation
}

// QualityEvaluator computes ranking quality metrics.
type QualityEvaluator interface {
	RecordServed(userID, experiment string, items []ScoredCandidate, at time.Time)
	RecordInteraction(event InteractionEvent)
	Evaluate(window time.Duration, now time.Time) QualityReport
}

// ResultCache caches recommendation results.
type ResultCache interface {
	Get(ctx context.Context, key string) (*RecommendationResult, bool)
	Set(ctx context.Context, key string, result *RecommendationResult)
	InvalidateUser(ctx context.Context, userID string)
}

// FeedbackPublisher publishes feedback for asynchronous ingestion.
type FeedbackPublisher interface {
	PublishFeedback(ctx context.Context, event InteractionEvent) error
}

// Optional capabilities. The engine uses them when the injected component
// implements them.

// ExpressionMatcher evaluates filter expressions outside retrieval, for
// fallback lists that never reach the index.
type ExpressionMatcher interface {
	// Validate reports an error wrapping ErrInvalidFilter for a bad expression.
	Validate(expr string) error

	// MatchExpression evaluates expr against item.
	MatchExpression(expr string, item *Item) (bool, error)
}

// CalibratedRanker ranks a page whose family mix follows target.
type CalibratedRanker interface {
	RankCalibrated(ctx context.Context, pool []ScoredCandidate, pageSize int, target map[string]float64) []ScoredCandidate
}

// ContextualScorer scores a single item against a request context, for
// candidates that skip hybrid scoring.
type ContextualScorer interface {
	ContextualScore(item *Item, rc RequestContext, now time.Time) float64
}
