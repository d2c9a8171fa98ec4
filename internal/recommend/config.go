// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package recommend

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/goccy/go-json"
)

// AlgorithmVersion identifies the scoring pipeline in result metadata.
const AlgorithmVersion = "hybrid-v1"

// DefaultExperiment is the name reported when no experiment is selected.
const DefaultExperiment = "default"

// weightTolerance is how far the weight sum may drift from 1.0.
const weightTolerance = 0.01

// Config contains all configuration for the recommendation engine.
type Config struct {
	// Weights are the default hybrid scoring weights.
	Weights Weights `json:"weights"`

	// Experiments maps experiment names to alternative weight sets.
	Experiments map[string]Weights `json:"experiments,omitempty"`

	// Embedding contains user embedding parameters.
	Embedding EmbeddingConfig `json:"embedding"`

	// Learner contains preference learning parameters.
	Learner LearnerConfig `json:"learner"`

	// Retrieval contains candidate retrieval parameters.
	Retrieval RetrievalConfig `json:"retrieval"`

	// Diversity contains re-ranking and section parameters.
	Diversity DiversityConfig `json:"diversity"`

	// Explain contains explanation parameters.
	Explain ExplainConfig `json:"explain"`

	// Evaluation contains quality evaluation parameters.
	Evaluation EvaluationConfig `json:"evaluation"`

	// Limits contains operational limits and deadlines.
	Limits LimitsConfig `json:"limits"`

	// Cache contains result caching parameters.
	Cache CacheConfig `json:"cache"`
}

// Weights are the hybrid scoring weights. They must be non-negative and
// sum to 1 (within a small tolerance).
type Weights struct {
	Content       float64 `json:"content"`
	Collaborative float64 `json:"collaborative"`
	Contextual    float64 `json:"contextual"`
}

// DefaultWeights returns the 0.6 / 0.3 / 0.1 split.
func DefaultWeights() Weights {
	return Weights{Content: 0.6, Collaborative: 0.3, Contextual: 0.1}
}

// Sum returns the total weight.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func (w Weights) Sum() float64 {
	return w.Content + w.Collaborative + w.Contextual
}

// Normalize returns a copy scaled to sum to 1. All-zero weights become
// the defaults.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func (w Weights) Normalize() Weights {
	sum := w.Sum()
	if sum <= 0 {
		return DefaultWeights()
	}
	return Weights{
		Content:       w.Content / sum,
		Collaborative: w.Collaborative / sum,
		Contextual:    w.Contextual / sum,
	}
}

// Validate reports ErrInconsistentWeights for negative, non-finite or
// badly summing weights.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func (w Weights) Validate() error {
	for name, v := range w.ToMap() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInconsistentWeights, name)
		}
		if v < 0 {
			return fmt.Errorf("%w: %s must be non-negative, got %f", ErrInconsistentWeights, name, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: weights must sum to 1, got %f", ErrInconsistentWeights, sum)
	}
	return nil
}

// ToMap returns weights keyed by signal name.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func (w Weights) ToMap() map[string]float64 {
	return map[string]float64{
		"content":       w.Content,
		"collaborative": w.Collaborative,
		"contextual":    w.Contextual,
	}
}

// EmbeddingConfig contains user embedding parameters.
type EmbeddingConfig struct {
	// Dimension is the fixed vector length shared by items and users.
	Dimension int `json:"dimension"`

	// HalfLife is the interaction decay half-life. 90 days corresponds to
	// a weekly decay factor of roughly 0.95.
	HalfLife time.Duration `json:"half_life"`

	// RecomputeEvery triggers a full recompute after this many incremental updates.
	RecomputeEvery int `json:"recompute_every"`

	// FreshnessTTL marks a cached embedding stale after this long.
	FreshnessTTL time.Duration `json:"freshness_ttl"`

	// ConfidenceHalfPoint is the effective count at which confidence is 0.5.
	ConfidenceHalfPoint float64 `json:"confidence_half_point"`

	// Shards is the number of user lock shards.
	Shards int `json:"shards"`

	// HistoryLookback bounds how far back history is read on recompute.
	HistoryLookback time.Duration `json:"history_lookback"`
}

// LearnerConfig contains preference learning parameters.
type LearnerConfig struct {
	// StableThreshold is the effective count for warming -> stable.
	StableThreshold float64 `json:"stable_threshold"`

	// ShortWindow is the number of recent events in the short-run embedding.
	ShortWindow int `json:"short_window"`

	// MinShiftSamples is the minimum window fill before a shift may be declared.
	MinShiftSamples int `json:"min_shift_samples"`

	// ShiftThreshold is the cosine distance that signals a shift.
	ShiftThreshold float64 `json:"shift_threshold"`

	// ShiftBlend is how far the long-run vector moves toward the short-run one.
	ShiftBlend float64 `json:"shift_blend"`

	// BatchConcurrency bounds per-user parallelism in LearnFromBatch.
	BatchConcurrency int `json:"batch_concurrency"`

	// SweepConcurrency bounds parallelism of background sweeps.
	SweepConcurrency int `json:"sweep_concurrency"`

	// SweepInterval is how often the background sweep runs.
	SweepInterval time.Duration `json:"sweep_interval"`

	// SweepRatePerSecond caps users processed per second during a sweep.
	SweepRatePerSecond float64 `json:"sweep_rate_per_second"`

	// DedupeCapacity is the number of recent event ids remembered.
	DedupeCapacity int `json:"dedupe_capacity"`

	// DedupeTTL is how long an event id is remembered.
	DedupeTTL time.Duration `json:"dedupe_ttl"`

	// DedupeExact skips the Bloom filter and checks every id against the LRU.
	DedupeExact bool `json:"dedupe_exact"`
}

// RetrievalConfig contains candidate retrieval parameters.
type RetrievalConfig struct {
	// PoolSize is the number of candidates retrieved per request.
	PoolSize int `json:"pool_size"`

	// OverfetchFactor multiplies k when hard filters are present.
	OverfetchFactor int `json:"overfetch_factor"`

	// MaxCandidates bounds the overfetch loop.
	MaxCandidates int `json:"max_candidates"`

	// QueryTimeout is the deadline for one ANN query.
	QueryTimeout time.Duration `json:"query_timeout"`

	// BreakerFailures trips the circuit breaker after this many consecutive failures.
	BreakerFailures uint32 `json:"breaker_failures"`

	// BreakerTimeout is how long the breaker stays open.
	BreakerTimeout time.Duration `json:"breaker_timeout"`
}

// DiversityConfig contains diversity re-ranking parameters.
type DiversityConfig struct {
	// MMRLambda balances relevance (1) against diversity (0).
	MMRLambda float64 `json:"mmr_lambda"`

	// RelevanceFloor protects items at or above this combined score from
	// being displaced by diversity.
	RelevanceFloor float64 `json:"relevance_floor"`

	// MinFamilies is the minimum number of distinct families in a page of
	// four or more items, when the pool allows it.
	MinFamilies int `json:"min_families"`

	// SectionSize is the maximum number of items per themed section.
	SectionSize int `json:"section_size"`

	// PerfectMatchThreshold is the combined score for perfect_matches.
	PerfectMatchThreshold float64 `json:"perfect_match_threshold"`

	// AdventurousMaxContent is the content score ceiling for adventurous picks.
	AdventurousMaxContent float64 `json:"adventurous_max_content"`

	// SeasonalMinContextual is the contextual score floor for seasonal picks.
	SeasonalMinContextual float64 `json:"seasonal_min_contextual"`

	// CalibrationEnabled turns on family calibration after MMR.
	CalibrationEnabled bool `json:"calibration_enabled"`

	// CalibrationLambda balances relevance against calibration.
	CalibrationLambda float64 `json:"calibration_lambda"`
}

// ExplainConfig contains explanation parameters.
type ExplainConfig struct {
	// ExplorationThreshold flags explanations below this confidence.
	ExplorationThreshold float64 `json:"exploration_threshold"`
}

// EvaluationConfig contains quality evaluation parameters.
type EvaluationConfig struct {
	// K is the metric cutoff.
	K int `json:"k"`

	// FreshnessHorizon counts items launched within this span as fresh.
	FreshnessHorizon time.Duration `json:"freshness_horizon"`

	// MaxSessions bounds the served-list log.
	MaxSessions int `json:"max_sessions"`
}

// LimitsConfig contains operational limits.
type LimitsConfig struct {
	// DefaultResults is the page size when the request does not set one.
	DefaultResults int `json:"default_results"`

	// MaxResults is the largest allowed page size.
	MaxResults int `json:"max_results"`

	// RequestBudget is the end-to-end latency budget.
	RequestBudget time.Duration `json:"request_budget"`

	// CatalogTimeout is the deadline for catalog lookups.
	CatalogTimeout time.Duration `json:"catalog_timeout"`

	// EmbedTimeout is the deadline for embedding generation.
	EmbedTimeout time.Duration `json:"embed_timeout"`

	// ScoringWorkers bounds parallel scoring chunks.
	ScoringWorkers int `json:"scoring_workers"`
}

// CacheConfig contains result caching parameters.
type CacheConfig struct {
	Enabled    bool          `json:"enabled"`
	TTL        time.Duration `json:"ttl"`
	MaxEntries int           `json:"max_entries"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		Weights:     DefaultWeights(),
		Experiments: map[string]Weights{},
		Embedding: EmbeddingConfig{
			Dimension:           64,
			HalfLife:            90 * 24 * time.Hour,
			RecomputeEvery:      20,
			FreshnessTTL:        24 * time.Hour,
			ConfidenceHalfPoint: 5,
			Shards:              64,
			HistoryLookback:     2 * 365 * 24 * time.Hour,
		},
		Learner: LearnerConfig{
			StableThreshold:    5,
			ShortWindow:        10,
			MinShiftSamples:    5,
			ShiftThreshold:     0.35,
			ShiftBlend:         0.5,
			BatchConcurrency:   8,
			SweepConcurrency:   2,
			SweepInterval:      24 * time.Hour,
			SweepRatePerSecond: 50,
			DedupeCapacity:     100000,
			DedupeTTL:          24 * time.Hour,
		},
		Retrieval: RetrievalConfig{
			PoolSize:        100,
			OverfetchFactor: 2,
			MaxCandidates:   1000,
			QueryTimeout:    30 * time.Millisecond,
			BreakerFailures: 5,
			BreakerTimeout:  10 * time.Second,
		},
		Diversity: DiversityConfig{
			MMRLambda:             0.7,
			RelevanceFloor:        0.9,
			MinFamilies:           2,
			SectionSize:           5,
			PerfectMatchThreshold: 0.85,
			AdventurousMaxContent: 0.55,
			SeasonalMinContextual: 0.5,
			CalibrationEnabled:    false,
			CalibrationLambda:     0.5,
		},
		Explain: ExplainConfig{
			ExplorationThreshold: 0.5,
		},
		Evaluation: EvaluationConfig{
			K:                10,
			FreshnessHorizon: 180 * 24 * time.Hour,
			MaxSessions:      50000,
		},
		Limits: LimitsConfig{
			DefaultResults: 10,
			MaxResults:     50,
			RequestBudget:  100 * time.Millisecond,
			CatalogTimeout: 20 * time.Millisecond,
			EmbedTimeout:   50 * time.Millisecond,
			ScoringWorkers: 4,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        2 * time.Minute,
			MaxEntries: 10000,
		},
	}
}

// Validate checks the configuration. Weight problems wrap ErrInconsistentWeights.
//
//nolint:gocyclo // validation needs to check many fields
func (c *Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	for _, name := range c.ExperimentNames() {
		if err := c.Experiments[name].Validate(); err != nil {
			return fmt.Errorf("experiments.%s: %w", name, err)
		}
	}

	if c.Embedding.Dimension < 1 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.HalfLife <= 0 {
		return fmt.Errorf("embedding.half_life must be positive, got %v", c.Embedding.HalfLife)
	}
	if c.Embedding.RecomputeEvery < 1 {
		return fmt.Errorf("embedding.recompute_every must be positive, got %d", c.Embedding.RecomputeEvery)
	}
	if c.Embedding.ConfidenceHalfPoint <= 0 {
		return fmt.Errorf("embedding.confidence_half_point must be positive, got %f", c.Embedding.ConfidenceHalfPoint)
	}
	if c.Embedding.Shards < 1 {
		return fmt.Errorf("embedding.shards must be positive, got %d", c.Embedding.Shards)
	}

	if c.Learner.ShortWindow < 1 {
		return fmt.Errorf("learner.short_window must be positive, got %d", c.Learner.ShortWindow)
	}
	if c.Learner.MinShiftSamples < 1 || c.Learner.MinShiftSamples > c.Learner.ShortWindow {
		return fmt.Errorf("learner.min_shift_samples must be in [1, %d], got %d", c.Learner.ShortWindow, c.Learner.MinShiftSamples)
	}
	if c.Learner.ShiftThreshold <= 0 || c.Learner.ShiftThreshold >= 2 {
		return fmt.Errorf("learner.shift_threshold must be in (0, 2), got %f", c.Learner.ShiftThreshold)
	}
	if c.Learner.ShiftBlend < 0 || c.Learner.ShiftBlend > 1 {
		return fmt.Errorf("learner.shift_blend must be in [0, 1], got %f", c.Learner.ShiftBlend)
	}

	if c.Retrieval.PoolSize < 1 {
		return fmt.Errorf("retrieval.pool_size must be positive, got %d", c.Retrieval.PoolSize)
	}
	if c.Retrieval.MaxCandidates < c.Retrieval.PoolSize {
		return fmt.Errorf("retrieval.max_candidates must be >= retrieval.pool_size, got %d < %d",
			c.Retrieval.MaxCandidates, c.Retrieval.PoolSize)
	}

	if c.Diversity.MMRLambda < 0 || c.Diversity.MMRLambda > 1 {
		return fmt.Errorf("diversity.mmr_lambda must be in [0, 1], got %f", c.Diversity.MMRLambda)
	}
	if c.Diversity.RelevanceFloor < 0 || c.Diversity.RelevanceFloor > 1 {
		return fmt.Errorf("diversity.relevance_floor must be in [0, 1], got %f", c.Diversity.RelevanceFloor)
	}
	if c.Diversity.CalibrationLambda < 0 || c.Diversity.CalibrationLambda > 1 {
		return fmt.Errorf("diversity.calibration_lambda must be in [0, 1], got %f", c.Diversity.CalibrationLambda)
	}

	if c.Explain.ExplorationThreshold < 0 || c.Explain.ExplorationThreshold > 1 {
		return fmt.Errorf("explain.exploration_threshold must be in [0, 1], got %f", c.Explain.ExplorationThreshold)
	}

	if c.Limits.DefaultResults < 1 {
		return fmt.Errorf("limits.default_results must be positive, got %d", c.Limits.DefaultResults)
	}
	if c.Limits.MaxResults < c.Limits.DefaultResults {
		return fmt.Errorf("limits.max_results must be >= limits.default_results, got %d < %d",
			c.Limits.MaxResults, c.Limits.DefaultResults)
	}
	if c.Limits.RequestBudget <= 0 {
		return fmt.Errorf("limits.request_budget must be positive, got %v", c.Limits.RequestBudget)
	}

	return nil
}

// WeightsFor returns the weight set for experiment, falling back to the
// defaults for empty or unknown names. The second return value is the
// effective experiment name.
func (c *Config) WeightsFor(experiment string) (Weights, string) {
	if experiment != "" {
		if w, ok := c.Experiments[experiment]; ok {
			return w, experiment
		}
	}
	return c.Weights, DefaultExperiment
}

// ExperimentNames returns the configured experiment names in sorted order.
func (c *Config) ExperimentNames() []string {
	names := make([]string, 0, len(c.Experiments))
	for name := range c.Experiments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	out := *c
	out.Experiments = make(map[string]Weights, len(c.Experiments))
	for k, v := range c.Experiments {
		out.Experiments[k] = v
	}
	return &out
}

// MarshalJSON renders durations as strings.
func (c *Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	return json.Marshal(&struct {
		*Alias
		HalfLife      string `json:"embedding_half_life"`
		RequestBudget string `json:"request_budget"`
		QueryTimeout  string `json:"query_timeout"`
		CacheTTL      string `json:"cache_ttl"`
	}{
		Alias:         (*Alias)(c),
		HalfLife:      c.Embedding.HalfLife.String(),
		RequestBudget: c.Limits.RequestBudget.String(),
		QueryTimeout:  c.Retrieval.QueryTimeout.String(),
		CacheTTL:      c.Cache.TTL.String(),
	})
}
