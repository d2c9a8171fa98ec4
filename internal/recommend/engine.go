// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package recommend

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/scentmatch/internal/cache"
	"github.com/tomtom215/scentmatch/internal/logging"
	"github.com/tomtom215/scentmatch/internal/metrics"
	"github.com/tomtom215/scentmatch/internal/recommend/vectormath"
)

// Response paths reported in metrics and logs.
const (
	PathPersonalized = "personalized"
	PathColdStart    = "cold_start"
	PathDegraded     = "degraded"
	PathFallback     = "fallback"
	PathCache        = "cache"
)

// Fallback reasons reported in ResultMetadata.FallbackReason.
const (
	ReasonInsufficientData = "insufficient_data"
	ReasonNoCandidates     = "no_candidates"
	ReasonIndexUnavailable = "index_unavailable"
	ReasonTimeout          = "timeout"
	ReasonUpstreamError    = "upstream_error"
)

const (
	// staleTTLFactor scales Cache.TTL into the retention of last-good
	// results served while degraded.
	staleTTLFactor = 15

	// profileEvents bounds the positive events read for the calibration target.
	profileEvents = 100

	// healthWindow is the span of the degraded-response ratio.
	healthWindow = 5 * time.Minute
)

// errNoCandidates marks an empty retrieval for a user with an embedding.
var errNoCandidates = errors.New("no candidates")

// Components are the engine's collaborators. Every field except Filter,
// Cache and Publisher is required.
type Components struct {
	Catalog    CatalogLookup
	History    InteractionStore
	Embeddings EmbeddingProvider
	Learner    FeedbackLearner
	Retriever  CandidateRetriever
	Scorer     Scorer
	Ranker     Ranker
	Explainer  Explainer
	Evaluator  QualityEvaluator

	// Filter evaluates expressions on lists that skip retrieval.
	Filter ExpressionMatcher

	// Cache is a shared second-level result cache.
	Cache ResultCache

	// Publisher makes SubmitFeedback asynchronous.
	Publisher FeedbackPublisher

	// Directory rejects unknown users on the read paths. Without it every
	// non-blank id is served, unknown ones as cold starts.
	Directory UserDirectory
}

func (c *Components) validate() error {
	missing := make([]string, 0)
	if c.Catalog == nil {
		missing = append(missing, "catalog")
	}
	if c.History == nil {
		missing = append(missing, "history")
	}
	if c.Embeddings == nil {
		missing = append(missing, "embeddings")
	}
	if c.Learner == nil {
		missing = append(missing, "learner")
	}
	if c.Retriever == nil {
		missing = append(missing, "retriever")
	}
	if c.Scorer == nil {
		missing = append(missing, "scorer")
	}
	if c.Ranker == nil {
		missing = append(missing, "ranker")
	}
	if c.Explainer == nil {
		missing = append(missing, "explainer")
	}
	if c.Evaluator == nil {
		missing = append(missing, "evaluator")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing components: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Engine is the recommendation facade: it orchestrates embedding lookup,
// retrieval, hybrid scoring, diversification and explanation, and routes
// feedback into the learner. It is safe for concurrent use.
type Engine struct {
	cfg    atomic.Pointer[Config]
	c      Components
	logger zerolog.Logger
	now    func() time.Time

	// local is the first-level result cache; stale keeps the last good
	// result per request key for degraded serving.
	local *cache.LRU[*RecommendationResult]
	stale *cache.LRU[*RecommendationResult]

	popular   atomic.Pointer[[]Item]
	popularMu sync.Mutex

	health *cache.RatioWindow
	closed atomic.Bool

	requestCount  atomic.Int64
	cacheHits     atomic.Int64
	cacheMisses   atomic.Int64
	coldStarts    atomic.Int64
	degradedCount atomic.Int64
	errorCount    atomic.Int64
	feedbackCount atomic.Int64
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineClock overrides the time source.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine. A nil cfg uses DefaultConfig.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEngine(cfg *Config, components Components, logger zerolog.Logger, opts ...EngineOption) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := components.validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		c:      components,
		logger: logger.With().Str("component", "recommend").Logger(),
		now:    time.Now,
		health: cache.NewRatioWindow(healthWindow, 30),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cfg.Store(cfg.Clone())

	entries := max(cfg.Cache.MaxEntries, 1)
	e.local = cache.NewLRU[*RecommendationResult](entries, cfg.Cache.TTL)
	e.stale = cache.NewLRU[*RecommendationResult](entries, staleTTLFactor*cfg.Cache.TTL)
	e.local.SetClock(e.now)
	e.stale.SetClock(e.now)

	return e, nil
}

// request carries per-call state through the pipeline.
type request struct {
	id         string
	userID     string
	opts       Options
	weights    Weights
	experiment string
	key        string
	cfg        *Config
	start      time.Time
	now        time.Time
	logger     zerolog.Logger
}

// GenerateRecommendations returns a diversified page and themed sections
// for userID.
//
// Users without history get the cold-start list. When retrieval or the
// embedding lookup fails transiently the engine serves the last good
// result or the popularity list, marked degraded, within the request
// budget. Invalid filters and unknown users fail with an *EngineError.
//
//nolint:gocritic // hugeParam: opts passed by value for immutability
func (e *Engine) GenerateRecommendations(ctx context.Context, userID string, opts Options) (*RecommendationResult, error) {
	const op = "GenerateRecommendations"
	if e.closed.Load() {
		return nil, newEngineError(op, ErrEngineClosed)
	}
	if err := e.checkUser(ctx, userID); err != nil {
		e.errorCount.Add(1)
		return nil, newEngineError(op, err)
	}
	e.requestCount.Add(1)

	req := e.prepareRequest(ctx, userID, opts)
	req.logger.Debug().Msg("processing recommendation request")

	if req.opts.Filters.Expression != "" && e.c.Filter != nil {
		if err := e.c.Filter.Validate(req.opts.Filters.Expression); err != nil {
			e.errorCount.Add(1)
			return nil, newEngineError(op, err)
		}
	}

	if res := e.tryGetCachedResult(ctx, req); res != nil {
		return res, nil
	}

	bctx, cancel := context.WithTimeout(ctx, req.cfg.Limits.RequestBudget)
	defer cancel()

	res, err := e.personalized(bctx, req)
	switch {
	case err == nil:
		return e.finish(ctx, req, res, PathPersonalized), nil

	case errors.Is(err, ErrInsufficientData):
		res, err = e.fallback(ctx, req, ReasonInsufficientData, false)
		if err != nil {
			e.errorCount.Add(1)
			return nil, newEngineError(op, err)
		}
		e.coldStarts.Add(1)
		return e.finish(ctx, req, res, PathColdStart), nil

	case errors.Is(err, errNoCandidates):
		res, err = e.fallback(ctx, req, ReasonNoCandidates, false)
		if err != nil {
			e.errorCount.Add(1)
			return nil, newEngineError(op, err)
		}
		res.Metadata.ColdStart = false
		return e.finish(ctx, req, res, PathFallback), nil

	case ctx.Err() != nil:
		e.errorCount.Add(1)
		return nil, newEngineError(op, ctx.Err())

	case IsRetryable(err) || bctx.Err() != nil:
		reason := fallbackReason(err)
		req.logger.Warn().Err(err).Str("reason", reason).Msg("serving degraded recommendations")
		res, ferr := e.degraded(ctx, req, reason)
		if ferr != nil {
			e.errorCount.Add(1)
			return nil, newEngineError(op, errors.Join(err, ferr))
		}
		e.degradedCount.Add(1)
		return e.finish(ctx, req, res, PathDegraded), nil

	default:
		e.errorCount.Add(1)
		req.logger.Error().Err(err).Msg("recommendation failed")
		return nil, newEngineError(op, err)
	}
}

// checkUser rejects blank ids, and ids the directory does not know.
func (e *Engine) checkUser(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: empty user id", ErrUnknownUser)
	}
	if e.c.Directory == nil {
		return nil
	}
	dctx, cancel := context.WithTimeout(ctx, e.cfg.Load().Limits.CatalogTimeout)
	defer cancel()
	ok, err := e.c.Directory.Exists(dctx, userID)
	if err != nil {
		return fmt.Errorf("resolve user %s: %w", userID, err)
	}
	if !ok {
		return fmt.Errorf("user %s: %w", userID, ErrUnknownUser)
	}
	return nil
}

// prepareRequest applies defaults and builds the request logger.
//
//nolint:gocritic // hugeParam: opts passed by value for immutability
func (e *Engine) prepareRequest(ctx context.Context, userID string, opts Options) *request {
	cfg := e.cfg.Load()

	if opts.MaxResults <= 0 {
		opts.MaxResults = cfg.Limits.DefaultResults
	}
	if opts.MaxResults > cfg.Limits.MaxResults {
		opts.MaxResults = cfg.Limits.MaxResults
	}
	opts.Context = opts.Context.Normalized()
	weights, experiment := cfg.WeightsFor(opts.Experiment)
	opts.Experiment = experiment

	id := logging.RequestIDFromContext(ctx)
	if id == "" {
		id = uuid.NewString()
	}

	return &request{
		id:         id,
		userID:     userID,
		opts:       opts,
		weights:    weights.Normalize(),
		experiment: experiment,
		key:        resultKey(userID, &opts),
		cfg:        cfg,
		start:      time.Now(),
		now:        e.now(),
		logger: e.logger.With().
			Str("request_id", id).
			Str("user_id", userID).
			Str("experiment", experiment).
			Logger(),
	}
}

// tryGetCachedResult checks the local cache, then the shared one.
func (e *Engine) tryGetCachedResult(ctx context.Context, req *request) *RecommendationResult {
	if !req.cfg.Cache.Enabled || req.opts.SkipCache {
		return nil
	}

	cached, ok := e.local.Get(req.key)
	metrics.RecordCacheLookup("local", ok)
	if !ok && e.c.Cache != nil {
		cached, ok = e.c.Cache.Get(ctx, req.key)
		metrics.RecordCacheLookup("shared", ok)
		if ok {
			e.local.Set(req.key, cached)
		}
	}
	if !ok {
		e.cacheMisses.Add(1)
		return nil
	}

	e.cacheHits.Add(1)
	res := copyResult(cached)
	res.Metadata.RequestID = req.id
	res.Metadata.CacheHit = true
	res.Metadata.ProcessingTime = time.Since(req.start)
	metrics.RecordRecommendation(PathCache, req.experiment, res.Metadata.TotalCandidates, res.Metadata.ProcessingTime)
	e.health.Observe(false)
	req.logger.Debug().Msg("cache hit")
	return res
}

// personalized runs embedding lookup, retrieval, scoring and ranking.
func (e *Engine) personalized(ctx context.Context, req *request) (*RecommendationResult, error) {
	emb, err := e.userEmbedding(ctx, req)
	if err != nil {
		return nil, err
	}

	history := e.history(ctx, req)
	filters := req.opts.Filters
	filters.ExcludeIDs = append(append([]string(nil), filters.ExcludeIDs...), ownedItems(history)...)

	stageStart := time.Now()
	candidates, err := e.c.Retriever.Retrieve(ctx, emb.Vector, req.cfg.Retrieval.PoolSize, filters)
	metrics.RecordStage("retrieve", time.Since(stageStart))
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	if len(candidates) == 0 {
		return nil, errNoCandidates
	}

	stageStart = time.Now()
	pool, err := e.c.Scorer.Score(ctx, ScoreRequest{
		UserID:     req.userID,
		Candidates: candidates,
		Context:    req.opts.Context,
		Weights:    req.weights,
		Now:        req.now,
	})
	metrics.RecordStage("score", time.Since(stageStart))
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}

	stageStart = time.Now()
	page := e.rank(ctx, req, pool, history)
	sections := e.c.Ranker.Sections(ctx, pool, req.cfg.Diversity.SectionSize)
	metrics.RecordStage("rank", time.Since(stageStart))

	if req.opts.IncludeExplanations {
		e.explainAll(req, page, sections, emb.Confidence)
	}

	return &RecommendationResult{
		UserID:   req.userID,
		Items:    page,
		Sections: sections,
		Metadata: ResultMetadata{
			TotalCandidates: len(pool),
			UserConfidence:  emb.Confidence,
		},
	}, nil
}

// userEmbedding looks the embedding up under EmbedTimeout. On a timeout it
// serves the last known snapshot when one exists.
func (e *Engine) userEmbedding(ctx context.Context, req *request) (*UserEmbedding, error) {
	ectx, cancel := context.WithTimeout(ctx, req.cfg.Limits.EmbedTimeout)
	defer cancel()

	stageStart := time.Now()
	emb, err := e.c.Embeddings.GetUserEmbedding(ectx, req.userID)
	metrics.RecordStage("embedding", time.Since(stageStart))

	if err != nil {
		if errors.Is(err, ErrInsufficientData) {
			return nil, err
		}
		if !IsRetryable(err) && ectx.Err() == nil {
			return nil, fmt.Errorf("user embedding: %w", err)
		}
		snap, ok := e.c.Embeddings.Snapshot(req.userID)
		if !ok {
			return nil, fmt.Errorf("user embedding: %w: %w", ErrUpstreamTimeout, err)
		}
		req.logger.Debug().Err(err).Msg("using embedding snapshot")
		emb = snap
	}
	if emb == nil || len(emb.Vector) == 0 || vectormath.IsZero(emb.Vector) {
		return nil, ErrInsufficientData
	}
	return emb, nil
}

// history reads the user's interaction log under CatalogTimeout. Failures
// are logged and yield an empty history.
func (e *Engine) history(ctx context.Context, req *request) []InteractionEvent {
	hctx, cancel := context.WithTimeout(ctx, req.cfg.Limits.CatalogTimeout)
	defer cancel()

	var since time.Time
	if lookback := req.cfg.Embedding.HistoryLookback; lookback > 0 {
		since = req.now.Add(-lookback)
	}
	events, err := e.c.History.History(hctx, req.userID, since)
	if err != nil {
		req.logger.Warn().Err(err).Msg("history unavailable, owned items not excluded")
		return nil
	}
	return events
}

// ownedItems returns items the user already owns, rated or rejected.
func ownedItems(events []InteractionEvent) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for i := range events {
		switch events[i].Type {
		case InteractionCollectionAdd, InteractionRate, InteractionDislike:
		default:
			continue
		}
		if _, ok := seen[events[i].ItemID]; ok {
			continue
		}
		seen[events[i].ItemID] = struct{}{}
		out = append(out, events[i].ItemID)
	}
	sort.Strings(out)
	return out
}

// rank builds the page, calibrated to the user's family mix when enabled.
func (e *Engine) rank(ctx context.Context, req *request, pool []ScoredCandidate, history []InteractionEvent) []ScoredCandidate {
	if cr, ok := e.c.Ranker.(CalibratedRanker); ok && req.cfg.Diversity.CalibrationEnabled {
		if target := e.familyTarget(ctx, req, history); len(target) > 0 {
			return cr.RankCalibrated(ctx, pool, req.opts.MaxResults, target)
		}
	}
	return e.c.Ranker.Rank(ctx, pool, req.opts.MaxResults)
}

// familyTarget derives the calibration target from the most recent
// positive events.
func (e *Engine) familyTarget(ctx context.Context, req *request, history []InteractionEvent) map[string]float64 {
	positive := make([]InteractionEvent, 0)
	for i := len(history) - 1; i >= 0 && len(positive) < profileEvents; i-- {
		if history[i].IsPositive() {
			positive = append(positive, history[i])
		}
	}
	if len(positive) == 0 {
		return nil
	}

	lctx, cancel := context.WithTimeout(ctx, req.cfg.Limits.CatalogTimeout)
	defer cancel()

	items := make(map[string]Item, len(positive))
	for i := range positive {
		id := positive[i].ItemID
		if _, ok := items[id]; ok {
			continue
		}
		item, err := e.c.Catalog.GetItem(lctx, id)
		if err != nil {
			if lctx.Err() != nil {
				break
			}
			continue
		}
		items[id] = item
	}
	return FamilyProfile(positive, items)
}

// explainAll attaches explanations to the page and every section.
func (e *Engine) explainAll(req *request, page []ScoredCandidate, sections map[SectionName][]ScoredCandidate, confidence float64) {
	attach := func(list []ScoredCandidate) {
		for i := range list {
			exp := e.c.Explainer.Explain(&list[i], req.weights, confidence)
			list[i].Explanation = &exp
		}
	}
	attach(page)
	for _, name := range AllSections {
		attach(sections[name])
	}
}

// degraded serves the last good result for the request key, or the
// popularity list.
func (e *Engine) degraded(ctx context.Context, req *request, reason string) (*RecommendationResult, error) {
	metrics.RecordFallback(reason)
	if last, ok := e.stale.Get(req.key); ok {
		res := copyResult(last)
		res.Metadata.CacheHit = true
		res.Metadata.Degraded = true
		res.Metadata.ColdStart = false
		res.Metadata.FallbackReason = reason
		return res, nil
	}

	res, err := e.fallback(ctx, req, reason, true)
	if err != nil {
		return nil, err
	}
	res.Metadata.ColdStart = false
	return res, nil
}

// fallback builds the family-diverse popularity list. It never calls
// retrieval, so it is the path of last resort.
func (e *Engine) fallback(ctx context.Context, req *request, reason string, degraded bool) (*RecommendationResult, error) {
	if !degraded {
		metrics.RecordFallback(reason)
	}

	items, err := e.popularItems(context.WithoutCancel(ctx))
	if err != nil {
		return nil, fmt.Errorf("popularity list: %w", err)
	}

	res := &RecommendationResult{
		UserID:   req.userID,
		Items:    []ScoredCandidate{},
		Sections: emptySections(),
		Metadata: ResultMetadata{
			ColdStart:      true,
			Degraded:       degraded,
			FallbackReason: reason,
		},
	}
	if len(items) == 0 {
		res.Metadata.Empty = true
		return res, nil
	}

	eligible := e.filterFallback(req, items)
	poolSize := max(req.opts.MaxResults, min(len(eligible), req.cfg.Retrieval.PoolSize))
	pool := e.c.Ranker.ColdStart(eligible, poolSize)

	if cs, ok := e.c.Scorer.(ContextualScorer); ok {
		for i := range pool {
			pool[i].ContextualScore = cs.ContextualScore(&pool[i].Item, req.opts.Context, req.now)
		}
	}

	page := append([]ScoredCandidate(nil), pool[:min(req.opts.MaxResults, len(pool))]...)
	sections := e.c.Ranker.Sections(ctx, pool, req.cfg.Diversity.SectionSize)
	if req.opts.IncludeExplanations {
		e.explainAll(req, page, sections, 0)
	}

	res.Items = page
	res.Sections = sections
	res.Metadata.TotalCandidates = len(pool)
	return res, nil
}

// filterFallback applies the request filters to the popularity list.
// Expression errors drop the item.
func (e *Engine) filterFallback(req *request, items []Item) []Item {
	filters := req.opts.Filters
	expr := filters.Expression
	out := make([]Item, 0, len(items))
	for i := range items {
		if !filters.Match(&items[i]) {
			continue
		}
		if expr != "" && e.c.Filter != nil {
			ok, err := e.c.Filter.MatchExpression(expr, &items[i])
			if err != nil || !ok {
				continue
			}
		}
		out = append(out, items[i])
	}
	return out
}

// popularItems returns the cached catalog snapshot, loading it on first use.
func (e *Engine) popularItems(ctx context.Context) ([]Item, error) {
	if items := e.popular.Load(); items != nil {
		return *items, nil
	}
	if _, err := e.RefreshPopular(ctx); err != nil {
		return nil, err
	}
	return *e.popular.Load(), nil
}

// RefreshPopular reloads the catalog snapshot used by the cold-start and
// degraded paths, ordered by popularity. It returns the number of items.
func (e *Engine) RefreshPopular(ctx context.Context) (int, error) {
	e.popularMu.Lock()
	defer e.popularMu.Unlock()

	cfg := e.cfg.Load()
	lctx, cancel := context.WithTimeout(ctx, max(cfg.Limits.CatalogTimeout, time.Second))
	defer cancel()

	items, err := e.c.Catalog.SearchByFilters(lctx, Filters{})
	if err != nil {
		return 0, fmt.Errorf("load catalog: %w", err)
	}

	sorted := make([]Item, len(items))
	for i := range items {
		sorted[i] = items[i].Summary()
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := &sorted[i], &sorted[j]
		if a.Popularity != b.Popularity {
			return a.Popularity > b.Popularity
		}
		return a.ID < b.ID
	})
	e.popular.Store(&sorted)

	e.logger.Debug().Int("items", len(sorted)).Msg("popularity list refreshed")
	return len(sorted), nil
}

// finish stamps metadata, strips embeddings, records the served list and
// fills the caches.
func (e *Engine) finish(ctx context.Context, req *request, res *RecommendationResult, path string) *RecommendationResult {
	for i := range res.Items {
		res.Items[i].Item = res.Items[i].Item.Summary()
	}
	if res.Sections == nil {
		res.Sections = emptySections()
	}
	for _, name := range AllSections {
		list := res.Sections[name]
		if list == nil {
			list = []ScoredCandidate{}
		}
		for i := range list {
			list[i].Item = list[i].Item.Summary()
		}
		res.Sections[name] = list
	}

	res.UserID = req.userID
	res.Metadata.RequestID = req.id
	res.Metadata.AlgorithmVersion = AlgorithmVersion
	res.Metadata.Experiment = req.experiment
	res.Metadata.GeneratedAt = req.now
	res.Metadata.ProcessingTime = time.Since(req.start)

	if !res.Metadata.CacheHit && len(res.Items) > 0 {
		e.c.Evaluator.RecordServed(req.userID, req.experiment, res.Items, req.now)
	}

	if path == PathPersonalized || path == PathColdStart {
		e.stale.Set(req.key, copyResult(res))
		if req.cfg.Cache.Enabled {
			e.local.Set(req.key, copyResult(res))
			if e.c.Cache != nil {
				e.c.Cache.Set(ctx, req.key, res)
			}
		}
	}

	metrics.RecordRecommendation(path, req.experiment, res.Metadata.TotalCandidates, res.Metadata.ProcessingTime)
	e.health.Observe(res.Metadata.Degraded)

	req.logger.Debug().
		Str("path", path).
		Int("candidates", res.Metadata.TotalCandidates).
		Int("returned", len(res.Items)).
		Dur("latency", res.Metadata.ProcessingTime).
		Msg("recommendation complete")
	return res
}

// IngestFeedback applies one feedback event synchronously: the learner
// updates the user's embedding and the user's cached results are dropped.
func (e *Engine) IngestFeedback(ctx context.Context, event InteractionEvent) (LearningResult, error) {
	const op = "IngestFeedback"
	if e.closed.Load() {
		return LearningResult{}, newEngineError(op, ErrEngineClosed)
	}

	result, err := e.c.Learner.LearnFromInteraction(ctx, event)
	if err != nil {
		e.errorCount.Add(1)
		return result, newEngineError(op, err)
	}
	e.feedbackCount.Add(1)

	if !result.Duplicate {
		e.afterIngest(ctx, result.Event)
	}
	return result, nil
}

// IngestBatch applies many events. It returns one result per accepted
// event in timestamp order; per-event failures are joined into the error.
func (e *Engine) IngestBatch(ctx context.Context, events []InteractionEvent) ([]LearningResult, error) {
	const op = "IngestBatch"
	if e.closed.Load() {
		return nil, newEngineError(op, ErrEngineClosed)
	}

	results, err := e.c.Learner.LearnFromBatch(ctx, events)

	invalidated := make(map[string]struct{})
	for i := range results {
		if results[i].Duplicate {
			continue
		}
		e.feedbackCount.Add(1)
		e.c.Evaluator.RecordInteraction(e.stamp(results[i].Event))
		if _, ok := invalidated[results[i].UserID]; !ok {
			invalidated[results[i].UserID] = struct{}{}
			e.invalidateUser(ctx, results[i].UserID)
		}
	}
	if err != nil {
		e.errorCount.Add(1)
		return results, newEngineError(op, err)
	}
	return results, nil
}

func (e *Engine) afterIngest(ctx context.Context, event InteractionEvent) {
	e.invalidateUser(ctx, event.UserID)
	e.c.Evaluator.RecordInteraction(e.stamp(event))
}

func (e *Engine) stamp(event InteractionEvent) InteractionEvent {
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	return event
}

// invalidateUser drops every cached result for userID.
func (e *Engine) invalidateUser(ctx context.Context, userID string) {
	prefix := userID + "|"
	n := e.local.RemoveIf(func(key string) bool { return strings.HasPrefix(key, prefix) })
	metrics.RecordCacheInvalidation("local", n)
	if e.c.Cache != nil {
		e.c.Cache.InvalidateUser(ctx, userID)
	}
}

// SubmitFeedback validates event, fills its id and timestamp and hands it
// to the publisher. Without a publisher the event is ingested in place.
// It returns the event id.
func (e *Engine) SubmitFeedback(ctx context.Context, event InteractionEvent) (string, error) {
	const op = "SubmitFeedback"
	if e.closed.Load() {
		return "", newEngineError(op, ErrEngineClosed)
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.Timestamp = e.stamp(event).Timestamp
	if err := validateEvent(&event); err != nil {
		e.errorCount.Add(1)
		return event.ID, newEngineError(op, err)
	}

	if e.c.Publisher == nil {
		_, err := e.IngestFeedback(ctx, event)
		return event.ID, err
	}

	err := e.c.Publisher.PublishFeedback(ctx, event)
	metrics.RecordFeedbackPublish(err)
	if err != nil {
		e.errorCount.Add(1)
		return event.ID, newEngineError(op, err)
	}
	return event.ID, nil
}

// validateEvent checks the fields every consumer relies on.
func validateEvent(event *InteractionEvent) error {
	switch {
	case event.UserID == "":
		return fmt.Errorf("%w: missing user_id", ErrInvalidEvent)
	case event.ItemID == "":
		return fmt.Errorf("%w: missing item_id", ErrInvalidEvent)
	case !event.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, event.Type)
	case event.Type == InteractionRate && (event.Strength < MinRating || event.Strength > MaxRating):
		return fmt.Errorf("%w: rating %.1f outside [%.0f, %.0f]", ErrInvalidEvent, event.Strength, MinRating, MaxRating)
	}
	return nil
}

// ExplainRecommendation explains why itemID would be recommended to userID.
//
//nolint:gocritic // hugeParam: rc passed by value for immutability
func (e *Engine) ExplainRecommendation(ctx context.Context, userID, itemID string, rc RequestContext) (*Explanation, error) {
	const op = "ExplainRecommendation"
	if e.closed.Load() {
		return nil, newEngineError(op, ErrEngineClosed)
	}
	if err := e.checkUser(ctx, userID); err != nil {
		e.errorCount.Add(1)
		return nil, newEngineError(op, err)
	}

	cfg := e.cfg.Load()
	weights := cfg.Weights.Normalize()
	now := e.now()

	lctx, cancel := context.WithTimeout(ctx, max(cfg.Limits.CatalogTimeout, cfg.Limits.RequestBudget))
	item, err := e.c.Catalog.GetItem(lctx, itemID)
	cancel()
	if err != nil {
		return nil, newEngineError(op, err)
	}

	req := &request{userID: userID, cfg: cfg, now: now, logger: e.logger}
	emb, err := e.userEmbedding(ctx, req)
	if err != nil {
		if !errors.Is(err, ErrInsufficientData) {
			return nil, newEngineError(op, err)
		}
		candidate := ScoredCandidate{
			ItemID:        item.ID,
			Item:          item.Summary(),
			CombinedScore: vectormath.Clamp01(item.Popularity),
		}
		if cs, ok := e.c.Scorer.(ContextualScorer); ok {
			candidate.ContextualScore = cs.ContextualScore(&item, rc.Normalized(), now)
		}
		exp := e.c.Explainer.Explain(&candidate, weights, 0)
		return &exp, nil
	}

	similarity := 0.0
	if len(item.Embedding) == len(emb.Vector) {
		if sim, err := vectormath.Cosine(emb.Vector, item.Embedding); err == nil {
			similarity = sim
		}
	}

	scored, err := e.c.Scorer.Score(ctx, ScoreRequest{
		UserID:     userID,
		Candidates: []Candidate{{Item: item, Similarity: similarity}},
		Context:    rc.Normalized(),
		Weights:    weights,
		Now:        now,
	})
	if err != nil {
		return nil, newEngineError(op, err)
	}
	if len(scored) == 0 {
		return nil, newEngineError(op, fmt.Errorf("%w: %s", ErrUnknownItem, itemID))
	}

	exp := e.c.Explainer.Explain(&scored[0], weights, emb.Confidence)
	return &exp, nil
}

// EvaluateQuality computes ranking quality over the served lists of the
// last window (all retained lists when window <= 0) and publishes the
// values as gauges.
func (e *Engine) EvaluateQuality(_ context.Context, window time.Duration) (*QualityReport, error) {
	const op = "EvaluateQuality"
	if e.closed.Load() {
		return nil, newEngineError(op, ErrEngineClosed)
	}

	report := e.c.Evaluator.Evaluate(window, e.now())
	metrics.RecordQuality("all", report.Sessions, qualityValues(&report))
	for name, variant := range report.Variants {
		metrics.RecordQuality(name, variant.Sessions, qualityValues(variant))
	}
	return &report, nil
}

func qualityValues(r *QualityReport) map[string]float64 {
	return map[string]float64{
		"precision_at_k": r.PrecisionAtK,
		"recall_at_k":    r.RecallAtK,
		"ndcg":           r.NDCG,
		"diversity":      r.Diversity,
		"freshness":      r.Freshness,
	}
}

// LearnerState returns the learner state of userID.
func (e *Engine) LearnerState(userID string) LearnerState {
	return e.c.Learner.State(userID)
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() *Config {
	return e.cfg.Load().Clone()
}

// UpdateConfig validates and atomically swaps the configuration. Cached
// results are dropped because they may reflect the old weights.
func (e *Engine) UpdateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	e.cfg.Store(cfg.Clone())
	e.local.Clear()
	e.logger.Info().Strs("experiments", cfg.ExperimentNames()).Msg("configuration updated")
	return nil
}

// EngineStats is a point-in-time view of engine counters.
type EngineStats struct {
	Requests      int64   `json:"requests"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	ColdStarts    int64   `json:"cold_starts"`
	Degraded      int64   `json:"degraded"`
	Errors        int64   `json:"errors"`
	Feedback      int64   `json:"feedback"`
	CachedResults int     `json:"cached_results"`
	PopularItems  int     `json:"popular_items"`
	DegradedRatio float64 `json:"degraded_ratio"`
}

// Stats returns the engine counters.
func (e *Engine) Stats() EngineStats {
	ratio, _ := e.health.Ratio()
	popular := 0
	if items := e.popular.Load(); items != nil {
		popular = len(*items)
	}
	return EngineStats{
		Requests:      e.requestCount.Load(),
		CacheHits:     e.cacheHits.Load(),
		CacheMisses:   e.cacheMisses.Load(),
		ColdStarts:    e.coldStarts.Load(),
		Degraded:      e.degradedCount.Load(),
		Errors:        e.errorCount.Load(),
		Feedback:      e.feedbackCount.Load(),
		CachedResults: e.local.Len(),
		PopularItems:  popular,
		DegradedRatio: ratio,
	}
}

// Healthy reports whether at most maxDegraded of the responses in the
// recent window were degraded.
func (e *Engine) Healthy(maxDegraded float64) bool {
	if e.closed.Load() {
		return false
	}
	ratio, total := e.health.Ratio()
	return total == 0 || ratio <= maxDegraded
}

// Close stops accepting requests. It is idempotent.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.local.Clear()
	e.logger.Info().Msg("recommendation engine closed")
	return nil
}

// resultKey identifies a cacheable request. Keys start with the user id so
// a user's entries can be dropped by prefix.
func resultKey(userID string, opts *Options) string {
	keyed := struct {
		MaxResults int            `json:"n"`
		Explain    bool           `json:"x"`
		Context    RequestContext `json:"c"`
		Filters    Filters        `json:"f"`
		Experiment string         `json:"e"`
		Algorithm  string         `json:"a"`
	}{opts.MaxResults, opts.IncludeExplanations, opts.Context, opts.Filters, opts.Experiment, AlgorithmVersion}

	h := fnv.New64a()
	if b, err := json.Marshal(keyed); err == nil {
		_, _ = h.Write(b)
	}
	return userID + "|" + hex.EncodeToString(h.Sum(nil))
}

func emptySections() map[SectionName][]ScoredCandidate {
	out := make(map[SectionName][]ScoredCandidate, len(AllSections))
	for _, name := range AllSections {
		out[name] = []ScoredCandidate{}
	}
	return out
}

// copyResult copies the result's slices so callers can mutate metadata
// and lists without touching the cached value.
func copyResult(res *RecommendationResult) *RecommendationResult {
	out := *res
	out.Items = append([]ScoredCandidate{}, res.Items...)
	out.Sections = make(map[SectionName][]ScoredCandidate, len(res.Sections))
	for name, list := range res.Sections {
		out.Sections[name] = append([]ScoredCandidate{}, list...)
	}
	return &out
}

// fallbackReason classifies a retryable failure.
func fallbackReason(err error) string {
	switch {
	case errors.Is(err, ErrIndexUnavailable):
		return ReasonIndexUnavailable
	case errors.Is(err, ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return ReasonUpstreamError
	}
}
