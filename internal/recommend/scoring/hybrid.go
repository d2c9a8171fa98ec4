// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package scoring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/scentmatch/internal/recommend"
	"github.com/tomtom215/scentmatch/internal/recommend/vectormath"
)

// minChunk is the smallest number of candidates worth a goroutine.
const minChunk = 32

// HybridScorer implements recommend.Scorer.
type HybridScorer struct {
	collab  recommend.CollaborativeSignal
	workers int
	now     func() time.Time
	logger  zerolog.Logger
}

// Option configures a HybridScorer.
type Option func(*HybridScorer)

// WithCollaborative sets the collaborative signal. Without one the
// collaborative score is always 0.
func WithCollaborative(signal recommend.CollaborativeSignal) Option {
	return func(s *HybridScorer) { s.collab = signal }
}

// WithClock sets the clock used when a request carries no time.
func WithClock(now func() time.Time) Option {
	return func(s *HybridScorer) { s.now = now }
}

// NewHybridScorer creates a scorer that uses up to workers goroutines.
//
//nolint:gocritic // hugeParam: logger passed by value for zerolog chaining
func NewHybridScorer(workers int, logger zerolog.Logger, opts ...Option) *HybridScorer {
	if workers < 1 {
		workers = 1
	}
	s := &HybridScorer{
		workers: workers,
		now:     time.Now,
		logger:  logger.With().Str("component", "scorer").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score scores every candidate and returns them sorted by combined score,
// ties broken by item ID. A failing collaborative signal degrades to zero
// collaborative scores rather than failing the request.
//
//nolint:gocritic // hugeParam: ScoreRequest passed by value for immutability
func (s *HybridScorer) Score(ctx context.Context, req recommend.ScoreRequest) ([]recommend.ScoredCandidate, error) {
	if len(req.Candidates) == 0 {
		return nil, nil
	}

	weights := req.Weights
	if weights.Sum() == 0 {
		weights = recommend.DefaultWeights()
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	now := req.Now
	if now.IsZero() {
		now = s.now()
	}
	rc := ResolveContext(req.Context, now)

	collab, err := s.collaborative(ctx, req.UserID, req.Candidates)
	if err != nil {
		return nil, err
	}

	out := make([]recommend.ScoredCandidate, len(req.Candidates))
	chunk := max(minChunk, (len(out)+s.workers-1)/s.workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for start := 0; start < len(out); start += chunk {
		end := min(start+chunk, len(out))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				out[i] = scoreOne(&req.Candidates[i], collab, rc, weights)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	SortByCombined(out)
	return out, nil
}

// collaborative fetches collaborative scores for all candidates.
func (s *HybridScorer) collaborative(ctx context.Context, userID string, candidates []recommend.Candidate) (map[string]float64, error) {
	if s.collab == nil || userID == "" {
		return nil, nil
	}
	ids := make([]string, len(candidates))
	for i := range candidates {
		ids[i] = candidates[i].Item.ID
	}
	scores, err := s.collab.Score(ctx, userID, ids)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("collaborative signal: %w", recommend.ErrUpstreamTimeout)
		}
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("collaborative signal failed, scoring without it")
		return nil, nil
	}
	return scores, nil
}

func scoreOne(c *recommend.Candidate, collab map[string]float64, rc recommend.RequestContext, w recommend.Weights) recommend.ScoredCandidate {
	sc := recommend.ScoredCandidate{
		ItemID:             c.Item.ID,
		Item:               c.Item,
		ContentScore:       ContentScore(c.Similarity),
		CollaborativeScore: vectormath.Clamp01(collab[c.Item.ID]),
		ContextualScore:    vectormath.Clamp01(ContextualScore(&c.Item, rc)),
	}
	sc.CombinedScore = Combine(sc.ContentScore, sc.CollaborativeScore, sc.ContextualScore, w)
	return sc
}

// ContentScore maps a cosine similarity in [-1, 1] to [0, 1].
func ContentScore(similarity float64) float64 {
	return vectormath.Clamp01((similarity + 1) / 2)
}

// Combine applies the weights and clamps the result to [0, 1].
//
//nolint:gocritic // hugeParam: Weights passed by value for immutability
func Combine(content, collaborative, contextual float64, w recommend.Weights) float64 {
	return vectormath.Clamp01(w.Content*content + w.Collaborative*collaborative + w.Contextual*contextual)
}

// SortByCombined orders candidates by combined score, then by item ID.
func SortByCombined(cs []recommend.ScoredCandidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].CombinedScore != cs[j].CombinedScore {
			return cs[i].CombinedScore > cs[j].CombinedScore
		}
		return cs[i].ItemID < cs[j].ItemID
	})
}

// ContextualScore scores one item against rc, resolving an empty season
// from now. A zero now uses the scorer's clock.
//
//nolint:gocritic // hugeParam: RequestContext passed by value for immutability
func (s *HybridScorer) ContextualScore(item *recommend.Item, rc recommend.RequestContext, now time.Time) float64 {
	if now.IsZero() {
		now = s.now()
	}
	return vectormath.Clamp01(ContextualScore(item, ResolveContext(rc, now)))
}

var (
	_ recommend.Scorer           = (*HybridScorer)(nil)
	_ recommend.ContextualScorer = (*HybridScorer)(nil)
)
