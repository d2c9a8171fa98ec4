// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/scentmatch/internal/metrics"
	"github.com/tomtom215/scentmatch/internal/recommend"
)

// DefaultBreakerName labels the ANN breaker in metrics and logs.
const DefaultBreakerName = "ann-index"

// Retriever implements recommend.CandidateRetriever over an ANNIndex.
type Retriever struct {
	cfg            recommend.RetrievalConfig
	index          recommend.ANNIndex
	catalog        recommend.CatalogLookup
	filter         *CELFilter
	breaker        *gobreaker.CircuitBreaker[[]recommend.Neighbor]
	breakerName    string
	catalogTimeout time.Duration
	logger         zerolog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithFilter shares a CEL filter (and its program cache) with other components.
func WithFilter(f *CELFilter) Option {
	return func(r *Retriever) { r.filter = f }
}

// WithCatalogTimeout sets the deadline for each catalog lookup.
func WithCatalogTimeout(d time.Duration) Option {
	return func(r *Retriever) { r.catalogTimeout = d }
}

// WithBreakerName overrides the breaker name.
func WithBreakerName(name string) Option {
	return func(r *Retriever) { r.breakerName = name }
}

// NewRetriever creates a retriever.
//
//nolint:gocritic // hugeParam: logger passed by value for zerolog chaining
func NewRetriever(cfg recommend.RetrievalConfig, index recommend.ANNIndex, catalog recommend.CatalogLookup, logger zerolog.Logger, opts ...Option) (*Retriever, error) {
	defaults := recommend.DefaultConfig().Retrieval
	if cfg.OverfetchFactor < 2 {
		cfg.OverfetchFactor = defaults.OverfetchFactor
	}
	if cfg.MaxCandidates < 1 {
		cfg.MaxCandidates = defaults.MaxCandidates
	}
	if cfg.BreakerFailures < 1 {
		cfg.BreakerFailures = defaults.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = defaults.BreakerTimeout
	}

	r := &Retriever{
		cfg:         cfg,
		index:       index,
		catalog:     catalog,
		breakerName: DefaultBreakerName,
		logger:      logger.With().Str("component", "retriever").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.filter == nil {
		f, err := NewCELFilter(defaultProgramCacheSize)
		if err != nil {
			return nil, err
		}
		r.filter = f
	}

	metrics.CircuitBreakerState.WithLabelValues(r.breakerName).Set(0)
	r.breaker = gobreaker.NewCircuitBreaker[[]recommend.Neighbor](gobreaker.Settings{
		Name:        r.breakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			// Caller mistakes and cancellations say nothing about index health.
			return err == nil ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, recommend.ErrDimensionMismatch)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state transition")
			metrics.RecordBreakerTransition(name, from.String(), to.String())
		},
	})
	return r, nil
}

// BreakerState returns the breaker state name (closed, half-open, open).
func (r *Retriever) BreakerState() string {
	return r.breaker.State().String()
}

// Filter returns the CEL filter used for expressions.
func (r *Retriever) Filter() *CELFilter {
	return r.filter
}

// Retrieve returns up to k candidates passing filters, ordered by content
// similarity (ties by ID).
//
//nolint:gocritic // hugeParam: Filters passed by value for immutability
func (r *Retriever) Retrieve(ctx context.Context, vector []float64, k int, filters recommend.Filters) ([]recommend.Candidate, error) {
	start := time.Now()
	out, err := r.retrieve(ctx, vector, k, filters)
	metrics.RecordRetrieval(time.Since(start), failureReason(err))
	return out, err
}

//nolint:gocritic // hugeParam: Filters passed by value for immutability
func (r *Retriever) retrieve(ctx context.Context, vector []float64, k int, filters recommend.Filters) ([]recommend.Candidate, error) {
	if k <= 0 {
		return nil, nil
	}

	var prg cel.Program
	if filters.Expression != "" {
		var err error
		if prg, err = r.filter.Compile(filters.Expression); err != nil {
			return nil, err
		}
	}

	exclude := filters.ExcludeSet()
	maxCandidates := max(r.cfg.MaxCandidates, k)
	fetch := k
	if filters.HasConstraints() {
		fetch = k * r.cfg.OverfetchFactor
	}

	items := make(map[string]*recommend.Item)
	var out []recommend.Candidate
	for {
		fetch = min(fetch, maxCandidates)
		neighbors, err := r.query(ctx, vector, fetch, exclude)
		if err != nil {
			return nil, err
		}

		out = out[:0]
		for _, n := range neighbors {
			item, ok := items[n.ID]
			if !ok {
				looked, err := r.lookup(ctx, n.ID)
				switch {
				case errors.Is(err, recommend.ErrUnknownItem):
					// Index and catalog can briefly disagree after a removal.
					items[n.ID] = nil
					continue
				case err != nil:
					return nil, err
				}
				item = &looked
				items[n.ID] = item
			}
			if item == nil || !filters.Match(item) {
				continue
			}
			if prg != nil {
				match, err := r.filter.Match(prg, item)
				if err != nil {
					return nil, err
				}
				if !match {
					continue
				}
			}
			out = append(out, recommend.Candidate{Item: *item, Similarity: n.Similarity})
		}

		exhausted := len(neighbors) < fetch
		if len(out) >= k || exhausted || fetch >= maxCandidates {
			break
		}
		fetch *= r.cfg.OverfetchFactor
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Item.ID < out[j].Item.ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

type queryResult struct {
	neighbors []recommend.Neighbor
	err       error
}

// query runs one breaker-protected index call under QueryTimeout. The
// deadline holds even if the index ignores its context.
func (r *Retriever) query(ctx context.Context, vector []float64, k int, exclude map[string]struct{}) ([]recommend.Neighbor, error) {
	qctx, cancel := ctx, context.CancelFunc(func() {})
	if r.cfg.QueryTimeout > 0 {
		qctx, cancel = context.WithTimeout(ctx, r.cfg.QueryTimeout)
	}
	defer cancel()

	neighbors, err := r.breaker.Execute(func() ([]recommend.Neighbor, error) {
		ch := make(chan queryResult, 1)
		go func() {
			n, err := r.index.Query(qctx, vector, k, exclude)
			ch <- queryResult{neighbors: n, err: err}
		}()
		select {
		case res := <-ch:
			return res.neighbors, res.err
		case <-qctx.Done():
			return nil, qctx.Err()
		}
	})

	switch {
	case err == nil:
		return neighbors, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("ann query: %w: breaker %s", recommend.ErrIndexUnavailable, r.breaker.State())
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, recommend.ErrUpstreamTimeout):
		return nil, fmt.Errorf("ann query exceeded %v: %w", r.cfg.QueryTimeout, recommend.ErrUpstreamTimeout)
	case errors.Is(err, recommend.ErrDimensionMismatch), errors.Is(err, recommend.ErrIndexUnavailable):
		return nil, err
	default:
		return nil, fmt.Errorf("ann query: %w: %v", recommend.ErrIndexUnavailable, err)
	}
}

func (r *Retriever) lookup(ctx context.Context, id string) (recommend.Item, error) {
	if r.catalogTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.catalogTimeout)
		defer cancel()
	}
	item, err := r.catalog.GetItem(ctx, id)
	if errors.Is(err, context.DeadlineExceeded) {
		return recommend.Item{}, fmt.Errorf("catalog lookup %s: %w", id, recommend.ErrUpstreamTimeout)
	}
	return item, err
}

// failureReason labels retrieval failures for metrics.
func failureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, recommend.ErrUpstreamTimeout):
		return "timeout"
	case errors.Is(err, recommend.ErrIndexUnavailable):
		return "unavailable"
	case errors.Is(err, recommend.ErrInvalidFilter):
		return "invalid_filter"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}

var _ recommend.CandidateRetriever = (*Retriever)(nil)
