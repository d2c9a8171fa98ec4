// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package embedding

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scentmatch/internal/recommend"
	"github.com/tomtom215/scentmatch/internal/recommend/vectormath"
)

// Store owns per-user embeddings. It is safe for concurrent use.
type Store struct {
	cfg            recommend.EmbeddingConfig
	catalog        recommend.CatalogLookup
	history        recommend.InteractionStore
	repo           Repository
	catalogTimeout time.Duration
	logger         zerolog.Logger
	now            func() time.Time

	shards []*shard

	recomputes   atomic.Int64
	incrementals atomic.Int64
	staleServes  atomic.Int64
}

type shard struct {
	mu    sync.Mutex
	slots map[string]*userSlot
}

// userSlot holds one user's state. mu serializes writers; snap is read
// lock-free.
type userSlot struct {
	mu     sync.Mutex
	snap   atomic.Pointer[recommend.UserEmbedding]
	loaded atomic.Bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source (tests use a fixed clock).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRepository sets the persistence backend. Defaults to memory.
func WithRepository(repo Repository) Option {
	return func(s *Store) { s.repo = repo }
}

// WithCatalogTimeout sets the deadline for each catalog lookup.
func WithCatalogTimeout(d time.Duration) Option {
	return func(s *Store) { s.catalogTimeout = d }
}

// NewStore creates an embedding store.
//
//nolint:gocritic // hugeParam: logger passed by value for zerolog chaining
func NewStore(cfg recommend.EmbeddingConfig, catalog recommend.CatalogLookup, history recommend.InteractionStore, logger zerolog.Logger, opts ...Option) *Store {
	if cfg.Shards < 1 {
		cfg.Shards = 64
	}
	if cfg.RecomputeEvery < 1 {
		cfg.RecomputeEvery = 20
	}
	if cfg.HalfLife <= 0 {
		cfg.HalfLife = 90 * 24 * time.Hour
	}
	if cfg.ConfidenceHalfPoint <= 0 {
		cfg.ConfidenceHalfPoint = 5
	}

	s := &Store{
		cfg:     cfg,
		catalog: catalog,
		history: history,
		repo:    NewMemoryRepository(),
		logger:  logger.With().Str("component", "embedding_store").Logger(),
		now:     time.Now,
		shards:  make([]*shard, cfg.Shards),
	}
	for i := range s.shards {
		s.shards[i] = &shard{slots: make(map[string]*userSlot)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns counters for observability.
func (s *Store) Stats() (recomputes, incrementals, staleServes int64) {
	return s.recomputes.Load(), s.incrementals.Load(), s.staleServes.Load()
}

func (s *Store) shardFor(userID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// slot returns the user's slot, creating it if needed.
func (s *Store) slot(userID string) *userSlot {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	us, ok := sh.slots[userID]
	if !ok {
		us = &userSlot{}
		sh.slots[userID] = us
	}
	return us
}

// peekSlot returns the user's slot without creating it.
func (s *Store) peekSlot(userID string) *userSlot {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.slots[userID]
}

// Snapshot returns the last published embedding without blocking.
// The returned value must not be modified.
func (s *Store) Snapshot(userID string) (*recommend.UserEmbedding, bool) {
	us := s.peekSlot(userID)
	if us == nil {
		return nil, false
	}
	snap := us.snap.Load()
	return snap, snap != nil
}

// Users returns the ids of all users with a published or persisted embedding.
func (s *Store) Users(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, us := range sh.slots {
			if us.snap.Load() != nil {
				seen[id] = struct{}{}
			}
		}
		sh.mu.Unlock()
	}
	persisted, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	for _, id := range persisted {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// GetUserEmbedding returns the user's embedding, recomputing it when stale.
//
// Users without usable history get an error wrapping ErrInsufficientData.
// If another goroutine is updating the user, the last known snapshot is
// returned instead of waiting.
func (s *Store) GetUserEmbedding(ctx context.Context, userID string) (*recommend.UserEmbedding, error) {
	us := s.peekSlot(userID)
	if us == nil {
		var err error
		if us, err = s.adopt(ctx, userID); err != nil {
			return nil, err
		}
	}
	now := s.now()

	snap := us.snap.Load()
	if snap == nil && !us.loaded.Load() {
		us.mu.Lock()
		s.loadLocked(ctx, us, userID)
		us.mu.Unlock()
		snap = us.snap.Load()
	}

	if snap != nil && s.fresh(snap, now) {
		return snap, nil
	}

	if snap != nil {
		// Never block the read path on a writer.
		if !us.mu.TryLock() {
			s.staleServes.Add(1)
			return snap, nil
		}
	} else {
		us.mu.Lock()
	}
	defer us.mu.Unlock()

	// Re-check after acquiring the lock.
	if cur := us.snap.Load(); cur != nil && s.fresh(cur, now) {
		return cur, nil
	}

	emb, err := s.recomputeLocked(ctx, us, userID, now)
	if err != nil {
		if snap != nil && !errors.Is(err, recommend.ErrInsufficientData) && !errors.Is(err, recommend.ErrDimensionMismatch) {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("recompute failed, serving last known embedding")
			s.staleServes.Add(1)
			return snap, nil
		}
		return nil, err
	}
	return emb, nil
}

// adopt creates the slot of a user first seen on the read path, once there
// is something to put in it. Ids with neither a persisted embedding nor
// usable history leave no slot behind.
func (s *Store) adopt(ctx context.Context, userID string) (*userSlot, error) {
	computed := false
	emb, err := s.repo.Load(ctx, userID)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		if emb, err = s.compute(ctx, userID, s.now()); err != nil {
			return nil, err
		}
		computed = true
	default:
		// The slot path logs the failure and retries the load.
		return s.slot(userID), nil
	}

	us := s.slot(userID)
	us.mu.Lock()
	defer us.mu.Unlock()
	if us.snap.Load() != nil {
		return us, nil
	}
	if computed {
		s.recomputes.Add(1)
		s.publishLocked(ctx, us, emb)
	} else {
		us.snap.Store(emb)
		us.loaded.Store(true)
	}
	return us, nil
}

// Slots counts the users holding in-process state.
func (s *Store) Slots() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.slots)
		sh.mu.Unlock()
	}
	return n
}

// Recompute forces a full recompute from history.
func (s *Store) Recompute(ctx context.Context, userID string) (*recommend.UserEmbedding, error) {
	us := s.slot(userID)
	us.mu.Lock()
	defer us.mu.Unlock()
	return s.recomputeLocked(ctx, us, userID, s.now())
}

// UpdateFromInteraction folds one event into the user's embedding.
//
// The event must already be appended to the interaction store so that a
// triggered full recompute sees it. It returns the embedding before and
// after the update; before is nil for a user's first event.
func (s *Store) UpdateFromInteraction(ctx context.Context, event recommend.InteractionEvent) (before, after *recommend.UserEmbedding, err error) {
	us := s.slot(event.UserID)
	us.mu.Lock()
	defer us.mu.Unlock()

	if !us.loaded.Load() {
		s.loadLocked(ctx, us, event.UserID)
	}
	before = us.snap.Load()

	after, err = s.applyLocked(ctx, us, event.UserID, before, []recommend.InteractionEvent{event}, nil)
	if err != nil {
		return before, nil, err
	}
	return before, after, nil
}

// ApplyBatch folds events for a single user in order under one lock and
// persists once. steps receives the confidence after each applied event
// (NaN for events that were skipped).
func (s *Store) ApplyBatch(ctx context.Context, userID string, events []recommend.InteractionEvent) (before, after *recommend.UserEmbedding, steps []float64, err error) {
	us := s.slot(userID)
	us.mu.Lock()
	defer us.mu.Unlock()

	if !us.loaded.Load() {
		s.loadLocked(ctx, us, userID)
	}
	before = us.snap.Load()

	steps = make([]float64, len(events))
	after, err = s.applyLocked(ctx, us, userID, before, events, steps)
	if err != nil {
		return before, nil, steps, err
	}
	return before, after, steps, nil
}

// Blend moves the user's vector toward target by t in [0, 1] and persists it.
// It resets the pending update counter.
func (s *Store) Blend(ctx context.Context, userID string, target []float64, t float64) (*recommend.UserEmbedding, error) {
	us := s.slot(userID)
	us.mu.Lock()
	defer us.mu.Unlock()

	cur := us.snap.Load()
	if cur == nil {
		return nil, fmt.Errorf("blend %s: %w", userID, recommend.ErrInsufficientData)
	}
	v, err := vectormath.Lerp(cur.Vector, target, t)
	if err != nil {
		return nil, fmt.Errorf("blend %s: %w", userID, err)
	}

	next := cur.Clone()
	next.Vector = v
	next.UpdatedAt = s.now()
	next.PendingUpdates = 0
	s.publishLocked(ctx, us, next)
	return next, nil
}

func (s *Store) fresh(emb *recommend.UserEmbedding, now time.Time) bool {
	if emb.PendingUpdates >= s.cfg.RecomputeEvery {
		return false
	}
	if s.cfg.FreshnessTTL > 0 && now.Sub(emb.ComputedAt) > s.cfg.FreshnessTTL {
		return false
	}
	return true
}

// loadLocked populates the slot from the repository once. Caller holds us.mu.
func (s *Store) loadLocked(ctx context.Context, us *userSlot, userID string) {
	if us.loaded.Load() {
		return
	}
	emb, err := s.repo.Load(ctx, userID)
	switch {
	case err == nil:
		us.snap.Store(emb)
	case errors.Is(err, ErrNotFound):
	default:
		// Leave loaded=false so the next call retries.
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to load persisted embedding")
		return
	}
	us.loaded.Store(true)
}

// publishLocked swaps the snapshot and persists it. Caller holds us.mu.
func (s *Store) publishLocked(ctx context.Context, us *userSlot, emb *recommend.UserEmbedding) {
	us.snap.Store(emb)
	us.loaded.Store(true)
	if err := s.repo.Save(ctx, emb); err != nil {
		// The in-memory snapshot stays authoritative; the next write retries.
		s.logger.Error().Err(err).Str("user_id", emb.UserID).Msg("failed to persist user embedding")
	}
}

// applyLocked applies events incrementally on top of cur. Caller holds us.mu.
func (s *Store) applyLocked(ctx context.Context, us *userSlot, userID string, cur *recommend.UserEmbedding, events []recommend.InteractionEvent, steps []float64) (*recommend.UserEmbedding, error) {
	now := s.now()
	next := s.decayedCopy(cur, userID, now)
	applied := 0

	for i := range events {
		ev := &events[i]
		if steps != nil {
			steps[i] = math.NaN()
		}

		item, err := s.lookup(ctx, ev.ItemID)
		if err != nil {
			return nil, err
		}
		if len(item.Embedding) == 0 {
			continue
		}
		if err := vectormath.Validate(item.Embedding, s.cfg.Dimension); err != nil {
			return nil, fmt.Errorf("item %s: %w", ev.ItemID, err)
		}

		d := Decay(now.Sub(ev.Timestamp), s.cfg.HalfLife)
		w := ev.SignalWeight() * d

		next.InteractionCount++
		next.EffectiveCount += d
		if w != 0 {
			mass := next.WeightMass
			if next.Vector == nil {
				next.Vector = make([]float64, len(item.Embedding))
			}
			denom := mass + math.Abs(w)
			for j := range next.Vector {
				next.Vector[j] = (mass*next.Vector[j] + w*item.Embedding[j]) / denom
			}
			next.WeightMass = denom
		}
		next.PendingUpdates++
		next.Confidence = Confidence(next.EffectiveCount, s.cfg.ConfidenceHalfPoint)
		applied++
		s.incrementals.Add(1)

		if steps != nil {
			steps[i] = next.Confidence
		}
	}

	if applied == 0 {
		if cur == nil {
			return nil, fmt.Errorf("user %s: %w", next.UserID, recommend.ErrInsufficientData)
		}
		return cur, nil
	}

	next.UpdatedAt = now
	if next.PendingUpdates >= s.cfg.RecomputeEvery || next.Vector == nil {
		full, err := s.recomputeLocked(ctx, us, next.UserID, now)
		if err == nil {
			return full, nil
		}
		if next.Vector == nil {
			return nil, err
		}
		s.logger.Warn().Err(err).Str("user_id", next.UserID).Msg("scheduled recompute failed, keeping incremental embedding")
	}

	s.publishLocked(ctx, us, next)
	return next, nil
}

// decayedCopy returns cur with its mass and effective count decayed to now.
// The vector direction is unaffected by uniform decay.
func (s *Store) decayedCopy(cur *recommend.UserEmbedding, userID string, now time.Time) *recommend.UserEmbedding {
	if cur == nil {
		return &recommend.UserEmbedding{UserID: userID, ComputedAt: now}
	}
	next := cur.Clone()
	d := Decay(now.Sub(cur.UpdatedAt), s.cfg.HalfLife)
	next.WeightMass *= d
	next.EffectiveCount *= d
	return next
}

// recomputeLocked rebuilds the embedding from the full history. Caller holds us.mu.
func (s *Store) recomputeLocked(ctx context.Context, us *userSlot, userID string, now time.Time) (*recommend.UserEmbedding, error) {
	emb, err := s.compute(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	s.recomputes.Add(1)
	s.publishLocked(ctx, us, emb)
	return emb, nil
}

// compute is the pure recomputation: no state is touched.
func (s *Store) compute(ctx context.Context, userID string, now time.Time) (*recommend.UserEmbedding, error) {
	var since time.Time
	if s.cfg.HistoryLookback > 0 {
		since = now.Add(-s.cfg.HistoryLookback)
	}
	events, err := s.history.History(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", userID, err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("user %s has no interactions: %w", userID, recommend.ErrInsufficientData)
	}

	vectors := make([][]float64, 0, len(events))
	weights := make([]float64, 0, len(events))
	items := make(map[string]recommend.Item, len(events))
	var eff, mass float64
	var counted int

	for i := range events {
		ev := &events[i]
		item, ok := items[ev.ItemID]
		if !ok {
			item, err = s.lookup(ctx, ev.ItemID)
			if err != nil {
				if errors.Is(err, recommend.ErrUnknownItem) {
					// Items can leave the catalog after the fact.
					s.logger.Debug().Str("item_id", ev.ItemID).Msg("skipping interaction with unknown item")
					continue
				}
				return nil, err
			}
			items[ev.ItemID] = item
		}
		if len(item.Embedding) == 0 {
			continue
		}
		if err := vectormath.Validate(item.Embedding, s.cfg.Dimension); err != nil {
			return nil, fmt.Errorf("item %s: %w", ev.ItemID, err)
		}

		d := Decay(now.Sub(ev.Timestamp), s.cfg.HalfLife)
		w := ev.SignalWeight() * d
		counted++
		eff += d
		if w == 0 {
			continue
		}
		mass += math.Abs(w)
		vectors = append(vectors, item.Embedding)
		weights = append(weights, w)
	}

	if len(vectors) == 0 {
		return nil, fmt.Errorf("user %s has no usable interactions: %w", userID, recommend.ErrInsufficientData)
	}

	vec, err := vectormath.WeightedAverage(vectors, weights)
	if err != nil {
		if errors.Is(err, vectormath.ErrZeroWeight) {
			return nil, fmt.Errorf("user %s: %w", userID, recommend.ErrInsufficientData)
		}
		return nil, fmt.Errorf("average embeddings for %s: %w", userID, err)
	}

	return &recommend.UserEmbedding{
		UserID:           userID,
		Vector:           vec,
		UpdatedAt:        now,
		ComputedAt:       now,
		InteractionCount: counted,
		EffectiveCount:   eff,
		WeightMass:       mass,
		Confidence:       Confidence(eff, s.cfg.ConfidenceHalfPoint),
	}, nil
}

func (s *Store) lookup(ctx context.Context, itemID string) (recommend.Item, error) {
	if s.catalogTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.catalogTimeout)
		defer cancel()
	}
	item, err := s.catalog.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return recommend.Item{}, fmt.Errorf("catalog lookup %s: %w", itemID, recommend.ErrUpstreamTimeout)
		}
		return recommend.Item{}, fmt.Errorf("catalog lookup %s: %w", itemID, err)
	}
	return item, nil
}

var _ recommend.EmbeddingProvider = (*Store)(nil)
