// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package learner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/scentmatch/internal/cache"
	"github.com/tomtom215/scentmatch/internal/metrics"
	"github.com/tomtom215/scentmatch/internal/recommend"
)

// Outcome labels for metrics.
const (
	outcomeApplied   = "applied"
	outcomeNoUpdate  = "no_update"
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"
	outcomeError     = "error"
)

// dedupeFalsePositiveRate sizes the Bloom filter in front of the dedupe LRU.
const dedupeFalsePositiveRate = 0.001

// EmbeddingStore is the subset of the embedding store the learner drives.
type EmbeddingStore interface {
	Snapshot(userID string) (*recommend.UserEmbedding, bool)
	UpdateFromInteraction(ctx context.Context, event recommend.InteractionEvent) (before, after *recommend.UserEmbedding, err error)
	ApplyBatch(ctx context.Context, userID string, events []recommend.InteractionEvent) (before, after *recommend.UserEmbedding, steps []float64, err error)
	Blend(ctx context.Context, userID string, target []float64, t float64) (*recommend.UserEmbedding, error)
	Recompute(ctx context.Context, userID string) (*recommend.UserEmbedding, error)
	Users(ctx context.Context) ([]string, error)
}

// Learner implements recommend.FeedbackLearner. It is safe for concurrent use.
type Learner struct {
	cfg     recommend.LearnerConfig
	store   EmbeddingStore
	catalog recommend.CatalogLookup
	history recommend.InteractionStore
	users   recommend.UserDirectory
	dedupe  cache.Deduplicator
	logger  zerolog.Logger
	now     func() time.Time

	obsMu     sync.RWMutex
	observers []recommend.FeedbackObserver

	states sync.Map // userID -> *userState
}

// userState is the learner's per-user bookkeeping. mu serializes the
// learner's own updates for the user; the embedding store has its own lock.
type userState struct {
	mu     sync.Mutex
	state  recommend.LearnerState
	window *shortWindow
}

// Option configures a Learner.
type Option func(*Learner)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Learner) { l.now = now }
}

// WithDeduplicator replaces the default Bloom+LRU deduplicator.
func WithDeduplicator(d cache.Deduplicator) Option {
	return func(l *Learner) { l.dedupe = d }
}

// WithUserDirectory enables ErrUnknownUser checks.
func WithUserDirectory(users recommend.UserDirectory) Option {
	return func(l *Learner) { l.users = users }
}

// WithObserver registers a feedback observer at construction time.
func WithObserver(o recommend.FeedbackObserver) Option {
	return func(l *Learner) { l.observers = append(l.observers, o) }
}

// New creates a learner.
//
//nolint:gocritic // hugeParam: logger passed by value for zerolog chaining
func New(cfg recommend.LearnerConfig, store EmbeddingStore, catalog recommend.CatalogLookup, history recommend.InteractionStore, logger zerolog.Logger, opts ...Option) *Learner {
	defaults := recommend.DefaultConfig().Learner
	if cfg.ShortWindow < 1 {
		cfg.ShortWindow = defaults.ShortWindow
	}
	if cfg.MinShiftSamples < 1 {
		cfg.MinShiftSamples = defaults.MinShiftSamples
	}
	if cfg.ShiftThreshold <= 0 {
		cfg.ShiftThreshold = defaults.ShiftThreshold
	}
	if cfg.StableThreshold <= 0 {
		cfg.StableThreshold = defaults.StableThreshold
	}
	if cfg.BatchConcurrency < 1 {
		cfg.BatchConcurrency = defaults.BatchConcurrency
	}
	if cfg.SweepConcurrency < 1 {
		cfg.SweepConcurrency = defaults.SweepConcurrency
	}
	if cfg.SweepRatePerSecond <= 0 {
		cfg.SweepRatePerSecond = defaults.SweepRatePerSecond
	}
	if cfg.DedupeCapacity < 1 {
		cfg.DedupeCapacity = defaults.DedupeCapacity
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = defaults.DedupeTTL
	}

	l := &Learner{
		cfg:     cfg,
		store:   store,
		catalog: catalog,
		history: history,
		logger:  logger.With().Str("component", "learner").Logger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	switch {
	case l.dedupe != nil:
	case cfg.DedupeExact:
		l.dedupe = cache.NewExactLRU(cfg.DedupeCapacity, cfg.DedupeTTL)
	default:
		l.dedupe = cache.NewBloomLRU(cfg.DedupeCapacity, cfg.DedupeTTL, dedupeFalsePositiveRate)
	}
	return l
}

// AddObserver registers o to be notified of every newly ingested event.
func (l *Learner) AddObserver(o recommend.FeedbackObserver) {
	l.obsMu.Lock()
	defer l.obsMu.Unlock()
	l.observers = append(l.observers, o)
}

// State returns the user's current learner state. Reading the state of a
// user this process has not learned from stores nothing.
func (l *Learner) State(userID string) recommend.LearnerState {
	st, ok := l.loadState(userID)
	if !ok {
		return st.state
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}

// Tracked counts users with learner state in this process.
func (l *Learner) Tracked() int {
	n := 0
	l.states.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// DedupeStats exposes deduplicator counters.
func (l *Learner) DedupeStats() (bloomNegatives, lruChecks, duplicates int64) {
	return l.dedupe.Stats()
}

// LearnFromInteraction ingests one event.
func (l *Learner) LearnFromInteraction(ctx context.Context, event recommend.InteractionEvent) (recommend.LearningResult, error) {
	ev, err := l.normalize(event)
	if err != nil {
		metrics.RecordLearningEvent(string(event.Type), outcomeRejected)
		return recommend.LearningResult{}, err
	}
	item, err := l.resolve(ctx, &ev)
	if err != nil {
		metrics.RecordLearningEvent(string(ev.Type), outcomeRejected)
		return recommend.LearningResult{}, err
	}

	st := l.stateFor(ev.UserID)

	if l.dedupe.IsDuplicate(ev.ID) {
		metrics.RecordLearningEvent(string(ev.Type), outcomeDuplicate)
		return l.duplicateResult(st, &ev), nil
	}
	if err := l.history.Append(ctx, ev); err != nil {
		if errors.Is(err, recommend.ErrDuplicateEvent) {
			metrics.RecordLearningEvent(string(ev.Type), outcomeDuplicate)
			return l.duplicateResult(st, &ev), nil
		}
		l.dedupe.Forget(ev.ID)
		metrics.RecordLearningEvent(string(ev.Type), outcomeError)
		return recommend.LearningResult{}, fmt.Errorf("append event %s: %w", ev.ID, err)
	}

	st.mu.Lock()
	result := recommend.LearningResult{
		EventID:       ev.ID,
		UserID:        ev.UserID,
		PreviousState: st.state,
		Event:         ev,
	}

	before, after, err := l.store.UpdateFromInteraction(ctx, ev)
	switch {
	case errors.Is(err, recommend.ErrInsufficientData):
		// Appended but nothing to fold in, e.g. an item without an embedding.
		l.advanceLocked(st, nil)
		result.State = st.state
		st.mu.Unlock()
		l.notify(ev)
		metrics.RecordLearningEvent(string(ev.Type), outcomeNoUpdate)
		l.recordTransition(result.PreviousState, result.State)
		return result, nil
	case err != nil:
		st.mu.Unlock()
		metrics.RecordLearningEvent(string(ev.Type), outcomeError)
		// The event is persisted and will be folded in by the next recompute.
		return recommend.LearningResult{}, fmt.Errorf("update embedding for %s: %w", ev.UserID, err)
	}

	result.PreferenceUpdated = before != after && ev.SignalWeight() != 0
	result.ConfidenceDelta = confidenceOf(after) - confidenceOf(before)

	if len(item.Embedding) > 0 {
		st.window.push(item.Embedding, ev.SignalWeight())
	}
	l.advanceLocked(st, after)
	l.shiftLocked(ctx, st, ev.UserID, after, &result)
	if result.State == "" {
		result.State = st.state
	}
	st.mu.Unlock()

	l.notify(ev)
	outcome := outcomeApplied
	if !result.PreferenceUpdated {
		outcome = outcomeNoUpdate
	}
	metrics.RecordLearningEvent(string(ev.Type), outcome)
	l.recordTransition(result.PreviousState, result.State)

	l.logger.Debug().
		Str("user_id", ev.UserID).
		Str("event_id", ev.ID).
		Str("type", string(ev.Type)).
		Str("state", string(result.State)).
		Float64("confidence_delta", result.ConfidenceDelta).
		Bool("shift", result.ShiftDetected).
		Msg("interaction learned")

	return result, nil
}

// normalize validates required fields and fills defaults for optional ones.
//
//nolint:gocritic // hugeParam: event copied so the caller's value is untouched
func (l *Learner) normalize(event recommend.InteractionEvent) (recommend.InteractionEvent, error) {
	ev := event
	ev.UserID = strings.TrimSpace(ev.UserID)
	ev.ItemID = strings.TrimSpace(ev.ItemID)
	ev.Type = recommend.InteractionType(strings.ToLower(strings.TrimSpace(string(ev.Type))))

	if ev.UserID == "" {
		return ev, fmt.Errorf("%w: user_id is required", recommend.ErrInvalidEvent)
	}
	if ev.ItemID == "" {
		return ev, fmt.Errorf("%w: item_id is required", recommend.ErrInvalidEvent)
	}
	if !ev.Type.Valid() {
		return ev, fmt.Errorf("%w: unknown interaction type %q", recommend.ErrInvalidEvent, event.Type)
	}

	if strings.TrimSpace(ev.ID) == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.now()
	}
	ev.Timestamp = ev.Timestamp.UTC()

	if ev.Type == recommend.InteractionRate {
		ev.Strength = min(max(ev.Strength, recommend.MinRating), recommend.MaxRating)
	} else if ev.Strength < 0 || ev.Strength > 1 {
		ev.Strength = 0
	}

	if ev.Context != nil {
		c := ev.Context.Normalized()
		if c.IsZero() {
			ev.Context = nil
		} else {
			ev.Context = &c
		}
	}
	return ev, nil
}

// resolve checks that the user and item exist and returns the item.
func (l *Learner) resolve(ctx context.Context, ev *recommend.InteractionEvent) (recommend.Item, error) {
	if l.users != nil {
		ok, err := l.users.Exists(ctx, ev.UserID)
		if err != nil {
			return recommend.Item{}, fmt.Errorf("resolve user %s: %w", ev.UserID, err)
		}
		if !ok {
			return recommend.Item{}, fmt.Errorf("user %s: %w", ev.UserID, recommend.ErrUnknownUser)
		}
	}
	item, err := l.catalog.GetItem(ctx, ev.ItemID)
	if err != nil {
		return recommend.Item{}, fmt.Errorf("resolve item %s: %w", ev.ItemID, err)
	}
	return item, nil
}

func (l *Learner) duplicateResult(st *userState, ev *recommend.InteractionEvent) recommend.LearningResult {
	st.mu.Lock()
	defer st.mu.Unlock()
	return recommend.LearningResult{
		EventID:       ev.ID,
		UserID:        ev.UserID,
		Duplicate:     true,
		PreviousState: st.state,
		State:         st.state,
		Event:         *ev,
	}
}

// stateFor returns the user's state, seeding it from the embedding store
// the first time the user is seen by this process.
func (l *Learner) stateFor(userID string) *userState {
	st, ok := l.loadState(userID)
	if ok {
		return st
	}
	v, _ := l.states.LoadOrStore(userID, st)
	return v.(*userState)
}

// loadState returns the stored state, or a fresh unstored one seeded from
// the embedding store and false.
func (l *Learner) loadState(userID string) (*userState, bool) {
	if v, ok := l.states.Load(userID); ok {
		return v.(*userState), true
	}
	st := &userState{
		state:  recommend.StateCold,
		window: newShortWindow(l.cfg.ShortWindow),
	}
	if emb, ok := l.store.Snapshot(userID); ok && emb != nil {
		st.state = recommend.StateWarming
		if emb.EffectiveCount >= l.cfg.StableThreshold {
			st.state = recommend.StateStable
		}
	}
	return st, false
}

// advanceLocked applies the cold -> warming -> stable transitions. A nil
// embedding still counts as an interaction. Caller holds st.mu.
func (l *Learner) advanceLocked(st *userState, emb *recommend.UserEmbedding) {
	if st.state == recommend.StateCold {
		st.state = recommend.StateWarming
	}
	if st.state == recommend.StateWarming && emb != nil && emb.EffectiveCount >= l.cfg.StableThreshold {
		st.state = recommend.StateStable
	}
}

// shiftLocked runs shift detection for a stable user and, on a shift,
// blends the long-run vector toward the short-run one. The result reports
// shift_detected; the persisted state returns to stable once the blend is
// applied. Caller holds st.mu.
func (l *Learner) shiftLocked(ctx context.Context, st *userState, userID string, emb *recommend.UserEmbedding, result *recommend.LearningResult) bool {
	if emb == nil || (st.state != recommend.StateStable && st.state != recommend.StateShiftDetected) {
		return false
	}
	shift, ok := st.window.detect(emb.Vector, l.cfg.ShiftThreshold, l.cfg.MinShiftSamples)
	if !ok {
		return false
	}

	result.ShiftDetected = true
	result.ShiftConfidence = shift.confidence
	result.State = recommend.StateShiftDetected
	metrics.RecordShift()
	metrics.RecordStateTransition(string(st.state), string(recommend.StateShiftDetected))

	if _, err := l.store.Blend(ctx, userID, shift.shortRun, l.cfg.ShiftBlend); err != nil {
		// Stay in shift_detected so the next event or sweep retries the blend.
		st.state = recommend.StateShiftDetected
		l.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to blend shifted preferences")
		return true
	}
	st.window.reset()
	st.state = recommend.StateStable
	metrics.RecordStateTransition(string(recommend.StateShiftDetected), string(recommend.StateStable))

	l.logger.Info().
		Str("user_id", userID).
		Float64("distance", shift.distance).
		Float64("confidence", shift.confidence).
		Int("samples", shift.samples).
		Msg("preference shift detected")
	return true
}

// recordTransition records cold/warming/stable transitions. Shift
// transitions are recorded where they happen.
func (l *Learner) recordTransition(from, to recommend.LearnerState) {
	if to == recommend.StateShiftDetected {
		to = recommend.StateStable
	}
	metrics.RecordStateTransition(string(from), string(to))
}

func (l *Learner) notify(ev recommend.InteractionEvent) {
	l.obsMu.RLock()
	defer l.obsMu.RUnlock()
	for _, o := range l.observers {
		o.ObserveInteraction(ev)
	}
}

func confidenceOf(emb *recommend.UserEmbedding) float64 {
	if emb == nil {
		return 0
	}
	return emb.Confidence
}
