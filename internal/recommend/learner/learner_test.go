// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package learner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scentmatch/internal/catalog"
	"github.com/tomtom215/scentmatch/internal/recommend"
	"github.com/tomtom215/scentmatch/internal/recommend/embedding"
	"github.com/tomtom215/scentmatch/internal/recommend/storage"
	"github.com/tomtom215/scentmatch/internal/recommend/vectormath"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func unit(axis int) []float64 {
	v := make([]float64, 4)
	v[axis] = 1
	return v
}

type fixture struct {
	learner *Learner
	store   *embedding.Store
	history *storage.MemoryInteractionStore
	users   *catalog.Directory
}

func newFixture(t *testing.T, mutate func(*recommend.LearnerConfig)) *fixture {
	t.Helper()

	cat := catalog.New(
		recommend.Item{ID: "f1", Families: []string{"woody"}, Embedding: unit(0)},
		recommend.Item{ID: "f2", Families: []string{"floral"}, Embedding: unit(1)},
		recommend.Item{ID: "f3", Families: []string{"citrus"}, Embedding: unit(2)},
		recommend.Item{ID: "f4", Families: []string{"oriental"}, Embedding: unit(3)},
		recommend.Item{ID: "bare", Families: []string{"woody"}},
	)
	hist := storage.NewMemoryInteractionStore()
	clock := func() time.Time { return now }

	ecfg := recommend.DefaultConfig().Embedding
	ecfg.Dimension = 4
	ecfg.Shards = 4
	store := embedding.NewStore(ecfg, cat, hist, zerolog.Nop(), embedding.WithClock(clock))

	lcfg := recommend.DefaultConfig().Learner
	lcfg.SweepRatePerSecond = 10000
	if mutate != nil {
		mutate(&lcfg)
	}
	users := catalog.NewDirectory(false, "u1", "u2", "u3")

	return &fixture{
		learner: New(lcfg, store, cat, hist, zerolog.Nop(), WithClock(clock), WithUserDirectory(users)),
		store:   store,
		history: hist,
		users:   users,
	}
}

func rating(id, user, item string, stars float64, offset int) recommend.InteractionEvent {
	return recommend.InteractionEvent{
		ID:        id,
		UserID:    user,
		ItemID:    item,
		Type:      recommend.InteractionRate,
		Strength:  stars,
		Timestamp: now.Add(time.Duration(offset) * time.Millisecond),
	}
}

func TestLearnFromInteraction_StateMachine(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	if got := f.learner.State("u1"); got != recommend.StateCold {
		t.Fatalf("initial State() = %s, want cold", got)
	}

	res, err := f.learner.LearnFromInteraction(ctx, rating("e0", "u1", "f1", 5, 0))
	if err != nil {
		t.Fatalf("LearnFromInteraction() error = %v", err)
	}
	if res.PreviousState != recommend.StateCold || res.State != recommend.StateWarming {
		t.Errorf("transition = %s -> %s, want cold -> warming", res.PreviousState, res.State)
	}
	if !res.PreferenceUpdated {
		t.Error("PreferenceUpdated = false, want true")
	}
	if res.ConfidenceDelta <= 0 {
		t.Errorf("ConfidenceDelta = %v, want > 0", res.ConfidenceDelta)
	}

	for i := 1; i < 4; i++ {
		res, err = f.learner.LearnFromInteraction(ctx, rating(fmt.Sprintf("e%d", i), "u1", "f1", 5, i))
		if err != nil {
			t.Fatalf("LearnFromInteraction(%d) error = %v", i, err)
		}
		if res.State != recommend.StateWarming {
			t.Errorf("event %d State = %s, want warming", i, res.State)
		}
	}

	res, err = f.learner.LearnFromInteraction(ctx, rating("e4", "u1", "f1", 5, 4))
	if err != nil {
		t.Fatalf("LearnFromInteraction() error = %v", err)
	}
	if res.PreviousState != recommend.StateWarming || res.State != recommend.StateStable {
		t.Errorf("transition = %s -> %s, want warming -> stable", res.PreviousState, res.State)
	}
	if res.ShiftDetected {
		t.Error("ShiftDetected = true on a consistent history")
	}
}

func TestLearnFromInteraction_ShiftDetected(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(c *recommend.LearnerConfig) {
		c.ShortWindow = 5
		c.MinShiftSamples = 5
	})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := f.learner.LearnFromInteraction(ctx, rating(fmt.Sprintf("w%d", i), "u1", "f1", 5, i)); err != nil {
			t.Fatalf("LearnFromInteraction() error = %v", err)
		}
	}
	if got := f.learner.State("u1"); got != recommend.StateStable {
		t.Fatalf("State() = %s, want stable", got)
	}
	before, _ := f.store.Snapshot("u1")

	var shifted *recommend.LearningResult
	for i := 0; i < 5 && shifted == nil; i++ {
		res, err := f.learner.LearnFromInteraction(ctx, rating(fmt.Sprintf("fl%d", i), "u1", "f2", 5, 10+i))
		if err != nil {
			t.Fatalf("LearnFromInteraction() error = %v", err)
		}
		if res.ShiftDetected {
			shifted = &res
		}
	}
	if shifted == nil {
		t.Fatal("no shift detected after switching to a different family")
	}
	if shifted.State != recommend.StateShiftDetected {
		t.Errorf("result State = %s, want shift_detected", shifted.State)
	}
	if shifted.ShiftConfidence <= 0.5 || shifted.ShiftConfidence > 1 {
		t.Errorf("ShiftConfidence = %v, want in (0.5, 1]", shifted.ShiftConfidence)
	}
	if got := f.learner.State("u1"); got != recommend.StateStable {
		t.Errorf("State() after blend = %s, want stable", got)
	}

	after, _ := f.store.Snapshot("u1")
	simBefore, _ := vectormath.Cosine(before.Vector, unit(1))
	simAfter, _ := vectormath.Cosine(after.Vector, unit(1))
	if simAfter <= simBefore {
		t.Errorf("similarity to new family %v -> %v, want increase", simBefore, simAfter)
	}

	// The window was reset, so the next event cannot re-trigger a shift.
	res, err := f.learner.LearnFromInteraction(ctx, rating("fl-next", "u1", "f2", 5, 20))
	if err != nil {
		t.Fatalf("LearnFromInteraction() error = %v", err)
	}
	if res.ShiftDetected {
		t.Error("ShiftDetected = true right after a window reset")
	}
}

func TestLearnFromInteraction_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		event recommend.InteractionEvent
		want  error
	}{
		{name: "unknown user", event: rating("e1", "stranger", "f1", 5, 0), want: recommend.ErrUnknownUser},
		{name: "unknown item", event: rating("e1", "u1", "nope", 5, 0), want: recommend.ErrUnknownItem},
		{name: "missing user", event: rating("e1", "", "f1", 5, 0), want: recommend.ErrInvalidEvent},
		{name: "missing item", event: rating("e1", "u1", " ", 5, 0), want: recommend.ErrInvalidEvent},
		{
			name:  "unknown type",
			event: recommend.InteractionEvent{ID: "e1", UserID: "u1", ItemID: "f1", Type: "purchase"},
			want:  recommend.ErrInvalidEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, nil)

			_, err := f.learner.LearnFromInteraction(context.Background(), tt.event)
			if !errors.Is(err, tt.want) {
				t.Fatalf("LearnFromInteraction() error = %v, want %v", err, tt.want)
			}
			if f.history.Len() != 0 {
				t.Errorf("history Len() = %d, want 0 after rejection", f.history.Len())
			}
		})
	}
}

func TestLearnFromInteraction_AppliesDefaults(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.learner.LearnFromInteraction(ctx, recommend.InteractionEvent{
		UserID:   " u1 ",
		ItemID:   "f1",
		Type:     "RATE",
		Strength: 9,
		Context:  &recommend.RequestContext{Season: "  "},
	})
	if err != nil {
		t.Fatalf("LearnFromInteraction() error = %v", err)
	}
	if res.EventID == "" {
		t.Error("EventID is empty, want a generated id")
	}

	events, err := f.history.History(ctx, "u1", time.Time{})
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("History() len = %d, want 1", len(events))
	}
	got := events[0]
	if !got.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, now)
	}
	if got.Strength != recommend.MaxRating {
		t.Errorf("Strength = %v, want clamped to %v", got.Strength, recommend.MaxRating)
	}
	if got.Type != recommend.InteractionRate {
		t.Errorf("Type = %q, want rate", got.Type)
	}
	if got.Context != nil {
		t.Errorf("Context = %+v, want nil for an empty context", got.Context)
	}
	if res.Event.ID != got.ID || res.Event.UserID != "u1" || res.Event.Type != recommend.InteractionRate {
		t.Errorf("result Event = %+v, want the stored event %+v", res.Event, got)
	}
}

func TestLearnFromInteraction_ItemWithoutEmbedding(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	res, err := f.learner.LearnFromInteraction(context.Background(), rating("e1", "u1", "bare", 5, 0))
	if err != nil {
		t.Fatalf("LearnFromInteraction() error = %v", err)
	}
	if res.PreferenceUpdated {
		t.Error("PreferenceUpdated = true for an item without an embedding")
	}
	if res.State != recommend.StateWarming {
		t.Errorf("State = %s, want warming", res.State)
	}
}

func TestLearnFromInteraction_Duplicate(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	ev := rating("e1", "u1", "f1", 5, 0)

	if _, err := f.learner.LearnFromInteraction(ctx, ev); err != nil {
		t.Fatalf("first LearnFromInteraction() error = %v", err)
	}
	res, err := f.learner.LearnFromInteraction(ctx, ev)
	if err != nil {
		t.Fatalf("second LearnFromInteraction() error = %v", err)
	}
	if !res.Duplicate || res.PreferenceUpdated {
		t.Errorf("result = %+v, want a duplicate without update", res)
	}
	if f.history.Len() != 1 {
		t.Errorf("history Len() = %d, want 1", f.history.Len())
	}

	// A fresh learner over the same store still catches the replay.
	restarted := New(recommend.DefaultConfig().Learner, f.store, catalog.New(recommend.Item{ID: "f1", Embedding: unit(0)}),
		f.history, zerolog.Nop(), WithClock(func() time.Time { return now }))
	res, err = restarted.LearnFromInteraction(ctx, ev)
	if err != nil {
		t.Fatalf("replay LearnFromInteraction() error = %v", err)
	}
	if !res.Duplicate {
		t.Error("replay after restart was not reported as duplicate")
	}
}

func TestLearnFromInteraction_ExactDedupe(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(c *recommend.LearnerConfig) { c.DedupeExact = true })
	ctx := context.Background()
	ev := rating("e1", "u1", "f1", 4, 0)

	for range 2 {
		if _, err := f.learner.LearnFromInteraction(ctx, ev); err != nil {
			t.Fatalf("LearnFromInteraction() error = %v", err)
		}
	}
	negatives, checks, duplicates := f.learner.DedupeStats()
	if negatives != 0 || checks < 2 || duplicates < 1 {
		t.Errorf("DedupeStats() = %d, %d, %d", negatives, checks, duplicates)
	}
}

type countingObserver struct {
	mu     sync.Mutex
	events []string
}

//nolint:gocritic // hugeParam: matches the observer API
func (o *countingObserver) ObserveInteraction(e recommend.InteractionEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e.ID)
}

func (o *countingObserver) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.events)
}

func TestLearnFromBatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	obs := &countingObserver{}
	f.learner.AddObserver(obs)
	ctx := context.Background()

	batch := []recommend.InteractionEvent{
		rating("b3", "u1", "f2", 4, 3),
		rating("b1", "u1", "f1", 5, 1),
		rating("b2", "u2", "f3", 5, 2),
		rating("b1", "u1", "f1", 5, 1), // in-batch duplicate
		rating("b4", "u2", "f4", 3, 2), // same timestamp as b2, ordered by id
		rating("bad", "stranger", "f1", 5, 0),
	}

	results, err := f.learner.LearnFromBatch(ctx, batch)
	if !errors.Is(err, recommend.ErrUnknownUser) {
		t.Fatalf("LearnFromBatch() error = %v, want ErrUnknownUser for the bad event", err)
	}

	wantOrder := []string{"b1", "b1", "b2", "b4", "b3"}
	if len(results) != len(wantOrder) {
		t.Fatalf("LearnFromBatch() returned %d results, want %d", len(results), len(wantOrder))
	}
	dups := 0
	for i, r := range results {
		if r.EventID != wantOrder[i] {
			t.Errorf("results[%d].EventID = %s, want %s", i, r.EventID, wantOrder[i])
		}
		if r.Duplicate {
			dups++
		}
	}
	if dups != 1 {
		t.Errorf("duplicates = %d, want 1", dups)
	}
	if f.history.Len() != 4 {
		t.Errorf("history Len() = %d, want 4", f.history.Len())
	}
	if obs.count() != 4 {
		t.Errorf("observer saw %d events, want 4", obs.count())
	}

	snap1, ok := f.store.Snapshot("u1")
	if !ok {
		t.Fatal("Snapshot(u1) missing after batch")
	}
	if snap1.InteractionCount != 2 {
		t.Errorf("u1 InteractionCount = %d, want 2", snap1.InteractionCount)
	}

	// Replay is a no-op.
	replay, err := f.learner.LearnFromBatch(ctx, batch[:5])
	if err != nil {
		t.Fatalf("replay LearnFromBatch() error = %v", err)
	}
	for _, r := range replay {
		if !r.Duplicate || r.PreferenceUpdated {
			t.Errorf("replayed result %+v, want duplicate", r)
		}
	}
	snap2, _ := f.store.Snapshot("u1")
	for i := range snap1.Vector {
		if math.Abs(snap1.Vector[i]-snap2.Vector[i]) > 1e-12 {
			t.Fatalf("vector changed on replay: %v -> %v", snap1.Vector, snap2.Vector)
		}
	}
	if f.history.Len() != 4 {
		t.Errorf("history Len() after replay = %d, want 4", f.history.Len())
	}
}

func TestLearnFromBatch_MatchesSequential(t *testing.T) {
	t.Parallel()

	var events []recommend.InteractionEvent
	items := []string{"f1", "f2", "f1", "f3", "f1", "f4", "f1"}
	for i, item := range items {
		events = append(events, rating(fmt.Sprintf("s%d", i), "u1", item, float64(1+i%5), i))
	}

	batched := newFixture(t, nil)
	if _, err := batched.learner.LearnFromBatch(context.Background(), events); err != nil {
		t.Fatalf("LearnFromBatch() error = %v", err)
	}

	sequential := newFixture(t, nil)
	for _, e := range events {
		if _, err := sequential.learner.LearnFromInteraction(context.Background(), e); err != nil {
			t.Fatalf("LearnFromInteraction() error = %v", err)
		}
	}

	a, _ := batched.store.Snapshot("u1")
	b, _ := sequential.store.Snapshot("u1")
	for i := range a.Vector {
		if math.Abs(a.Vector[i]-b.Vector[i]) > 1e-9 {
			t.Fatalf("batched %v != sequential %v", a.Vector, b.Vector)
		}
	}
	if batched.learner.State("u1") != sequential.learner.State("u1") {
		t.Errorf("State batched = %s, sequential = %s", batched.learner.State("u1"), sequential.learner.State("u1"))
	}
}

func TestLearnFromBatch_Empty(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	results, err := f.learner.LearnFromBatch(context.Background(), nil)
	if err != nil || results != nil {
		t.Errorf("LearnFromBatch(nil) = %v, %v; want nil, nil", results, err)
	}
}

func TestLearnFromBatch_ResultsCarryStoredEvent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	results, err := f.learner.LearnFromBatch(context.Background(), []recommend.InteractionEvent{
		{UserID: " u1 ", ItemID: "f1", Type: "COLLECTION_ADD", Timestamp: now},
		{UserID: "u2", ItemID: " f2", Type: "Rate", Strength: 4, Timestamp: now},
	})
	if err != nil {
		t.Fatalf("LearnFromBatch() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("LearnFromBatch() returned %d results, want 2", len(results))
	}
	for _, r := range results {
		ev := r.Event
		if ev.ID == "" || ev.ID != r.EventID {
			t.Errorf("Event.ID = %q, EventID = %q, want the same generated id", ev.ID, r.EventID)
		}
		if ev.UserID != r.UserID || !ev.Type.Valid() || !ev.IsPositive() {
			t.Errorf("Event = %+v, want a normalized positive event", ev)
		}
	}
}

func TestState_ReadsDoNotTrackUsers(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	for i := 0; i < 100; i++ {
		if got := f.learner.State(fmt.Sprintf("visitor-%d", i)); got != recommend.StateCold {
			t.Fatalf("State(visitor-%d) = %s, want cold", i, got)
		}
	}
	if n := f.learner.Tracked(); n != 0 {
		t.Fatalf("Tracked() = %d after reads, want 0", n)
	}

	if _, err := f.learner.LearnFromInteraction(context.Background(), rating("t1", "u1", "f1", 5, 0)); err != nil {
		t.Fatalf("LearnFromInteraction() error = %v", err)
	}
	if got := f.learner.State("u1"); got != recommend.StateWarming {
		t.Errorf("State(u1) = %s, want warming", got)
	}
	if n := f.learner.Tracked(); n != 1 {
		t.Errorf("Tracked() = %d, want 1", n)
	}
}

func TestSweep(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	// History written behind the learner's back, as after a restart.
	for i := 0; i < 6; i++ {
		if err := f.history.Append(ctx, rating(fmt.Sprintf("a%d", i), "u1", "f1", 5, i)); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := f.history.Append(ctx, rating("b0", "u2", "f2", 4, 0)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := f.history.Append(ctx, rating("c0", "u3", "bare", 4, 0)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	report, err := f.learner.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if report.Users != 3 || report.Recomputed != 2 || report.Skipped != 1 || report.Errors != 0 {
		t.Errorf("Sweep() report = %+v, want 3 users, 2 recomputed, 1 skipped", report)
	}

	if got := f.learner.State("u1"); got != recommend.StateStable {
		t.Errorf("State(u1) = %s, want stable", got)
	}
	if got := f.learner.State("u2"); got != recommend.StateWarming {
		t.Errorf("State(u2) = %s, want warming", got)
	}
	if _, ok := f.store.Snapshot("u1"); !ok {
		t.Error("Snapshot(u1) missing after sweep")
	}
}

func TestSweep_Canceled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(c *recommend.LearnerConfig) { c.SweepRatePerSecond = 1 })
	ctx := context.Background()
	for _, u := range []string{"u1", "u2", "u3"} {
		if err := f.history.Append(ctx, rating("e-"+u, u, "f1", 5, 0)); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	report, err := f.learner.Sweep(cctx)
	if err == nil {
		t.Fatal("Sweep() error = nil, want a context error")
	}
	if report.Recomputed >= 3 {
		t.Errorf("Recomputed = %d, want a partial sweep", report.Recomputed)
	}
}

func TestShiftConfidence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                string
		distance, threshold float64
		samples, window     int
		want                float64
	}{
		{name: "at threshold full window", distance: 0.35, threshold: 0.35, samples: 10, window: 10, want: 0.5},
		{name: "at threshold half window", distance: 0.35, threshold: 0.35, samples: 5, window: 10, want: 0.25},
		{name: "large distance saturates", distance: 1.5, threshold: 0.35, samples: 10, window: 10, want: 1},
		{name: "midway", distance: 0.675, threshold: 0.35, samples: 10, window: 10, want: 1},
		{name: "partial", distance: 0.5125, threshold: 0.35, samples: 6, window: 10, want: 0.45},
		{name: "empty window", distance: 1, threshold: 0.35, samples: 0, window: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ShiftConfidence(tt.distance, tt.threshold, tt.samples, tt.window)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ShiftConfidence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShortWindow(t *testing.T) {
	t.Parallel()

	w := newShortWindow(3)
	w.push(unit(0), 1)
	w.push(unit(1), 0) // zero weight ignored
	w.push(unit(1), 1)
	w.push(unit(2), 1)
	w.push(unit(3), 0.5)

	if w.len() != 3 {
		t.Fatalf("len() = %d, want 3", w.len())
	}
	vecs, weights := w.samples()
	wantAxes := []int{1, 2, 3}
	for i, axis := range wantAxes {
		if vecs[i][axis] != 1 {
			t.Errorf("samples()[%d] = %v, want axis %d", i, vecs[i], axis)
		}
	}
	if weights[2] != 0.5 {
		t.Errorf("weights[2] = %v, want 0.5", weights[2])
	}

	if _, ok := w.detect(unit(0), 0.35, 3); !ok {
		t.Error("detect() = false for an orthogonal long-run vector")
	}
	if _, ok := w.detect(unit(0), 0.35, 4); ok {
		t.Error("detect() = true below the minimum sample count")
	}

	w.reset()
	if w.len() != 0 {
		t.Errorf("len() after reset = %d, want 0", w.len())
	}
}
