// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scentmatch/internal/recommend"
	"github.com/tomtom215/scentmatch/internal/recommend/vectormath"
)

// fakeCatalog serves a fixed set of items.
type fakeCatalog struct {
	items map[string]recommend.Item
	delay time.Duration
}

func (c *fakeCatalog) GetItem(ctx context.Context, id string) (recommend.Item, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return recommend.Item{}, ctx.Err()
		}
	}
	item, ok := c.items[id]
	if !ok {
		return recommend.Item{}, fmt.Errorf("%s: %w", id, recommend.ErrUnknownItem)
	}
	return item, nil
}

func (c *fakeCatalog) SearchByFilters(_ context.Context, f recommend.Filters) ([]recommend.Item, error) {
	var out []recommend.Item
	for _, item := range c.items {
		item := item
		if f.Match(&item) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// fakeHistory is a minimal interaction log.
type fakeHistory struct {
	mu     sync.Mutex
	events map[string][]recommend.InteractionEvent
	err    error
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{events: make(map[string][]recommend.InteractionEvent)}
}

//nolint:gocritic // hugeParam: matches the store API
func (h *fakeHistory) Append(_ context.Context, e recommend.InteractionEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events[e.UserID] = append(h.events[e.UserID], e)
	return nil
}

func (h *fakeHistory) History(_ context.Context, userID string, _ time.Time) ([]recommend.InteractionEvent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	return append([]recommend.InteractionEvent(nil), h.events[userID]...), nil
}

var now = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func unit(dim, axis int) []float64 {
	v := make([]float64, dim)
	v[axis] = 1
	return v
}

func testCatalog() *fakeCatalog {
	return &fakeCatalog{items: map[string]recommend.Item{
		"f1": {ID: "f1", Families: []string{"woody"}, Embedding: unit(4, 0)},
		"f2": {ID: "f2", Families: []string{"floral"}, Embedding: unit(4, 1)},
		"f3": {ID: "f3", Families: []string{"citrus"}, Embedding: unit(4, 2)},
		"f4": {ID: "f4", Families: []string{"oriental"}, Embedding: unit(4, 3)},
		"bare": {ID: "bare", Families: []string{"woody"}},
	}}
}

func testConfig() recommend.EmbeddingConfig {
	cfg := recommend.DefaultConfig().Embedding
	cfg.Dimension = 4
	cfg.Shards = 8
	return cfg
}

func rate(id, user, item string, stars float64, age time.Duration) recommend.InteractionEvent {
	return recommend.InteractionEvent{
		ID: id, UserID: user, ItemID: item,
		Type: recommend.InteractionRate, Strength: stars,
		Timestamp: now.Add(-age),
	}
}

func newTestStore(t *testing.T, cat *fakeCatalog, hist *fakeHistory, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return NewStore(testConfig(), cat, hist, zerolog.Nop(), opts...)
}

func TestGetUserEmbedding_PrefersHigherRatedItem(t *testing.T) {
	t.Parallel()

	hist := newFakeHistory()
	ctx := context.Background()
	_ = hist.Append(ctx, rate("e1", "u1", "f1", 5, time.Hour))
	_ = hist.Append(ctx, rate("e2", "u1", "f2", 2, time.Hour))

	store := newTestStore(t, testCatalog(), hist)
	emb, err := store.GetUserEmbedding(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserEmbedding() error = %v", err)
	}

	d1, err := vectormath.CosineDistance(emb.Vector, unit(4, 0))
	if err != nil {
		t.Fatalf("CosineDistance() error = %v", err)
	}
	d2, err := vectormath.CosineDistance(emb.Vector, unit(4, 1))
	if err != nil {
		t.Fatalf("CosineDistance() error = %v", err)
	}
	if d1 >= d2 {
		t.Errorf("distance to e1 = %v, to e2 = %v; want closer to e1", d1, d2)
	}
	if emb.InteractionCount != 2 {
		t.Errorf("InteractionCount = %d, want 2", emb.InteractionCount)
	}
	if emb.Confidence <= 0 || emb.Confidence >= 1 {
		t.Errorf("Confidence = %v, want in (0, 1)", emb.Confidence)
	}
}

func TestGetUserEmbedding_ColdStart(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		events []recommend.InteractionEvent
	}{
		{name: "no history"},
		{name: "only items without embeddings", events: []recommend.InteractionEvent{rate("e1", "u1", "bare", 5, time.Hour)}},
		{name: "only unknown items", events: []recommend.InteractionEvent{rate("e1", "u1", "gone", 5, time.Hour)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			hist := newFakeHistory()
			for _, e := range tt.events {
				_ = hist.Append(context.Background(), e)
			}
			store := newTestStore(t, testCatalog(), hist)

			emb, err := store.GetUserEmbedding(context.Background(), "u1")
			if !errors.Is(err, recommend.ErrInsufficientData) {
				t.Fatalf("GetUserEmbedding() error = %v, want ErrInsufficientData", err)
			}
			if emb != nil {
				t.Errorf("GetUserEmbedding() = %+v, want nil", emb)
			}
			if n := store.Slots(); n != 0 {
				t.Errorf("Slots() = %d after a cold read, want 0", n)
			}
		})
	}
}

func TestGetUserEmbedding_SlotsOnlyForKnownUsers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	hist := newFakeHistory()
	_ = hist.Append(ctx, rate("e1", "u1", "f1", 5, time.Hour))
	repo := NewMemoryRepository()
	_ = repo.Save(ctx, &recommend.UserEmbedding{
		UserID: "u2", Vector: unit(4, 1), InteractionCount: 1, EffectiveCount: 1, ComputedAt: now,
	})
	store := newTestStore(t, testCatalog(), hist, WithRepository(repo))

	for i := 0; i < 50; i++ {
		if _, err := store.GetUserEmbedding(ctx, fmt.Sprintf("stranger-%d", i)); !errors.Is(err, recommend.ErrInsufficientData) {
			t.Fatalf("GetUserEmbedding(stranger-%d) error = %v, want ErrInsufficientData", i, err)
		}
	}
	if n := store.Slots(); n != 0 {
		t.Fatalf("Slots() = %d after unknown ids, want 0", n)
	}

	if _, err := store.GetUserEmbedding(ctx, "u1"); err != nil {
		t.Fatalf("GetUserEmbedding(u1) error = %v", err)
	}
	persisted, err := store.GetUserEmbedding(ctx, "u2")
	if err != nil {
		t.Fatalf("GetUserEmbedding(u2) error = %v", err)
	}
	if persisted.Vector[1] != 1 {
		t.Errorf("u2 vector = %v, want the persisted one", persisted.Vector)
	}
	if n := store.Slots(); n != 2 {
		t.Errorf("Slots() = %d, want 2", n)
	}
	if recomputes, _, _ := store.Stats(); recomputes != 1 {
		t.Errorf("recomputes = %d, want 1 (u1 only)", recomputes)
	}
}

func TestGetUserEmbedding_DimensionMismatch(t *testing.T) {
	t.Parallel()

	cat := testCatalog()
	cat.items["odd"] = recommend.Item{ID: "odd", Embedding: []float64{1, 0}}
	hist := newFakeHistory()
	_ = hist.Append(context.Background(), rate("e1", "u1", "odd", 5, time.Hour))

	store := newTestStore(t, cat, hist)
	_, err := store.GetUserEmbedding(context.Background(), "u1")
	if !errors.Is(err, recommend.ErrDimensionMismatch) {
		t.Fatalf("GetUserEmbedding() error = %v, want ErrDimensionMismatch", err)
	}
}

func TestUpdateFromInteraction_MatchesRecompute(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cat := testCatalog()
	hist := newFakeHistory()
	store := newTestStore(t, cat, hist)

	events := []recommend.InteractionEvent{
		rate("e1", "u1", "f1", 5, 30*24*time.Hour),
		rate("e2", "u1", "f2", 3, 10*24*time.Hour),
		{ID: "e3", UserID: "u1", ItemID: "f3", Type: recommend.InteractionCollectionAdd, Timestamp: now.Add(-time.Hour)},
		{ID: "e4", UserID: "u1", ItemID: "f4", Type: recommend.InteractionDislike, Timestamp: now},
	}

	var before, after *recommend.UserEmbedding
	var err error
	for i, e := range events {
		_ = hist.Append(ctx, e)
		before, after, err = store.UpdateFromInteraction(ctx, e)
		if err != nil {
			t.Fatalf("UpdateFromInteraction(%s) error = %v", e.ID, err)
		}
		if i == 0 && before != nil {
			t.Errorf("first update before = %+v, want nil", before)
		}
	}
	if after.PendingUpdates != len(events) {
		t.Errorf("PendingUpdates = %d, want %d", after.PendingUpdates, len(events))
	}

	full, err := store.Recompute(ctx, "u1")
	if err != nil {
		t.Fatalf("Recompute() error = %v", err)
	}
	for i := range full.Vector {
		if math.Abs(full.Vector[i]-after.Vector[i]) > 1e-9 {
			t.Fatalf("incremental vector %v != recomputed %v", after.Vector, full.Vector)
		}
	}
	if math.Abs(full.Confidence-after.Confidence) > 1e-9 {
		t.Errorf("incremental confidence %v != recomputed %v", after.Confidence, full.Confidence)
	}
	if full.PendingUpdates != 0 {
		t.Errorf("Recompute() PendingUpdates = %d, want 0", full.PendingUpdates)
	}
}

func TestUpdateFromInteraction_RecomputesEveryK(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	hist := newFakeHistory()
	cfg := testConfig()
	cfg.RecomputeEvery = 3
	store := NewStore(cfg, testCatalog(), hist, zerolog.Nop(), WithClock(func() time.Time { return now }))

	items := []string{"f1", "f2", "f3", "f4", "f1", "f2", "f3"}
	for i, item := range items {
		e := rate(fmt.Sprintf("e%d", i), "u1", item, 4, time.Duration(len(items)-i)*time.Hour)
		_ = hist.Append(ctx, e)
		if _, _, err := store.UpdateFromInteraction(ctx, e); err != nil {
			t.Fatalf("UpdateFromInteraction() error = %v", err)
		}
	}

	recomputes, incrementals, _ := store.Stats()
	// A recompute at every third pending update.
	if recomputes != 2 {
		t.Errorf("recomputes = %d, want 2", recomputes)
	}
	if incrementals != int64(len(items)) {
		t.Errorf("incrementals = %d, want %d", incrementals, len(items))
	}
	snap, ok := store.Snapshot("u1")
	if !ok || snap.PendingUpdates >= cfg.RecomputeEvery {
		t.Errorf("Snapshot() = %+v, want PendingUpdates < %d", snap, cfg.RecomputeEvery)
	}
}

func TestApplyBatch_ConfidenceSteps(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	hist := newFakeHistory()
	store := newTestStore(t, testCatalog(), hist)

	batch := []recommend.InteractionEvent{
		rate("e1", "u1", "f1", 5, 2*time.Hour),
		rate("e2", "u1", "bare", 5, time.Hour),
		rate("e3", "u1", "f2", 4, 0),
	}
	for _, e := range batch {
		_ = hist.Append(ctx, e)
	}

	before, after, steps, err := store.ApplyBatch(ctx, "u1", batch)
	if err != nil {
		t.Fatalf("ApplyBatch() error = %v", err)
	}
	if before != nil {
		t.Errorf("before = %+v, want nil", before)
	}
	if !math.IsNaN(steps[1]) {
		t.Errorf("steps[1] = %v, want NaN for item without embedding", steps[1])
	}
	if !(steps[0] < steps[2]) {
		t.Errorf("steps = %v, want confidence to grow", steps)
	}
	if after.InteractionCount != 2 {
		t.Errorf("InteractionCount = %d, want 2", after.InteractionCount)
	}
}

func TestBlend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	hist := newFakeHistory()
	_ = hist.Append(ctx, rate("e1", "u1", "f1", 5, time.Hour))
	store := newTestStore(t, testCatalog(), hist)

	if _, err := store.Blend(ctx, "nobody", unit(4, 1), 0.5); !errors.Is(err, recommend.ErrInsufficientData) {
		t.Fatalf("Blend(unknown) error = %v, want ErrInsufficientData", err)
	}

	if _, err := store.GetUserEmbedding(ctx, "u1"); err != nil {
		t.Fatalf("GetUserEmbedding() error = %v", err)
	}
	blended, err := store.Blend(ctx, "u1", unit(4, 1), 0.5)
	if err != nil {
		t.Fatalf("Blend() error = %v", err)
	}
	if math.Abs(blended.Vector[0]-0.5) > 1e-9 || math.Abs(blended.Vector[1]-0.5) > 1e-9 {
		t.Errorf("Blend() vector = %v, want [0.5 0.5 0 0]", blended.Vector)
	}
	if snap, _ := store.Snapshot("u1"); snap != blended {
		t.Error("Snapshot() should return the blended embedding")
	}
}

func TestGetUserEmbedding_ServesStaleWhileWriterBusy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	hist := newFakeHistory()
	_ = hist.Append(ctx, rate("e1", "u1", "f1", 5, time.Hour))

	clock := now
	var mu sync.Mutex
	store := NewStore(testConfig(), testCatalog(), hist, zerolog.Nop(), WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}))

	first, err := store.GetUserEmbedding(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserEmbedding() error = %v", err)
	}

	// Age the snapshot past its TTL and hold the writer lock.
	mu.Lock()
	clock = clock.Add(48 * time.Hour)
	mu.Unlock()
	us := store.slot("u1")
	us.mu.Lock()
	got, err := store.GetUserEmbedding(ctx, "u1")
	us.mu.Unlock()

	if err != nil {
		t.Fatalf("GetUserEmbedding() error = %v", err)
	}
	if got != first {
		t.Error("expected the stale snapshot while the writer lock is held")
	}
	if _, _, stale := store.Stats(); stale != 1 {
		t.Errorf("staleServes = %d, want 1", stale)
	}

	// Without contention the stale snapshot is recomputed.
	fresh, err := store.GetUserEmbedding(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserEmbedding() error = %v", err)
	}
	if fresh == first {
		t.Error("expected a recomputed embedding after the TTL")
	}
}

func TestGetUserEmbedding_FallsBackOnHistoryError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	hist := newFakeHistory()
	_ = hist.Append(ctx, rate("e1", "u1", "f1", 5, time.Hour))
	cfg := testConfig()
	cfg.FreshnessTTL = time.Nanosecond
	clock := now
	store := NewStore(cfg, testCatalog(), hist, zerolog.Nop(), WithClock(func() time.Time { return clock }))

	first, err := store.GetUserEmbedding(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserEmbedding() error = %v", err)
	}

	hist.mu.Lock()
	hist.err = errors.New("store offline")
	hist.mu.Unlock()
	clock = clock.Add(time.Minute)

	got, err := store.GetUserEmbedding(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserEmbedding() error = %v, want last known snapshot", err)
	}
	if got != first {
		t.Error("expected the last known snapshot")
	}
}

func TestCatalogTimeout(t *testing.T) {
	t.Parallel()

	cat := testCatalog()
	cat.delay = 50 * time.Millisecond
	hist := newFakeHistory()
	_ = hist.Append(context.Background(), rate("e1", "u1", "f1", 5, time.Hour))

	store := newTestStore(t, cat, hist, WithCatalogTimeout(5*time.Millisecond))
	_, err := store.GetUserEmbedding(context.Background(), "u1")
	if !errors.Is(err, recommend.ErrUpstreamTimeout) {
		t.Fatalf("GetUserEmbedding() error = %v, want ErrUpstreamTimeout", err)
	}
}

func TestRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryRepository()
	hist := newFakeHistory()
	e := rate("e1", "u1", "f1", 5, time.Hour)
	_ = hist.Append(ctx, e)

	store := newTestStore(t, testCatalog(), hist, WithRepository(repo))
	if _, _, err := store.UpdateFromInteraction(ctx, e); err != nil {
		t.Fatalf("UpdateFromInteraction() error = %v", err)
	}

	// A second store on the same repository loads the persisted embedding
	// without touching history.
	hist.mu.Lock()
	hist.err = errors.New("unreachable")
	hist.mu.Unlock()
	reloaded := newTestStore(t, testCatalog(), hist, WithRepository(repo))
	emb, err := reloaded.GetUserEmbedding(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserEmbedding() error = %v", err)
	}
	if emb.Vector[0] != 1 {
		t.Errorf("reloaded vector = %v, want e1", emb.Vector)
	}

	users, err := reloaded.Users(ctx)
	if err != nil {
		t.Fatalf("Users() error = %v", err)
	}
	if len(users) != 1 || users[0] != "u1" {
		t.Errorf("Users() = %v, want [u1]", users)
	}
}

func TestConcurrentUsers_NoCrossTalk(t *testing.T) {
	t.Parallel()

	const users = 100
	ctx := context.Background()
	cat := &fakeCatalog{items: make(map[string]recommend.Item)}
	for i := 0; i < users; i++ {
		id := fmt.Sprintf("item-%d", i)
		v := make([]float64, 4)
		v[i%4] = 1
		v[(i+1)%4] = float64(i) / users
		cat.items[id] = recommend.Item{ID: id, Embedding: v}
	}
	hist := newFakeHistory()
	store := NewStore(testConfig(), cat, hist, zerolog.Nop())

	var wg sync.WaitGroup
	errs := make(chan error, users)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := recommend.InteractionEvent{
				ID:        fmt.Sprintf("e-%d", i),
				UserID:    fmt.Sprintf("user-%d", i),
				ItemID:    fmt.Sprintf("item-%d", i),
				Type:      recommend.InteractionCollectionAdd,
				Timestamp: time.Now(),
			}
			if err := hist.Append(ctx, e); err != nil {
				errs <- err
				return
			}
			if _, _, err := store.UpdateFromInteraction(ctx, e); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("UpdateFromInteraction() error = %v", err)
	}

	for i := 0; i < users; i++ {
		emb, ok := store.Snapshot(fmt.Sprintf("user-%d", i))
		if !ok {
			t.Fatalf("user-%d has no embedding", i)
		}
		want := cat.items[fmt.Sprintf("item-%d", i)].Embedding
		sim, err := vectormath.Cosine(emb.Vector, want)
		if err != nil {
			t.Fatalf("Cosine() error = %v", err)
		}
		if sim < 1-1e-9 || emb.UserID != fmt.Sprintf("user-%d", i) {
			t.Errorf("user-%d embedding leaked: sim=%v user=%s", i, sim, emb.UserID)
		}
	}
}

func TestDecay(t *testing.T) {
	t.Parallel()

	hl := 90 * 24 * time.Hour
	tests := []struct {
		name string
		age  time.Duration
		want float64
	}{
		{"now", 0, 1},
		{"future", -time.Hour, 1},
		{"one half-life", hl, 0.5},
		{"two half-lives", 2 * hl, 0.25},
	}
	for _, tt := range tests {
		if got := Decay(tt.age, hl); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Decay(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}

	if w := WeeklyFactor(hl); w < 0.94 || w > 0.96 {
		t.Errorf("WeeklyFactor(90d) = %v, want about 0.95", w)
	}
}

func TestConfidence(t *testing.T) {
	t.Parallel()

	if got := Confidence(0, 5); got != 0 {
		t.Errorf("Confidence(0) = %v, want 0", got)
	}
	if got := Confidence(5, 5); got != 0.5 {
		t.Errorf("Confidence(5, 5) = %v, want 0.5", got)
	}
	prev := 0.0
	for n := 1.0; n <= 50; n++ {
		c := Confidence(n, 5)
		if c <= prev || c >= 1 {
			t.Fatalf("Confidence(%v) = %v, want monotonic in (0, 1)", n, c)
		}
		prev = c
	}
}
