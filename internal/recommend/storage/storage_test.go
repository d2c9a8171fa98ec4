// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/scentmatch/internal/recommend"
	"github.com/tomtom215/scentmatch/internal/recommend/embedding"
)

type interactionBackend interface {
	recommend.InteractionStore
	recommend.BatchAppender
	recommend.UserLister
}

func backends(t *testing.T) map[string]interactionBackend {
	t.Helper()

	b, err := OpenBadger("")
	if err != nil {
		t.Fatalf("OpenBadger() error = %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	sq, err := OpenSQLite(t.TempDir())
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })

	return map[string]interactionBackend{
		"memory": NewMemoryInteractionStore(),
		"badger": b,
		"sqlite": sq,
	}
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func event(id, user, item string, offset time.Duration) recommend.InteractionEvent {
	return recommend.InteractionEvent{
		ID:        id,
		UserID:    user,
		ItemID:    item,
		Type:      recommend.InteractionRate,
		Strength:  4,
		Timestamp: base.Add(offset),
	}
}

func TestInteractionStores_AppendAndHistory(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			// Appended out of order on purpose.
			events := []recommend.InteractionEvent{
				event("e3", "u1", "i3", 3*time.Hour),
				event("e1", "u1", "i1", 1*time.Hour),
				event("e2", "u1", "i2", 2*time.Hour),
				event("x1", "u2", "i1", 1*time.Hour),
			}
			events[0].Context = &recommend.RequestContext{Season: "winter", Occasion: "evening"}
			for _, ev := range events {
				if err := store.Append(ctx, ev); err != nil {
					t.Fatalf("Append(%s) error = %v", ev.ID, err)
				}
			}

			got, err := store.History(ctx, "u1", time.Time{})
			if err != nil {
				t.Fatalf("History() error = %v", err)
			}
			want := []string{"e1", "e2", "e3"}
			if len(got) != len(want) {
				t.Fatalf("History() len = %d, want %d", len(got), len(want))
			}
			for i, id := range want {
				if got[i].ID != id {
					t.Errorf("History()[%d].ID = %s, want %s", i, got[i].ID, id)
				}
			}
			if got[2].Context == nil || got[2].Context.Season != "winter" {
				t.Errorf("History()[2].Context = %+v, want winter context", got[2].Context)
			}
			if !got[0].Timestamp.Equal(base.Add(time.Hour)) {
				t.Errorf("History()[0].Timestamp = %v, want %v", got[0].Timestamp, base.Add(time.Hour))
			}

			since, err := store.History(ctx, "u1", base.Add(2*time.Hour))
			if err != nil {
				t.Fatalf("History(since) error = %v", err)
			}
			if len(since) != 2 || since[0].ID != "e2" {
				t.Errorf("History(since) = %v, want [e2 e3]", ids(since))
			}

			users, err := store.Users(ctx)
			if err != nil {
				t.Fatalf("Users() error = %v", err)
			}
			if len(users) != 2 || users[0] != "u1" || users[1] != "u2" {
				t.Errorf("Users() = %v, want [u1 u2]", users)
			}
		})
	}
}

func TestInteractionStores_Duplicates(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := store.Append(ctx, event("e1", "u1", "i1", 0)); err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			err := store.Append(ctx, event("e1", "u1", "i1", 0))
			if !errors.Is(err, recommend.ErrDuplicateEvent) {
				t.Fatalf("Append(dup) error = %v, want ErrDuplicateEvent", err)
			}

			batch := []recommend.InteractionEvent{
				event("e1", "u1", "i1", 0),
				event("e2", "u1", "i2", time.Minute),
				event("e2", "u1", "i2", time.Minute),
			}
			dups, err := store.AppendBatch(ctx, batch)
			if err != nil {
				t.Fatalf("AppendBatch() error = %v", err)
			}
			if !dups["e1"] || !dups["e2"] || len(dups) != 2 {
				t.Errorf("AppendBatch() duplicates = %v, want e1 and e2", dups)
			}

			// Replaying the batch stores nothing new.
			if _, err := store.AppendBatch(ctx, batch); err != nil {
				t.Fatalf("AppendBatch(replay) error = %v", err)
			}
			got, err := store.History(ctx, "u1", time.Time{})
			if err != nil {
				t.Fatalf("History() error = %v", err)
			}
			if len(got) != 2 {
				t.Errorf("History() = %v, want 2 events", ids(got))
			}
		})
	}
}

func TestInteractionStores_UnknownUser(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := store.History(context.Background(), "nobody", time.Time{})
			if err != nil {
				t.Fatalf("History() error = %v", err)
			}
			if len(got) != 0 {
				t.Errorf("History() = %v, want empty", ids(got))
			}
		})
	}
}

func TestBadgerStore_EmbeddingRepository(t *testing.T) {
	t.Parallel()

	store, err := OpenBadger("")
	if err != nil {
		t.Fatalf("OpenBadger() error = %v", err)
	}
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	if _, err := store.Load(ctx, "u1"); !errors.Is(err, embedding.ErrNotFound) {
		t.Fatalf("Load(missing) error = %v, want ErrNotFound", err)
	}

	emb := &recommend.UserEmbedding{
		UserID:           "u1",
		Vector:           []float64{0.6, 0.8},
		UpdatedAt:        base,
		InteractionCount: 3,
		Confidence:       0.375,
	}
	if err := store.Save(ctx, emb); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := store.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.InteractionCount != 3 || got.Vector[1] != 0.8 || !got.UpdatedAt.Equal(base) {
		t.Errorf("Load() = %+v, want saved embedding", got)
	}

	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != "u1" {
		t.Errorf("List() = %v, want [u1]", ids)
	}
}

func TestBadgerStore_EventCount(t *testing.T) {
	t.Parallel()

	store, err := OpenBadger("")
	if err != nil {
		t.Fatalf("OpenBadger() error = %v", err)
	}
	defer func() { _ = store.Close() }()

	for i, id := range []string{"a", "b", "c"} {
		if err := store.Append(context.Background(), event(id, "u1", "i1", time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	n, err := store.EventCount()
	if err != nil {
		t.Fatalf("EventCount() error = %v", err)
	}
	if n != 3 {
		t.Errorf("EventCount() = %d, want 3", n)
	}
}

func TestSQLiteInteractionStore_CountByType(t *testing.T) {
	t.Parallel()

	store, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	view := event("v1", "u1", "i1", 0)
	view.Type = recommend.InteractionView
	for _, ev := range []recommend.InteractionEvent{view, event("r1", "u1", "i2", time.Second), event("r2", "u2", "i2", time.Second)} {
		if err := store.Append(ctx, ev); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	counts, err := store.CountByType(ctx)
	if err != nil {
		t.Fatalf("CountByType() error = %v", err)
	}
	if counts[recommend.InteractionView] != 1 || counts[recommend.InteractionRate] != 2 {
		t.Errorf("CountByType() = %v, want view=1 rate=2", counts)
	}
}

func TestSQLiteInteractionStore_ReopenKeepsData(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	store, err := OpenSQLite(dir)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	if err := store.Append(ctx, event("e1", "u1", "i1", 0)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	_ = store.Close()

	store, err = OpenSQLite(dir)
	if err != nil {
		t.Fatalf("OpenSQLite(reopen) error = %v", err)
	}
	defer func() { _ = store.Close() }()

	got, err := store.History(ctx, "u1", time.Time{})
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("History() after reopen = %v, want [e1]", ids(got))
	}
}

func ids(events []recommend.InteractionEvent) []string {
	out := make([]string, len(events))
	for i := range events {
		out[i] = events[i].ID
	}
	return out
}
