// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package evaluation

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scentmatch/internal/recommend"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() recommend.EvaluationConfig {
	return recommend.EvaluationConfig{
		K:                2,
		FreshnessHorizon: 180 * 24 * time.Hour,
		MaxSessions:      100,
	}
}

func served(ids ...string) []recommend.ScoredCandidate {
	families := map[string]string{"a": "woody", "b": "floral", "c": "citrus"}
	out := make([]recommend.ScoredCandidate, len(ids))
	for i, id := range ids {
		out[i] = recommend.ScoredCandidate{
			ItemID: id,
			Item:   recommend.Item{ID: id, Families: []string{families[id]}},
		}
	}
	return out
}

func event(user, item string, typ recommend.InteractionType, strength float64, at time.Time) recommend.InteractionEvent {
	return recommend.InteractionEvent{UserID: user, ItemID: item, Type: typ, Strength: strength, Timestamp: at}
}

func TestEvaluator_Evaluate(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(testConfig(), zerolog.Nop())
	e.RecordServed("u1", "", served("a", "b", "c"), t0)
	e.RecordInteraction(event("u1", "a", recommend.InteractionRate, 5, t0.Add(time.Minute)))
	e.RecordInteraction(event("u1", "b", recommend.InteractionView, 0, t0.Add(time.Minute)))
	e.RecordInteraction(event("u1", "x", recommend.InteractionCollectionAdd, 0, t0.Add(2*time.Minute)))
	e.RecordServed("u2", "variant-b", served("a", "b"), t0)

	report := e.Evaluate(time.Hour, t0.Add(10*time.Minute))

	if report.Sessions != 2 || report.K != 2 {
		t.Fatalf("Sessions = %d, K = %d, want 2 and 2", report.Sessions, report.K)
	}

	idealTwo := 1 + 1/math.Log2(3)
	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"precision", report.PrecisionAtK, 0.25},
		{"recall", report.RecallAtK, 0.5},
		{"ndcg", report.NDCG, 1 / idealTwo},
		{"diversity", report.Diversity, 1},
		{"freshness", report.Freshness, 1},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > epsilon {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	if len(report.Variants) != 2 {
		t.Fatalf("Variants = %v, want default and variant-b", report.Variants)
	}
	def := report.Variants[recommend.DefaultExperiment]
	if def == nil || math.Abs(def.PrecisionAtK-0.5) > epsilon || def.Sessions != 1 {
		t.Errorf("default variant = %+v, want precision 0.5 over 1 session", def)
	}
	b := report.Variants["variant-b"]
	if b == nil || b.PrecisionAtK != 0 || b.RecallAtK != 0 {
		t.Errorf("variant-b = %+v, want zero precision and recall", b)
	}
}

func TestEvaluator_InteractionBeforeServingIgnored(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(testConfig(), zerolog.Nop())
	e.RecordInteraction(event("u1", "a", recommend.InteractionRate, 5, t0.Add(-time.Minute)))
	e.RecordServed("u1", "", served("a", "b"), t0)
	e.RecordInteraction(event("u1", "a", recommend.InteractionRate, 5, t0.Add(-time.Second)))

	report := e.Evaluate(time.Hour, t0.Add(time.Minute))
	if report.PrecisionAtK != 0 {
		t.Errorf("PrecisionAtK = %v, want 0", report.PrecisionAtK)
	}
}

func TestEvaluator_Freshness(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(testConfig(), zerolog.Nop())
	items := served("a", "b")
	items[0].Item.LaunchedAt = t0.Add(-10 * 24 * time.Hour)
	items[1].Item.LaunchedAt = t0.Add(-400 * 24 * time.Hour)

	e.RecordServed("u1", "", items, t0)
	e.RecordServed("u1", "", items, t0.Add(time.Minute))

	// First list is all new; on the repeat only the recent launch is fresh.
	report := e.Evaluate(time.Hour, t0.Add(2*time.Minute))
	if math.Abs(report.Freshness-0.75) > epsilon {
		t.Errorf("Freshness = %v, want 0.75", report.Freshness)
	}
}

func TestEvaluator_Window(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(testConfig(), zerolog.Nop())
	e.RecordServed("old", "", served("a"), t0.Add(-2*time.Hour))
	e.RecordServed("new", "", served("a"), t0)
	e.RecordServed("future", "", served("a"), t0.Add(time.Hour))

	tests := []struct {
		name   string
		window time.Duration
		want   int
	}{
		{"last hour", time.Hour, 1},
		{"three hours", 3 * time.Hour, 2},
		{"whole log", 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := e.Evaluate(tt.window, t0.Add(time.Minute)).Sessions; got != tt.want {
				t.Errorf("Sessions = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEvaluator_BoundedLog(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxSessions = 2
	e := NewEvaluator(cfg, zerolog.Nop())

	e.RecordServed("u1", "", served("a"), t0)
	e.RecordServed("u2", "", served("a"), t0.Add(time.Second))
	e.RecordServed("u3", "", served("a"), t0.Add(2*time.Second))

	if got := e.Sessions(); got != 2 {
		t.Errorf("Sessions() = %d, want 2", got)
	}
	e.mu.Lock()
	_, ok := e.byUser["u1"]
	e.mu.Unlock()
	if ok {
		t.Error("evicted session still indexed for u1")
	}
}

func TestEvaluator_EmptyInputs(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(recommend.EvaluationConfig{}, zerolog.Nop())
	e.RecordServed("", "", served("a"), t0)
	e.RecordServed("u1", "", nil, t0)

	report := e.Evaluate(time.Hour, t0)
	if report.Sessions != 0 || report.K != 10 {
		t.Errorf("report = %+v, want no sessions and default K", report)
	}
	if len(report.Variants) != 0 {
		t.Errorf("Variants = %v, want empty", report.Variants)
	}
}

func TestEvaluator_Concurrent(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(testConfig(), zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("u%02d", i)
			e.RecordServed(user, "", served("a", "b"), t0)
			e.RecordInteraction(event(user, "a", recommend.InteractionSampleRequest, 0, t0.Add(time.Second)))
			_ = e.Evaluate(time.Hour, t0.Add(time.Minute))
		}(i)
	}
	wg.Wait()

	report := e.Evaluate(time.Hour, t0.Add(time.Minute))
	if report.Sessions != 50 {
		t.Fatalf("Sessions = %d, want 50", report.Sessions)
	}
	if math.Abs(report.PrecisionAtK-0.5) > epsilon {
		t.Errorf("PrecisionAtK = %v, want 0.5", report.PrecisionAtK)
	}
}
