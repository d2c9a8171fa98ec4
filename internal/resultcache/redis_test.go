// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package resultcache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scentmatch/internal/recommend"
)

func TestUserOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{"alice|9f2c", "alice", true},
		{"team|alice|9f2c", "team|alice", true},
		{"|9f2c", "", false},
		{"nohash", "", false},
	}

	for _, tt := range tests {
		got, ok := userOf(tt.key)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("userOf(%q) = %q, %v, want %q, %v", tt.key, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestKeys(t *testing.T) {
	t.Parallel()

	r := NewWithClient(nil, Config{KeyPrefix: "sm"}, zerolog.Nop())
	if got := r.resultKey("alice|ab"); got != "sm:result:alice|ab" {
		t.Errorf("resultKey() = %q", got)
	}
	if got := r.userIndexKey("alice"); got != "sm:user:alice" {
		t.Errorf("userIndexKey() = %q", got)
	}
	if r.cfg.TTL != DefaultConfig().TTL || r.cfg.OpTimeout != DefaultConfig().OpTimeout {
		t.Errorf("defaults not applied: %+v", r.cfg)
	}
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	res := &recommend.RecommendationResult{
		UserID: "alice",
		Items:  []recommend.ScoredCandidate{{ItemID: "woody-1", CombinedScore: 0.8}},
		Sections: map[recommend.SectionName][]recommend.ScoredCandidate{
			recommend.SectionTrending: {{ItemID: "citrus-2"}},
		},
		Metadata: recommend.ResultMetadata{ProcessingTime: 12 * time.Millisecond, Experiment: "default"},
	}

	data, err := encode(res)
	if err != nil {
		t.Fatalf("encode() error = %v", err)
	}
	got, err := decode(data)
	if err != nil {
		t.Fatalf("decode() error = %v", err)
	}
	if got.Items[0].ItemID != "woody-1" || got.Sections[recommend.SectionTrending][0].ItemID != "citrus-2" {
		t.Errorf("decoded = %+v", got)
	}
	if got.Metadata.ProcessingTime != 12*time.Millisecond {
		t.Errorf("ProcessingTime = %v, want 12ms", got.Metadata.ProcessingTime)
	}

	if _, err := decode([]byte("{not json")); err == nil {
		t.Error("decode() of garbage succeeded")
	}
}

func TestRedis_NilClientIsAMiss(t *testing.T) {
	t.Parallel()

	var nilCache *Redis
	ctx := context.Background()
	if _, ok := nilCache.Get(ctx, "alice|ab"); ok {
		t.Error("nil cache reported a hit")
	}
	nilCache.Set(ctx, "alice|ab", &recommend.RecommendationResult{})
	nilCache.InvalidateUser(ctx, "alice")
	if err := nilCache.Ping(ctx); err == nil {
		t.Error("Ping() on nil cache succeeded")
	}
	if err := nilCache.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestRedis_UnreachableDegradesToMiss(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Addr:            "127.0.0.1:1",
		OpTimeout:       50 * time.Millisecond,
		BreakerFailures: 2,
		BreakerTimeout:  time.Minute,
	}
	r := New(cfg, zerolog.Nop())
	t.Cleanup(func() { _ = r.Close() })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, ok := r.Get(ctx, "alice|ab"); ok {
			t.Fatal("unreachable redis reported a hit")
		}
	}
	if got := r.BreakerState(); got != "open" {
		t.Errorf("BreakerState() = %q, want open after consecutive failures", got)
	}

	start := time.Now()
	if _, ok := r.Get(ctx, "alice|ab"); ok {
		t.Error("open breaker reported a hit")
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Errorf("open breaker still waited %v", elapsed)
	}

	r.Set(ctx, "alice|ab", &recommend.RecommendationResult{UserID: "alice"})
	r.InvalidateUser(ctx, "alice")
}
