// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package recommend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestInteractionEvent_SignalWeight(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		event InteractionEvent
		want  float64
	}{
		{"rating 1", InteractionEvent{Type: InteractionRate, Strength: 1}, 0.2},
		{"rating 3", InteractionEvent{Type: InteractionRate, Strength: 3}, 0.6},
		{"rating 5", InteractionEvent{Type: InteractionRate, Strength: 5}, 1.0},
		{"rating clamped high", InteractionEvent{Type: InteractionRate, Strength: 9}, 1.0},
		{"rating clamped low", InteractionEvent{Type: InteractionRate}, 0.2},
		{"view", InteractionEvent{Type: InteractionView}, 0.1},
		{"collection add", InteractionEvent{Type: InteractionCollectionAdd}, 0.8},
		{"sample request", InteractionEvent{Type: InteractionSampleRequest}, 0.6},
		{"dislike", InteractionEvent{Type: InteractionDislike}, -0.5},
		{"scaled implicit", InteractionEvent{Type: InteractionCollectionAdd, Strength: 0.5}, 0.4},
		{"unknown type", InteractionEvent{Type: "wishlist"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.event.SignalWeight(); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("SignalWeight() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInteractionEvent_IsPositive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		event InteractionEvent
		want  bool
	}{
		{InteractionEvent{Type: InteractionRate, Strength: 4}, true},
		{InteractionEvent{Type: InteractionRate, Strength: 3}, false},
		{InteractionEvent{Type: InteractionCollectionAdd}, true},
		{InteractionEvent{Type: InteractionSampleRequest}, true},
		{InteractionEvent{Type: InteractionView}, false},
		{InteractionEvent{Type: InteractionDislike}, false},
	}

	for _, tt := range tests {
		if got := tt.event.IsPositive(); got != tt.want {
			t.Errorf("IsPositive(%s, %.0f) = %v, want %v", tt.event.Type, tt.event.Strength, got, tt.want)
		}
	}
}

func TestRequestContext_Normalized(t *testing.T) {
	t.Parallel()

	got := RequestContext{Season: " Fall ", Occasion: "Evening"}.Normalized()
	want := RequestContext{Season: "autumn", Occasion: "evening"}
	if got != want {
		t.Errorf("Normalized() = %+v, want %+v", got, want)
	}
	if !(RequestContext{}).IsZero() {
		t.Error("zero RequestContext is not IsZero")
	}
}

func TestItem_PrimaryFamily(t *testing.T) {
	t.Parallel()

	item := Item{Families: []string{"Woody", "spicy"}}
	if got := item.PrimaryFamily(); got != "woody" {
		t.Errorf("PrimaryFamily() = %q, want woody", got)
	}
	if got := (&Item{}).PrimaryFamily(); got != "unknown" {
		t.Errorf("PrimaryFamily() of untagged item = %q, want unknown", got)
	}

	withEmb := Item{ID: "a", Embedding: []float64{1, 2}}
	if s := withEmb.Summary(); s.Embedding != nil || s.ID != "a" {
		t.Errorf("Summary() = %+v, want id kept and embedding stripped", s)
	}
	if withEmb.Embedding == nil {
		t.Error("Summary() modified the receiver")
	}
}

func TestFilters_Match(t *testing.T) {
	t.Parallel()

	item := Item{
		ID:            "f1",
		Brand:         "Maison",
		Families:      []string{"woody", "spicy"},
		Seasons:       []string{"autumn", "winter"},
		RatingAverage: 4.2,
	}

	tests := []struct {
		name    string
		filters Filters
		want    bool
	}{
		{"no filters", Filters{}, true},
		{"excluded id", Filters{ExcludeIDs: []string{"f1"}}, false},
		{"family match", Filters{Families: []string{"citrus", "Spicy"}}, true},
		{"family miss", Filters{Families: []string{"citrus"}}, false},
		{"excluded family", Filters{ExcludeFamilies: []string{"woody"}}, false},
		{"season match", Filters{Seasons: []string{"winter"}}, true},
		{"season miss", Filters{Seasons: []string{"summer"}}, false},
		{"brand match", Filters{Brands: []string{"maison"}}, true},
		{"brand miss", Filters{Brands: []string{"other"}}, false},
		{"rating met", Filters{MinRating: 4}, true},
		{"rating missed", Filters{MinRating: 4.5}, false},
		{"expression ignored", Filters{Expression: "false"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.filters.Match(&item); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}

	if (Filters{ExcludeIDs: []string{"x"}}).HasConstraints() {
		t.Error("HasConstraints() = true for exclusions only")
	}
	if !(Filters{Expression: "true"}).HasConstraints() {
		t.Error("HasConstraints() = false with an expression")
	}
}

func TestFamilyProfile(t *testing.T) {
	t.Parallel()

	items := map[string]Item{
		"a": {ID: "a", Families: []string{"Woody"}},
		"b": {ID: "b", Families: []string{"citrus", "woody"}},
		"c": {ID: "c", Families: []string{"floral"}},
	}
	events := []InteractionEvent{
		{ItemID: "a", Type: InteractionRate, Strength: 5},
		{ItemID: "b", Type: InteractionCollectionAdd},
		{ItemID: "c", Type: InteractionDislike},
		{ItemID: "missing", Type: InteractionCollectionAdd},
	}

	got := FamilyProfile(events, items)
	want := map[string]float64{"woody": 1.4 / 1.8, "citrus": 0.4 / 1.8}
	if len(got) != len(want) {
		t.Fatalf("FamilyProfile() = %v, want %v", got, want)
	}
	for fam, w := range want {
		if math.Abs(got[fam]-w) > 1e-9 {
			t.Errorf("FamilyProfile()[%s] = %v, want %v", fam, got[fam], w)
		}
	}

	if empty := FamilyProfile(nil, items); len(empty) != 0 {
		t.Errorf("FamilyProfile(nil) = %v, want empty", empty)
	}
}

func TestCodeOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want ErrorCode
	}{
		{ErrInsufficientData, CodeInsufficientData},
		{fmt.Errorf("query: %w", ErrIndexUnavailable), CodeIndexUnavailable},
		{context.DeadlineExceeded, CodeUpstreamTimeout},
		{ErrDimensionMismatch, CodeDimensionMismatch},
		{ErrUnknownItem, CodeUnknownItem},
		{ErrInvalidFilter, CodeInvalidFilter},
		{errors.New("boom"), CodeInternal},
		{&EngineError{Op: "x", Code: CodeUnknownUser, Err: errors.New("boom")}, CodeUnknownUser},
	}

	for _, tt := range tests {
		if got := CodeOf(tt.err); got != tt.want {
			t.Errorf("CodeOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}

	ee := newEngineError("GenerateRecommendations", fmt.Errorf("wrap: %w", ErrInvalidFilter))
	if !errors.Is(ee, ErrInvalidFilter) {
		t.Error("EngineError does not unwrap to its cause")
	}
	if !strings.Contains(ee.Error(), "INVALID_FILTER") {
		t.Errorf("Error() = %q, want code included", ee.Error())
	}
	if !IsRetryable(fmt.Errorf("x: %w", ErrUpstreamTimeout)) || IsRetryable(ErrInvalidEvent) {
		t.Error("IsRetryable() misclassifies")
	}
}

func TestResultKey(t *testing.T) {
	t.Parallel()

	base := Options{MaxResults: 10}
	k1 := resultKey("u1", &base)

	if !strings.HasPrefix(k1, "u1|") {
		t.Errorf("resultKey() = %q, want user prefix", k1)
	}
	if k2 := resultKey("u1", &Options{MaxResults: 10}); k2 != k1 {
		t.Errorf("resultKey() not stable: %q != %q", k2, k1)
	}

	variants := []Options{
		{MaxResults: 5},
		{MaxResults: 10, IncludeExplanations: true},
		{MaxResults: 10, Context: RequestContext{Season: "winter"}},
		{MaxResults: 10, Filters: Filters{Families: []string{"woody"}}},
		{MaxResults: 10, Experiment: "b"},
	}
	for i := range variants {
		if k := resultKey("u1", &variants[i]); k == k1 {
			t.Errorf("variant %d shares key %q", i, k)
		}
	}
	if k := resultKey("u10", &base); strings.HasPrefix(k, "u1|") {
		t.Errorf("resultKey(u10) = %q collides with u1 prefix", k)
	}
}

func TestOwnedItems(t *testing.T) {
	t.Parallel()

	events := []InteractionEvent{
		{ItemID: "c", Type: InteractionCollectionAdd},
		{ItemID: "v", Type: InteractionView},
		{ItemID: "r", Type: InteractionRate, Strength: 2},
		{ItemID: "d", Type: InteractionDislike},
		{ItemID: "s", Type: InteractionSampleRequest},
		{ItemID: "c", Type: InteractionRate, Strength: 5},
	}
	got := ownedItems(events)
	want := []string{"c", "d", "r"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ownedItems() = %v, want %v", got, want)
	}
}

func TestValidateEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		event   InteractionEvent
		wantErr bool
	}{
		{"valid view", InteractionEvent{UserID: "u", ItemID: "i", Type: InteractionView}, false},
		{"valid rating", InteractionEvent{UserID: "u", ItemID: "i", Type: InteractionRate, Strength: 4}, false},
		{"missing user", InteractionEvent{ItemID: "i", Type: InteractionView}, true},
		{"missing item", InteractionEvent{UserID: "u", Type: InteractionView}, true},
		{"unknown type", InteractionEvent{UserID: "u", ItemID: "i", Type: "like"}, true},
		{"rating out of range", InteractionEvent{UserID: "u", ItemID: "i", Type: InteractionRate, Strength: 6}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validateEvent(&tt.event)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateEvent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("validateEvent() error = %v, want ErrInvalidEvent", err)
			}
		})
	}
}

func TestCopyResult(t *testing.T) {
	t.Parallel()

	orig := &RecommendationResult{
		Items:    []ScoredCandidate{{ItemID: "a"}},
		Sections: map[SectionName][]ScoredCandidate{SectionTrending: {{ItemID: "b"}}},
	}
	cp := copyResult(orig)
	cp.Items[0].ItemID = "x"
	cp.Sections[SectionTrending][0].ItemID = "y"
	cp.Metadata.CacheHit = true

	if orig.Items[0].ItemID != "a" || orig.Sections[SectionTrending][0].ItemID != "b" || orig.Metadata.CacheHit {
		t.Error("copyResult() shares state with the original")
	}
}
