// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package recommend

import (
	"strings"
	"time"
)

// InteractionType classifies a user-item interaction.
type InteractionType string

const (
	// InteractionView is a passive product page view.
	InteractionView InteractionType = "view"
	// InteractionRate is an explicit 1-5 star rating.
	InteractionRate InteractionType = "rate"
	// InteractionCollectionAdd means the user added the fragrance to their collection.
	InteractionCollectionAdd InteractionType = "collection_add"
	// InteractionSampleRequest means the user requested a sample.
	InteractionSampleRequest InteractionType = "sample_request"
	// InteractionDislike is an explicit negative signal.
	InteractionDislike InteractionType = "dislike"
)

// String returns the wire name of the interaction type.
func (t InteractionType) String() string {
	return string(t)
}

// Valid reports whether t is a known interaction type.
func (t InteractionType) Valid() bool {
	switch t {
	case InteractionView, InteractionRate, InteractionCollectionAdd,
		InteractionSampleRequest, InteractionDislike:
		return true
	default:
		return false
	}
}

// ImplicitWeight returns the fixed signal weight for implicit interactions.
// Ratings are not implicit and return 0; use InteractionEvent.SignalWeight.
func (t InteractionType) ImplicitWeight() float64 {
	switch t {
	case InteractionView:
		return 0.1
	case InteractionCollectionAdd:
		return 0.8
	case InteractionSampleRequest:
		return 0.6
	case InteractionDislike:
		return -0.5
	default:
		return 0
	}
}

// Rating bounds for explicit feedback.
const (
	MinRating = 1.0
	MaxRating = 5.0
)

// RequestContext describes the situation a recommendation is requested for.
type RequestContext struct {
	// Season is one of spring, summer, autumn, winter. Empty means
	// "derive from the request time".
	Season string `json:"season,omitempty"`

	// Occasion is a free-form occasion tag (daily, office, evening, date, ...).
	Occasion string `json:"occasion,omitempty"`
}

// IsZero reports whether no context was declared.
func (c RequestContext) IsZero() bool {
	return c.Season == "" && c.Occasion == ""
}

// Normalized returns a copy with lowercased, trimmed fields and "fall" mapped to autumn.
func (c RequestContext) Normalized() RequestContext {
	out := RequestContext{
		Season:   strings.ToLower(strings.TrimSpace(c.Season)),
		Occasion: strings.ToLower(strings.TrimSpace(c.Occasion)),
	}
	if out.Season == "fall" {
		out.Season = "autumn"
	}
	return out
}

// InteractionEvent is an append-only record of a user action on a fragrance.
type InteractionEvent struct {
	// ID uniquely identifies the event and is used for deduplication.
	ID string `json:"id"`

	// UserID is the acting user.
	UserID string `json:"user_id"`

	// ItemID is the fragrance acted upon.
	ItemID string `json:"item_id"`

	// Type classifies the interaction.
	Type InteractionType `json:"type"`

	// Strength is the rating (1-5) for rate events, or an optional implicit
	// weight override for other events. Zero means "use the default".
	Strength float64 `json:"strength,omitempty"`

	// Timestamp is when the interaction happened.
	Timestamp time.Time `json:"timestamp"`

	// Context is the optional situation the interaction happened in.
	Context *RequestContext `json:"context,omitempty"`
}

// SignalWeight returns the preference weight of the event before time decay.
//
// Explicit ratings map linearly from [1, 5] to [0.2, 1.0]. Implicit events
// use the fixed table in InteractionType.ImplicitWeight. A non-zero Strength
// on an implicit event scales the table weight.
func (e InteractionEvent) SignalWeight() float64 {
	if e.Type == InteractionRate {
		r := e.Strength
		if r < MinRating {
			r = MinRating
		}
		if r > MaxRating {
			r = MaxRating
		}
		return 0.2 + (r-MinRating)*0.2
	}

	w := e.Type.ImplicitWeight()
	if e.Strength > 0 && e.Strength <= 1 {
		w *= e.Strength
	}
	return w
}

// IsPositive reports whether the event expresses liking the item.
// Ratings of 4 and above, collection adds and sample requests are positive.
func (e InteractionEvent) IsPositive() bool {
	switch e.Type {
	case InteractionRate:
		return e.Strength >= 4
	case InteractionCollectionAdd, InteractionSampleRequest:
		return true
	default:
		return false
	}
}

// Item is a fragrance from the catalog. The engine treats it as read-only.
type Item struct {
	// ID is the catalog identifier.
	ID string `json:"id"`

	// Name is the display name.
	Name string `json:"name"`

	// Brand is the house that produces the fragrance.
	Brand string `json:"brand"`

	// Families are olfactive family tags (woody, floral, citrus, oriental, ...).
	// The first family is the primary one.
	Families []string `json:"families"`

	// Notes are the listed accords and notes.
	Notes []string `json:"notes,omitempty"`

	// Seasons the fragrance suits best.
	Seasons []string `json:"seasons,omitempty"`

	// Occasions the fragrance suits best.
	Occasions []string `json:"occasions,omitempty"`

	// Popularity is a normalized popularity metric in [0, 1].
	Popularity float64 `json:"popularity"`

	// TrendScore is a normalized short-term social/trend signal in [0, 1].
	TrendScore float64 `json:"trend_score"`

	// RatingAverage is the mean community rating (1-5).
	RatingAverage float64 `json:"rating_average"`

	// RatingCount is the number of community ratings.
	RatingCount int `json:"rating_count"`

	// Embedding is the scent profile vector.
	Embedding []float64 `json:"embedding,omitempty"`

	// LaunchedAt is the release date, used for freshness.
	LaunchedAt time.Time `json:"launched_at,omitempty"`
}

// PrimaryFamily returns the first family tag, or "unknown".
func (i *Item) PrimaryFamily() string {
	if len(i.Families) == 0 {
		return "unknown"
	}
	return strings.ToLower(i.Families[0])
}

// HasSeason reports whether the item is tagged with season (case-insensitive).
func (i *Item) HasSeason(season string) bool {
	return containsFold(i.Seasons, season)
}

// HasOccasion reports whether the item is tagged with occasion (case-insensitive).
func (i *Item) HasOccasion(occasion string) bool {
	return containsFold(i.Occasions, occasion)
}

// HasFamily reports whether the item is tagged with family (case-insensitive).
func (i *Item) HasFamily(family string) bool {
	return containsFold(i.Families, family)
}

// Summary returns a copy of the item without its embedding.
func (i *Item) Summary() Item {
	out := *i
	out.Embedding = nil
	return out
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// UserEmbedding is the learned taste vector of a user.
type UserEmbedding struct {
	// UserID is the owning user.
	UserID string `json:"user_id"`

	// Vector has the same dimension as item embeddings.
	Vector []float64 `json:"vector"`

	// UpdatedAt is when the vector last changed.
	UpdatedAt time.Time `json:"updated_at"`

	// ComputedAt is when the vector was last fully recomputed from history.
	ComputedAt time.Time `json:"computed_at"`

	// InteractionCount is the raw number of interactions folded in.
	InteractionCount int `json:"interaction_count"`

	// EffectiveCount is the decay-weighted interaction count at UpdatedAt.
	EffectiveCount float64 `json:"effective_count"`

	// WeightMass is the decayed sum of |signal weight| behind the vector.
	WeightMass float64 `json:"weight_mass"`

	// Confidence is in [0, 1] and grows with EffectiveCount.
	Confidence float64 `json:"confidence"`

	// PendingUpdates counts incremental updates since the last full recompute.
	PendingUpdates int `json:"pending_updates"`
}

// Clone returns a deep copy.
func (u *UserEmbedding) Clone() *UserEmbedding {
	if u == nil {
		return nil
	}
	out := *u
	out.Vector = append([]float64(nil), u.Vector...)
	return &out
}

// LearnerState is the per-user preference learning state.
type LearnerState string

const (
	// StateCold means no interactions have been seen.
	StateCold LearnerState = "cold"
	// StateWarming means some interactions exist but confidence is low.
	StateWarming LearnerState = "warming"
	// StateStable means the embedding reflects an established taste.
	StateStable LearnerState = "stable"
	// StateShiftDetected means recent behaviour diverges from the long-run taste.
	StateShiftDetected LearnerState = "shift_detected"
)

// LearningResult reports the effect of ingesting one feedback event.
type LearningResult struct {
	// EventID is the ingested event.
	EventID string `json:"event_id"`

	// UserID is the affected user.
	UserID string `json:"user_id"`

	// PreferenceUpdated is false for duplicates and zero-weight events.
	PreferenceUpdated bool `json:"preference_updated"`

	// Duplicate is true when the event was already ingested.
	Duplicate bool `json:"duplicate,omitempty"`

	// ConfidenceDelta is the change in user embedding confidence.
	ConfidenceDelta float64 `json:"confidence_delta"`

	// ShiftDetected reports a preference shift found while processing the event.
	ShiftDetected bool `json:"shift_detected"`

	// ShiftConfidence is the confidence of the detected shift in [0, 1].
	ShiftConfidence float64 `json:"shift_confidence,omitempty"`

	// PreviousState is the learner state before the event.
	PreviousState LearnerState `json:"previous_state"`

	// State is the learner state after the event.
	State LearnerState `json:"state"`

	// Event is the event as the learner stored it: trimmed, lower-cased
	// type, generated id and timestamp filled in.
	Event InteractionEvent `json:"-"`
}

// Candidate is a retrieved item with its raw content similarity.
type Candidate struct {
	Item       Item    `json:"item"`
	Similarity float64 `json:"similarity"`
}

// ScoredCandidate is a candidate with its hybrid score breakdown.
type ScoredCandidate struct {
	// ItemID is the candidate item.
	ItemID string `json:"item_id"`

	// Item is the candidate metadata (embedding stripped in results).
	Item Item `json:"item"`

	// ContentScore is the embedding similarity mapped to [0, 1].
	ContentScore float64 `json:"content_score"`

	// CollaborativeScore is the neighbour-user signal in [0, 1].
	CollaborativeScore float64 `json:"collaborative_score"`

	// ContextualScore is the season/occasion match in [0, 1].
	ContextualScore float64 `json:"contextual_score"`

	// CombinedScore is the weighted fusion in [0, 1].
	CombinedScore float64 `json:"combined_score"`

	// Explanation is attached only when requested.
	Explanation *Explanation `json:"explanation,omitempty"`
}

// SectionName identifies a themed result section.
type SectionName string

const (
	// SectionPerfectMatches holds high-confidence matches.
	SectionPerfectMatches SectionName = "perfect_matches"
	// SectionTrending holds items with a strong social/trend signal.
	SectionTrending SectionName = "trending"
	// SectionAdventurous holds deliberate novelty picks.
	SectionAdventurous SectionName = "adventurous"
	// SectionSeasonal holds items matching the request context.
	SectionSeasonal SectionName = "seasonal"
)

// AllSections lists sections in display order.
var AllSections = []SectionName{
	SectionPerfectMatches,
	SectionTrending,
	SectionAdventurous,
	SectionSeasonal,
}

// Options controls a recommendation request.
type Options struct {
	// MaxResults is the page size. Zero means Config.Limits.DefaultResults.
	MaxResults int `json:"max_results,omitempty"`

	// IncludeExplanations attaches an Explanation to every returned item.
	IncludeExplanations bool `json:"include_explanations,omitempty"`

	// Context is the declared request situation.
	Context RequestContext `json:"context"`

	// Filters are hard constraints applied before ranking.
	Filters Filters `json:"filters"`

	// Experiment selects a named weight set. Empty means the default weights.
	Experiment string `json:"experiment,omitempty"`

	// SkipCache bypasses the result cache.
	SkipCache bool `json:"skip_cache,omitempty"`
}

// Filters are hard constraints on candidate items.
type Filters struct {
	// ExcludeIDs are never returned (for example items already owned).
	ExcludeIDs []string `json:"exclude_ids,omitempty"`

	// Families restricts results to items tagged with at least one family.
	Families []string `json:"families,omitempty"`

	// ExcludeFamilies removes items tagged with any of these families.
	ExcludeFamilies []string `json:"exclude_families,omitempty"`

	// Seasons restricts results to items tagged with at least one season.
	Seasons []string `json:"seasons,omitempty"`

	// Brands restricts results to these brands.
	Brands []string `json:"brands,omitempty"`

	// MinRating drops items with a lower community rating average.
	MinRating float64 `json:"min_rating,omitempty"`

	// Expression is an optional CEL predicate over `item`.
	Expression string `json:"expression,omitempty"`
}

// Match applies the structural filters (everything except Expression).
//
//nolint:gocritic // hugeParam: Filters passed by value for immutability
func (f Filters) Match(item *Item) bool {
	for _, id := range f.ExcludeIDs {
		if id == item.ID {
			return false
		}
	}
	if len(f.Families) > 0 {
		ok := false
		for _, fam := range f.Families {
			if item.HasFamily(fam) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, fam := range f.ExcludeFamilies {
		if item.HasFamily(fam) {
			return false
		}
	}
	if len(f.Seasons) > 0 {
		ok := false
		for _, season := range f.Seasons {
			if item.HasSeason(season) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.Brands) > 0 && !containsFold(f.Brands, item.Brand) {
		return false
	}
	if f.MinRating > 0 && item.RatingAverage < f.MinRating {
		return false
	}
	return true
}

// HasConstraints reports whether any filter beyond ExcludeIDs is set.
//
//nolint:gocritic // hugeParam: Filters passed by value for immutability
func (f Filters) HasConstraints() bool {
	return len(f.Families) > 0 || len(f.ExcludeFamilies) > 0 || len(f.Seasons) > 0 ||
		len(f.Brands) > 0 || f.MinRating > 0 || f.Expression != ""
}

// ExcludeSet returns ExcludeIDs as a set.
//
//nolint:gocritic // hugeParam: Filters passed by value for immutability
func (f Filters) ExcludeSet() map[string]struct{} {
	set := make(map[string]struct{}, len(f.ExcludeIDs))
	for _, id := range f.ExcludeIDs {
		set[id] = struct{}{}
	}
	return set
}

// RecommendationResult is the response to a recommendation request.
type RecommendationResult struct {
	// UserID is the user the result is for.
	UserID string `json:"user_id"`

	// Items is the diversified main page.
	Items []ScoredCandidate `json:"items"`

	// Sections are themed buckets produced by independent passes.
	Sections map[SectionName][]ScoredCandidate `json:"sections"`

	// Metadata describes how the result was produced.
	Metadata ResultMetadata `json:"metadata"`
}

// ResultMetadata contains timing and diagnostic information.
type ResultMetadata struct {
	// RequestID is the unique request identifier.
	RequestID string `json:"request_id"`

	// ProcessingTime is the end-to-end latency.
	ProcessingTime time.Duration `json:"processing_time"`

	// AlgorithmVersion identifies the scoring pipeline.
	AlgorithmVersion string `json:"algorithm_version"`

	// Experiment is the weight set used.
	Experiment string `json:"experiment"`

	// CacheHit indicates the result was served from cache.
	CacheHit bool `json:"cache_hit"`

	// ColdStart indicates the deterministic popularity path was used.
	ColdStart bool `json:"cold_start"`

	// Degraded indicates a fallback was served because a dependency failed.
	Degraded bool `json:"degraded"`

	// FallbackReason explains a degraded or cold-start result.
	FallbackReason string `json:"fallback_reason,omitempty"`

	// Empty is true only when the catalog has nothing to recommend.
	Empty bool `json:"empty"`

	// TotalCandidates is the size of the scored pool.
	TotalCandidates int `json:"total_candidates"`

	// UserConfidence is the confidence of the user embedding used.
	UserConfidence float64 `json:"user_confidence"`

	// GeneratedAt is when the result was produced.
	GeneratedAt time.Time `json:"generated_at"`
}

// ExplanationFactor is one weighted component of an explanation.
type ExplanationFactor struct {
	// Type is content, collaborative, contextual or popularity.
	Type string `json:"type"`

	// Description is human-facing text.
	Description string `json:"description"`

	// Weight is the share of the combined score; weights sum to 1.
	Weight float64 `json:"weight"`

	// Confidence is the sub-confidence of this factor in [0, 1].
	Confidence float64 `json:"confidence"`
}

// Explanation is the rationale attached to a recommendation.
type Explanation struct {
	// ItemID is the explained item.
	ItemID string `json:"item_id"`

	// PrimaryReason is the headline text.
	PrimaryReason string `json:"primary_reason"`

	// Factors is the weighted breakdown.
	Factors []ExplanationFactor `json:"factors"`

	// Confidence is the overall confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// ExplorationFlag is set when Confidence is below the exploration threshold.
	ExplorationFlag bool `json:"exploration_flag"`
}

// QualityReport holds offline/online quality metrics over a window.
type QualityReport struct {
	// Window is the evaluated time span.
	Window time.Duration `json:"window"`

	// K is the cutoff used for precision, recall and NDCG.
	K int `json:"k"`

	// Sessions is the number of evaluated recommendation lists.
	Sessions int `json:"sessions"`

	PrecisionAtK float64 `json:"precision_at_k"`
	RecallAtK    float64 `json:"recall_at_k"`
	NDCG         float64 `json:"ndcg"`
	Diversity    float64 `json:"diversity"`
	Freshness    float64 `json:"freshness"`

	// Variants breaks metrics down per experiment for A/B comparison.
	Variants map[string]*QualityReport `json:"variants,omitempty"`

	// GeneratedAt is when the report was computed.
	GeneratedAt time.Time `json:"generated_at"`
}
