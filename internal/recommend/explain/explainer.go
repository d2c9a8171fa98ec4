// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package explain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tomtom215/scentmatch/internal/recommend"
	"github.com/tomtom215/scentmatch/internal/recommend/vectormath"
)

// Factor types.
const (
	FactorContent       = "content"
	FactorCollaborative = "collaborative"
	FactorContextual    = "contextual"
	FactorPopularity    = "popularity"
)

// DefaultExplorationThreshold is the confidence below which explanations
// are exploratory.
const DefaultExplorationThreshold = 0.5

// contributionEpsilon treats smaller total contributions as zero.
const contributionEpsilon = 1e-12

// factorOrder breaks weight ties so factor order is stable.
var factorOrder = map[string]int{
	FactorContent:       0,
	FactorCollaborative: 1,
	FactorContextual:    2,
	FactorPopularity:    3,
}

// Explainer implements recommend.Explainer. It is stateless and safe for
// concurrent use.
type Explainer struct {
	threshold float64
}

// New creates an explainer. A non-positive threshold uses
// DefaultExplorationThreshold.
func New(threshold float64) *Explainer {
	if threshold <= 0 {
		threshold = DefaultExplorationThreshold
	}
	return &Explainer{threshold: vectormath.Clamp01(threshold)}
}

// Threshold returns the exploration threshold.
func (e *Explainer) Threshold() float64 {
	return e.threshold
}

// Explain builds the explanation for candidate under weights.
// userConfidence is the confidence of the user's embedding, 0 for
// cold-start users.
//
//nolint:gocritic // hugeParam: weights passed by value like the scorer
func (e *Explainer) Explain(candidate *recommend.ScoredCandidate, weights recommend.Weights, userConfidence float64) recommend.Explanation {
	userConfidence = vectormath.Clamp01(userConfidence)
	confidence := userConfidence * vectormath.Clamp01(candidate.CombinedScore)
	exploring := confidence < e.threshold

	var factors []recommend.ExplanationFactor
	if popularityOnly(candidate, userConfidence) {
		factors = []recommend.ExplanationFactor{{
			Type:        FactorPopularity,
			Description: describe(FactorPopularity, &candidate.Item, exploring),
			Weight:      1,
			Confidence:  vectormath.Clamp01(candidate.Item.Popularity),
		}}
	} else {
		factors = signalFactors(candidate, weights.Normalize(), userConfidence, exploring)
	}

	sort.SliceStable(factors, func(i, j int) bool {
		if factors[i].Weight != factors[j].Weight {
			return factors[i].Weight > factors[j].Weight
		}
		return factorOrder[factors[i].Type] < factorOrder[factors[j].Type]
	})

	return recommend.Explanation{
		ItemID:          candidate.ItemID,
		PrimaryReason:   primaryReason(&factors[0], &candidate.Item, exploring),
		Factors:         factors,
		Confidence:      confidence,
		ExplorationFlag: exploring,
	}
}

// popularityOnly reports whether the candidate came from the popularity
// fallback rather than hybrid scoring. Fallback candidates may still carry
// a contextual score.
func popularityOnly(c *recommend.ScoredCandidate, userConfidence float64) bool {
	return userConfidence == 0 && c.ContentScore == 0 && c.CollaborativeScore == 0
}

func signalFactors(c *recommend.ScoredCandidate, w recommend.Weights, userConfidence float64, exploring bool) []recommend.ExplanationFactor {
	type signal struct {
		kind         string
		contribution float64
		confidence   float64
	}
	signals := []signal{
		{FactorContent, w.Content * c.ContentScore, userConfidence},
		{FactorCollaborative, w.Collaborative * c.CollaborativeScore, vectormath.Clamp01(c.CollaborativeScore)},
		{FactorContextual, w.Contextual * c.ContextualScore, vectormath.Clamp01(c.ContextualScore)},
	}

	var total float64
	for _, s := range signals {
		total += max(s.contribution, 0)
	}

	factors := make([]recommend.ExplanationFactor, len(signals))
	for i, s := range signals {
		weight := 1 / float64(len(signals))
		if total > contributionEpsilon {
			weight = max(s.contribution, 0) / total
		}
		factors[i] = recommend.ExplanationFactor{
			Type:        s.kind,
			Description: describe(s.kind, &c.Item, exploring),
			Weight:      weight,
			Confidence:  s.confidence,
		}
	}
	return factors
}

func primaryReason(top *recommend.ExplanationFactor, item *recommend.Item, exploring bool) string {
	if exploring {
		return "You might enjoy exploring " + subject(item)
	}
	return top.Description
}

// subject names the item for exploratory phrasing.
func subject(item *recommend.Item) string {
	family := item.PrimaryFamily()
	switch {
	case item.Name != "" && family != "unknown":
		return fmt.Sprintf("%s, a %s scent", item.Name, family)
	case item.Name != "":
		return item.Name
	case family != "unknown":
		return fmt.Sprintf("this %s scent", family)
	default:
		return "this scent"
	}
}

func describe(kind string, item *recommend.Item, exploring bool) string {
	family := item.PrimaryFamily()
	switch kind {
	case FactorContent:
		notes := ""
		if len(item.Notes) > 0 {
			notes = " with notes of " + joinNatural(item.Notes[:min(2, len(item.Notes))])
		}
		if exploring {
			return fmt.Sprintf("Its %s character%s may suit your scent profile", family, notes)
		}
		return fmt.Sprintf("Matches your scent profile: %s%s", family, notes)
	case FactorCollaborative:
		if exploring {
			return "Some people with similar taste enjoy it"
		}
		return "Loved by people with taste like yours"
	case FactorContextual:
		when := "any season"
		if len(item.Seasons) > 0 {
			when = joinNatural(item.Seasons)
		}
		if exploring {
			return "Could work for " + when
		}
		return "A good fit for " + when
	case FactorPopularity:
		if item.RatingCount > 0 {
			return fmt.Sprintf("Popular with fragrance lovers, rated %.1f by %d people", item.RatingAverage, item.RatingCount)
		}
		return "Popular with fragrance lovers"
	default:
		return ""
	}
}

// joinNatural joins words as "a", "a and b" or "a, b and c".
func joinNatural(words []string) string {
	switch len(words) {
	case 0:
		return ""
	case 1:
		return words[0]
	default:
		return strings.Join(words[:len(words)-1], ", ") + " and " + words[len(words)-1]
	}
}

var _ recommend.Explainer = (*Explainer)(nil)
