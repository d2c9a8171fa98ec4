// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package scoring

import (
	"strings"
	"time"

	"github.com/tomtom215/scentmatch/internal/recommend"
)

// Season names.
const (
	SeasonSpring = "spring"
	SeasonSummer = "summer"
	SeasonAutumn = "autumn"
	SeasonWinter = "winter"
)

// untaggedScore is the contextual match for items without tags of a kind.
const untaggedScore = 0.5

// allYearTags mark an item as suitable for any season.
var allYearTags = []string{"all", "all-season", "all_season", "year-round"}

// SeasonOf returns the meteorological season of t in the northern hemisphere.
func SeasonOf(t time.Time) string {
	switch t.Month() {
	case time.December, time.January, time.February:
		return SeasonWinter
	case time.March, time.April, time.May:
		return SeasonSpring
	case time.June, time.July, time.August:
		return SeasonSummer
	default:
		return SeasonAutumn
	}
}

// ResolveContext normalizes rc and fills an empty season from now.
func ResolveContext(rc recommend.RequestContext, now time.Time) recommend.RequestContext {
	rc = rc.Normalized()
	if rc.Season == "" {
		rc.Season = SeasonOf(now)
	}
	return rc
}

// ContextualScore matches item tags against a resolved context. Season and
// occasion each score 1 on a match, 0.5 when the item carries no tags of
// that kind and 0 otherwise; the result is the mean of the parts present.
func ContextualScore(item *recommend.Item, rc recommend.RequestContext) float64 {
	var sum float64
	var parts int

	if rc.Season != "" {
		parts++
		switch {
		case len(item.Seasons) == 0:
			sum += untaggedScore
		case item.HasSeason(rc.Season) || hasAny(item.Seasons, allYearTags):
			sum++
		}
	}
	if rc.Occasion != "" {
		parts++
		switch {
		case len(item.Occasions) == 0:
			sum += untaggedScore
		case item.HasOccasion(rc.Occasion):
			sum++
		}
	}
	if parts == 0 {
		return untaggedScore
	}
	return sum / float64(parts)
}

func hasAny(tags, want []string) bool {
	for _, t := range tags {
		for _, w := range want {
			if strings.EqualFold(t, w) {
				return true
			}
		}
	}
	return false
}
