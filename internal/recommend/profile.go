// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package recommend

import (
	"sort"
	"strings"
)

// FamilyProfile builds a user's family distribution from history. Positive
// signal weight is spread over each item's families; negative signals and
// unknown items are ignored. The result sums to 1, or is empty.
func FamilyProfile(events []InteractionEvent, items map[string]Item) map[string]float64 {
	profile := make(map[string]float64)
	for i := range events {
		w := events[i].SignalWeight()
		if w <= 0 {
			continue
		}
		item, ok := items[events[i].ItemID]
		if !ok || len(item.Families) == 0 {
			continue
		}
		share := w / float64(len(item.Families))
		for _, fam := range item.Families {
			profile[strings.ToLower(fam)] += share
		}
	}

	keys := make([]string, 0, len(profile))
	for k := range profile {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var total float64
	for _, k := range keys {
		total += profile[k]
	}
	if total > 0 {
		for k := range profile {
			profile[k] /= total
		}
	}
	return profile
}
