// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package evaluation

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scentmatch/internal/cache"
	"github.com/tomtom215/scentmatch/internal/recommend"
)

// seenTTL bounds how long a served item counts as already seen by a user.
const seenTTL = 30 * 24 * time.Hour

// session is one served list and the positive interactions that followed it.
type session struct {
	userID     string
	experiment string
	servedAt   time.Time
	ids        []string
	items      []recommend.Item
	fresh      []bool
	relevant   map[string]struct{}
}

// snapshot is a copy of a session taken under the queue lock.
type snapshot struct {
	experiment string
	ids        []string
	items      []recommend.Item
	fresh      []bool
	relevant   map[string]struct{}
}

// Evaluator implements recommend.QualityEvaluator.
type Evaluator struct {
	cfg    recommend.EvaluationConfig
	logger zerolog.Logger

	sessions *cache.TimeQueue[*session]
	seq      atomic.Uint64

	// mu guards byUser and seen. It is never acquired while the queue lock
	// is held.
	mu     sync.Mutex
	byUser map[string][]string
	seen   *cache.LRU[map[string]struct{}]
}

// NewEvaluator creates an evaluator.
//
//nolint:gocritic // hugeParam: config passed by value for immutability
func NewEvaluator(cfg recommend.EvaluationConfig, logger zerolog.Logger) *Evaluator {
	if cfg.K <= 0 {
		cfg.K = 10
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 50000
	}
	return &Evaluator{
		cfg:      cfg,
		logger:   logger.With().Str("component", "quality_evaluator").Logger(),
		sessions: cache.NewTimeQueue[*session](cfg.MaxSessions),
		byUser:   make(map[string][]string),
		seen:     cache.NewLRU[map[string]struct{}](cfg.MaxSessions, seenTTL),
	}
}

// RecordServed logs a served list. Items never served to the user before,
// or launched within the freshness horizon of at, count as fresh.
func (e *Evaluator) RecordServed(userID, experiment string, items []recommend.ScoredCandidate, at time.Time) {
	if userID == "" || len(items) == 0 {
		return
	}
	if experiment == "" {
		experiment = recommend.DefaultExperiment
	}

	s := &session{
		userID:     userID,
		experiment: experiment,
		servedAt:   at,
		ids:        make([]string, len(items)),
		items:      make([]recommend.Item, len(items)),
		fresh:      make([]bool, len(items)),
		relevant:   make(map[string]struct{}),
	}
	key := userID + "|" + strconv.FormatUint(e.seq.Add(1), 10)

	e.mu.Lock()
	seen, ok := e.seen.Get(userID)
	if !ok {
		seen = make(map[string]struct{})
	}
	for i := range items {
		item := &items[i].Item
		s.ids[i] = items[i].ItemID
		s.items[i] = recommend.Item{ID: items[i].ItemID, Families: item.Families, LaunchedAt: item.LaunchedAt}
		_, before := seen[items[i].ItemID]
		s.fresh[i] = !before || e.launchedRecently(item.LaunchedAt, at)
		seen[items[i].ItemID] = struct{}{}
	}
	e.seen.Set(userID, seen)
	e.byUser[userID] = append(e.byUser[userID], key)
	e.mu.Unlock()

	if evicted := e.sessions.Push(key, s, at); evicted != nil {
		e.forget(evicted.Value.userID, evicted.Key)
	}
}

func (e *Evaluator) launchedRecently(launched, at time.Time) bool {
	if launched.IsZero() || e.cfg.FreshnessHorizon <= 0 {
		return false
	}
	age := at.Sub(launched)
	return age >= 0 && age <= e.cfg.FreshnessHorizon
}

func (e *Evaluator) forget(userID, key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	keys := e.byUser[userID]
	for i, k := range keys {
		if k == key {
			keys = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	if len(keys) == 0 {
		delete(e.byUser, userID)
		return
	}
	e.byUser[userID] = keys
}

// RecordInteraction attaches a positive interaction to every list served
// to the user at or before the event time. Other events are ignored.
func (e *Evaluator) RecordInteraction(event recommend.InteractionEvent) {
	if !event.IsPositive() {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	keys := e.byUser[event.UserID]
	live := keys[:0]
	for _, key := range keys {
		ok := e.sessions.Update(key, func(s **session) {
			if !event.Timestamp.Before((*s).servedAt) {
				(*s).relevant[event.ItemID] = struct{}{}
			}
		})
		if ok {
			live = append(live, key)
		}
	}
	if len(live) == 0 {
		delete(e.byUser, event.UserID)
		return
	}
	e.byUser[event.UserID] = live
}

// Evaluate reports quality over lists served in (now-window, now]. A
// non-positive window covers the whole log.
func (e *Evaluator) Evaluate(window time.Duration, now time.Time) recommend.QualityReport {
	var since time.Time
	if window > 0 {
		since = now.Add(-window)
	}

	var snaps []snapshot
	e.sessions.Range(since, func(entry *cache.QueueEntry[*session]) bool {
		if entry.Timestamp.After(now) {
			return true
		}
		s := entry.Value
		relevant := make(map[string]struct{}, len(s.relevant))
		for id := range s.relevant {
			relevant[id] = struct{}{}
		}
		snaps = append(snaps, snapshot{
			experiment: s.experiment,
			ids:        s.ids,
			items:      s.items,
			fresh:      s.fresh,
			relevant:   relevant,
		})
		return true
	})

	report := e.aggregate(snaps, window, now)
	byVariant := make(map[string][]snapshot)
	for i := range snaps {
		byVariant[snaps[i].experiment] = append(byVariant[snaps[i].experiment], snaps[i])
	}
	report.Variants = make(map[string]*recommend.QualityReport, len(byVariant))
	for name, group := range byVariant {
		variant := e.aggregate(group, window, now)
		report.Variants[name] = &variant
	}

	e.logger.Debug().
		Int("sessions", report.Sessions).
		Int("variants", len(report.Variants)).
		Float64("ndcg", report.NDCG).
		Msg("Quality evaluated")
	return report
}

func (e *Evaluator) aggregate(snaps []snapshot, window time.Duration, now time.Time) recommend.QualityReport {
	report := recommend.QualityReport{
		Window:      window,
		K:           e.cfg.K,
		Sessions:    len(snaps),
		GeneratedAt: now,
	}
	if len(snaps) == 0 {
		return report
	}

	var precision, recall, ndcg, diversity, freshness float64
	evaluable := 0
	for i := range snaps {
		s := &snaps[i]
		top := min(e.cfg.K, len(s.ids))

		precision += PrecisionAtK(s.ids, s.relevant, e.cfg.K)
		diversity += IntraListDiversity(s.items[:top])
		freshness += freshShare(s.fresh[:top])

		if len(s.relevant) > 0 {
			evaluable++
			recall += RecallAtK(s.ids, s.relevant, e.cfg.K)
			ndcg += NDCGAtK(s.ids, s.relevant, e.cfg.K)
		}
	}

	n := float64(len(snaps))
	report.PrecisionAtK = precision / n
	report.Diversity = diversity / n
	report.Freshness = freshness / n
	if evaluable > 0 {
		report.RecallAtK = recall / float64(evaluable)
		report.NDCG = ndcg / float64(evaluable)
	}
	return report
}

func freshShare(fresh []bool) float64 {
	if len(fresh) == 0 {
		return 0
	}
	n := 0
	for _, f := range fresh {
		if f {
			n++
		}
	}
	return float64(n) / float64(len(fresh))
}

// Sessions returns the number of logged lists.
func (e *Evaluator) Sessions() int {
	return e.sessions.Len()
}

var _ recommend.QualityEvaluator = (*Evaluator)(nil)
