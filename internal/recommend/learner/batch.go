// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package learner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/scentmatch/internal/metrics"
	"github.com/tomtom215/scentmatch/internal/recommend"
)

// LearnFromBatch ingests many events. Invalid or unresolvable events are
// reported in the joined error while the rest of the batch is still
// processed. Results are returned in timestamp order, one per accepted
// event, including duplicates.
func (l *Learner) LearnFromBatch(ctx context.Context, events []recommend.InteractionEvent) ([]recommend.LearningResult, error) {
	if len(events) == 0 {
		return nil, nil
	}
	metrics.LearningBatchSize.Observe(float64(len(events)))

	var errs []error
	accepted := make([]recommend.InteractionEvent, 0, len(events))
	for i := range events {
		ev, err := l.normalize(events[i])
		if err != nil {
			metrics.RecordLearningEvent(string(events[i].Type), outcomeRejected)
			errs = append(errs, fmt.Errorf("event %d: %w", i, err))
			continue
		}
		accepted = append(accepted, ev)
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		a, b := &accepted[i], &accepted[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.ID < b.ID
	})

	res := newBatchResolver(l)
	resolved := make([]recommend.InteractionEvent, 0, len(accepted))
	for i := range accepted {
		if _, err := res.resolve(ctx, &accepted[i]); err != nil {
			metrics.RecordLearningEvent(string(accepted[i].Type), outcomeRejected)
			errs = append(errs, fmt.Errorf("event %s: %w", accepted[i].ID, err))
			continue
		}
		resolved = append(resolved, accepted[i])
	}

	results := make([]recommend.LearningResult, len(resolved))
	fresh := make([]int, 0, len(resolved))
	seen := make(map[string]struct{}, len(resolved))
	for i := range resolved {
		ev := &resolved[i]
		_, inBatch := seen[ev.ID]
		if inBatch || l.dedupe.IsDuplicate(ev.ID) {
			results[i] = l.duplicateResult(l.stateFor(ev.UserID), ev)
			metrics.RecordLearningEvent(string(ev.Type), outcomeDuplicate)
			continue
		}
		seen[ev.ID] = struct{}{}
		fresh = append(fresh, i)
	}

	toAppend := make([]recommend.InteractionEvent, len(fresh))
	for j, i := range fresh {
		toAppend[j] = resolved[i]
	}
	stored, err := l.appendAll(ctx, toAppend)
	if err != nil {
		// Events that did reach the store are picked up by the next recompute.
		for _, ev := range toAppend {
			l.dedupe.Forget(ev.ID)
		}
		errs = append(errs, fmt.Errorf("append batch: %w", err))
		return nil, errors.Join(errs...)
	}

	groups := make(map[string][]int)
	order := make([]string, 0)
	for _, i := range fresh {
		ev := &resolved[i]
		if stored[ev.ID] {
			results[i] = l.duplicateResult(l.stateFor(ev.UserID), ev)
			metrics.RecordLearningEvent(string(ev.Type), outcomeDuplicate)
			continue
		}
		if _, ok := groups[ev.UserID]; !ok {
			order = append(order, ev.UserID)
		}
		groups[ev.UserID] = append(groups[ev.UserID], i)
	}
	sort.Strings(order)

	var (
		errMu   sync.Mutex
		userErr []error
		g       errgroup.Group
	)
	g.SetLimit(l.cfg.BatchConcurrency)
	for _, userID := range order {
		idxs := groups[userID]
		g.Go(func() error {
			evs := make([]recommend.InteractionEvent, len(idxs))
			out := make([]*recommend.LearningResult, len(idxs))
			for j, i := range idxs {
				evs[j] = resolved[i]
				out[j] = &results[i]
			}
			if err := l.applyUserBatch(ctx, userID, evs, res.items, out); err != nil {
				errMu.Lock()
				userErr = append(userErr, err)
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	errs = append(errs, userErr...)

	final := results[:0]
	for i := range results {
		if results[i].EventID != "" {
			final = append(final, results[i])
		}
	}
	return final, errors.Join(errs...)
}

// applyUserBatch folds one user's events under the user's learner lock and
// fills out. The embedding store persists once for the whole group.
func (l *Learner) applyUserBatch(ctx context.Context, userID string, evs []recommend.InteractionEvent, items map[string]recommend.Item, out []*recommend.LearningResult) error {
	st := l.stateFor(userID)
	st.mu.Lock()

	prev := st.state
	before, after, steps, err := l.store.ApplyBatch(ctx, userID, evs)
	insufficient := errors.Is(err, recommend.ErrInsufficientData)
	if err != nil && !insufficient {
		st.mu.Unlock()
		for i := range evs {
			metrics.RecordLearningEvent(string(evs[i].Type), outcomeError)
		}
		return fmt.Errorf("apply batch for %s: %w", userID, err)
	}

	conf := confidenceOf(before)
	for i := range evs {
		ev := &evs[i]
		r := out[i]
		*r = recommend.LearningResult{
			EventID:       ev.ID,
			UserID:        userID,
			PreviousState: st.state,
			Event:         *ev,
		}
		if !insufficient && !math.IsNaN(steps[i]) {
			r.PreferenceUpdated = ev.SignalWeight() != 0
			r.ConfidenceDelta = steps[i] - conf
			conf = steps[i]
			if item, ok := items[ev.ItemID]; ok && len(item.Embedding) > 0 {
				st.window.push(item.Embedding, ev.SignalWeight())
			}
		}
		if st.state == recommend.StateCold {
			st.state = recommend.StateWarming
		}
		r.State = st.state

		outcome := outcomeApplied
		if !r.PreferenceUpdated {
			outcome = outcomeNoUpdate
		}
		metrics.RecordLearningEvent(string(ev.Type), outcome)
	}

	// Stability and shift are evaluated once against the final embedding.
	last := out[len(out)-1]
	if !insufficient {
		l.advanceLocked(st, after)
		l.shiftLocked(ctx, st, userID, after, last)
	}
	if !last.ShiftDetected {
		last.State = st.state
	}
	st.mu.Unlock()

	l.recordTransition(prev, last.State)
	for i := range evs {
		l.notify(evs[i])
	}
	return nil
}

// appendAll persists events, in one transaction when the store supports it.
func (l *Learner) appendAll(ctx context.Context, events []recommend.InteractionEvent) (map[string]bool, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if ba, ok := l.history.(recommend.BatchAppender); ok {
		return ba.AppendBatch(ctx, events)
	}
	dups := make(map[string]bool)
	for i := range events {
		err := l.history.Append(ctx, events[i])
		switch {
		case errors.Is(err, recommend.ErrDuplicateEvent):
			dups[events[i].ID] = true
		case err != nil:
			return dups, err
		}
	}
	return dups, nil
}

// batchResolver memoizes user and item lookups for the lifetime of a batch.
type batchResolver struct {
	l     *Learner
	users map[string]error
	items map[string]recommend.Item
}

func newBatchResolver(l *Learner) *batchResolver {
	return &batchResolver{
		l:     l,
		users: make(map[string]error),
		items: make(map[string]recommend.Item),
	}
}

func (r *batchResolver) resolve(ctx context.Context, ev *recommend.InteractionEvent) (recommend.Item, error) {
	if r.l.users != nil {
		uerr, ok := r.users[ev.UserID]
		if !ok {
			exists, err := r.l.users.Exists(ctx, ev.UserID)
			switch {
			case err != nil:
				uerr = fmt.Errorf("resolve user %s: %w", ev.UserID, err)
			case !exists:
				uerr = fmt.Errorf("user %s: %w", ev.UserID, recommend.ErrUnknownUser)
			}
			r.users[ev.UserID] = uerr
		}
		if uerr != nil {
			return recommend.Item{}, uerr
		}
	}
	if item, ok := r.items[ev.ItemID]; ok {
		return item, nil
	}
	item, err := r.l.catalog.GetItem(ctx, ev.ItemID)
	if err != nil {
		return recommend.Item{}, fmt.Errorf("resolve item %s: %w", ev.ItemID, err)
	}
	r.items[ev.ItemID] = item
	return item, nil
}
