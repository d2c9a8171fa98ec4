// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package learner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tomtom215/scentmatch/internal/metrics"
	"github.com/tomtom215/scentmatch/internal/recommend"
)

// SweepReport summarizes one background sweep.
type SweepReport struct {
	Users      int           `json:"users"`
	Recomputed int           `json:"recomputed"`
	Shifts     int           `json:"shifts"`
	Skipped    int           `json:"skipped"`
	Errors     int           `json:"errors"`
	Duration   time.Duration `json:"duration"`
}

// Sweep recomputes every known user's embedding from history and runs
// shift detection. Users are processed with bounded concurrency and paced
// by SweepRatePerSecond. A canceled context stops the sweep early; the
// partial report is still returned.
func (l *Learner) Sweep(ctx context.Context) (SweepReport, error) {
	start := time.Now()

	users, err := l.sweepUsers(ctx)
	if err != nil {
		return SweepReport{}, fmt.Errorf("list users: %w", err)
	}

	limiter := rate.NewLimiter(rate.Limit(l.cfg.SweepRatePerSecond), 1)
	var (
		recomputed, shifts, skipped, failed atomic.Int64
		g                                   errgroup.Group
		stopErr                             error
	)
	g.SetLimit(l.cfg.SweepConcurrency)

	for _, userID := range users {
		if err := limiter.Wait(ctx); err != nil {
			stopErr = err
			break
		}
		g.Go(func() error {
			shifted, err := l.sweepUser(ctx, userID)
			switch {
			case errors.Is(err, recommend.ErrInsufficientData):
				skipped.Add(1)
			case err != nil:
				failed.Add(1)
				l.logger.Warn().Err(err).Str("user_id", userID).Msg("sweep recompute failed")
			default:
				recomputed.Add(1)
				if shifted {
					shifts.Add(1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	report := SweepReport{
		Users:      len(users),
		Recomputed: int(recomputed.Load()),
		Shifts:     int(shifts.Load()),
		Skipped:    int(skipped.Load()),
		Errors:     int(failed.Load()),
		Duration:   time.Since(start),
	}
	metrics.RecordSweep(report.Duration, report.Recomputed, report.Shifts, report.Errors)

	l.logger.Info().
		Int("users", report.Users).
		Int("recomputed", report.Recomputed).
		Int("shifts", report.Shifts).
		Int("errors", report.Errors).
		Dur("duration", report.Duration).
		Msg("preference sweep complete")

	return report, stopErr
}

// sweepUsers returns the sorted union of users known to the embedding
// store and, when it can enumerate them, the interaction store.
func (l *Learner) sweepUsers(ctx context.Context) ([]string, error) {
	set := make(map[string]struct{})
	ids, err := l.store.Users(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	if lister, ok := l.history.(recommend.UserLister); ok {
		more, err := lister.Users(ctx)
		if err != nil {
			return nil, err
		}
		for _, id := range more {
			set[id] = struct{}{}
		}
	}
	users := make([]string, 0, len(set))
	for id := range set {
		users = append(users, id)
	}
	sort.Strings(users)
	return users, nil
}

// sweepUser recomputes one user and checks for a shift.
func (l *Learner) sweepUser(ctx context.Context, userID string) (bool, error) {
	st := l.stateFor(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	emb, err := l.store.Recompute(ctx, userID)
	if err != nil {
		return false, err
	}
	if st.window.len() == 0 {
		l.rebuildWindowLocked(ctx, st, userID)
	}

	prev := st.state
	l.advanceLocked(st, emb)
	l.recordTransition(prev, st.state)

	var result recommend.LearningResult
	return l.shiftLocked(ctx, st, userID, emb, &result), nil
}

// rebuildWindowLocked refills the short window from the most recent
// history after a restart. Caller holds st.mu.
func (l *Learner) rebuildWindowLocked(ctx context.Context, st *userState, userID string) {
	events, err := l.history.History(ctx, userID, time.Time{})
	if err != nil {
		l.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to read history for shift window")
		return
	}
	if n := l.cfg.ShortWindow; len(events) > n {
		events = events[len(events)-n:]
	}
	for i := range events {
		item, err := l.catalog.GetItem(ctx, events[i].ItemID)
		if err != nil {
			continue
		}
		st.window.push(item.Embedding, events[i].SignalWeight())
	}
}
