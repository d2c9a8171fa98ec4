// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

/*
Package learner turns feedback events into user preference updates.

Each user moves through a small state machine:

	cold -> warming -> stable -> shift_detected -> stable

A user is cold until the first accepted interaction, warming while the
decay-weighted interaction count is below the stable threshold, and stable
afterwards. While stable, the learner keeps a short window of the most
recent item vectors. When the cosine distance between that short-run
vector and the long-run embedding crosses the shift threshold, the
long-run vector is blended toward the short-run one and the window resets.

# Ingestion

LearnFromInteraction validates and normalizes an event, resolves its user
and item, drops duplicates through a Bloom+LRU deduplicator backed by the
interaction store, appends the event, and folds it into the embedding.

LearnFromBatch processes many events at once. Events are sorted by
timestamp (ID breaks ties), duplicates are dropped, and each user's events
are applied under a single lock with one persisted write. Users are
processed concurrently with bounded parallelism. Replaying a batch is a
no-op.

# Sweeps

Sweep recomputes every known user from history and runs shift detection.
It is paced by a token-bucket limiter so it never competes with request
traffic. The supervisor runs it on an interval.
*/
package learner
