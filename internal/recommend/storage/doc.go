// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

// Package storage provides persistence backends for the recommendation engine.
//
// # Backends
//
//   - MemoryInteractionStore: in-process interaction log, used in tests and
//     for the "memory" storage backend
//   - BadgerStore: embedded key-value store holding both the interaction log
//     and the user embeddings
//   - SQLiteInteractionStore: append-only relational interaction log kept
//     for retraining and audit
//   - SnapshotStore: versioned, compressed snapshots of all user embeddings
//
// All interaction stores deduplicate on the event ID and return an error
// wrapping recommend.ErrDuplicateEvent for an event that was already stored.
// History is always ordered by timestamp, then event ID.
//
// # Key Layout (Badger)
//
//	emb:{user}                   JSON UserEmbedding
//	evt:{event}                  JSON InteractionEvent (dedupe key)
//	hist:{user}:{unixnano}:{id}  JSON InteractionEvent (per-user index)
//	user:{user}                  empty marker for user enumeration
//
// # Snapshot Format
//
//	filename: {name}_v{version}.gob.gz
//
//	structure:
//	  - Metadata (SnapshotMetadata)
//	  - CompressedData (gzip-compressed gob-encoded []UserEmbedding)
//
// The metadata carries a SHA-256 checksum of the uncompressed payload that
// is verified on load.
package storage
