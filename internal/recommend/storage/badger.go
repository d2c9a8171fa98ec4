// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/scentmatch/internal/recommend"
	"github.com/tomtom215/scentmatch/internal/recommend/embedding"
)

// Key prefixes.
const (
	embeddingKeyPrefix = "emb:"
	eventKeyPrefix     = "evt:"
	historyKeyPrefix   = "hist:"
	userKeyPrefix      = "user:"
)

// historyTimeLayout sorts lexicographically in time order.
const historyTimeLayout = "20060102150405.000000000"

// BadgerStore persists interactions and user embeddings in BadgerDB.
type BadgerStore struct {
	db     *badger.DB
	ownsDB bool
}

// OpenBadger opens (or creates) a BadgerDB at path. An empty path opens an
// in-memory database.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Suppress BadgerDB logs

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &BadgerStore{db: db, ownsDB: true}, nil
}

// NewBadgerStoreFromDB wraps an already open database. Close does not close it.
func NewBadgerStoreFromDB(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Close closes the database if it was opened by OpenBadger.
func (s *BadgerStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// Append implements recommend.InteractionStore.
//
//nolint:gocritic // hugeParam: events are values in the store API
func (s *BadgerStore) Append(_ context.Context, event recommend.InteractionEvent) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return putEvent(txn, &event)
	})
}

// AppendBatch implements recommend.BatchAppender. All non-duplicate events
// are written in one transaction.
func (s *BadgerStore) AppendBatch(_ context.Context, events []recommend.InteractionEvent) (map[string]bool, error) {
	duplicates := make(map[string]bool)
	err := s.db.Update(func(txn *badger.Txn) error {
		for i := range events {
			err := putEvent(txn, &events[i])
			if errors.Is(err, recommend.ErrDuplicateEvent) {
				duplicates[events[i].ID] = true
				continue
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return duplicates, fmt.Errorf("append batch: %w", err)
	}
	return duplicates, nil
}

func putEvent(txn *badger.Txn, event *recommend.InteractionEvent) error {
	eventKey := []byte(eventKeyPrefix + event.ID)
	_, err := txn.Get(eventKey)
	switch {
	case err == nil:
		return fmt.Errorf("append %s: %w", event.ID, recommend.ErrDuplicateEvent)
	case !errors.Is(err, badger.ErrKeyNotFound):
		return fmt.Errorf("check event %s: %w", event.ID, err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := txn.Set(eventKey, data); err != nil {
		return err
	}
	if err := txn.Set(historyKey(event), data); err != nil {
		return err
	}
	return txn.Set([]byte(userKeyPrefix+event.UserID), nil)
}

func historyKey(event *recommend.InteractionEvent) []byte {
	return []byte(historyPrefix(event.UserID) + event.Timestamp.UTC().Format(historyTimeLayout) + ":" + event.ID)
}

func historyPrefix(userID string) string {
	return historyKeyPrefix + userID + ":"
}

// History implements recommend.InteractionStore.
func (s *BadgerStore) History(ctx context.Context, userID string, since time.Time) ([]recommend.InteractionEvent, error) {
	var events []recommend.InteractionEvent

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(historyPrefix(userID))
		start := prefix
		if !since.IsZero() {
			start = []byte(historyPrefix(userID) + since.UTC().Format(historyTimeLayout))
		}
		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var ev recommend.InteractionEvent
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ev)
			}); err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", userID, err)
	}
	return events, nil
}

// Users implements recommend.UserLister.
func (s *BadgerStore) Users(_ context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(userKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), userKeyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return ids, nil
}

// Load implements embedding.Repository.
func (s *BadgerStore) Load(_ context.Context, userID string) (*recommend.UserEmbedding, error) {
	var emb recommend.UserEmbedding
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(embeddingKeyPrefix + userID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &emb)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, embedding.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load embedding %s: %w", userID, err)
	}
	return &emb, nil
}

// Save implements embedding.Repository.
func (s *BadgerStore) Save(_ context.Context, emb *recommend.UserEmbedding) error {
	data, err := json.Marshal(emb)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(embeddingKeyPrefix+emb.UserID), data)
	})
}

// List implements embedding.Repository.
func (s *BadgerStore) List(_ context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(embeddingKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), embeddingKeyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	return ids, nil
}

// EventCount returns the number of stored events.
func (s *BadgerStore) EventCount() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(eventKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

var (
	_ recommend.InteractionStore = (*BadgerStore)(nil)
	_ recommend.BatchAppender    = (*BadgerStore)(nil)
	_ recommend.UserLister       = (*BadgerStore)(nil)
	_ embedding.Repository       = (*BadgerStore)(nil)
)
