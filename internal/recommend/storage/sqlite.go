// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/tomtom215/scentmatch/internal/recommend"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteInteractionStore is an append-only interaction log in SQLite.
type SQLiteInteractionStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the interaction database in dataDir.
// Pass ":memory:" for an in-memory database.
func OpenSQLite(dataDir string) (*SQLiteInteractionStore, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "interactions.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// A single connection avoids "database is locked" under concurrent writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode=WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteInteractionStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteInteractionStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteInteractionStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		prefix, _, _ := strings.Cut(entry.Name(), "_")
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return fmt.Errorf("migration %s: invalid version prefix", entry.Name())
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", version, err)
		}
	}
	return nil
}

const insertInteraction = `INSERT INTO interactions (id, user_id, item_id, type, strength, ts, season, occasion)
VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEvent(ctx context.Context, db execer, event *recommend.InteractionEvent) (bool, error) {
	var season, occasion string
	if event.Context != nil {
		season, occasion = event.Context.Season, event.Context.Occasion
	}
	res, err := db.ExecContext(ctx, insertInteraction,
		event.ID, event.UserID, event.ItemID, string(event.Type), event.Strength,
		event.Timestamp.UnixNano(), season, occasion)
	if err != nil {
		return false, fmt.Errorf("insert interaction %s: %w", event.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Append implements recommend.InteractionStore.
//
//nolint:gocritic // hugeParam: events are values in the store API
func (s *SQLiteInteractionStore) Append(ctx context.Context, event recommend.InteractionEvent) error {
	inserted, err := insertEvent(ctx, s.db, &event)
	if err != nil {
		return err
	}
	if !inserted {
		return fmt.Errorf("append %s: %w", event.ID, recommend.ErrDuplicateEvent)
	}
	return nil
}

// AppendBatch implements recommend.BatchAppender.
func (s *SQLiteInteractionStore) AppendBatch(ctx context.Context, events []recommend.InteractionEvent) (map[string]bool, error) {
	duplicates := make(map[string]bool)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return duplicates, fmt.Errorf("begin batch: %w", err)
	}
	for i := range events {
		inserted, err := insertEvent(ctx, tx, &events[i])
		if err != nil {
			_ = tx.Rollback()
			return duplicates, err
		}
		if !inserted {
			duplicates[events[i].ID] = true
		}
	}
	if err := tx.Commit(); err != nil {
		return duplicates, fmt.Errorf("commit batch: %w", err)
	}
	return duplicates, nil
}

// History implements recommend.InteractionStore.
func (s *SQLiteInteractionStore) History(ctx context.Context, userID string, since time.Time) ([]recommend.InteractionEvent, error) {
	var sinceNano int64
	if !since.IsZero() {
		sinceNano = since.UnixNano()
	} else {
		sinceNano = minInt64
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, item_id, type, strength, ts, season, occasion
		 FROM interactions WHERE user_id = ? AND ts >= ? ORDER BY ts, id`,
		userID, sinceNano)
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()

	var events []recommend.InteractionEvent
	for rows.Next() {
		var (
			ev               recommend.InteractionEvent
			typ              string
			ts               int64
			season, occasion string
		)
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.ItemID, &typ, &ev.Strength, &ts, &season, &occasion); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		ev.Type = recommend.InteractionType(typ)
		ev.Timestamp = time.Unix(0, ts).UTC()
		if season != "" || occasion != "" {
			ev.Context = &recommend.RequestContext{Season: season, Occasion: occasion}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return events, nil
}

// Users implements recommend.UserLister.
func (s *SQLiteInteractionStore) Users(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM interactions ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountByType returns the number of stored events per interaction type.
func (s *SQLiteInteractionStore) CountByType(ctx context.Context) (map[recommend.InteractionType]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM interactions GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("count interactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[recommend.InteractionType]int)
	for rows.Next() {
		var (
			typ string
			n   int
		)
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[recommend.InteractionType(typ)] = n
	}
	return counts, rows.Err()
}

const minInt64 = -1 << 63

var (
	_ recommend.InteractionStore = (*SQLiteInteractionStore)(nil)
	_ recommend.BatchAppender    = (*SQLiteInteractionStore)(nil)
	_ recommend.UserLister       = (*SQLiteInteractionStore)(nil)
)
