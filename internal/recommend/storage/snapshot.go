// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/scentmatch/internal/recommend"
	"github.com/tomtom215/scentmatch/internal/recommend/embedding"
)

// ErrNoSnapshot is returned when no snapshot exists for a name.
var ErrNoSnapshot = errors.New("no snapshot")

const snapshotExt = ".gob.gz"

// SnapshotMetadata describes a stored embedding snapshot.
type SnapshotMetadata struct {
	// Name identifies the snapshot series (e.g. "user_embeddings").
	Name string `json:"name"`

	// Version increases monotonically per name.
	Version int `json:"version"`

	// SavedAt is when the snapshot was written.
	SavedAt time.Time `json:"saved_at"`

	// UserCount is the number of embeddings in the snapshot.
	UserCount int `json:"user_count"`

	// Dimension is the vector length.
	Dimension int `json:"dimension"`

	// Checksum is the SHA-256 of the uncompressed payload.
	Checksum string `json:"checksum"`

	// SizeBytes is the compressed payload size.
	SizeBytes int64 `json:"size_bytes"`
}

// snapshotFile is the on-disk format.
type snapshotFile struct {
	Metadata       SnapshotMetadata
	CompressedData []byte
}

// SnapshotStore manages versioned embedding snapshots on disk.
type SnapshotStore struct {
	baseDir string
	mu      sync.RWMutex

	// latest version per name
	versions map[string]int
}

// NewSnapshotStore creates a snapshot store at dir.
func NewSnapshotStore(dir string) (*SnapshotStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}

	s := &SnapshotStore{
		baseDir:  dir,
		versions: make(map[string]int),
	}
	if err := s.scan(); err != nil {
		return nil, fmt.Errorf("scan snapshots: %w", err)
	}
	return s, nil
}

func (s *SnapshotStore) scan() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, version := parseSnapshotFilename(entry.Name())
		if name == "" {
			continue
		}
		if current, ok := s.versions[name]; !ok || version > current {
			s.versions[name] = version
		}
	}
	return nil
}

// parseSnapshotFilename splits "user_embeddings_v3.gob.gz" into name and version.
func parseSnapshotFilename(filename string) (name string, version int) {
	base, ok := strings.CutSuffix(filename, snapshotExt)
	if !ok {
		return "", 0
	}
	idx := strings.LastIndex(base, "_v")
	if idx <= 0 {
		return "", 0
	}
	if _, err := fmt.Sscanf(base[idx+2:], "%d", &version); err != nil || version < 1 {
		return "", 0
	}
	return base[:idx], version
}

func (s *SnapshotStore) path(name string, version int) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s_v%d%s", name, version, snapshotExt))
}

// Save writes embeddings as the next version of name.
func (s *SnapshotStore) Save(ctx context.Context, name string, embeddings []recommend.UserEmbedding) (SnapshotMetadata, error) {
	if err := ctx.Err(); err != nil {
		return SnapshotMetadata{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(embeddings); err != nil {
		return SnapshotMetadata{}, fmt.Errorf("encode snapshot: %w", err)
	}
	raw := buf.Bytes()
	hash := sha256.Sum256(raw)

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(raw); err != nil {
		return SnapshotMetadata{}, fmt.Errorf("compress snapshot: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return SnapshotMetadata{}, fmt.Errorf("finalize compression: %w", err)
	}

	meta := SnapshotMetadata{
		Name:      name,
		Version:   s.versions[name] + 1,
		SavedAt:   time.Now().UTC(),
		UserCount: len(embeddings),
		Checksum:  hex.EncodeToString(hash[:]),
		SizeBytes: int64(compressed.Len()),
	}
	if len(embeddings) > 0 {
		meta.Dimension = len(embeddings[0].Vector)
	}

	// Write to a temp file and rename so readers never see a partial file.
	final := s.path(name, meta.Version)
	tmp := final + ".tmp"
	f, err := os.Create(tmp) //nolint:gosec // path is built from a trusted name
	if err != nil {
		return SnapshotMetadata{}, fmt.Errorf("create snapshot file: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(snapshotFile{Metadata: meta, CompressedData: compressed.Bytes()}); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return SnapshotMetadata{}, fmt.Errorf("write snapshot file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return SnapshotMetadata{}, fmt.Errorf("close snapshot file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return SnapshotMetadata{}, fmt.Errorf("publish snapshot file: %w", err)
	}

	s.versions[name] = meta.Version
	return meta, nil
}

// Load reads a snapshot. Version 0 loads the latest.
func (s *SnapshotStore) Load(ctx context.Context, name string, version int) ([]recommend.UserEmbedding, *SnapshotMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if version == 0 {
		var ok bool
		version, ok = s.versions[name]
		if !ok {
			return nil, nil, fmt.Errorf("%s: %w", name, ErrNoSnapshot)
		}
	}

	f, err := os.Open(s.path(name, version)) //nolint:gosec // path is built from a trusted name
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%s v%d: %w", name, version, ErrNoSnapshot)
		}
		return nil, nil, fmt.Errorf("open snapshot file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var sf snapshotFile
	if err := gob.NewDecoder(f).Decode(&sf); err != nil {
		return nil, nil, fmt.Errorf("read snapshot file: %w", err)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(sf.CompressedData))
	if err != nil {
		return nil, nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	defer func() { _ = gzr.Close() }()

	raw, err := io.ReadAll(gzr)
	if err != nil {
		return nil, nil, fmt.Errorf("read decompressed data: %w", err)
	}

	hash := sha256.Sum256(raw)
	if checksum := hex.EncodeToString(hash[:]); checksum != sf.Metadata.Checksum {
		return nil, nil, fmt.Errorf("checksum mismatch: expected %s, got %s", sf.Metadata.Checksum, checksum)
	}

	var embeddings []recommend.UserEmbedding
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&embeddings); err != nil {
		return nil, nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return embeddings, &sf.Metadata, nil
}

// LatestVersion returns the latest version for name.
func (s *SnapshotStore) LatestVersion(name string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[name]
	return v, ok
}

// Prune removes all but the newest keep versions of name.
func (s *SnapshotStore) Prune(_ context.Context, name string, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep < 1 {
		keep = 1
	}

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("read directory: %w", err)
	}
	var versions []int
	for _, entry := range entries {
		n, v := parseSnapshotFilename(entry.Name())
		if n == name {
			versions = append(versions, v)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(versions)))

	for i := keep; i < len(versions); i++ {
		_ = os.Remove(s.path(name, versions[i])) //nolint:errcheck // best-effort cleanup of old versions
	}
	return nil
}

// Export reads every embedding from repo, sorted by user ID.
func Export(ctx context.Context, repo embedding.Repository) ([]recommend.UserEmbedding, error) {
	ids, err := repo.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)

	out := make([]recommend.UserEmbedding, 0, len(ids))
	for _, id := range ids {
		emb, err := repo.Load(ctx, id)
		if errors.Is(err, embedding.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", id, err)
		}
		out = append(out, *emb)
	}
	return out, nil
}

// Restore writes embeddings into repo and returns how many were written.
// Existing embeddings newer than the snapshot copy are kept.
func Restore(ctx context.Context, repo embedding.Repository, embeddings []recommend.UserEmbedding) (int, error) {
	restored := 0
	for i := range embeddings {
		emb := &embeddings[i]
		if err := ctx.Err(); err != nil {
			return restored, err
		}
		existing, err := repo.Load(ctx, emb.UserID)
		if err == nil && existing.UpdatedAt.After(emb.UpdatedAt) {
			continue
		}
		if err != nil && !errors.Is(err, embedding.ErrNotFound) {
			return restored, fmt.Errorf("restore %s: %w", emb.UserID, err)
		}
		if err := repo.Save(ctx, emb); err != nil {
			return restored, fmt.Errorf("restore %s: %w", emb.UserID, err)
		}
		restored++
	}
	return restored, nil
}
