// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package config

import (
	"net"
	"strconv"
	"time"

	"github.com/tomtom215/scentmatch/internal/feedback"
	"github.com/tomtom215/scentmatch/internal/logging"
	"github.com/tomtom215/scentmatch/internal/recommend"
	"github.com/tomtom215/scentmatch/internal/resultcache"
	"github.com/tomtom215/scentmatch/internal/supervisor"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageBadger = "badger"
	StorageSQLite = "sqlite"
)

// Config is the complete service configuration. Keys follow the json tags.
type Config struct {
	Server     ServerConfig          `json:"server"`
	Logging    logging.Config        `json:"logging"`
	Recommend  recommend.Config      `json:"recommend"`
	Storage    StorageConfig         `json:"storage"`
	Cache      CacheConfig           `json:"cache"`
	Feedback   feedback.Config       `json:"feedback"`
	Catalog    CatalogConfig         `json:"catalog"`
	Supervisor supervisor.TreeConfig `json:"supervisor"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`

	// DrainDelay is how long /readyz fails before the listener closes.
	DrainDelay time.Duration `json:"drain_delay"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `json:"max_body_bytes"`

	CORSOrigins []string `json:"cors_origins"`

	// RateLimitRequests per RateLimitWindow per client IP.
	RateLimitRequests int           `json:"rate_limit_requests"`
	RateLimitWindow   time.Duration `json:"rate_limit_window"`
	RateLimitDisabled bool          `json:"rate_limit_disabled"`

	// MaxDegradedRatio is the degraded share above which /readyz fails.
	MaxDegradedRatio float64 `json:"max_degraded_ratio"`
}

// Addr returns host:port.
func (s *ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// StorageConfig selects where interactions and user embeddings live.
//
//	memory  everything in process, snapshots on shutdown if SnapshotDir is set
//	badger  interactions and embeddings in one Badger database at Path
//	sqlite  interactions in SQLite under Path, embeddings in memory plus snapshots
type StorageConfig struct {
	Backend string `json:"backend"`
	Path    string `json:"path"`

	// SnapshotDir receives embedding snapshots for non-persistent
	// embedding backends. Empty disables snapshots.
	SnapshotDir      string        `json:"snapshot_dir"`
	SnapshotKeep     int           `json:"snapshot_keep"`
	SnapshotInterval time.Duration `json:"snapshot_interval"`
}

// CacheConfig configures the shared result cache. The in-process cache is
// configured under recommend.cache.
type CacheConfig struct {
	Enabled bool               `json:"enabled"`
	Redis   resultcache.Config `json:"redis"`
}

// CatalogConfig configures the fragrance catalog.
type CatalogConfig struct {
	// SeedFile is a YAML catalog seed. Required.
	SeedFile string `json:"seed_file"`

	// OpenRegistration accepts any user id instead of only seeded users.
	OpenRegistration bool `json:"open_registration"`

	// RefreshInterval is how often the popularity list is rebuilt.
	RefreshInterval time.Duration `json:"refresh_interval"`
}

// defaultConfig returns the built-in defaults, the lowest config layer.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			ReadTimeout:       5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       2 * time.Minute,
			ShutdownTimeout:   10 * time.Second,
			DrainDelay:        2 * time.Second,
			MaxBodyBytes:      1 << 20,
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 600,
			RateLimitWindow:   time.Minute,
			MaxDegradedRatio:  0.5,
		},
		Logging:   logging.DefaultConfig(),
		Recommend: *recommend.DefaultConfig(),
		Storage: StorageConfig{
			Backend:          StorageBadger,
			Path:             "./data/badger",
			SnapshotDir:      "./data/snapshots",
			SnapshotKeep:     3,
			SnapshotInterval: 15 * time.Minute,
		},
		Cache: CacheConfig{
			Enabled: false,
			Redis:   resultcache.DefaultConfig(),
		},
		Feedback: feedback.DefaultConfig(),
		Catalog: CatalogConfig{
			SeedFile:         "./data/catalog.yaml",
			OpenRegistration: true,
			RefreshInterval:  10 * time.Minute,
		},
		Supervisor: supervisor.DefaultTreeConfig(),
	}
}

// Default returns a copy of the built-in defaults.
func Default() *Config {
	return defaultConfig()
}
