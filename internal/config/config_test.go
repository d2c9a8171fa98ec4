// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/scentmatch/internal/feedback"
	"github.com/tomtom215/scentmatch/internal/recommend"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr() = %q", cfg.Server.Addr())
	}
	if cfg.Recommend.Weights != recommend.DefaultWeights() {
		t.Errorf("Weights = %+v", cfg.Recommend.Weights)
	}
	if cfg.Storage.Backend != StorageBadger || cfg.Feedback.Transport != feedback.TransportGoChannel {
		t.Errorf("backend %q, transport %q", cfg.Storage.Backend, cfg.Feedback.Transport)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"write timeout below budget", func(c *Config) {
			c.Server.WriteTimeout = 10 * time.Millisecond
		}, "request_budget"},
		{"rate limit without window", func(c *Config) { c.Server.RateLimitWindow = 0 }, "rate limit"},
		{"rate limit disabled skips check", func(c *Config) {
			c.Server.RateLimitWindow = 0
			c.Server.RateLimitDisabled = true
		}, ""},
		{"drain longer than shutdown", func(c *Config) { c.Server.DrainDelay = c.Supervisor.ShutdownTimeout }, "drain_delay"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging"},
		{"weights", func(c *Config) { c.Recommend.Weights.Content = 0.9 }, "weights"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "postgres" }, "storage.backend"},
		{"sqlite without path", func(c *Config) {
			c.Storage.Backend = StorageSQLite
			c.Storage.Path = ""
		}, "storage.path"},
		{"memory without path", func(c *Config) {
			c.Storage.Backend = StorageMemory
			c.Storage.Path = ""
		}, ""},
		{"redis without addr", func(c *Config) {
			c.Cache.Enabled = true
			c.Cache.Redis.Addr = ""
		}, "cache.redis.addr"},
		{"nats url scheme", func(c *Config) {
			c.Feedback.Transport = feedback.TransportNATS
			c.Feedback.NATS.URL = "http://localhost:4222"
		}, "feedback.nats.url"},
		{"embedded nats ignores url", func(c *Config) {
			c.Feedback.Transport = feedback.TransportNATS
			c.Feedback.NATS.Embedded = true
			c.Feedback.NATS.URL = ""
		}, ""},
		{"missing seed", func(c *Config) { c.Catalog.SeedFile = " " }, "catalog.seed_file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantSub == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestValidate_WeightsErrorIsTyped(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Recommend.Experiments = map[string]recommend.Weights{"broken": {Content: -1, Collaborative: 2}}
	if err := cfg.Validate(); !errors.Is(err, recommend.ErrInconsistentWeights) {
		t.Errorf("Validate() error = %v, want ErrInconsistentWeights", err)
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Server.Port = -1
	cfg.Storage.Backend = "nope"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "server.port") || !strings.Contains(err.Error(), "storage.backend") {
		t.Errorf("Validate() error = %v, want both failures", err)
	}
}

func TestValidateNATSURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url     string
		wantErr bool
	}{
		{"nats://127.0.0.1:4222", false},
		{"tls://nats.example.com", false},
		{"wss://nats.example.com:443", false},
		{"http://nats.example.com", true},
		{"nats://", true},
		{"::bad", true},
	}
	for _, tt := range tests {
		if err := validateNATSURL(tt.url); (err != nil) != tt.wantErr {
			t.Errorf("validateNATSURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
		}
	}
}
