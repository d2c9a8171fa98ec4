// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/scentmatch/config.yaml",
	"/etc/scentmatch/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// EnvPrefix marks generic overrides: SCENTMATCH_RECOMMEND__LIMITS__MAX_RESULTS
// sets recommend.limits.max_results. Double underscores separate levels.
const EnvPrefix = "SCENTMATCH_"

// tagName is the struct tag koanf reads; config keys match the json tags.
const tagName = "json"

// Load layers defaults, the config file (if any) and the environment, then
// validates the result.
func Load() (*Config, error) {
	return LoadFrom(findConfigFile())
}

// LoadFrom is Load with an explicit config file. An empty path skips the
// file layer.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), tagName), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: tagName}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns CONFIG_PATH if it exists, else the first default
// path that exists, else "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// FindConfigFile exposes the search used by Load, for the reload watcher.
func FindConfigFile() string {
	return findConfigFile()
}

// sliceConfigPaths are split on commas when they arrive as strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps conventional variable names to config paths.
var envMappings = map[string]string{
	// Server
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"http_drain_delay":      "server.drain_delay",
	"cors_origins":          "server.cors_origins",
	"rate_limit_requests":   "server.rate_limit_requests",
	"rate_limit_window":     "server.rate_limit_window",
	"disable_rate_limit":    "server.rate_limit_disabled",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Engine
	"recommend_request_budget":    "recommend.limits.request_budget",
	"recommend_max_results":       "recommend.limits.max_results",
	"recommend_mmr_lambda":        "recommend.diversity.mmr_lambda",
	"recommend_calibration":       "recommend.diversity.calibration_enabled",
	"recommend_cache_ttl":         "recommend.cache.ttl",
	"recommend_embedding_dim":     "recommend.embedding.dimension",
	"recommend_decay_half_life":   "recommend.embedding.half_life",
	"recommend_sweep_interval":    "recommend.learner.sweep_interval",
	"recommend_weight_content":    "recommend.weights.content",
	"recommend_weight_collab":     "recommend.weights.collaborative",
	"recommend_weight_contextual": "recommend.weights.contextual",

	// Storage
	"storage_backend":           "storage.backend",
	"storage_path":              "storage.path",
	"storage_snapshot_dir":      "storage.snapshot_dir",
	"storage_snapshot_interval": "storage.snapshot_interval",

	// Shared result cache
	"redis_enabled":  "cache.enabled",
	"redis_addr":     "cache.redis.addr",
	"redis_password": "cache.redis.password",
	"redis_db":       "cache.redis.db",
	"redis_ttl":      "cache.redis.ttl",

	// Feedback bus
	"feedback_transport": "feedback.transport",
	"feedback_workers":   "feedback.workers",
	"nats_url":           "feedback.nats.url",
	"nats_embedded":      "feedback.nats.embedded",
	"nats_store_dir":     "feedback.nats.store_dir",
	"nats_port":          "feedback.nats.port",

	// Catalog
	"catalog_seed_file":         "catalog.seed_file",
	"catalog_open_registration": "catalog.open_registration",
	"catalog_refresh_interval":  "catalog.refresh_interval",
}

// envTransformFunc maps an environment variable to a config path. Unknown
// variables map to "" and are ignored.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - REDIS_ADDR -> cache.redis.addr
//   - SCENTMATCH_FEEDBACK__NATS__MAX_DELIVER -> feedback.nats.max_deliver
func envTransformFunc(key string) string {
	if rest, ok := strings.CutPrefix(key, EnvPrefix); ok {
		return strings.ToLower(strings.ReplaceAll(rest, "__", "."))
	}
	return envMappings[strings.ToLower(key)]
}
