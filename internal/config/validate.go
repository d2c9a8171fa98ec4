// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/scentmatch/internal/feedback"
	"github.com/tomtom215/scentmatch/internal/validation"
)

// Validate checks every section and joins the failures.
func (c *Config) Validate() error {
	var errs []error
	if err := c.validateServer(); err != nil {
		errs = append(errs, err)
	}
	if verr := validation.ValidateStruct(&c.Logging); verr != nil {
		errs = append(errs, fmt.Errorf("logging: %w", verr))
	}
	if err := c.Recommend.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("recommend: %w", err))
	}
	if err := c.validateStorage(); err != nil {
		errs = append(errs, err)
	}
	if err := c.validateCache(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Feedback.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("feedback: %w", err))
	}
	if c.Feedback.Transport == feedback.TransportNATS && !c.Feedback.NATS.Embedded {
		if err := validateNATSURL(c.Feedback.NATS.URL); err != nil {
			errs = append(errs, fmt.Errorf("feedback.nats.url: %w", err))
		}
	}
	if strings.TrimSpace(c.Catalog.SeedFile) == "" {
		errs = append(errs, errors.New("catalog.seed_file is required"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateServer() error {
	s := &c.Server
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", s.Port)
	}
	if s.ReadTimeout <= 0 || s.WriteTimeout <= 0 {
		return fmt.Errorf("server read and write timeouts must be positive")
	}
	if s.WriteTimeout < c.Recommend.Limits.RequestBudget {
		return fmt.Errorf("server.write_timeout %v is shorter than recommend.limits.request_budget %v",
			s.WriteTimeout, c.Recommend.Limits.RequestBudget)
	}
	if s.DrainDelay < 0 || s.DrainDelay >= c.Supervisor.ShutdownTimeout {
		return fmt.Errorf("server.drain_delay must be in [0, supervisor.shutdown_timeout), got %v", s.DrainDelay)
	}
	if s.MaxBodyBytes < 1 {
		return fmt.Errorf("server.max_body_bytes must be positive, got %d", s.MaxBodyBytes)
	}
	if !s.RateLimitDisabled && (s.RateLimitRequests < 1 || s.RateLimitWindow <= 0) {
		return fmt.Errorf("server rate limit needs positive requests and window, got %d per %v",
			s.RateLimitRequests, s.RateLimitWindow)
	}
	if s.MaxDegradedRatio <= 0 || s.MaxDegradedRatio > 1 {
		return fmt.Errorf("server.max_degraded_ratio must be in (0, 1], got %f", s.MaxDegradedRatio)
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageMemory:
		return nil
	case StorageBadger, StorageSQLite:
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("storage.path is required for the %s backend", c.Storage.Backend)
		}
		return nil
	default:
		return fmt.Errorf("storage.backend %q: want memory, badger or sqlite", c.Storage.Backend)
	}
}

func (c *Config) validateCache() error {
	if !c.Cache.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Cache.Redis.Addr) == "" {
		return errors.New("cache.redis.addr is required when the shared cache is enabled")
	}
	if c.Cache.Redis.TTL < 0 {
		return fmt.Errorf("cache.redis.ttl must not be negative, got %v", c.Cache.Redis.TTL)
	}
	return nil
}
