// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package resultcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/scentmatch/internal/metrics"
	"github.com/tomtom215/scentmatch/internal/recommend"
)

const cacheLabel = "redis"

// Config configures the Redis result cache.
type Config struct {
	Addr     string `koanf:"addr" json:"addr"`
	Password string `koanf:"password" json:"password,omitempty"`
	DB       int    `koanf:"db" json:"db"`

	// TTL bounds how long a result survives. Feedback invalidates earlier.
	TTL time.Duration `koanf:"ttl" json:"ttl"`

	// KeyPrefix namespaces every key.
	KeyPrefix string `koanf:"key_prefix" json:"key_prefix"`

	// OpTimeout bounds each cache round trip so the cache never eats the
	// request budget.
	OpTimeout time.Duration `koanf:"op_timeout" json:"op_timeout"`

	BreakerFailures uint32        `koanf:"breaker_failures" json:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout" json:"breaker_timeout"`
}

// DefaultConfig returns a localhost configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            "localhost:6379",
		TTL:             2 * time.Minute,
		KeyPrefix:       "scentmatch",
		OpTimeout:       10 * time.Millisecond,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// Redis is a shared recommend.ResultCache. Every failure degrades to a
// miss; a breaker stops round trips while Redis is down. Results are
// stored as JSON and each user has a set indexing their keys so feedback
// can drop them all.
type Redis struct {
	client  redis.UniversalClient
	cfg     Config
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  zerolog.Logger
}

// New connects to cfg.Addr. The connection is lazy; use Ping to check it.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(cfg Config, logger zerolog.Logger) *Redis {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{cfg.Addr},
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  max(cfg.OpTimeout*10, 100*time.Millisecond),
		ReadTimeout:  max(cfg.OpTimeout, time.Millisecond),
		WriteTimeout: max(cfg.OpTimeout, time.Millisecond),
	})
	return NewWithClient(client, cfg, logger)
}

// NewWithClient wraps an existing client.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewWithClient(client redis.UniversalClient, cfg Config, logger zerolog.Logger) *Redis {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = def.OpTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}

	r := &Redis{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "resultcache").Logger(),
	}
	name := "redis-result-cache"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	r.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state transition")
			metrics.RecordBreakerTransition(name, from.String(), to.String())
		},
	})
	return r
}

// resultKey namespaces an engine cache key.
func (r *Redis) resultKey(key string) string {
	return r.cfg.KeyPrefix + ":result:" + key
}

// userIndexKey is the set of result keys stored for userID.
func (r *Redis) userIndexKey(userID string) string {
	return r.cfg.KeyPrefix + ":user:" + userID
}

// userOf extracts the user from an engine cache key ("user|hash").
func userOf(key string) (string, bool) {
	i := strings.LastIndexByte(key, '|')
	if i <= 0 {
		return "", false
	}
	return key[:i], true
}

// Get implements recommend.ResultCache.
func (r *Redis) Get(ctx context.Context, key string) (*recommend.RecommendationResult, bool) {
	if r == nil || r.client == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.OpTimeout)
	defer cancel()

	data, err := r.breaker.Execute(func() ([]byte, error) {
		return r.client.Get(ctx, r.resultKey(key)).Bytes()
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Debug().Err(err).Msg("result cache get failed")
		}
		metrics.RecordCacheLookup(cacheLabel, false)
		return nil, false
	}

	res, err := decode(data)
	if err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("dropping undecodable cached result")
		metrics.RecordCacheLookup(cacheLabel, false)
		return nil, false
	}
	metrics.RecordCacheLookup(cacheLabel, true)
	return res, true
}

// Set implements recommend.ResultCache.
func (r *Redis) Set(ctx context.Context, key string, result *recommend.RecommendationResult) {
	if r == nil || r.client == nil || result == nil {
		return
	}
	data, err := encode(result)
	if err != nil {
		r.logger.Warn().Err(err).Msg("result cache encode failed")
		return
	}
	user, ok := userOf(key)
	if !ok {
		user = result.UserID
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.OpTimeout)
	defer cancel()

	_, err = r.breaker.Execute(func() ([]byte, error) {
		_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.resultKey(key), data, r.cfg.TTL)
			pipe.SAdd(ctx, r.userIndexKey(user), key)
			pipe.Expire(ctx, r.userIndexKey(user), r.cfg.TTL)
			return nil
		})
		return nil, err
	})
	if err != nil {
		r.logger.Debug().Err(err).Msg("result cache set failed")
	}
}

// InvalidateUser implements recommend.ResultCache.
func (r *Redis) InvalidateUser(ctx context.Context, userID string) {
	if r == nil || r.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*r.cfg.OpTimeout)
	defer cancel()

	var removed int
	_, err := r.breaker.Execute(func() ([]byte, error) {
		index := r.userIndexKey(userID)
		keys, err := r.client.SMembers(ctx, index).Result()
		if err != nil {
			return nil, err
		}
		del := make([]string, 0, len(keys)+1)
		for _, k := range keys {
			del = append(del, r.resultKey(k))
		}
		del = append(del, index)
		removed = len(keys)
		return nil, r.client.Del(ctx, del...).Err()
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("user_id", userID).Msg("result cache invalidation failed")
		return
	}
	metrics.RecordCacheInvalidation(cacheLabel, removed)
}

// Ping checks connectivity, for readiness probes.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.client == nil {
		return errors.New("redis result cache not configured")
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// BreakerState returns closed, half-open or open.
func (r *Redis) BreakerState() string {
	return r.breaker.State().String()
}

// Close releases the client.
func (r *Redis) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func encode(res *recommend.RecommendationResult) ([]byte, error) {
	return json.Marshal(res)
}

func decode(data []byte) (*recommend.RecommendationResult, error) {
	var res recommend.RecommendationResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode cached result: %w", err)
	}
	return &res, nil
}

var _ recommend.ResultCache = (*Redis)(nil)
