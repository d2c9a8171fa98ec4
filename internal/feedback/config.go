// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package feedback

import (
	"fmt"
	"time"
)

// Transports.
const (
	TransportGoChannel = "gochannel"
	TransportNATS      = "nats"
	TransportDisabled  = "disabled"
)

// Config configures the feedback bus.
type Config struct {
	// Transport is gochannel (in process), nats (JetStream) or disabled
	// (feedback is ingested synchronously).
	Transport string `koanf:"transport" json:"transport" validate:"oneof=gochannel nats disabled"`

	Topic       string `koanf:"topic" json:"topic" validate:"required"`
	PoisonTopic string `koanf:"poison_topic" json:"poison_topic" validate:"required"`

	// Workers is the number of parallel consumers per subscription.
	Workers int `koanf:"workers" json:"workers" validate:"gte=1,lte=64"`

	// BufferSize is the gochannel output buffer.
	BufferSize int64 `koanf:"buffer_size" json:"buffer_size" validate:"gte=0"`

	// ThrottlePerSecond caps consumed messages per second (0 = unlimited).
	ThrottlePerSecond int64 `koanf:"throttle_per_second" json:"throttle_per_second" validate:"gte=0"`

	RetryMaxRetries      int           `koanf:"retry_max_retries" json:"retry_max_retries" validate:"gte=0"`
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval" json:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `koanf:"retry_max_interval" json:"retry_max_interval"`

	// HandlerTimeout bounds one IngestFeedback call.
	HandlerTimeout time.Duration `koanf:"handler_timeout" json:"handler_timeout"`
	CloseTimeout   time.Duration `koanf:"close_timeout" json:"close_timeout"`

	// PublishBreakerFailures opens the publish breaker after this many
	// consecutive failures.
	PublishBreakerFailures uint32        `koanf:"publish_breaker_failures" json:"publish_breaker_failures"`
	PublishBreakerTimeout  time.Duration `koanf:"publish_breaker_timeout" json:"publish_breaker_timeout"`

	NATS NATSConfig `koanf:"nats" json:"nats"`
}

// NATSConfig configures the JetStream transport.
type NATSConfig struct {
	URL string `koanf:"url" json:"url"`

	// Embedded starts an in-process NATS server with JetStream.
	Embedded bool   `koanf:"embedded" json:"embedded"`
	Host     string `koanf:"host" json:"host"`
	Port     int    `koanf:"port" json:"port"`
	StoreDir string `koanf:"store_dir" json:"store_dir"`

	Stream          string        `koanf:"stream" json:"stream"`
	Retention       time.Duration `koanf:"retention" json:"retention"`
	DuplicateWindow time.Duration `koanf:"duplicate_window" json:"duplicate_window"`

	DurableName   string        `koanf:"durable_name" json:"durable_name"`
	QueueGroup    string        `koanf:"queue_group" json:"queue_group"`
	AckWait       time.Duration `koanf:"ack_wait" json:"ack_wait"`
	MaxDeliver    int           `koanf:"max_deliver" json:"max_deliver"`
	MaxAckPending int           `koanf:"max_ack_pending" json:"max_ack_pending"`
	ReconnectWait time.Duration `koanf:"reconnect_wait" json:"reconnect_wait"`
}

// DefaultConfig returns an in-process bus.
func DefaultConfig() Config {
	return Config{
		Transport:              TransportGoChannel,
		Topic:                  "scentmatch.feedback",
		PoisonTopic:            "scentmatch.feedback.poison",
		Workers:                4,
		BufferSize:             1024,
		RetryMaxRetries:        3,
		RetryInitialInterval:   100 * time.Millisecond,
		RetryMaxInterval:       5 * time.Second,
		HandlerTimeout:         5 * time.Second,
		CloseTimeout:           10 * time.Second,
		PublishBreakerFailures: 5,
		PublishBreakerTimeout:  30 * time.Second,
		NATS: NATSConfig{
			URL:             "nats://127.0.0.1:4222",
			Host:            "127.0.0.1",
			Port:            4222,
			StoreDir:        "./data/nats",
			Stream:          "SCENTMATCH_FEEDBACK",
			Retention:       7 * 24 * time.Hour,
			DuplicateWindow: 2 * time.Minute,
			DurableName:     "scentmatch-learner",
			QueueGroup:      "learners",
			AckWait:         30 * time.Second,
			MaxDeliver:      5,
			MaxAckPending:   1000,
			ReconnectWait:   2 * time.Second,
		},
	}
}

// Validate checks the fields the bus cannot run without.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportGoChannel, TransportNATS, TransportDisabled:
	default:
		return fmt.Errorf("feedback transport %q: want gochannel, nats or disabled", c.Transport)
	}
	if c.Transport == TransportDisabled {
		return nil
	}
	if c.Topic == "" || c.PoisonTopic == "" {
		return fmt.Errorf("feedback topic and poison topic are required")
	}
	if c.Topic == c.PoisonTopic {
		return fmt.Errorf("feedback poison topic must differ from %q", c.Topic)
	}
	if c.Workers < 1 {
		return fmt.Errorf("feedback workers must be at least 1, got %d", c.Workers)
	}
	if c.Transport == TransportNATS && c.NATS.Stream == "" {
		return fmt.Errorf("feedback nats stream name is required")
	}
	return nil
}
