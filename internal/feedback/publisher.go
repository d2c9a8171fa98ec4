// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package feedback

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/scentmatch/internal/logging"
	"github.com/tomtom215/scentmatch/internal/metrics"
	"github.com/tomtom215/scentmatch/internal/recommend"
)

var (
	// ErrPublisherClosed is returned after Close.
	ErrPublisherClosed = errors.New("feedback publisher closed")

	// ErrBusUnavailable is returned while the publish breaker is open.
	ErrBusUnavailable = errors.New("feedback bus unavailable")
)

// Publisher implements recommend.FeedbackPublisher on a watermill
// publisher, behind a circuit breaker.
type Publisher struct {
	pub     message.Publisher
	topic   string
	breaker *gobreaker.CircuitBreaker[struct{}]
	closed  atomic.Bool
	logger  zerolog.Logger
}

// NewPublisher publishes to cfg.Topic through pub.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewPublisher(pub message.Publisher, cfg Config, logger zerolog.Logger) *Publisher {
	p := &Publisher{
		pub:    pub,
		topic:  cfg.Topic,
		logger: logger.With().Str("component", "feedback-publisher").Logger(),
	}
	failures := max(cfg.PublishBreakerFailures, 1)
	name := "feedback-publish"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	p.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.PublishBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state transition")
			metrics.RecordBreakerTransition(name, from.String(), to.String())
		},
	})
	return p
}

// PublishFeedback implements recommend.FeedbackPublisher. The event must
// carry an id.
func (p *Publisher) PublishFeedback(ctx context.Context, event recommend.InteractionEvent) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}
	msg, err := EncodeEvent(&event)
	if err != nil {
		return err
	}
	if id := logging.RequestIDFromContext(ctx); id != "" {
		msg.Metadata.Set(MetaRequestID, id)
	}
	msg.SetContext(ctx)

	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.pub.Publish(p.topic, msg)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("publish feedback %s: %w", event.ID, ErrBusUnavailable)
		}
		return fmt.Errorf("publish feedback %s: %w", event.ID, err)
	}
	return nil
}

// Close stops publishing. The underlying transport is owned by the Bus.
func (p *Publisher) Close() error {
	p.closed.Store(true)
	return nil
}

var _ recommend.FeedbackPublisher = (*Publisher)(nil)
