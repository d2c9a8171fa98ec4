// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package feedback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/rs/zerolog"

	"github.com/tomtom215/scentmatch/internal/logging"
	"github.com/tomtom215/scentmatch/internal/metrics"
	"github.com/tomtom215/scentmatch/internal/recommend"
)

const handlerName = "feedback-ingest"

// Consumed outcomes, used as metric labels.
const (
	resultIngested  = "ingested"
	resultDuplicate = "duplicate"
	resultPoisoned  = "poisoned"
	resultRetry     = "retry"
)

// Ingester applies one feedback event. *recommend.Engine implements it.
type Ingester interface {
	IngestFeedback(ctx context.Context, event recommend.InteractionEvent) (recommend.LearningResult, error)
}

// ConsumerStats counts handled messages.
type ConsumerStats struct {
	Ingested   int64 `json:"ingested"`
	Duplicates int64 `json:"duplicates"`
	Poisoned   int64 `json:"poisoned"`
	Retried    int64 `json:"retried"`
}

// Consumer reads feedback from the bus and hands it to an Ingester. It is
// a suture service: Serve blocks until ctx is cancelled.
//
// Middleware, outermost first:
//
//	CorrelationID -> PoisonQueue -> Retry -> Throttle -> Recoverer -> handler
//
// Events that can never succeed (malformed payloads, unknown users or
// items) skip the retry loop: the handler publishes them to the poison
// topic itself and acks.
type Consumer struct {
	bus      *Bus
	cfg      Config
	ingester Ingester
	logger   zerolog.Logger
	wmLogger watermill.LoggerAdapter

	ready     chan struct{}
	readyOnce sync.Once

	ingested   atomic.Int64
	duplicates atomic.Int64
	poisoned   atomic.Int64
	retried    atomic.Int64
}

// NewConsumer returns a consumer for bus.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewConsumer(bus *Bus, cfg Config, ingester Ingester, logger zerolog.Logger) *Consumer {
	logger = logger.With().Str("component", "feedback-consumer").Logger()
	return &Consumer{
		bus:      bus,
		cfg:      cfg,
		ingester: ingester,
		logger:   logger,
		wmLogger: NewWatermillLogger(logger),
		ready:    make(chan struct{}),
	}
}

// String implements fmt.Stringer for suture.
func (c *Consumer) String() string {
	return "feedback-consumer"
}

// Ready is closed once the first router is subscribed.
func (c *Consumer) Ready() <-chan struct{} {
	return c.ready
}

// Stats returns handled message counts.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Ingested:   c.ingested.Load(),
		Duplicates: c.duplicates.Load(),
		Poisoned:   c.poisoned.Load(),
		Retried:    c.retried.Load(),
	}
}

// Serve runs a router until ctx is done. A fresh router is built per call
// so suture can restart the service after a failure.
func (c *Consumer) Serve(ctx context.Context) error {
	router, err := c.newRouter()
	if err != nil {
		return err
	}

	go func() {
		select {
		case <-router.Running():
			c.readyOnce.Do(func() { close(c.ready) })
			c.logger.Info().Str("topic", c.cfg.Topic).Int("workers", c.cfg.Workers).
				Msg("feedback consumer running")
		case <-ctx.Done():
		}
	}()

	if err := router.Run(ctx); err != nil {
		return fmt.Errorf("feedback router: %w", err)
	}
	return ctx.Err()
}

func (c *Consumer) newRouter() (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: c.cfg.CloseTimeout}, c.wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create feedback router: %w", err)
	}

	poison, err := middleware.PoisonQueue(c.bus.Publisher, c.cfg.PoisonTopic)
	if err != nil {
		return nil, fmt.Errorf("create poison queue middleware: %w", err)
	}
	retry := middleware.Retry{
		MaxRetries:      c.cfg.RetryMaxRetries,
		InitialInterval: c.cfg.RetryInitialInterval,
		MaxInterval:     c.cfg.RetryMaxInterval,
		Multiplier:      2,
		Logger:          c.wmLogger,
	}

	router.AddMiddleware(middleware.CorrelationID, poison, retry.Middleware)
	if c.cfg.ThrottlePerSecond > 0 {
		router.AddMiddleware(middleware.NewThrottle(c.cfg.ThrottlePerSecond, time.Second).Middleware)
	}
	router.AddMiddleware(middleware.Recoverer)

	router.AddConsumerHandler(handlerName, c.cfg.Topic, c.bus.Subscriber, c.handle)
	return router, nil
}

func (c *Consumer) handle(msg *message.Message) error {
	start := time.Now()

	event, err := DecodeEvent(msg)
	if err != nil {
		return c.reject(msg, err, start)
	}

	ctx := msg.Context()
	if id := msg.Metadata.Get(MetaRequestID); id != "" {
		ctx = logging.ContextWithRequestID(ctx, id)
	}
	ctx = logging.ContextWithUserID(ctx, event.UserID)
	if c.cfg.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.HandlerTimeout)
		defer cancel()
	}

	result, err := c.ingester.IngestFeedback(ctx, event)
	switch {
	case err == nil && result.Duplicate:
		c.duplicates.Add(1)
		metrics.RecordFeedbackConsumed(resultDuplicate, time.Since(start))
		return nil
	case err == nil:
		c.ingested.Add(1)
		metrics.RecordFeedbackConsumed(resultIngested, time.Since(start))
		return nil
	case errors.Is(err, recommend.ErrDuplicateEvent):
		c.duplicates.Add(1)
		metrics.RecordFeedbackConsumed(resultDuplicate, time.Since(start))
		return nil
	case isPermanent(err):
		return c.reject(msg, err, start)
	default:
		c.retried.Add(1)
		metrics.RecordFeedbackConsumed(resultRetry, time.Since(start))
		logging.Ctx(ctx).Warn().Err(err).Str("event_id", event.ID).Msg("feedback ingest failed, will retry")
		return err
	}
}

// reject routes msg to the poison topic and acks it. If the poison
// publish fails the error is returned so the message is redelivered.
func (c *Consumer) reject(msg *message.Message, cause error, start time.Time) error {
	poisoned := msg.Copy()
	poisoned.Metadata.Set(MetaPoisonCause, cause.Error())
	poisoned.Metadata.Set(middleware.ReasonForPoisonedKey, cause.Error())
	poisoned.Metadata.Set(middleware.PoisonedTopicKey, c.cfg.Topic)
	poisoned.Metadata.Set(middleware.PoisonedHandlerKey, handlerName)

	if err := c.bus.Publisher.Publish(c.cfg.PoisonTopic, poisoned); err != nil {
		c.retried.Add(1)
		metrics.RecordFeedbackConsumed(resultRetry, time.Since(start))
		return fmt.Errorf("publish poisoned message %s: %w", msg.UUID, err)
	}

	c.poisoned.Add(1)
	metrics.RecordFeedbackConsumed(resultPoisoned, time.Since(start))
	c.logger.Warn().Err(cause).Str("message_uuid", msg.UUID).Str("user_id", msg.Metadata.Get(MetaUserID)).
		Msg("feedback event rejected")
	return nil
}

// isPermanent reports errors that retrying cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, recommend.ErrInvalidEvent) ||
		errors.Is(err, recommend.ErrUnknownUser) ||
		errors.Is(err, recommend.ErrUnknownItem) ||
		errors.Is(err, recommend.ErrDimensionMismatch) ||
		errors.Is(err, recommend.ErrEmptyInput)
}
