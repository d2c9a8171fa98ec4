// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scentmatch/internal/feedback"
)

// FeedbackComponents holds the asynchronous feedback path. A nil
// *FeedbackComponents means feedback is ingested synchronously.
type FeedbackComponents struct {
	Bus       *feedback.Bus
	Publisher *feedback.Publisher
	Consumer  *feedback.Consumer

	cfg    feedback.Config
	logger zerolog.Logger
}

// initFeedback opens the configured bus and its publisher. The consumer
// is attached later by AttachConsumer, once the engine exists.
//
//nolint:gocritic // hugeParam: logger passed by value for zerolog chaining
func initFeedback(ctx context.Context, cfg feedback.Config, logger zerolog.Logger) (*FeedbackComponents, error) {
	bus, err := feedback.NewBus(ctx, cfg, logger)
	if errors.Is(err, feedback.ErrDisabled) {
		logger.Info().Msg("feedback bus disabled, feedback is ingested synchronously")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open feedback bus: %w", err)
	}

	logger.Info().Str("transport", bus.Transport()).Str("topic", cfg.Topic).Int("workers", cfg.Workers).
		Msg("feedback bus opened")
	return &FeedbackComponents{
		Bus:       bus,
		Publisher: feedback.NewPublisher(bus.Publisher, cfg, logger),
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// AttachConsumer creates the consumer that feeds ing.
func (fc *FeedbackComponents) AttachConsumer(ing feedback.Ingester) *feedback.Consumer {
	fc.Consumer = feedback.NewConsumer(fc.Bus, fc.cfg, ing, fc.logger)
	return fc.Consumer
}

// Ready fails until the consumer has subscribed.
func (fc *FeedbackComponents) Ready(ctx context.Context) error {
	if fc.Consumer == nil {
		return errors.New("feedback consumer not attached")
	}
	select {
	case <-fc.Consumer.Ready():
		return nil
	case <-ctx.Done():
		return errors.New("feedback consumer not subscribed")
	default:
		return errors.New("feedback consumer not subscribed")
	}
}

// Close stops publishing and closes the transport.
func (fc *FeedbackComponents) Close() error {
	if fc == nil {
		return nil
	}
	return errors.Join(fc.Publisher.Close(), fc.Bus.Close())
}
