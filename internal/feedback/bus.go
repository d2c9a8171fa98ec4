// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package feedback

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// ErrDisabled is returned by NewBus when the transport is disabled.
var ErrDisabled = errors.New("feedback bus disabled")

// Bus bundles the publisher and subscriber of one transport.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	transport string
	closers   []func() error
}

// NewBus builds the bus for cfg.Transport. With an embedded NATS server
// the server is started here and stopped by Close.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewBus(ctx context.Context, cfg Config, logger zerolog.Logger) (*Bus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	wmLogger := NewWatermillLogger(logger.With().Str("component", "feedback-bus").Logger())

	switch cfg.Transport {
	case TransportGoChannel:
		return NewGoChannelBus(cfg, wmLogger), nil
	case TransportNATS:
		return newNATSBus(ctx, cfg, wmLogger, logger)
	default:
		return nil, ErrDisabled
	}
}

// NewGoChannelBus returns an in-process bus. Messages published before a
// subscription exists are dropped.
func NewGoChannelBus(cfg Config, logger watermill.LoggerAdapter) *Bus {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: cfg.BufferSize,
	}, logger)
	return &Bus{
		Publisher:  ch,
		Subscriber: ch,
		transport:  TransportGoChannel,
		closers:    []func() error{ch.Close},
	}
}

//nolint:gocritic // logger passed by value is acceptable for zerolog
func newNATSBus(ctx context.Context, cfg Config, wmLogger watermill.LoggerAdapter, logger zerolog.Logger) (*Bus, error) {
	b := &Bus{transport: TransportNATS}
	url := cfg.NATS.URL

	if cfg.NATS.Embedded {
		srv, err := StartEmbeddedServer(cfg.NATS, logger)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() error { return srv.Shutdown(context.Background()) })
		url = srv.ClientURL()
	}

	if err := EnsureStream(ctx, url, cfg); err != nil {
		return nil, errors.Join(err, b.Close())
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(cfg.NATS.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				wmLogger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			wmLogger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			TrackMsgId:    true,
		},
	}, wmLogger)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create nats publisher: %w", err), b.Close())
	}
	b.Publisher = pub
	b.closers = append(b.closers, pub.Close)

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: cfg.NATS.QueueGroup,
		SubscribersCount: cfg.Workers,
		AckWaitTimeout:   cfg.NATS.AckWait,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			DurablePrefix: cfg.NATS.DurableName,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.MaxDeliver(cfg.NATS.MaxDeliver),
				natsgo.MaxAckPending(cfg.NATS.MaxAckPending),
				natsgo.AckWait(cfg.NATS.AckWait),
				natsgo.DeliverAll(),
			},
		},
	}, wmLogger)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create nats subscriber: %w", err), b.Close())
	}
	b.Subscriber = sub
	b.closers = append(b.closers, sub.Close)
	return b, nil
}

// Transport returns the transport name.
func (b *Bus) Transport() string {
	return b.transport
}

// Close closes the transport in reverse construction order.
func (b *Bus) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
