// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package feedback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/tomtom215/scentmatch/internal/logging"
)

// recordingPublisher captures published messages or fails with err.
type recordingPublisher struct {
	mu    sync.Mutex
	msgs  []*message.Message
	topic string
	err   error
	calls int
}

func (p *recordingPublisher) Publish(topic string, msgs ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return p.err
	}
	p.topic = topic
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestPublisher_Publish(t *testing.T) {
	t.Parallel()

	rec := &recordingPublisher{}
	pub := NewPublisher(rec, DefaultConfig(), zerolog.Nop())

	ctx := logging.ContextWithRequestID(context.Background(), "req-7")
	if err := pub.PublishFeedback(ctx, event("ev-1")); err != nil {
		t.Fatalf("PublishFeedback() error = %v", err)
	}
	if rec.topic != DefaultConfig().Topic || len(rec.msgs) != 1 {
		t.Fatalf("published %d messages to %q", len(rec.msgs), rec.topic)
	}
	if got := rec.msgs[0].Metadata.Get(MetaRequestID); got != "req-7" {
		t.Errorf("request id metadata = %q, want req-7", got)
	}
}

func TestPublisher_RejectsMissingID(t *testing.T) {
	t.Parallel()

	rec := &recordingPublisher{}
	pub := NewPublisher(rec, DefaultConfig(), zerolog.Nop())
	if err := pub.PublishFeedback(context.Background(), event("")); err == nil {
		t.Error("PublishFeedback() without id succeeded")
	}
	if rec.calls != 0 {
		t.Errorf("transport called %d times", rec.calls)
	}
}

func TestPublisher_BreakerOpens(t *testing.T) {
	t.Parallel()

	rec := &recordingPublisher{err: errors.New("nats: no responders")}
	cfg := DefaultConfig()
	cfg.PublishBreakerFailures = 2
	cfg.PublishBreakerTimeout = time.Minute
	pub := NewPublisher(rec, cfg, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := pub.PublishFeedback(ctx, event("ev-x"))
		if err == nil || errors.Is(err, ErrBusUnavailable) {
			t.Fatalf("attempt %d error = %v, want transport error", i, err)
		}
	}
	if err := pub.PublishFeedback(ctx, event("ev-y")); !errors.Is(err, ErrBusUnavailable) {
		t.Errorf("PublishFeedback() error = %v, want ErrBusUnavailable", err)
	}
	if rec.calls != 2 {
		t.Errorf("transport called %d times, want 2", rec.calls)
	}
}

func TestPublisher_Closed(t *testing.T) {
	t.Parallel()

	pub := NewPublisher(&recordingPublisher{}, DefaultConfig(), zerolog.Nop())
	if err := pub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := pub.PublishFeedback(context.Background(), event("ev-1")); !errors.Is(err, ErrPublisherClosed) {
		t.Errorf("PublishFeedback() error = %v, want ErrPublisherClosed", err)
	}
}
