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
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/tomtom215/scentmatch/internal/recommend"
)

// fakeIngester records events and fails according to failFn.
type fakeIngester struct {
	mu     sync.Mutex
	events []recommend.InteractionEvent
	calls  int
	failFn func(call int, ev recommend.InteractionEvent) error
	done   chan struct{}
	want   int
}

func newFakeIngester(want int) *fakeIngester {
	return &fakeIngester{done: make(chan struct{}), want: want}
}

func (f *fakeIngester) IngestFeedback(_ context.Context, ev recommend.InteractionEvent) (recommend.LearningResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failFn != nil {
		if err := f.failFn(f.calls, ev); err != nil {
			return recommend.LearningResult{}, err
		}
	}
	f.events = append(f.events, ev)
	if len(f.events) == f.want {
		close(f.done)
	}
	return recommend.LearningResult{EventID: ev.ID, UserID: ev.UserID, PreferenceUpdated: true}, nil
}

func (f *fakeIngester) snapshot() ([]recommend.InteractionEvent, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recommend.InteractionEvent(nil), f.events...), f.calls
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Workers = 1
	cfg.RetryMaxRetries = 2
	cfg.RetryInitialInterval = time.Millisecond
	cfg.RetryMaxInterval = 5 * time.Millisecond
	cfg.HandlerTimeout = time.Second
	cfg.CloseTimeout = time.Second
	return cfg
}

func event(id string) recommend.InteractionEvent {
	return recommend.InteractionEvent{
		ID:        id,
		UserID:    "alice",
		ItemID:    "woody-1",
		Type:      recommend.InteractionRate,
		Strength:  5,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// startConsumer runs a consumer on a fresh gochannel bus and waits until
// it is subscribed.
func startConsumer(t *testing.T, cfg Config, ing Ingester) (*Bus, *Consumer) {
	t.Helper()

	bus, err := NewBus(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewBus() error = %v", err)
	}
	consumer := NewConsumer(bus, cfg, ing, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- consumer.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-served:
		case <-time.After(5 * time.Second):
			t.Error("consumer did not stop")
		}
		_ = bus.Close()
	})

	select {
	case <-consumer.Ready():
	case err := <-served:
		t.Fatalf("Serve() returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer never became ready")
	}
	return bus, consumer
}

// waitFor polls cond; consumer stats are updated after the ingester
// returns.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConsumer_DeliversEvents(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	ing := newFakeIngester(3)
	bus, consumer := startConsumer(t, cfg, ing)
	pub := NewPublisher(bus.Publisher, cfg, zerolog.Nop())

	for i := 0; i < 3; i++ {
		if err := pub.PublishFeedback(context.Background(), event(fmt.Sprintf("ev-%d", i))); err != nil {
			t.Fatalf("PublishFeedback() error = %v", err)
		}
	}

	select {
	case <-ing.done:
	case <-time.After(5 * time.Second):
		t.Fatal("events were not ingested")
	}

	events, _ := ing.snapshot()
	seen := make(map[string]bool, len(events))
	for _, ev := range events {
		seen[ev.ID] = true
		if ev.UserID != "alice" || ev.Strength != 5 || !ev.Timestamp.Equal(event("").Timestamp) {
			t.Errorf("event %s decoded as %+v", ev.ID, ev)
		}
	}
	for i := 0; i < 3; i++ {
		if !seen[fmt.Sprintf("ev-%d", i)] {
			t.Errorf("ev-%d not ingested", i)
		}
	}
	waitFor(t, func() bool { return consumer.Stats().Ingested == 3 })
}

func TestConsumer_PermanentErrorGoesToPoison(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	ing := newFakeIngester(1)
	ing.failFn = func(_ int, ev recommend.InteractionEvent) error {
		if ev.ItemID == "no-such-item" {
			return fmt.Errorf("ingest: %w", recommend.ErrUnknownItem)
		}
		return nil
	}
	bus, consumer := startConsumer(t, cfg, ing)

	poisoned, err := bus.Subscriber.Subscribe(context.Background(), cfg.PoisonTopic)
	if err != nil {
		t.Fatalf("Subscribe(poison) error = %v", err)
	}

	bad := event("bad-1")
	bad.ItemID = "no-such-item"
	msg, err := EncodeEvent(&bad)
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}
	if err := bus.Publisher.Publish(cfg.Topic, msg); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case p := <-poisoned:
		p.Ack()
		if p.UUID != "bad-1" {
			t.Errorf("poisoned UUID = %q, want bad-1", p.UUID)
		}
		if cause := p.Metadata.Get(MetaPoisonCause); cause == "" {
			t.Error("poisoned message has no cause")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("nothing reached the poison topic")
	}

	_, calls := ing.snapshot()
	if calls != 1 {
		t.Errorf("ingester called %d times, want 1 (no retries for permanent errors)", calls)
	}
	waitFor(t, func() bool { return consumer.Stats().Poisoned == 1 })
}

func TestConsumer_MalformedPayloadGoesToPoison(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	ing := newFakeIngester(1)
	bus, _ := startConsumer(t, cfg, ing)

	poisoned, err := bus.Subscriber.Subscribe(context.Background(), cfg.PoisonTopic)
	if err != nil {
		t.Fatalf("Subscribe(poison) error = %v", err)
	}
	if err := bus.Publisher.Publish(cfg.Topic, message.NewMessage("garbage", []byte("{"))); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case p := <-poisoned:
		p.Ack()
		if p.UUID != "garbage" {
			t.Errorf("poisoned UUID = %q", p.UUID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("malformed message was not poisoned")
	}
	if _, calls := ing.snapshot(); calls != 0 {
		t.Errorf("ingester called %d times for a malformed payload", calls)
	}
}

func TestConsumer_RetriesTransientErrors(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	ing := newFakeIngester(1)
	ing.failFn = func(call int, _ recommend.InteractionEvent) error {
		if call <= 2 {
			return fmt.Errorf("ingest: %w", recommend.ErrUpstreamTimeout)
		}
		return nil
	}
	bus, consumer := startConsumer(t, cfg, ing)
	pub := NewPublisher(bus.Publisher, cfg, zerolog.Nop())

	if err := pub.PublishFeedback(context.Background(), event("flaky-1")); err != nil {
		t.Fatalf("PublishFeedback() error = %v", err)
	}

	select {
	case <-ing.done:
	case <-time.After(5 * time.Second):
		t.Fatal("event was never ingested")
	}

	_, calls := ing.snapshot()
	if calls != 3 {
		t.Errorf("ingester called %d times, want 3", calls)
	}
	waitFor(t, func() bool { return consumer.Stats().Ingested == 1 })
	if got := consumer.Stats().Retried; got != 2 {
		t.Errorf("Stats().Retried = %d, want 2", got)
	}
}

func TestConsumer_DuplicatesAreAcked(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	dup := &dupIngester{seen: make(chan struct{}, 2)}
	bus, consumer := startConsumer(t, cfg, dup)
	pub := NewPublisher(bus.Publisher, cfg, zerolog.Nop())

	for i := 0; i < 2; i++ {
		if err := pub.PublishFeedback(context.Background(), event(fmt.Sprintf("dup-%d", i))); err != nil {
			t.Fatalf("PublishFeedback() error = %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		select {
		case <-dup.seen:
		case <-time.After(5 * time.Second):
			t.Fatal("duplicate was not handled")
		}
	}

	waitFor(t, func() bool { return consumer.Stats().Duplicates == 2 })
	if got := consumer.Stats().Retried; got != 0 {
		t.Errorf("Stats().Retried = %d, want 0", got)
	}
}

// dupIngester reports every event as a duplicate, alternating between the
// result flag and ErrDuplicateEvent.
type dupIngester struct {
	mu   sync.Mutex
	n    int
	seen chan struct{}
}

func (d *dupIngester) IngestFeedback(_ context.Context, ev recommend.InteractionEvent) (recommend.LearningResult, error) {
	d.mu.Lock()
	d.n++
	n := d.n
	d.mu.Unlock()
	defer func() { d.seen <- struct{}{} }()

	if n%2 == 0 {
		return recommend.LearningResult{}, recommend.ErrDuplicateEvent
	}
	return recommend.LearningResult{EventID: ev.ID, Duplicate: true}, nil
}

func TestIsPermanent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{recommend.ErrInvalidEvent, true},
		{fmt.Errorf("wrap: %w", recommend.ErrUnknownUser), true},
		{recommend.ErrUnknownItem, true},
		{recommend.ErrDimensionMismatch, true},
		{recommend.ErrUpstreamTimeout, false},
		{recommend.ErrEngineClosed, false},
		{context.DeadlineExceeded, false},
		{errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := isPermanent(tt.err); got != tt.want {
			t.Errorf("isPermanent(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
