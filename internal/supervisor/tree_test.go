// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/scentmatch/internal/logging"
)

func testTree(cfg TreeConfig) *Tree {
	return NewTree(logging.NewSlogLogger(zerolog.Nop()), cfg)
}

func TestNewTree_Defaults(t *testing.T) {
	t.Parallel()

	tree := testTree(TreeConfig{})
	if tree.Root() == nil {
		t.Fatal("Root() = nil")
	}
	if tree.config != DefaultTreeConfig() {
		t.Errorf("config = %+v, want defaults", tree.config)
	}
}

func TestTree_StartsEveryLayer(t *testing.T) {
	t.Parallel()

	tree := testTree(TreeConfig{ShutdownTimeout: time.Second})
	learning := newMockService("sweep", 0)
	messaging := newMockService("consumer", 0)
	api := newMockService("http", 0)
	tree.AddLearningService(learning)
	tree.AddMessagingService(messaging)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for learning.starts() == 0 || messaging.starts() == 0 || api.starts() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("not every layer started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not stop")
	}
}

func TestTree_RestartsFailingService(t *testing.T) {
	t.Parallel()

	tree := testTree(TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})
	failing := newMockService("consumer", 2)
	stable := newMockService("http", 0)
	tree.AddMessagingService(failing)
	tree.AddAPIService(stable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tree.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for failing.starts() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("failing service started %d times, want at least 3", failing.starts())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if stable.starts() != 1 {
		t.Errorf("stable service started %d times, want 1", stable.starts())
	}
}

func TestTree_RemoveMessagingService(t *testing.T) {
	t.Parallel()

	tree := testTree(TreeConfig{ShutdownTimeout: time.Second})
	svc := newMockService("consumer", 0)
	token := tree.AddMessagingService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tree.ServeBackground(ctx)

	if err := tree.RemoveMessagingService(token); err != nil {
		t.Errorf("RemoveMessagingService() error = %v", err)
	}
}
