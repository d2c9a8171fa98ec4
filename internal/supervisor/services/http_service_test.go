// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

var _ suture.Service = (*HTTPServerService)(nil)

// fakeServer blocks in ListenAndServe until Shutdown, unless listenErr is
// set, in which case it fails immediately.
type fakeServer struct {
	listenErr   error
	shutdownErr error

	started   chan struct{}
	stopped   chan struct{}
	stopOnce  sync.Once
	shutdowns atomic.Int32
	order     *[]string
	mu        *sync.Mutex
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		started: make(chan struct{}),
		stopped: make(chan struct{}),
		order:   &[]string{},
		mu:      &sync.Mutex{},
	}
}

func (f *fakeServer) record(step string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.order = append(*f.order, step)
}

func (f *fakeServer) steps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), *f.order...)
}

func (f *fakeServer) ListenAndServe() error {
	close(f.started)
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.stopped
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(context.Context) error {
	f.shutdowns.Add(1)
	f.record("shutdown")
	f.stopOnce.Do(func() { close(f.stopped) })
	return f.shutdownErr
}

func serveUntilStarted(t *testing.T, svc *HTTPServerService, srv *fakeServer) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	select {
	case <-srv.started:
	case <-time.After(time.Second):
		cancel()
		t.Fatal("ListenAndServe was not called")
	}
	return cancel, done
}

func waitErr(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func TestNewHTTPServerService_ShutdownTimeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{in: 3 * time.Second, want: 3 * time.Second},
		{in: 0, want: defaultShutdownTimeout},
		{in: -time.Second, want: defaultShutdownTimeout},
	}
	for _, tt := range tests {
		svc := NewHTTPServerService(newFakeServer(), tt.in, zerolog.Nop())
		if svc.shutdownTimeout != tt.want {
			t.Errorf("NewHTTPServerService(%v) timeout = %v, want %v", tt.in, svc.shutdownTimeout, tt.want)
		}
	}
	if got := NewHTTPServerService(newFakeServer(), 0, zerolog.Nop()).String(); got != "http-server" {
		t.Errorf("String() = %q", got)
	}
}

func TestHTTPServerService_DrainsBeforeShutdown(t *testing.T) {
	t.Parallel()

	srv := newFakeServer()
	var drainedAt, shutdownAt time.Time
	svc := NewHTTPServerService(srv, time.Second, zerolog.Nop(),
		WithDrain(func() {
			drainedAt = time.Now()
			srv.record("drain")
		}, 30*time.Millisecond))

	cancel, done := serveUntilStarted(t, svc, srv)
	cancel()
	if err := waitErr(t, done); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v, want context.Canceled", err)
	}
	shutdownAt = time.Now()

	steps := srv.steps()
	if len(steps) != 2 || steps[0] != "drain" || steps[1] != "shutdown" {
		t.Errorf("steps = %v, want [drain shutdown]", steps)
	}
	if shutdownAt.Sub(drainedAt) < 30*time.Millisecond {
		t.Errorf("shutdown %v after drain, want at least the drain delay", shutdownAt.Sub(drainedAt))
	}
}

func TestHTTPServerService_Failures(t *testing.T) {
	t.Parallel()

	t.Run("listen error", func(t *testing.T) {
		t.Parallel()
		bindErr := errors.New("bind: address already in use")
		srv := newFakeServer()
		srv.listenErr = bindErr

		err := NewHTTPServerService(srv, time.Second, zerolog.Nop()).Serve(context.Background())
		if !errors.Is(err, bindErr) {
			t.Errorf("Serve() error = %v, want %v", err, bindErr)
		}
		if srv.shutdowns.Load() != 0 {
			t.Error("Shutdown called after a failed listen")
		}
	})

	t.Run("shutdown error", func(t *testing.T) {
		t.Parallel()
		timeoutErr := errors.New("connections still active")
		srv := newFakeServer()
		srv.shutdownErr = timeoutErr
		svc := NewHTTPServerService(srv, time.Second, zerolog.Nop())

		cancel, done := serveUntilStarted(t, svc, srv)
		cancel()
		if err := waitErr(t, done); !errors.Is(err, timeoutErr) {
			t.Errorf("Serve() error = %v, want %v", err, timeoutErr)
		}
	})
}

func TestHTTPServerService_RealServer(t *testing.T) {
	t.Parallel()

	server := &http.Server{
		Addr:              "127.0.0.1:0",
		Handler:           http.NotFoundHandler(),
		ReadHeaderTimeout: time.Second,
	}
	svc := NewHTTPServerService(server, time.Second, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := waitErr(t, done); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v, want context.Canceled", err)
	}
}

func TestHTTPServerService_UnderSupervisor(t *testing.T) {
	t.Parallel()

	srv := newFakeServer()
	var drained atomic.Bool
	svc := NewHTTPServerService(srv, time.Second, zerolog.Nop(), WithDrain(func() { drained.Store(true) }, 0))

	sup := suture.New("api-layer", suture.Spec{Timeout: 2 * time.Second})
	sup.Add(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)

	select {
	case <-srv.started:
	case <-time.After(time.Second):
		cancel()
		t.Fatal("server did not start under the supervisor")
	}
	cancel()
	<-errCh

	if !drained.Load() || srv.shutdowns.Load() != 1 {
		t.Errorf("drained = %v, shutdowns = %d", drained.Load(), srv.shutdowns.Load())
	}
}
