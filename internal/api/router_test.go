// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRouter_NotFoundAndMethodNotAllowed(t *testing.T) {
	t.Parallel()

	_, router := newTestRouter(t, newFakeEngine(), nil)

	rec, env := do(t, router, http.MethodGet, "/api/v1/nothing-here", "")
	if rec.Code != http.StatusNotFound || env.Error == nil || env.Error.Code != ErrCodeNotFound {
		t.Errorf("unknown route: %d %+v", rec.Code, env.Error)
	}

	rec, env = do(t, router, http.MethodDelete, "/api/v1/feedback", "")
	if rec.Code != http.StatusMethodNotAllowed || env.Error == nil || env.Error.Code != ErrCodeMethodNotAllowed {
		t.Errorf("wrong method: %d %+v", rec.Code, env.Error)
	}
}

func TestRouter_BodyTooLarge(t *testing.T) {
	t.Parallel()

	_, router := newTestRouter(t, newFakeEngine(), func(cfg *RouterConfig) {
		cfg.MaxBodyBytes = 64
	})

	body := `{"user_id":"alice","filters":{"expression":"` + strings.Repeat("x", 200) + `"}}`
	rec, env := do(t, router, http.MethodPost, "/api/v1/recommendations", body)
	if rec.Code != http.StatusRequestEntityTooLarge || env.Error == nil || env.Error.Code != ErrCodePayloadTooLarge {
		t.Errorf("status %d, error %+v, want 413", rec.Code, env.Error)
	}
}

func TestRouter_RateLimit(t *testing.T) {
	t.Parallel()

	_, router := newTestRouter(t, newFakeEngine(), func(cfg *RouterConfig) {
		cfg.RateLimitDisabled = false
		cfg.RateLimitRequests = 2
		cfg.RateLimitWindow = time.Minute
	})

	var last *httptest.ResponseRecorder
	var lastEnv envelope
	for i := 0; i < 3; i++ {
		last, lastEnv = do(t, router, http.MethodGet, "/api/v1/users/alice/state", "")
	}
	if last.Code != http.StatusTooManyRequests || lastEnv.Error == nil || lastEnv.Error.Code != ErrCodeTooManyRequests {
		t.Errorf("third request: %d %+v, want 429", last.Code, lastEnv.Error)
	}

	// Probes sit outside the limited group.
	rec, _ := do(t, router, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("healthz while limited = %d", rec.Code)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	t.Parallel()

	_, router := newTestRouter(t, newFakeEngine(), nil)

	tests := []struct {
		origin    string
		wantAllow string
	}{
		{"https://shop.example", "https://shop.example"},
		{"https://evil.example", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/recommendations", nil)
		req.Header.Set("Origin", tt.origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
			t.Errorf("origin %s: Access-Control-Allow-Origin = %q, want %q", tt.origin, got, tt.wantAllow)
		}
	}
}

func TestRouter_GzipAPIResponses(t *testing.T) {
	t.Parallel()

	_, router := newTestRouter(t, newFakeEngine(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/alice/recommendations", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", rec.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip.NewReader() error = %v", err)
	}
	plain, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read gzip body: %v", err)
	}
	if !strings.Contains(string(plain), `"woody-1"`) {
		t.Errorf("decompressed body = %s", plain)
	}
}
