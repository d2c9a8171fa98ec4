// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/tomtom215/scentmatch/internal/middleware"
	"github.com/tomtom215/scentmatch/internal/recommend"
)

// HealthStatus is the body of /healthz and /readyz.
type HealthStatus struct {
	Status        string            `json:"status"`
	Checks        map[string]string `json:"checks,omitempty"`
	DegradedRatio float64           `json:"degraded_ratio"`
	UptimeSeconds float64           `json:"uptime_seconds"`
}

// StatsResponse is the body of GET /api/v1/stats.
type StatsResponse struct {
	Engine        recommend.EngineStats      `json:"engine"`
	Endpoints     []middleware.EndpointStats `json:"endpoints"`
	Components    map[string]any             `json:"components,omitempty"`
	UptimeSeconds float64                    `json:"uptime_seconds"`
}

// Healthz handles GET /healthz. It only proves the process serves HTTP.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writePlainJSON(w, http.StatusOK, HealthStatus{
		Status:        "ok",
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	})
}

// Readyz handles GET /readyz. It fails when too many recent responses were
// degraded or when any registered dependency check fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:        "ready",
		Checks:        map[string]string{},
		DegradedRatio: h.engine.Stats().DegradedRatio,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}
	ready := true

	if h.engine.Healthy(h.cfg.MaxDegradedRatio) {
		status.Checks["engine"] = "ok"
	} else {
		status.Checks["engine"] = "degraded"
		ready = false
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make([]ReadinessCheck, len(names))
	for i, name := range names {
		checks[i] = h.checks[name]
	}
	h.mu.RUnlock()

	for i, check := range checks {
		ctx, cancel := context.WithTimeout(r.Context(), h.cfg.ReadinessTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			status.Checks[names[i]] = err.Error()
			ready = false
			continue
		}
		status.Checks[names[i]] = "ok"
	}

	code := http.StatusOK
	switch {
	case h.draining.Load():
		status.Status = "draining"
		code = http.StatusServiceUnavailable
	case !ready:
		status.Status = "not_ready"
		code = http.StatusServiceUnavailable
	}
	writePlainJSON(w, code, status)
}

// Stats handles GET /api/v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Engine:        h.engine.Stats(),
		Endpoints:     h.perfMon.Stats(),
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}

	h.mu.RLock()
	if len(h.statsSources) > 0 {
		resp.Components = make(map[string]any, len(h.statsSources))
		for name, source := range h.statsSources {
			resp.Components[name] = source()
		}
	}
	h.mu.RUnlock()

	NewResponseWriter(w, r).Success(resp)
}
