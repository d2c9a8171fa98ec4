// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/scentmatch/internal/logging"
	"github.com/tomtom215/scentmatch/internal/recommend"
)

// Response headers summarising how a result was produced.
const (
	headerResultPath = "X-Recommendation-Path"
	headerCache      = "X-Cache"
)

// GetRecommendations handles GET /api/v1/users/{userID}/recommendations.
func (h *Handler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	req, err := recommendationFromQuery(chi.URLParam(r, "userID"), r.URL.Query())
	if err != nil {
		rw.EngineError(err)
		return
	}
	h.recommend(w, r, rw, req)
}

// PostRecommendations handles POST /api/v1/recommendations.
func (h *Handler) PostRecommendations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req RecommendationRequest
	if err := decodeJSON(r, &req); err != nil {
		rw.EngineError(err)
		return
	}
	h.recommend(w, r, rw, &req)
}

func (h *Handler) recommend(w http.ResponseWriter, r *http.Request, rw *ResponseWriter, req *RecommendationRequest) {
	ctx := logging.ContextWithUserID(r.Context(), req.UserID)

	result, err := h.engine.GenerateRecommendations(ctx, req.UserID, req.Options())
	if err != nil {
		rw.EngineError(err)
		return
	}

	w.Header().Set(headerResultPath, resultPath(&result.Metadata))
	w.Header().Set(headerCache, cacheHeader(result.Metadata.CacheHit))
	rw.Success(result)
}

// resultPath names the pipeline that produced a result.
func resultPath(m *recommend.ResultMetadata) string {
	switch {
	case m.Degraded:
		return "degraded"
	case m.ColdStart:
		return "cold_start"
	case m.Empty:
		return "empty"
	default:
		return "personalized"
	}
}

func cacheHeader(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

// ExplainRecommendation handles
// GET /api/v1/users/{userID}/items/{itemID}/explanation.
func (h *Handler) ExplainRecommendation(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID, itemID := chi.URLParam(r, "userID"), chi.URLParam(r, "itemID")
	q := r.URL.Query()
	rc := ContextRequest{Season: q.Get("season"), Occasion: q.Get("occasion")}
	if err := validate(&rc); err != nil {
		rw.EngineError(err)
		return
	}

	ctx := logging.ContextWithUserID(r.Context(), userID)
	exp, err := h.engine.ExplainRecommendation(ctx, userID, itemID, rc.toEngine())
	if err != nil {
		rw.EngineError(err)
		return
	}
	rw.Success(exp)
}

// LearnerStateResponse is the body of GET /api/v1/users/{userID}/state.
type LearnerStateResponse struct {
	UserID string                 `json:"user_id"`
	State  recommend.LearnerState `json:"state"`
}

// LearnerState handles GET /api/v1/users/{userID}/state.
func (h *Handler) LearnerState(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	NewResponseWriter(w, r).Success(LearnerStateResponse{
		UserID: userID,
		State:  h.engine.LearnerState(userID),
	})
}

// Quality handles GET /api/v1/quality.
func (h *Handler) Quality(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	window, err := windowParam(r.URL.Query(), h.cfg.DefaultQualityWindow)
	if err != nil {
		rw.EngineError(err)
		return
	}

	report, err := h.engine.EvaluateQuality(r.Context(), window)
	if err != nil {
		rw.EngineError(err)
		return
	}
	w.Header().Set("X-Quality-Sessions", strconv.Itoa(report.Sessions))
	rw.Success(report)
}
