// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package api

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/tomtom215/scentmatch/internal/logging"
	"github.com/tomtom215/scentmatch/internal/recommend"
)

// FeedbackAccepted is the body of a 202 from POST /api/v1/feedback.
type FeedbackAccepted struct {
	EventID string `json:"event_id"`
}

// BatchFeedbackResponse is the body of POST /api/v1/feedback/batch.
type BatchFeedbackResponse struct {
	Results []recommend.LearningResult `json:"results"`

	// Error is set when some events failed; Results holds the rest.
	Error string `json:"error,omitempty"`
}

// SubmitFeedback handles POST /api/v1/feedback. The event is queued on the
// feedback bus; with no bus configured it is ingested before returning.
func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req FeedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		rw.EngineError(err)
		return
	}

	ctx := logging.ContextWithUserID(r.Context(), req.UserID)
	id, err := h.engine.SubmitFeedback(ctx, req.Event())
	if err != nil {
		rw.EngineError(err)
		return
	}
	logging.Ctx(ctx).Debug().Str("event_id", id).Str("type", req.Type).Msg("feedback accepted")
	rw.Accepted(FeedbackAccepted{EventID: id})
}

// SubmitFeedbackBatch handles POST /api/v1/feedback/batch. Events are
// ingested synchronously, oldest first, so the response reports the
// learning effect of each.
func (h *Handler) SubmitFeedbackBatch(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req BatchFeedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		rw.EngineError(err)
		return
	}
	if len(req.Events) > h.cfg.MaxBatchSize {
		rw.EngineError(fmt.Errorf("%w: batch has %d events, limit is %d", errBadRequest, len(req.Events), h.cfg.MaxBatchSize))
		return
	}

	events := make([]recommend.InteractionEvent, len(req.Events))
	for i := range req.Events {
		events[i] = req.Events[i].Event()
		if events[i].ID == "" {
			events[i].ID = uuid.NewString()
		}
	}

	results, err := h.engine.IngestBatch(r.Context(), events)
	if err != nil && len(results) == 0 {
		rw.EngineError(err)
		return
	}
	resp := BatchFeedbackResponse{Results: results}
	if err != nil {
		resp.Error = err.Error()
		logging.Ctx(r.Context()).Warn().Err(err).Int("ingested", len(results)).Int("submitted", len(events)).
			Msg("feedback batch partially ingested")
	}
	rw.Success(resp)
}
