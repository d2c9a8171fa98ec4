// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomtom215/scentmatch/internal/feedback"
	"github.com/tomtom215/scentmatch/internal/recommend"
	"github.com/tomtom215/scentmatch/internal/validation"
)

// errBadRequest marks request parsing failures (bad JSON, bad numbers).
var errBadRequest = errors.New("bad request")

// engineStatus maps engine error codes to HTTP statuses.
var engineStatus = map[recommend.ErrorCode]int{
	recommend.CodeInsufficientData:   http.StatusNotFound,
	recommend.CodeUnknownUser:        http.StatusNotFound,
	recommend.CodeUnknownItem:        http.StatusNotFound,
	recommend.CodeInvalidEvent:       http.StatusBadRequest,
	recommend.CodeInvalidFilter:      http.StatusBadRequest,
	recommend.CodeEmptyInput:         http.StatusBadRequest,
	recommend.CodeInconsistentWeight: http.StatusBadRequest,
	recommend.CodeDimensionMismatch:  http.StatusUnprocessableEntity,
	recommend.CodeIndexUnavailable:   http.StatusServiceUnavailable,
	recommend.CodeUpstreamTimeout:    http.StatusGatewayTimeout,
	recommend.CodeInternal:           http.StatusInternalServerError,
}

// classify returns the status, code and client message for err.
func classify(err error) (status int, code, message string) {
	var verr *validation.RequestValidationError
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, ErrCodeValidationFailed, verr.Error()
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "request body too large"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, ErrCodeBadRequest, err.Error()
	case errors.Is(err, recommend.ErrDuplicateEvent):
		return http.StatusConflict, ErrCodeConflict, "event already ingested"
	case errors.Is(err, recommend.ErrEngineClosed):
		return http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "engine is shutting down"
	case errors.Is(err, feedback.ErrBusUnavailable):
		return http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "feedback bus unavailable, retry later"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "request cancelled"
	}

	ec := recommend.CodeOf(err)
	status, ok := engineStatus[ec]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		return status, string(ec), http.StatusText(status)
	}
	return status, string(ec), err.Error()
}

// detailsOf returns structured details for validation failures.
func detailsOf(err error) (map[string]any, bool) {
	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		return verr.Details(), true
	}
	return nil, false
}
