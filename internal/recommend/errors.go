// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package recommend

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/scentmatch/internal/recommend/vectormath"
)

// Sentinel errors. Use errors.Is to match them through wrapping.
var (
	// ErrInsufficientData means the user has no usable interaction history.
	// It is always recoverable through the cold-start path.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrIndexUnavailable means the nearest-neighbour index cannot be reached.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrUpstreamTimeout means an external call exceeded its deadline.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrDimensionMismatch means two vectors have different lengths.
	ErrDimensionMismatch = vectormath.ErrDimensionMismatch

	// ErrEmptyInput means an operation received nothing to work on.
	ErrEmptyInput = vectormath.ErrEmptyInput

	// ErrUnknownUser means the user id does not resolve.
	ErrUnknownUser = errors.New("unknown user")

	// ErrUnknownItem means the item id does not resolve.
	ErrUnknownItem = errors.New("unknown item")

	// ErrInconsistentWeights means the scoring weights are invalid.
	ErrInconsistentWeights = errors.New("inconsistent weights")

	// ErrInvalidEvent means a feedback event is missing required fields.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrInvalidFilter means a filter expression does not compile or evaluate to a bool.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrDuplicateEvent is returned by stores when an event id was already appended.
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrEngineClosed is returned after Close.
	ErrEngineClosed = errors.New("engine closed")
)

// IsRetryable reports whether err is transient and should trigger a fallback
// rather than a failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrIndexUnavailable) ||
		errors.Is(err, ErrUpstreamTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ErrorCode is a stable machine-readable error classification.
type ErrorCode string

const (
	CodeInsufficientData   ErrorCode = "INSUFFICIENT_DATA"
	CodeIndexUnavailable   ErrorCode = "INDEX_UNAVAILABLE"
	CodeUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
	CodeDimensionMismatch  ErrorCode = "DIMENSION_MISMATCH"
	CodeUnknownUser        ErrorCode = "UNKNOWN_USER"
	CodeUnknownItem        ErrorCode = "UNKNOWN_ITEM"
	CodeInconsistentWeight ErrorCode = "INCONSISTENT_WEIGHTS"
	CodeInvalidEvent       ErrorCode = "INVALID_EVENT"
	CodeEmptyInput         ErrorCode = "EMPTY_INPUT"
	CodeInvalidFilter      ErrorCode = "INVALID_FILTER"
	CodeInternal           ErrorCode = "INTERNAL"
)

// CodeOf classifies err.
func CodeOf(err error) ErrorCode {
	var ee *EngineError
	if errors.As(err, &ee) && ee.Code != "" {
		return ee.Code
	}
	switch {
	case errors.Is(err, ErrInsufficientData):
		return CodeInsufficientData
	case errors.Is(err, ErrIndexUnavailable):
		return CodeIndexUnavailable
	case errors.Is(err, ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		return CodeUpstreamTimeout
	case errors.Is(err, ErrDimensionMismatch):
		return CodeDimensionMismatch
	case errors.Is(err, ErrUnknownUser):
		return CodeUnknownUser
	case errors.Is(err, ErrUnknownItem):
		return CodeUnknownItem
	case errors.Is(err, ErrInconsistentWeights):
		return CodeInconsistentWeight
	case errors.Is(err, ErrInvalidEvent):
		return CodeInvalidEvent
	case errors.Is(err, ErrEmptyInput):
		return CodeEmptyInput
	case errors.Is(err, ErrInvalidFilter):
		return CodeInvalidFilter
	default:
		return CodeInternal
	}
}

// EngineError is the structured failure returned at the engine boundary
// for programming and data errors.
type EngineError struct {
	// Op is the engine operation that failed.
	Op string
	// Code classifies the failure.
	Code ErrorCode
	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// newEngineError wraps err for operation op.
func newEngineError(op string, err error) *EngineError {
	return &EngineError{Op: op, Code: CodeOf(err), Err: err}
}
