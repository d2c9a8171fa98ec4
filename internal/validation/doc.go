// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

// Package validation wraps go-playground/validator for API request and
// configuration structs.
//
// Besides the built-in tags it registers:
//
//   - interaction_type: one of the feedback interaction types
//   - season: spring, summer, autumn (or fall) and winter, case-insensitive
//
// Error field names follow json tags so they match what clients send:
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error(), verr.Details())
//	}
package validation
