// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

// Package logging provides the zerolog setup shared by every scentmatch
// component.
//
// Components receive a zerolog.Logger at construction and tag it with a
// component field. Request-scoped code derives loggers from the context:
//
//	ctx = logging.ContextWithRequestID(ctx, id)
//	logging.Ctx(ctx).Info().Str("item_id", itemID).Msg("explained")
//
// Libraries that expect log/slog (the supervisor and the feedback bus)
// receive NewSlogLogger, which forwards records to zerolog.
//
// Always end an event chain with Msg or Send, or nothing is written.
package logging
