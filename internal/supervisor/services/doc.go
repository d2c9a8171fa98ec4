// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

// Package services adapts scentmatch components to suture.Service.
//
//   - HTTPServerService: the API server with graceful shutdown
//   - PeriodicService: ticker-driven work such as the preference sweep
//     (NewSweepService) and the popularity refresh (NewPopularityService)
//
// The feedback consumer implements suture.Service itself and is added to
// the tree directly.
package services
