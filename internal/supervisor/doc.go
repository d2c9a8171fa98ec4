// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

// Package supervisor runs scentmatch's long-lived services under a suture
// supervisor tree.
//
// Services are grouped into layers so a failure stays local:
//
//	tree := supervisor.NewTree(logging.NewSlogLogger(logger), cfg)
//	tree.AddLearningService(services.NewSweepService(learner, time.Hour, logger))
//	tree.AddMessagingService(consumer)
//	tree.AddAPIService(services.NewHTTPServerService(srv, 10*time.Second, logger))
//	err := tree.Serve(ctx)
//
// Suture restarts a service that returns or panics, with backoff once
// FailureThreshold is exceeded. Supervisor events are logged through
// sutureslog into zerolog.
package supervisor
