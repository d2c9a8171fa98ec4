// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

/*
Package main is the entry point for the Scentmatch server.

Scentmatch serves personalized fragrance recommendations. Each request
retrieves candidates near the user's taste embedding, scores them on
content, collaborative and contextual signals, diversifies the page and
optionally explains every pick. Feedback flows back through a message
bus and updates the user's embedding incrementally.

# Application Architecture

The server runs under a Suture v4 supervisor tree:

	RootSupervisor ("scentmatch")
	├── LearningSupervisor ("learning-layer")
	│   ├── preference-sweep    recompute embeddings, detect taste shifts
	│   ├── popularity-refresh  rebuild the cold-start list
	│   └── embedding-snapshot  memory and sqlite backends only
	├── MessagingSupervisor ("messaging-layer")
	│   └── feedback-consumer   watermill router over gochannel or NATS
	└── APISupervisor ("api-layer")
	    └── http-server         chi router, see internal/api

Component initialization order:

 1. Configuration: Koanf v2 with defaults, config.yaml and environment
 2. Logging: zerolog, JSON or console
 3. Catalog: YAML seed, hashing embeddings for items without vectors
 4. Storage: Badger, SQLite or memory, plus embedding snapshots
 5. Result cache: Redis behind a circuit breaker (optional)
 6. Feedback bus: gochannel, NATS JetStream or disabled
 7. Engine: retrieval, scoring, re-ranking, explanations, evaluation
 8. Supervisor tree and HTTP server
 9. Config watcher: weight and experiment changes apply without restart

# Configuration

Priority: Environment variables > Config file > Defaults

	CONFIG_PATH=./config.yaml         # explicit config file
	HTTP_PORT=8080
	LOG_LEVEL=info                    # trace, debug, info, warn, error
	LOG_FORMAT=json                   # json or console
	CORS_ORIGINS=https://shop.example
	STORAGE_BACKEND=badger            # badger, sqlite or memory
	FEEDBACK_TRANSPORT=gochannel      # gochannel, nats or disabled
	REDIS_ENABLED=false
	REDIS_ADDR=localhost:6379

Any key can be set with the SCENTMATCH_ prefix, using double
underscores for nesting:

	SCENTMATCH_RECOMMEND__WEIGHTS__CONTENT=0.5

# Signal Handling

SIGINT and SIGTERM stop the supervisor tree. The HTTP server drains
in-flight requests, the consumer finishes its current message, a final
embedding snapshot is written and storage is closed.
*/
package main
