// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

/*
Package config loads scentmatch configuration with koanf.

# Layers

Later layers override earlier ones:

 1. built-in defaults (structs provider)
 2. a YAML file: CONFIG_PATH, else config.yaml, config.yml or
    /etc/scentmatch/config.yaml
 3. environment variables

Keys follow the json tags of the section types, so the file mirrors the
JSON shape of Config:

	server:
	  port: 8080
	recommend:
	  weights: {content: 0.6, collaborative: 0.3, contextual: 0.1}
	  experiments:
	    collab-heavy: {content: 0.4, collaborative: 0.5, contextual: 0.1}
	storage:
	  backend: badger
	  path: /data/badger
	feedback:
	  transport: nats
	  nats: {embedded: true, store_dir: /data/nats}
	catalog:
	  seed_file: /data/catalog.yaml

# Environment Variables

Common settings have short names (HTTP_PORT, LOG_LEVEL, REDIS_ADDR,
NATS_URL, STORAGE_BACKEND, CATALOG_SEED_FILE, ...). Any key can be set
with the SCENTMATCH_ prefix and double underscores between levels:

	SCENTMATCH_RECOMMEND__DIVERSITY__MMR_LAMBDA=0.6

Comma-separated values are accepted for CORS_ORIGINS.

# Hot Reload

Reloader watches the config file and swaps the scoring weights and
experiment sets into the running engine. A file that fails validation is
rejected and the current weights stay in place.
*/
package config
