// Package config provides application configuration from defaults, an optional
// YAML file and environment variables.
//
// # Sources
//
// Values are applied in order, later sources winning:
//
//  1. built-in defaults (Default)
//  2. the YAML file named by BOOKRANK_CONFIG_FILE, if set
//  3. BOOKRANK_* environment variables
//
// Command line flags in cmd/ override the loaded values last.
//
// # Configuration Structure
//
// Server settings:
//
//	BOOKRANK_HOST="0.0.0.0"
//	BOOKRANK_PORT="8080"
//	BOOKRANK_HEALTH_PORT="9090"
//	BOOKRANK_READ_TIMEOUT="15s"
//
// Storage settings:
//
//	BOOKRANK_POSTGRES_URL="postgres://localhost:5432/bookrank?sslmode=disable"
//	BOOKRANK_POSTGRES_REPLICA_URLS="postgres://replica1/bookrank,postgres://replica2/bookrank"
//	BOOKRANK_REDIS_URL="redis://localhost:6379/0"
//	BOOKRANK_CACHE_ENABLED="true"
//
// Counters and jobs:
//
//	BOOKRANK_TIMEZONE="Asia/Shanghai"
//	BOOKRANK_STATS_TTL="72h"
//	BOOKRANK_FLUSH_SCHEDULE="0 1 * * *"
//	BOOKRANK_RANKING_SCHEDULE="0 2 * * *"
//	BOOKRANK_RANKING_LIMIT="100"
//	BOOKRANK_PEAK_WEIGHT_VIEW="1"
//
// Observability settings:
//
//	BOOKRANK_LOG_LEVEL="info"  # debug, info, warn, error
//	BOOKRANK_METRICS_ENABLED="true"
//	BOOKRANK_OTEL_ENABLED="true"
//	BOOKRANK_OTEL_ENDPOINT="otel-collector:4317"
//
// The same keys in YAML:
//
//	stats:
//	  timezone: Asia/Shanghai
//	  ttl: 72h
//	ranking:
//	  limit: 100
//	  peak_weights:
//	    view: 1
//	    recommend: 10
package config
