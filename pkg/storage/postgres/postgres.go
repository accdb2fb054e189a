package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/bookrank/pkg/observability"
	"github.com/platinummonkey/bookrank/pkg/storage"
)

// Backend bundles the PostgreSQL pools, the Redis client and the stores built on them
type Backend struct {
	conns    *ConnectionManager
	redis    *RedisClient
	stats    *StatsStore
	rankings storage.RankingStore
	catalog  *CatalogStore
}

// Open connects to PostgreSQL and Redis and builds the stores.
// Ranking reads go through the Redis cache when config.CacheEnabled is set.
func Open(ctx context.Context, config storage.Config, logger *observability.Logger, metrics *observability.Metrics) (*Backend, error) {
	conns, err := NewConnectionManager(ctx, ConnectionConfigFrom(config), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	redisClient, err := NewRedisClient(ctx, config)
	if err != nil {
		conns.Close()
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	var rankings storage.RankingStore = NewRankingStore(conns.Primary(), conns)
	if config.CacheEnabled {
		rankings = NewRankingCache(rankings, redisClient.Client(), CacheTTLFrom(config), metrics)
	}

	return &Backend{
		conns:    conns,
		redis:    redisClient,
		stats:    NewStatsStore(conns.Primary(), config.UpsertBatchSize),
		rankings: rankings,
		catalog:  NewCatalogStore(conns),
	}, nil
}

// Stats returns the daily and cumulative stats store
func (b *Backend) Stats() *StatsStore {
	return b.stats
}

// Rankings returns the ranking store, cached when enabled
func (b *Backend) Rankings() storage.RankingStore {
	return b.rankings
}

// Catalog returns the read-only catalog reader
func (b *Backend) Catalog() *CatalogStore {
	return b.catalog
}

// Redis returns the Redis client backing the counter buffer
func (b *Backend) Redis() *RedisClient {
	return b.redis
}

// DB returns the primary database pool
func (b *Backend) DB() *sql.DB {
	return b.conns.Primary()
}

// Connections returns the connection manager
func (b *Backend) Connections() *ConnectionManager {
	return b.conns
}

// Close closes all connections
func (b *Backend) Close() error {
	return errors.Join(b.redis.Close(), b.conns.Close())
}
