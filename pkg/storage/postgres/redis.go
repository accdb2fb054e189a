package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/bookrank/pkg/storage"
)

// Counter increments run on the request path, so every Redis call gives up
// well inside the HTTP write timeout and surfaces as a 503.
const (
	redisDialTimeout = 2 * time.Second
	redisIOTimeout   = 500 * time.Millisecond
	redisPoolTimeout = time.Second
)

// RedisClient owns the pool shared by the counter buffer, the ranking cache
// and the increment rate limiter
type RedisClient struct {
	client *redis.Client
}

// redisOptions layers the explicit storage settings over the URL
func redisOptions(config storage.Config) (*redis.Options, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB > 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisMaxRetries > 0 {
		opts.MaxRetries = config.RedisMaxRetries
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}

	opts.DialTimeout = redisDialTimeout
	opts.ReadTimeout = redisIOTimeout
	opts.WriteTimeout = redisIOTimeout
	opts.PoolTimeout = redisPoolTimeout
	return opts, nil
}

// NewRedisClient connects to the counter store and fails fast when it is unreachable
func NewRedisClient(ctx context.Context, config storage.Config) (*RedisClient, error) {
	opts, err := redisOptions(config)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// Client returns the go-redis client handed to the buffer, cache and limiter
func (c *RedisClient) Client() *redis.Client {
	return c.client
}

// PoolStats feeds the redis pool gauges
func (c *RedisClient) PoolStats() *redis.PoolStats {
	return c.client.PoolStats()
}

// Close closes the Redis pool
func (c *RedisClient) Close() error {
	return c.client.Close()
}
