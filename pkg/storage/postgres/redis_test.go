package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/platinummonkey/bookrank/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), storage.Config{
		RedisURL:        "redis://" + mr.Addr(),
		RedisMaxRetries: 3,
		RedisPoolSize:   10,
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.Client().Set(context.Background(), "book:stats:2024-06-01:1", "x", 0).Err())
	assert.True(t, mr.Exists("book:stats:2024-06-01:1"))
	assert.NotNil(t, client.PoolStats())
}

func TestRedisOptions(t *testing.T) {
	opts, err := redisOptions(storage.Config{
		RedisURL:      "redis://localhost:6379/0",
		RedisPassword: "secret",
		RedisDB:       2,
		RedisPoolSize: 4,
	})
	require.NoError(t, err)

	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 4, opts.PoolSize)
	assert.Equal(t, 500*time.Millisecond, opts.ReadTimeout)
	assert.Equal(t, 500*time.Millisecond, opts.WriteTimeout)

	// zero values keep what the URL says
	opts, err = redisOptions(storage.Config{RedisURL: "redis://localhost:6379/5"})
	require.NoError(t, err)
	assert.Equal(t, 5, opts.DB)
}

func TestNewRedisClient_Auth(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("secret")

	_, err := NewRedisClient(context.Background(), storage.Config{RedisURL: "redis://" + mr.Addr()})
	require.Error(t, err)

	client, err := NewRedisClient(context.Background(), storage.Config{RedisURL: "redis://" + mr.Addr(), RedisPassword: "secret"})
	require.NoError(t, err)
	client.Close()
}

func TestNewRedisClient_Errors(t *testing.T) {
	_, err := NewRedisClient(context.Background(), storage.Config{RedisURL: "not-a-url"})
	assert.ErrorContains(t, err, "invalid redis URL")

	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisClient(context.Background(), storage.Config{RedisURL: "redis://" + addr, RedisMaxRetries: 1})
	assert.ErrorContains(t, err, "failed to connect to redis")
}
