package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/platinummonkey/bookrank/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) (*Backend, *miniredis.Miniredis, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	mr := miniredis.RunT(t)

	redisClient, err := NewRedisClient(context.Background(), storage.Config{RedisURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { redisClient.Close() })

	conns := &ConnectionManager{primary: db}
	b := &Backend{
		conns:    conns,
		redis:    redisClient,
		stats:    NewStatsStore(db, 0),
		rankings: NewRankingCache(NewRankingStore(db, conns), redisClient.Client(), CacheTTL{}, nil),
		catalog:  NewCatalogStore(conns),
	}

	return b, mr, mock
}

func TestBackend_Accessors(t *testing.T) {
	b, _, _ := newTestBackend(t)

	assert.NotNil(t, b.Stats())
	assert.NotNil(t, b.Catalog())
	assert.NotNil(t, b.Redis())
	assert.Same(t, b.conns.Primary(), b.DB())
	assert.Same(t, b.conns, b.Connections())
	_, cached := b.Rankings().(*RankingCache)
	assert.True(t, cached)
}
