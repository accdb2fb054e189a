package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/bookrank/pkg/observability"
	"github.com/platinummonkey/bookrank/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRankingStore is an in-memory RankingStore that counts reads
type fakeRankingStore struct {
	mu          sync.Mutex
	periods     map[string][]storage.RankingEntry
	latest      map[string]storage.RankingPeriod
	listCalls   int
	latestCalls int
	err         error
	// afterList runs once a list read has taken its rows
	afterList func()
}

func newFakeRankingStore() *fakeRankingStore {
	return &fakeRankingStore{
		periods: make(map[string][]storage.RankingEntry),
		latest:  make(map[string]storage.RankingPeriod),
	}
}

func (f *fakeRankingStore) ReplaceRanking(_ context.Context, p storage.RankingPeriod, entries []storage.RankingEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.periods[entriesKey(p)] = entries
	f.latest[latestKey(p.RankType, p.StatType)] = p
	return nil
}

func (f *fakeRankingStore) ListEntries(_ context.Context, p storage.RankingPeriod, limit int) ([]storage.RankingEntry, error) {
	f.mu.Lock()
	f.listCalls++
	if f.err != nil {
		f.mu.Unlock()
		return nil, f.err
	}
	entries := append([]storage.RankingEntry{}, f.periods[entriesKey(p)]...)
	hook := f.afterList
	f.afterList = nil
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (f *fakeRankingStore) LatestPeriod(_ context.Context, rankType, statType string) (storage.RankingPeriod, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latestCalls++
	if f.err != nil {
		return storage.RankingPeriod{}, false, f.err
	}
	p, ok := f.latest[latestKey(rankType, statType)]
	return p, ok, nil
}

func setupRankingCache(t *testing.T) (*RankingCache, *fakeRankingStore, *miniredis.Miniredis, *observability.Metrics) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	store := newFakeRankingStore()
	return NewRankingCache(store, client, CacheTTL{}, metrics), store, mr, metrics
}

func TestRankingCache_ListEntries(t *testing.T) {
	cache, store, mr, metrics := setupRankingCache(t)
	ctx := context.Background()
	p := weeklyReadPeriod()

	require.NoError(t, store.ReplaceRanking(ctx, p, []storage.RankingEntry{
		{BookID: 9, RankPosition: 1, Score: 300},
		{BookID: 4, RankPosition: 2, Score: 120},
	}))

	first, err := cache.ListEntries(ctx, p, 10)
	require.NoError(t, err)
	second, err := cache.ListEntries(ctx, p, 10)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.listCalls)
	assert.True(t, mr.Exists(entriesKey(p)))
	assert.Equal(t, 10*time.Minute, mr.TTL(entriesKey(p)))

	// different limit is a separate field
	top1, err := cache.ListEntries(ctx, p, 1)
	require.NoError(t, err)
	assert.Len(t, top1, 1)
	assert.Equal(t, 2, store.listCalls)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("ranking_entries")))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues("ranking_entries")))
}

func TestRankingCache_ReplaceInvalidates(t *testing.T) {
	cache, store, mr, _ := setupRankingCache(t)
	ctx := context.Background()
	p := weeklyReadPeriod()

	require.NoError(t, cache.ReplaceRanking(ctx, p, []storage.RankingEntry{{BookID: 1, RankPosition: 1, Score: 5}}))
	_, err := cache.ListEntries(ctx, p, 10)
	require.NoError(t, err)
	_, _, err = cache.LatestPeriod(ctx, p.RankType, p.StatType)
	require.NoError(t, err)

	require.NoError(t, cache.ReplaceRanking(ctx, p, []storage.RankingEntry{{BookID: 2, RankPosition: 1, Score: 8}}))
	assert.False(t, mr.Exists(entriesKey(p)))
	assert.False(t, mr.Exists(latestKey(p.RankType, p.StatType)))

	entries, err := cache.ListEntries(ctx, p, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].BookID)
	assert.Equal(t, 2, store.listCalls)
}

func TestRankingCache_LatestPeriod(t *testing.T) {
	cache, store, _, _ := setupRankingCache(t)
	ctx := context.Background()

	_, ok, err := cache.LatestPeriod(ctx, "peak", "all")
	require.NoError(t, err)
	assert.False(t, ok)

	// the miss is cached
	_, ok, err = cache.LatestPeriod(ctx, "peak", "all")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, store.latestCalls)

	p := storage.RankingPeriod{RankType: "peak", StatType: "all", Start: day("2024-06-01"), End: day("2024-06-01")}
	require.NoError(t, cache.ReplaceRanking(ctx, p, nil))

	got, ok, err := cache.LatestPeriod(ctx, "peak", "all")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p, got)
}

func TestRankingCache_StoreErrors(t *testing.T) {
	cache, store, _, _ := setupRankingCache(t)
	store.err = errors.New("db down")

	_, err := cache.ListEntries(context.Background(), weeklyReadPeriod(), 10)
	assert.Error(t, err)
	_, _, err = cache.LatestPeriod(context.Background(), "daily", "read_count")
	assert.Error(t, err)
	assert.Error(t, cache.ReplaceRanking(context.Background(), weeklyReadPeriod(), nil))
}

func TestRankingCache_ReplaceDuringMissDoesNotCacheOldRows(t *testing.T) {
	cache, store, _, _ := setupRankingCache(t)
	ctx := context.Background()
	p := weeklyReadPeriod()

	require.NoError(t, cache.ReplaceRanking(ctx, p, []storage.RankingEntry{{BookID: 1, RankPosition: 1, Score: 5}}))

	// regeneration commits after the miss read its rows but before it fills the cache
	store.afterList = func() {
		require.NoError(t, cache.ReplaceRanking(ctx, p, []storage.RankingEntry{{BookID: 2, RankPosition: 1, Score: 8}}))
	}
	stale, err := cache.ListEntries(ctx, p, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stale[0].BookID)

	fresh, err := cache.ListEntries(ctx, p, 10)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, int64(2), fresh[0].BookID)
	assert.Equal(t, 2, store.listCalls)

	// with no replace in between the fill lands again
	_, err = cache.ListEntries(ctx, p, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, store.listCalls)
}

func TestRankingCache_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	ctx := context.Background()

	store := newFakeRankingStore()
	p := weeklyReadPeriod()
	require.NoError(t, store.ReplaceRanking(ctx, p, nil))

	cfg := storage.DefaultConfig()
	cfg.CacheEntriesTTL = time.Minute
	cache := NewRankingCache(store, client, CacheTTLFrom(cfg), nil)

	_, err := cache.ListEntries(ctx, p, 10)
	require.NoError(t, err)
	_, _, err = cache.LatestPeriod(ctx, p.RankType, p.StatType)
	require.NoError(t, err)

	assert.Equal(t, time.Minute, mr.TTL(entriesKey(p)))
	assert.Equal(t, 5*time.Minute, mr.TTL(latestKey(p.RankType, p.StatType)))
}

func TestCacheTTLFrom_Defaults(t *testing.T) {
	assert.Equal(t, CacheTTL{Entries: 10 * time.Minute, Latest: 5 * time.Minute}, CacheTTLFrom(storage.Config{}))
}
