package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)

func setupBufferTest(t *testing.T) (*Buffer, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	buffer := NewBuffer(client, Options{
		Now: func() time.Time { return testNow },
	})
	return buffer, mr
}

func TestBuffer_IncrementAccumulates(t *testing.T) {
	buffer, mr := setupBufferTest(t)
	ctx := context.Background()

	require.NoError(t, buffer.IncrementReadCount(ctx, 42, 3))
	require.NoError(t, buffer.IncrementReadCount(ctx, 42, 2))

	counters, err := buffer.GetTodayStats(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(5), counters.ReadCount)
	assert.Equal(t, int64(0), counters.RecommendVotes)

	assert.Equal(t, "5", mr.HGet("book:stats:2024-06-01:42", "read_count"))
}

func TestBuffer_AllFields(t *testing.T) {
	buffer, _ := setupBufferTest(t)
	ctx := context.Background()

	require.NoError(t, buffer.IncrementReadCount(ctx, 7, 10))
	require.NoError(t, buffer.IncrementRecommendVotes(ctx, 7, 4))
	require.NoError(t, buffer.IncrementMonthlyTickets(ctx, 7, 2))
	require.NoError(t, buffer.IncrementCollectionCount(ctx, 7, 1))
	require.NoError(t, buffer.IncrementCollectionCount(ctx, 7, -3))

	counters, err := buffer.GetTodayStats(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, Counters{
		ReadCount:       10,
		RecommendVotes:  4,
		MonthlyTickets:  2,
		CollectionCount: -2,
	}, counters)
}

func TestBuffer_SetsExpiry(t *testing.T) {
	buffer, mr := setupBufferTest(t)
	ctx := context.Background()

	require.NoError(t, buffer.IncrementReadCount(ctx, 42, 1))
	assert.Equal(t, DefaultTTL, mr.TTL("book:stats:2024-06-01:42"))

	mr.FastForward(time.Hour)
	require.NoError(t, buffer.IncrementRecommendVotes(ctx, 42, 1))
	assert.Equal(t, DefaultTTL, mr.TTL("book:stats:2024-06-01:42"), "expiry refreshed on each increment")
}

func TestBuffer_ConcurrentIncrements(t *testing.T) {
	buffer, _ := setupBufferTest(t)
	ctx := context.Background()

	const workers = 20
	const perWorker = 25

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if err := buffer.IncrementReadCount(ctx, 9, 1); err != nil {
					t.Errorf("increment failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	counters, err := buffer.GetTodayStats(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), counters.ReadCount)
}

func TestBuffer_InvalidInput(t *testing.T) {
	buffer, _ := setupBufferTest(t)
	ctx := context.Background()

	err := buffer.IncrementReadCount(ctx, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidBookID)

	err = buffer.Increment(ctx, 1, Field("likes"), 1)
	assert.Error(t, err)

	_, err = buffer.GetTodayStats(ctx, -1)
	assert.ErrorIs(t, err, ErrInvalidBookID)
}

func TestBuffer_MissingBookReadsZero(t *testing.T) {
	buffer, _ := setupBufferTest(t)

	counters, err := buffer.GetTodayStats(context.Background(), 1234)
	require.NoError(t, err)
	assert.Equal(t, Counters{}, counters)
}

func TestBuffer_UsesConfiguredLocation(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	// 20:30 UTC on 06-01 is already 06-02 at UTC+8
	buffer := NewBuffer(client, Options{
		Location: time.FixedZone("UTC+8", 8*3600),
		Now:      func() time.Time { return time.Date(2024, 6, 1, 20, 30, 0, 0, time.UTC) },
	})

	require.NoError(t, buffer.IncrementReadCount(context.Background(), 5, 1))
	assert.True(t, mr.Exists("book:stats:2024-06-02:5"))
}

func TestBuffer_ScanDate(t *testing.T) {
	buffer, mr := setupBufferTest(t)
	ctx := context.Background()

	for id := int64(1); id <= 3; id++ {
		require.NoError(t, buffer.IncrementReadCount(ctx, id, id*10))
	}
	mr.HSet("book:stats:2024-06-01:abc", "read_count", "99")
	mr.HSet("book:stats:2024-05-31:1", "read_count", "1")

	result, err := buffer.ScanDate(ctx, buffer.Today())
	require.NoError(t, err)

	assert.Len(t, result.Snapshots, 3)
	assert.Equal(t, []string{"book:stats:2024-06-01:abc"}, result.Malformed)

	byBook := make(map[int64]int64)
	for _, snap := range result.Snapshots {
		byBook[snap.BookID] = snap.Counters.ReadCount
		assert.Equal(t, EncodeKey(buffer.Today(), snap.BookID), snap.Key)
	}
	assert.Equal(t, map[int64]int64{1: 10, 2: 20, 3: 30}, byBook)
}

func TestBuffer_ScanDate_NonHashKey(t *testing.T) {
	buffer, mr := setupBufferTest(t)
	ctx := context.Background()

	require.NoError(t, buffer.IncrementReadCount(ctx, 1, 10))
	require.NoError(t, mr.Set("book:stats:2024-06-01:7", "garbage"))

	result, err := buffer.ScanDate(ctx, buffer.Today())
	require.NoError(t, err)

	require.Len(t, result.Snapshots, 1)
	assert.Equal(t, int64(1), result.Snapshots[0].BookID)
	assert.Equal(t, int64(10), result.Snapshots[0].Counters.ReadCount)
	assert.Equal(t, []string{"book:stats:2024-06-01:7"}, result.Malformed)
}

func TestBuffer_ScanDate_ManyPages(t *testing.T) {
	buffer, mr := setupBufferTest(t)
	buffer.scanCount = 10
	ctx := context.Background()

	date := buffer.Today()
	for id := int64(1); id <= 250; id++ {
		mr.HSet(EncodeKey(date, id), "read_count", fmt.Sprint(id))
	}

	result, err := buffer.ScanDate(ctx, date)
	require.NoError(t, err)
	assert.Len(t, result.Snapshots, 250)
}

func TestBuffer_GetAllBooksStatsForDate(t *testing.T) {
	buffer, _ := setupBufferTest(t)
	ctx := context.Background()

	require.NoError(t, buffer.IncrementRecommendVotes(ctx, 11, 2))
	require.NoError(t, buffer.IncrementMonthlyTickets(ctx, 12, 5))

	all, err := buffer.GetAllBooksStatsForDate(ctx, buffer.Today())
	require.NoError(t, err)
	assert.Equal(t, map[int64]Counters{
		11: {RecommendVotes: 2},
		12: {MonthlyTickets: 5},
	}, all)

	empty, err := buffer.GetAllBooksStatsForDate(ctx, buffer.Today().AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestBuffer_ListBookIDs(t *testing.T) {
	buffer, mr := setupBufferTest(t)
	ctx := context.Background()

	for _, id := range []int64{30, 4, 17} {
		require.NoError(t, buffer.IncrementReadCount(ctx, id, 1))
	}
	mr.HSet("book:stats:2024-06-01:bad", "read_count", "1")

	ids, err := buffer.ListBookIDs(ctx, buffer.Today())
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 17, 30}, ids)
}

func TestBuffer_DeleteKeys(t *testing.T) {
	buffer, mr := setupBufferTest(t)
	ctx := context.Background()

	date := buffer.Today()
	keys := make([]string, 0, 1200)
	for id := int64(1); id <= 1200; id++ {
		key := EncodeKey(date, id)
		mr.HSet(key, "read_count", "1")
		keys = append(keys, key)
	}
	keys = append(keys, EncodeKey(date, 99999))

	deleted, err := buffer.DeleteKeys(ctx, keys)
	require.NoError(t, err)
	assert.Equal(t, int64(1200), deleted)
	assert.Empty(t, mr.Keys())

	deleted, err = buffer.DeleteKeys(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestBuffer_StoreUnavailable(t *testing.T) {
	buffer, mr := setupBufferTest(t)
	ctx := context.Background()

	require.NoError(t, buffer.Ping(ctx))
	mr.Close()

	err := buffer.IncrementReadCount(ctx, 42, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreUnavailable))

	_, err = buffer.GetTodayStats(ctx, 42)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = buffer.ScanDate(ctx, buffer.Today())
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	assert.ErrorIs(t, buffer.Ping(ctx), ErrStoreUnavailable)
}
