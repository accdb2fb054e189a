package ranking

import (
	"context"
	"errors"
	"testing"

	"github.com/platinummonkey/bookrank/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weekOfReads() *fakeStatsStore {
	return &fakeStatsStore{
		daily: []storage.DailyStats{
			{BookID: 1, StatDate: day("2024-05-27"), ReadCount: 10},
			{BookID: 1, StatDate: day("2024-06-02"), ReadCount: 5},
			{BookID: 2, StatDate: day("2024-05-30"), ReadCount: 15},
			{BookID: 3, StatDate: day("2024-05-31"), ReadCount: 40},
			{BookID: 4, StatDate: day("2024-05-31"), ReadCount: 0, RecommendVotes: 3},
			{BookID: 5, StatDate: day("2024-06-01"), CollectionCount: -2},
			// outside the window
			{BookID: 6, StatDate: day("2024-06-03"), ReadCount: 999},
		},
	}
}

func TestCalculator_ComputeRanking_OrderAndTieBreak(t *testing.T) {
	calc := NewCalculator(weekOfReads(), newMemRankingStore(), nil, quietLogger())

	items, err := calc.ComputeRanking(context.Background(), StatReadCount, day("2024-05-27"), day("2024-06-02"), 10)
	require.NoError(t, err)

	// books 1 and 2 tie on 15; lower id first
	assert.Equal(t, []Item{
		{Rank: 1, BookID: 3, Score: 40},
		{Rank: 2, BookID: 1, Score: 15},
		{Rank: 3, BookID: 2, Score: 15},
	}, items)
}

func TestCalculator_ComputeRanking_OnlyPositiveScores(t *testing.T) {
	calc := NewCalculator(weekOfReads(), newMemRankingStore(), nil, quietLogger())

	items, err := calc.ComputeRanking(context.Background(), StatCollectionCount, day("2024-05-27"), day("2024-06-02"), 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCalculator_ComputeRanking_Limit(t *testing.T) {
	calc := NewCalculator(weekOfReads(), newMemRankingStore(), nil, quietLogger())

	items, err := calc.ComputeRanking(context.Background(), StatReadCount, day("2024-05-27"), day("2024-06-02"), 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 2, items[1].Rank)
}

func TestCalculator_ComputeRanking_DefaultLimit(t *testing.T) {
	store := &fakeStatsStore{}
	for i := int64(1); i <= 150; i++ {
		store.daily = append(store.daily, storage.DailyStats{BookID: i, StatDate: day("2024-06-01"), ReadCount: i})
	}
	calc := NewCalculator(store, newMemRankingStore(), nil, quietLogger())

	items, err := calc.ComputeRanking(context.Background(), StatReadCount, day("2024-06-01"), day("2024-06-01"), 0)
	require.NoError(t, err)
	require.Len(t, items, DefaultLimit)

	for i, item := range items {
		assert.Equal(t, i+1, item.Rank, "ranks are contiguous")
		if i > 0 {
			assert.GreaterOrEqual(t, items[i-1].Score, item.Score)
		}
	}
	assert.Equal(t, int64(150), items[0].BookID)
}

func TestCalculator_ComputeRanking_Errors(t *testing.T) {
	store := &fakeStatsStore{sumErr: map[storage.Counter]error{storage.CounterReadCount: errors.New("timeout")}}
	calc := NewCalculator(store, newMemRankingStore(), nil, quietLogger())

	_, err := calc.ComputeRanking(context.Background(), StatReadCount, day("2024-06-01"), day("2024-06-01"), 10)
	assert.ErrorIs(t, err, ErrCompute)

	_, err = calc.ComputeRanking(context.Background(), PeakAll, day("2024-06-01"), day("2024-06-01"), 10)
	assert.ErrorIs(t, err, ErrInvalidStatType)
}

func peakStore() *fakeStatsStore {
	return &fakeStatsStore{
		cumulative: []storage.CumulativeStats{
			{BookID: 1, ViewCount: 100, RecommendCount: 1},
			{BookID: 2, ViewCount: 50, RecommendCount: 30},
			{BookID: 3, ViewCount: 80},
			{BookID: 4, ViewCount: 0},
		},
		channels: map[int64]int{1: ChannelMale, 2: ChannelFemale, 3: ChannelMale, 4: ChannelFemale},
	}
}

func TestCalculator_ComputePeakRanking(t *testing.T) {
	calc := NewCalculator(peakStore(), newMemRankingStore(), nil, quietLogger())
	ctx := context.Background()

	all, err := calc.ComputePeakRanking(ctx, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []Item{
		{Rank: 1, BookID: 1, Score: 100},
		{Rank: 2, BookID: 3, Score: 80},
		{Rank: 3, BookID: 2, Score: 50},
	}, all)

	female, err := calc.ComputePeakRanking(ctx, PeakFemale.Channel(), 10)
	require.NoError(t, err)
	assert.Equal(t, []Item{{Rank: 1, BookID: 2, Score: 50}}, female)
}

func TestCalculator_ComputePeakRanking_WeightedScorer(t *testing.T) {
	scorer := WeightedScorer{Weights: Weights{View: 1, Recommend: 10}}
	calc := NewCalculator(peakStore(), newMemRankingStore(), scorer, quietLogger())

	items, err := calc.ComputePeakRanking(context.Background(), nil, 10)
	require.NoError(t, err)
	require.NotEmpty(t, items)
	assert.Equal(t, int64(2), items[0].BookID)
	assert.Equal(t, int64(350), items[0].Score)
}

func TestCalculator_ComputePeakRanking_Error(t *testing.T) {
	calc := NewCalculator(&fakeStatsStore{listErr: errors.New("boom")}, newMemRankingStore(), nil, quietLogger())

	_, err := calc.ComputePeakRanking(context.Background(), nil, 10)
	assert.ErrorIs(t, err, ErrCompute)
}

func TestCalculator_PersistRanking_ReplacesPeriod(t *testing.T) {
	store := newMemRankingStore()
	calc := NewCalculator(&fakeStatsStore{}, store, nil, quietLogger())
	ctx := context.Background()
	d := day("2024-06-01")

	require.NoError(t, calc.PersistRanking(ctx, RankDaily, StatReadCount, d, d, []Item{
		{Rank: 1, BookID: 7, Score: 9},
		{Rank: 2, BookID: 8, Score: 3},
	}))
	require.NoError(t, calc.PersistRanking(ctx, RankDaily, StatReadCount, d, d, []Item{
		{Rank: 1, BookID: 8, Score: 12},
	}))

	p := storage.RankingPeriod{RankType: "daily", StatType: "read_count", Start: d, End: d}
	entries, err := store.ListEntries(ctx, p, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(8), entries[0].BookID)
	assert.Equal(t, 1, entries[0].RankPosition)
	assert.Equal(t, d, entries[0].PeriodStart)

	// empty still replaces
	require.NoError(t, calc.PersistRanking(ctx, RankDaily, StatReadCount, d, d, nil))
	entries, err = store.ListEntries(ctx, p, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCalculator_PersistRanking_Error(t *testing.T) {
	store := newMemRankingStore()
	store.replaceErr = errors.New("serialization failure")
	calc := NewCalculator(&fakeStatsStore{}, store, nil, quietLogger())

	err := calc.PersistRanking(context.Background(), RankWeekly, StatReadCount, day("2024-05-27"), day("2024-06-02"), nil)
	assert.ErrorIs(t, err, ErrPersist)
}
