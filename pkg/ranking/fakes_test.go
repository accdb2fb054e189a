package ranking

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/bookrank/pkg/period"
	"github.com/platinummonkey/bookrank/pkg/storage"
	"github.com/sirupsen/logrus"
)

func day(s string) time.Time {
	d, err := period.Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakeStatsStore serves SumByBook and ListCumulative from memory
type fakeStatsStore struct {
	daily      []storage.DailyStats
	cumulative []storage.CumulativeStats
	channels   map[int64]int
	sumErr     map[storage.Counter]error
	listErr    error
}

func (f *fakeStatsStore) UpsertDailyStats(context.Context, []storage.DailyStats) error { return nil }

func (f *fakeStatsStore) AddCumulativeStats(context.Context, storage.DailyStats) error { return nil }

func (f *fakeStatsStore) SumByBook(_ context.Context, counter storage.Counter, start, end time.Time) ([]storage.BookTotal, error) {
	if err := f.sumErr[counter]; err != nil {
		return nil, err
	}
	sums := map[int64]int64{}
	for _, d := range f.daily {
		if d.StatDate.Before(start) || d.StatDate.After(end) {
			continue
		}
		var v int64
		switch counter {
		case storage.CounterReadCount:
			v = d.ReadCount
		case storage.CounterRecommendVotes:
			v = d.RecommendVotes
		case storage.CounterMonthlyTickets:
			v = d.MonthlyTickets
		case storage.CounterCollectionCount:
			v = d.CollectionCount
		}
		sums[d.BookID] += v
	}
	var out []storage.BookTotal
	for id, total := range sums {
		out = append(out, storage.BookTotal{BookID: id, Total: total})
	}
	return out, nil
}

func (f *fakeStatsStore) ListCumulative(_ context.Context, channel *int) ([]storage.CumulativeStats, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []storage.CumulativeStats
	for _, c := range f.cumulative {
		if channel != nil && f.channels[c.BookID] != *channel {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// memRankingStore keeps leaderboards in memory
type memRankingStore struct {
	mu         sync.Mutex
	periods    map[string][]storage.RankingEntry
	replaced   []storage.RankingPeriod
	replaceErr error
	listErr    error
}

func newMemRankingStore() *memRankingStore {
	return &memRankingStore{periods: make(map[string][]storage.RankingEntry)}
}

func periodKey(p storage.RankingPeriod) string {
	return fmt.Sprintf("%s/%s/%s/%s", p.RankType, p.StatType, period.Format(p.Start), period.Format(p.End))
}

func (m *memRankingStore) ReplaceRanking(_ context.Context, p storage.RankingPeriod, entries []storage.RankingEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.periods[periodKey(p)] = entries
	m.replaced = append(m.replaced, p)
	return nil
}

func (m *memRankingStore) ListEntries(_ context.Context, p storage.RankingPeriod, limit int) ([]storage.RankingEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	entries := append([]storage.RankingEntry{}, m.periods[periodKey(p)]...)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (m *memRankingStore) LatestPeriod(_ context.Context, rankType, statType string) (storage.RankingPeriod, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var candidates []storage.RankingPeriod
	for _, p := range m.replaced {
		if p.RankType == rankType && p.StatType == statType {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return storage.RankingPeriod{}, false, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].End.After(candidates[j].End) })
	return candidates[0], true, nil
}

// fakeCatalog counts lookups
type fakeCatalog struct {
	mu      sync.Mutex
	books   map[int64]storage.BookDisplay
	calls   int
	lookups []int64
	err     error
}

func (f *fakeCatalog) BookDisplays(_ context.Context, ids []int64) (map[int64]storage.BookDisplay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lookups = append(f.lookups, ids...)
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[int64]storage.BookDisplay)
	for _, id := range ids {
		if d, ok := f.books[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}
