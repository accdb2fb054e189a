package ranking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/platinummonkey/bookrank/pkg/period"
	"github.com/platinummonkey/bookrank/pkg/storage"
	"github.com/sirupsen/logrus"
)

// DefaultLimit is used when a caller passes limit <= 0
const DefaultLimit = 100

// Calculator computes leaderboards from durable stats and persists them
type Calculator struct {
	stats    storage.StatsStore
	rankings storage.RankingStore
	scorer   PeakScorer
	log      *logrus.Logger
}

// NewCalculator creates a calculator; a nil scorer means ViewCountScorer
func NewCalculator(stats storage.StatsStore, rankings storage.RankingStore, scorer PeakScorer, logger *logrus.Logger) *Calculator {
	if scorer == nil {
		scorer = ViewCountScorer{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Calculator{stats: stats, rankings: rankings, scorer: scorer, log: logger}
}

// ComputeRanking sums a counter per book over [start, end] and ranks books with a positive sum
func (c *Calculator) ComputeRanking(ctx context.Context, statType StatType, start, end time.Time, limit int) ([]Item, error) {
	if !statType.IsCounter() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatType, statType)
	}

	totals, err := c.stats.SumByBook(ctx, statType.Counter(), start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrCompute, statType, period.Range{Start: start, End: end}, err)
	}

	scored := make([]Item, 0, len(totals))
	for _, t := range totals {
		if t.Total > 0 {
			scored = append(scored, Item{BookID: t.BookID, Score: t.Total})
		}
	}
	return rank(scored, limit), nil
}

// ComputePeakRanking scores every book's cumulative totals with the configured PeakScorer.
// A non-nil channel restricts the candidates to that category channel.
func (c *Calculator) ComputePeakRanking(ctx context.Context, channel *int, limit int) ([]Item, error) {
	cumulative, err := c.stats.ListCumulative(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("%w: peak %s: %w", ErrCompute, PeakStatTypeForChannel(channel), err)
	}

	scored := make([]Item, 0, len(cumulative))
	for _, stats := range cumulative {
		if score := c.scorer.Score(stats); score > 0 {
			scored = append(scored, Item{BookID: stats.BookID, Score: score})
		}
	}
	return rank(scored, limit), nil
}

// PersistRanking replaces the stored leaderboard for (rankType, statType, start, end) with items
func (c *Calculator) PersistRanking(ctx context.Context, rankType RankType, statType StatType, start, end time.Time, items []Item) error {
	p := storage.RankingPeriod{
		RankType: string(rankType),
		StatType: string(statType),
		Start:    start,
		End:      end,
	}

	if len(items) == 0 {
		c.log.WithFields(logrus.Fields{
			"rank_type": rankType,
			"stat_type": statType,
			"period":    period.Range{Start: start, End: end}.String(),
		}).Warn("no scored books; clearing stored ranking for period")
	}

	entries := make([]storage.RankingEntry, len(items))
	for i, item := range items {
		entries[i] = storage.RankingEntry{
			RankType:     p.RankType,
			StatType:     p.StatType,
			PeriodStart:  start,
			PeriodEnd:    end,
			BookID:       item.BookID,
			RankPosition: item.Rank,
			Score:        item.Score,
		}
	}

	if err := c.rankings.ReplaceRanking(ctx, p, entries); err != nil {
		return fmt.Errorf("%w: %s/%s: %w", ErrPersist, rankType, statType, err)
	}
	return nil
}

// rank orders by score descending then book id ascending, assigns 1..N and truncates
func rank(items []Item, limit int) []Item {
	if limit <= 0 {
		limit = DefaultLimit
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].BookID < items[j].BookID
	})

	if len(items) > limit {
		items = items[:limit]
	}
	for i := range items {
		items[i].Rank = i + 1
	}
	return items
}
