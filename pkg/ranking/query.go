package ranking

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/bookrank/pkg/observability"
	"github.com/platinummonkey/bookrank/pkg/period"
	"github.com/platinummonkey/bookrank/pkg/storage"
)

// QueryOptions configures a QueryService
type QueryOptions struct {
	Location *time.Location
	Now      func() time.Time
	Metrics  *observability.Metrics
}

// QueryService serves stored leaderboards. It never writes ranking state.
type QueryService struct {
	rankings storage.RankingStore
	enricher *Enricher
	loc      *time.Location
	now      func() time.Time
	metrics  *observability.Metrics
}

// NewQueryService creates a query service; a nil enricher returns undecorated items
func NewQueryService(rankings storage.RankingStore, enricher *Enricher, opts QueryOptions) *QueryService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &QueryService{
		rankings: rankings,
		enricher: enricher,
		loc:      opts.Location,
		now:      opts.Now,
		metrics:  opts.Metrics,
	}
}

// GetDailyRanking returns the daily leaderboard for date, or yesterday when date is nil
func (q *QueryService) GetDailyRanking(ctx context.Context, statType string, date *time.Time, limit int) (*Response, error) {
	return q.GetRanking(ctx, string(RankDaily), statType, date, limit)
}

// GetWeeklyRanking returns the seven days ending on date, or the last completed Monday-Sunday week when date is nil
func (q *QueryService) GetWeeklyRanking(ctx context.Context, statType string, date *time.Time, limit int) (*Response, error) {
	return q.GetRanking(ctx, string(RankWeekly), statType, date, limit)
}

// GetMonthlyRanking returns the month to date ending on date, or the last completed month when date is nil
func (q *QueryService) GetMonthlyRanking(ctx context.Context, statType string, date *time.Time, limit int) (*Response, error) {
	return q.GetRanking(ctx, string(RankMonthly), statType, date, limit)
}

// GetPeakRanking returns the most recently stored peak leaderboard for a channel segment
func (q *QueryService) GetPeakRanking(ctx context.Context, statType string, limit int) (*Response, error) {
	return q.GetRanking(ctx, string(RankPeak), statType, nil, limit)
}

// GetRanking resolves the period for rankType and returns its stored entries.
// A leaderboard that has not been generated yet is an empty response, not an error.
func (q *QueryService) GetRanking(ctx context.Context, rankType, statType string, date *time.Time, limit int) (resp *Response, err error) {
	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
		}
		q.metrics.RecordRankingQuery(rankType, status)
	}()

	rt, err := ParseRankType(rankType)
	if err != nil {
		return nil, err
	}
	st, err := ValidateStatType(rt, statType)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	resp = &Response{RankType: rt, StatType: st, Rankings: []Item{}}

	var rng period.Range
	if rt == RankPeak {
		p, ok, err := q.rankings.LatestPeriod(ctx, string(rt), string(st))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve peak period: %w", err)
		}
		if !ok {
			return resp, nil
		}
		rng = period.Range{Start: p.Start, End: p.End}
	} else {
		rng = q.ResolvePeriod(rt, date)
	}
	resp.PeriodStart = period.Format(rng.Start)
	resp.PeriodEnd = period.Format(rng.End)

	entries, err := q.rankings.ListEntries(ctx, storage.RankingPeriod{
		RankType: string(rt),
		StatType: string(st),
		Start:    rng.Start,
		End:      rng.End,
	}, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s/%s ranking: %w", rt, st, err)
	}

	for _, e := range entries {
		resp.Rankings = append(resp.Rankings, Item{Rank: e.RankPosition, BookID: e.BookID, Score: e.Score})
	}
	if q.enricher != nil {
		q.enricher.Enrich(ctx, resp.Rankings)
	}
	return resp, nil
}

// ResolvePeriod maps a windowed rank type and optional date to its period
func (q *QueryService) ResolvePeriod(rankType RankType, date *time.Time) period.Range {
	today := period.Today(q.now(), q.loc)

	if date == nil {
		switch rankType {
		case RankWeekly:
			return period.PreviousWeek(today)
		case RankMonthly:
			return period.PreviousMonth(today)
		default:
			return period.Single(today.AddDate(0, 0, -1))
		}
	}

	d := period.Date(*date, time.UTC)
	switch rankType {
	case RankWeekly:
		return period.WeekEnding(d)
	case RankMonthly:
		return period.MonthToDate(d)
	default:
		return period.Single(d)
	}
}
