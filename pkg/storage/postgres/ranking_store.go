package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/platinummonkey/bookrank/pkg/period"
	"github.com/platinummonkey/bookrank/pkg/storage"
)

// RankingStore reads and replaces leaderboards in book_rankings
type RankingStore struct {
	db      *sql.DB
	readers ReadPool
}

// NewRankingStore creates a ranking store. Each read picks a pool from readers
// when set, otherwise reads go to db.
func NewRankingStore(db *sql.DB, readers ReadPool) *RankingStore {
	if readers == nil {
		readers = FixedPool(db)
	}
	return &RankingStore{db: db, readers: readers}
}

// ReplaceRanking swaps the stored entries of one period in a single transaction so
// readers never see a half-written leaderboard
func (s *RankingStore) ReplaceRanking(ctx context.Context, p storage.RankingPeriod, entries []storage.RankingEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	start, end := period.Format(p.Start), period.Format(p.End)

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM book_rankings
		WHERE rank_type = $1 AND stat_type = $2 AND period_start = $3 AND period_end = $4
	`, p.RankType, p.StatType, start, end); err != nil {
		return fmt.Errorf("failed to delete previous ranking: %w", err)
	}

	if len(entries) > 0 {
		bookIDs := make([]int64, len(entries))
		positions := make([]int64, len(entries))
		scores := make([]int64, len(entries))
		for i, e := range entries {
			bookIDs[i] = e.BookID
			positions[i] = int64(e.RankPosition)
			scores[i] = e.Score
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO book_rankings (
				rank_type, stat_type, period_start, period_end, book_id, rank_position, score, created_time
			)
			SELECT $1, $2, $3::date, $4::date, t.book_id, t.rank_position, t.score, NOW()
			FROM unnest($5::bigint[], $6::int[], $7::bigint[]) AS t(book_id, rank_position, score)
		`, p.RankType, p.StatType, start, end,
			pq.Array(bookIDs), pq.Array(positions), pq.Array(scores),
		); err != nil {
			return fmt.Errorf("failed to insert ranking entries: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ranking: %w", err)
	}
	return nil
}

// ListEntries returns up to limit entries of a period ordered by rank position
func (s *RankingStore) ListEntries(ctx context.Context, p storage.RankingPeriod, limit int) ([]storage.RankingEntry, error) {
	rows, err := s.readers.Replica().QueryContext(ctx, `
		SELECT rank_type, stat_type, period_start, period_end, book_id, rank_position, score, created_time
		FROM book_rankings
		WHERE rank_type = $1 AND stat_type = $2 AND period_start = $3 AND period_end = $4
		ORDER BY rank_position ASC
		LIMIT $5
	`, p.RankType, p.StatType, period.Format(p.Start), period.Format(p.End), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ranking: %w", err)
	}
	defer rows.Close()

	entries := []storage.RankingEntry{}
	for rows.Next() {
		var e storage.RankingEntry
		if err := rows.Scan(&e.RankType, &e.StatType, &e.PeriodStart, &e.PeriodEnd,
			&e.BookID, &e.RankPosition, &e.Score, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ranking entry: %w", err)
		}
		e.PeriodStart = period.Date(e.PeriodStart, nil)
		e.PeriodEnd = period.Date(e.PeriodEnd, nil)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LatestPeriod finds the most recently ending stored period for the rank and stat type
func (s *RankingStore) LatestPeriod(ctx context.Context, rankType, statType string) (storage.RankingPeriod, bool, error) {
	p := storage.RankingPeriod{RankType: rankType, StatType: statType}
	err := s.readers.Replica().QueryRowContext(ctx, `
		SELECT period_start, period_end
		FROM book_rankings
		WHERE rank_type = $1 AND stat_type = $2
		ORDER BY period_end DESC, period_start DESC
		LIMIT 1
	`, rankType, statType).Scan(&p.Start, &p.End)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.RankingPeriod{}, false, nil
	}
	if err != nil {
		return storage.RankingPeriod{}, false, fmt.Errorf("failed to find latest %s/%s period: %w", rankType, statType, err)
	}
	p.Start = period.Date(p.Start, nil)
	p.End = period.Date(p.End, nil)
	return p, true, nil
}
