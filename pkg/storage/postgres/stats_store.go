package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/platinummonkey/bookrank/pkg/period"
	"github.com/platinummonkey/bookrank/pkg/storage"
)

const defaultUpsertBatchSize = 500

// StatsStore persists flushed counters in book_daily_stats and book_stats
type StatsStore struct {
	db        *sql.DB
	batchSize int
}

// NewStatsStore creates a stats store; batchSize <= 0 uses the default
func NewStatsStore(db *sql.DB, batchSize int) *StatsStore {
	if batchSize <= 0 {
		batchSize = defaultUpsertBatchSize
	}
	return &StatsStore{db: db, batchSize: batchSize}
}

const upsertDailyStatsSQL = `
	INSERT INTO book_daily_stats (
		book_id, stat_date, read_count, recommend_votes, monthly_tickets, collection_count,
		created_time, updated_time
	)
	SELECT t.book_id, t.stat_date, t.read_count, t.recommend_votes, t.monthly_tickets, t.collection_count,
		NOW(), NOW()
	FROM unnest($1::bigint[], $2::date[], $3::bigint[], $4::bigint[], $5::bigint[], $6::bigint[])
		AS t(book_id, stat_date, read_count, recommend_votes, monthly_tickets, collection_count)
	ON CONFLICT (book_id, stat_date) DO UPDATE SET
		read_count = EXCLUDED.read_count,
		recommend_votes = EXCLUDED.recommend_votes,
		monthly_tickets = EXCLUDED.monthly_tickets,
		collection_count = EXCLUDED.collection_count,
		updated_time = NOW()
`

// UpsertDailyStats writes every row in one transaction, chunked into bulk statements.
// Counters overwrite existing values for the same (book, date), so replaying a
// flush converges on the same state instead of double counting.
func (s *StatsStore) UpsertDailyStats(ctx context.Context, rows []storage.DailyStats) error {
	rows = dedupeDaily(rows)
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for start := 0; start < len(rows); start += s.batchSize {
		end := start + s.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		bookIDs := make([]int64, len(chunk))
		dates := make([]string, len(chunk))
		reads := make([]int64, len(chunk))
		votes := make([]int64, len(chunk))
		tickets := make([]int64, len(chunk))
		collections := make([]int64, len(chunk))
		for i, r := range chunk {
			bookIDs[i] = r.BookID
			dates[i] = period.Format(r.StatDate)
			reads[i] = r.ReadCount
			votes[i] = r.RecommendVotes
			tickets[i] = r.MonthlyTickets
			collections[i] = r.CollectionCount
		}

		if _, err := tx.ExecContext(ctx, upsertDailyStatsSQL,
			pq.Array(bookIDs), pq.Array(dates), pq.Array(reads),
			pq.Array(votes), pq.Array(tickets), pq.Array(collections),
		); err != nil {
			return fmt.Errorf("failed to upsert daily stats rows %d-%d: %w", start, end, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit daily stats: %w", err)
	}
	return nil
}

// dedupeDaily keeps the last row per (book, date); a single INSERT ... ON CONFLICT
// cannot touch the same row twice
func dedupeDaily(rows []storage.DailyStats) []storage.DailyStats {
	type key struct {
		bookID int64
		date   string
	}
	index := make(map[key]int, len(rows))
	out := make([]storage.DailyStats, 0, len(rows))
	for _, r := range rows {
		k := key{r.BookID, period.Format(r.StatDate)}
		if i, ok := index[k]; ok {
			out[i] = r
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}

// AddCumulativeStats adds one day's deltas to the book's running totals, creating the row if needed
func (s *StatsStore) AddCumulativeStats(ctx context.Context, row storage.DailyStats) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO book_stats (book_id, view_count, recommend_count, monthly_ticket_count, collection_count, last_updated_time)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (book_id) DO UPDATE SET
			view_count = book_stats.view_count + EXCLUDED.view_count,
			recommend_count = book_stats.recommend_count + EXCLUDED.recommend_count,
			monthly_ticket_count = book_stats.monthly_ticket_count + EXCLUDED.monthly_ticket_count,
			collection_count = book_stats.collection_count + EXCLUDED.collection_count,
			last_updated_time = NOW()
	`, row.BookID, row.ReadCount, row.RecommendVotes, row.MonthlyTickets, row.CollectionCount)
	if err != nil {
		return fmt.Errorf("failed to add cumulative stats for book %d: %w", row.BookID, err)
	}
	return nil
}

// SumByBook totals one counter per book over the inclusive date range
func (s *StatsStore) SumByBook(ctx context.Context, counter storage.Counter, start, end time.Time) ([]storage.BookTotal, error) {
	if !counter.Valid() {
		return nil, fmt.Errorf("unknown counter %q", counter)
	}

	// counter is whitelisted above, so interpolating the column name is safe
	query := fmt.Sprintf(`
		SELECT book_id, COALESCE(SUM(%s), 0) AS total
		FROM book_daily_stats
		WHERE stat_date BETWEEN $1 AND $2
		GROUP BY book_id
	`, string(counter))

	rows, err := s.db.QueryContext(ctx, query, period.Format(start), period.Format(end))
	if err != nil {
		return nil, fmt.Errorf("failed to sum %s: %w", counter, err)
	}
	defer rows.Close()

	var totals []storage.BookTotal
	for rows.Next() {
		var t storage.BookTotal
		if err := rows.Scan(&t.BookID, &t.Total); err != nil {
			return nil, fmt.Errorf("failed to scan total: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// ListCumulative loads running totals. A non-nil channel restricts the result to
// books whose category belongs to that channel (1 male, 0 female).
func (s *StatsStore) ListCumulative(ctx context.Context, channel *int) ([]storage.CumulativeStats, error) {
	query := `
		SELECT bs.book_id, bs.view_count, bs.recommend_count, bs.monthly_ticket_count,
			bs.collection_count, bs.last_updated_time
		FROM book_stats bs`
	var args []interface{}
	if channel != nil {
		query += `
		JOIN books b ON b.id = bs.book_id
		JOIN categories c ON c.id = b.category_id
		WHERE c.channel = $1`
		args = append(args, *channel)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cumulative stats: %w", err)
	}
	defer rows.Close()

	var out []storage.CumulativeStats
	for rows.Next() {
		var c storage.CumulativeStats
		var updated sql.NullTime
		if err := rows.Scan(&c.BookID, &c.ViewCount, &c.RecommendCount, &c.MonthlyTicketCount,
			&c.CollectionCount, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan cumulative stats: %w", err)
		}
		c.LastUpdated = updated.Time
		out = append(out, c)
	}
	return out, rows.Err()
}
