package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/bookrank/pkg/observability"
)

// Migration is one versioned schema change
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the schema owned by the stats and ranking pipeline.
// Catalog tables (books, authors, categories, chapters) belong to the catalog system.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create book_daily_stats table",
			SQL: `
				CREATE TABLE IF NOT EXISTS book_daily_stats (
					id BIGSERIAL PRIMARY KEY,
					book_id BIGINT NOT NULL,
					stat_date DATE NOT NULL,
					read_count BIGINT NOT NULL DEFAULT 0,
					recommend_votes BIGINT NOT NULL DEFAULT 0,
					monthly_tickets BIGINT NOT NULL DEFAULT 0,
					collection_count BIGINT NOT NULL DEFAULT 0,
					created_time TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_time TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(book_id, stat_date)
				);

				CREATE INDEX IF NOT EXISTS idx_book_daily_stats_stat_date ON book_daily_stats(stat_date);
			`,
		},
		{
			Version:     2,
			Description: "Create book_stats table",
			SQL: `
				CREATE TABLE IF NOT EXISTS book_stats (
					book_id BIGINT PRIMARY KEY,
					view_count BIGINT NOT NULL DEFAULT 0,
					recommend_count BIGINT NOT NULL DEFAULT 0,
					monthly_ticket_count BIGINT NOT NULL DEFAULT 0,
					collection_count BIGINT NOT NULL DEFAULT 0,
					last_updated_time TIMESTAMP
				);
			`,
		},
		{
			Version:     3,
			Description: "Create book_rankings table",
			SQL: `
				CREATE TABLE IF NOT EXISTS book_rankings (
					id BIGSERIAL PRIMARY KEY,
					rank_type VARCHAR(16) NOT NULL,
					stat_type VARCHAR(32) NOT NULL,
					period_start DATE NOT NULL,
					period_end DATE NOT NULL,
					book_id BIGINT NOT NULL,
					rank_position INT NOT NULL,
					score BIGINT NOT NULL,
					created_time TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(rank_type, stat_type, period_start, period_end, rank_position)
				);

				CREATE INDEX IF NOT EXISTS idx_book_rankings_lookup
					ON book_rankings(rank_type, stat_type, period_end DESC);
			`,
		},
	}
}

// RunMigrations applies every migration not yet recorded in bookrank_migrations
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS bookrank_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM bookrank_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO bookrank_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("applied migration")
	}

	return nil
}
