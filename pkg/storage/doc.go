// Package storage defines the persistence contracts for bookrank.
//
// # Overview
//
// Buffered counters live in Redis (see pkg/stats); everything durable lives in
// PostgreSQL. This package holds the row types shared by the flush job, the
// ranking engine and the query service, and the interfaces they depend on.
// Implementations are in pkg/storage/postgres.
//
// # Tables
//
//   - book_daily_stats: one row per (book_id, stat_date); overwritten by each flush
//   - book_stats: one row per book with running totals; incremented by each flush
//   - book_rankings: leaderboard positions keyed by rank type, stat type and period
//
// Catalog tables (books, authors, categories, chapters) belong to the catalog
// system and are only read through Catalog.
//
// # Interfaces
//
//   - StatsStore: UpsertDailyStats, AddCumulativeStats, SumByBook, ListCumulative
//   - RankingStore: ReplaceRanking, ListEntries, LatestPeriod
//   - Catalog: BookDisplays
//
// # Configuration
//
//	config := storage.DefaultConfig()
//	config.PostgresURL = "postgres://localhost/bookrank"
//	config.RedisURL = "redis://localhost:6379/0"
//
// # Related Packages
//
//   - pkg/storage/postgres: PostgreSQL and Redis implementations
//   - pkg/flush: writes StatsStore
//   - pkg/ranking: reads StatsStore and Catalog, writes RankingStore
package storage
