package storage

import (
	"context"
	"time"
)

// Counter names a per-day engagement counter. Values double as the
// book_daily_stats column names and as the ranking stat type identifiers.
type Counter string

const (
	CounterReadCount       Counter = "read_count"
	CounterRecommendVotes  Counter = "recommend_votes"
	CounterMonthlyTickets  Counter = "monthly_tickets"
	CounterCollectionCount Counter = "collection_count"
)

// Counters lists every counter in a stable order
var Counters = []Counter{
	CounterReadCount,
	CounterRecommendVotes,
	CounterMonthlyTickets,
	CounterCollectionCount,
}

// Valid reports whether c is a known counter
func (c Counter) Valid() bool {
	switch c {
	case CounterReadCount, CounterRecommendVotes, CounterMonthlyTickets, CounterCollectionCount:
		return true
	}
	return false
}

// DailyStats is one book's counters for one calendar day
type DailyStats struct {
	BookID          int64
	StatDate        time.Time
	ReadCount       int64
	RecommendVotes  int64
	MonthlyTickets  int64
	CollectionCount int64
}

// CumulativeStats is a book's all-time running totals
type CumulativeStats struct {
	BookID             int64
	ViewCount          int64
	RecommendCount     int64
	MonthlyTicketCount int64
	CollectionCount    int64
	LastUpdated        time.Time
}

// BookTotal is a book's summed counter over a date range
type BookTotal struct {
	BookID int64
	Total  int64
}

// RankingEntry is one persisted leaderboard position
type RankingEntry struct {
	RankType     string
	StatType     string
	PeriodStart  time.Time
	PeriodEnd    time.Time
	BookID       int64
	RankPosition int
	Score        int64
	CreatedAt    time.Time
}

// RankingPeriod identifies one leaderboard: its kind, metric and calendar window
type RankingPeriod struct {
	RankType string
	StatType string
	Start    time.Time
	End      time.Time
}

// BookDisplay is the read-only catalog view of a book used to decorate rankings
type BookDisplay struct {
	BookID             int64
	Title              string
	Description        string
	AuthorName         string
	CategoryName       string
	ParentCategoryName string
	CoverImageURL      string
	Status             int
	WordCount          int64
	LatestChapterTitle string
	LatestChapterNum   int
	UpdatedAt          time.Time
}

// StatsStore persists flushed counters
type StatsStore interface {
	// UpsertDailyStats writes rows atomically; existing (book, date) rows are overwritten
	UpsertDailyStats(ctx context.Context, rows []DailyStats) error

	// AddCumulativeStats adds one day's deltas to the book's running totals
	AddCumulativeStats(ctx context.Context, row DailyStats) error

	// SumByBook totals one counter per book over [start, end]
	SumByBook(ctx context.Context, counter Counter, start, end time.Time) ([]BookTotal, error)

	// ListCumulative loads running totals, optionally restricted to a category channel
	ListCumulative(ctx context.Context, channel *int) ([]CumulativeStats, error)
}

// RankingStore persists and reads leaderboards
type RankingStore interface {
	// ReplaceRanking deletes the period and inserts entries in one transaction
	ReplaceRanking(ctx context.Context, period RankingPeriod, entries []RankingEntry) error

	// ListEntries returns up to limit entries of a period ordered by rank
	ListEntries(ctx context.Context, period RankingPeriod, limit int) ([]RankingEntry, error)

	// LatestPeriod returns the most recent stored period for a rank and stat type.
	// ok is false when nothing has been stored yet.
	LatestPeriod(ctx context.Context, rankType, statType string) (period RankingPeriod, ok bool, err error)
}

// Catalog reads book display data owned by the catalog system
type Catalog interface {
	BookDisplays(ctx context.Context, bookIDs []int64) (map[int64]BookDisplay, error)
}

// Config for the PostgreSQL and Redis backends
type Config struct {
	// PostgreSQL config
	PostgresURL         string        `yaml:"postgres_url"`
	PostgresReplicaURLs []string      `yaml:"postgres_replica_urls"`
	PostgresMaxConns    int           `yaml:"postgres_max_conns"`
	PostgresMinConns    int           `yaml:"postgres_min_conns"`
	PostgresTimeout     time.Duration `yaml:"postgres_timeout"`

	// Redis config
	RedisURL        string `yaml:"redis_url"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	RedisMaxRetries int    `yaml:"redis_max_retries"`
	RedisPoolSize   int    `yaml:"redis_pool_size"`

	// CacheEnabled puts the Redis ranking read cache in front of book_rankings
	CacheEnabled bool `yaml:"cache_enabled"`
	// CacheEntriesTTL bounds how long a cached leaderboard page is served
	CacheEntriesTTL time.Duration `yaml:"cache_entries_ttl"`
	// CacheLatestTTL bounds how long the latest-period pointer is served
	CacheLatestTTL time.Duration `yaml:"cache_latest_ttl"`

	// UpsertBatchSize bounds rows per bulk upsert statement
	UpsertBatchSize int `yaml:"upsert_batch_size"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		PostgresURL:      "postgres://localhost:5432/bookrank?sslmode=disable",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		RedisURL:         "redis://localhost:6379/0",
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		CacheEnabled:     true,
		CacheEntriesTTL:  10 * time.Minute,
		CacheLatestTTL:   5 * time.Minute,
		UpsertBatchSize:  500,
	}
}
