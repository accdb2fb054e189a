package flush

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/bookrank/pkg/async"
	"github.com/platinummonkey/bookrank/pkg/observability"
	"github.com/platinummonkey/bookrank/pkg/period"
	"github.com/platinummonkey/bookrank/pkg/stats"
	"github.com/platinummonkey/bookrank/pkg/storage"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// CounterSource is the buffered side of a flush
type CounterSource interface {
	ScanDate(ctx context.Context, date time.Time) (*stats.ScanResult, error)
	DeleteKeys(ctx context.Context, keys []string) (int64, error)
}

// Options configures a Flusher
type Options struct {
	// Workers bounds concurrent cumulative updates (default async.DefaultWorkers)
	Workers int
	// CumulativeTimeout bounds one book's cumulative update (default 10s)
	CumulativeTimeout time.Duration
	Logger            *logrus.Logger
	Metrics           *observability.Metrics
}

// Result summarizes one flush run
type Result struct {
	RunID             string    `json:"run_id"`
	Date              time.Time `json:"date"`
	Scanned           int       `json:"scanned"`
	Skipped           int       `json:"skipped"`
	Persisted         int       `json:"persisted"`
	CumulativeUpdated int       `json:"cumulative_updated"`
	CumulativeFailed  int       `json:"cumulative_failed"`
	Deleted           int       `json:"deleted"`
	// DeleteError is set when persisted keys could not be removed; the run still counts as persisted
	DeleteError string        `json:"delete_error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Flusher moves one day's buffered counters into PostgreSQL and clears them from Redis
type Flusher struct {
	source  CounterSource
	store   storage.StatsStore
	workers int
	timeout time.Duration
	log     *logrus.Logger
	metrics *observability.Metrics
}

// NewFlusher creates a flusher
func NewFlusher(source CounterSource, store storage.StatsStore, opts Options) *Flusher {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Workers <= 0 {
		opts.Workers = async.DefaultWorkers
	}
	if opts.CumulativeTimeout <= 0 {
		opts.CumulativeTimeout = 10 * time.Second
	}
	return &Flusher{
		source:  source,
		store:   store,
		workers: opts.Workers,
		timeout: opts.CumulativeTimeout,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
}

// Run flushes the counters buffered for date.
//
// Keys are deleted only after the daily upsert commits. Cumulative totals are updated
// per book after that commit; a book whose cumulative update fails keeps its daily row
// and its key is still deleted. Running twice for the same date is safe: the second run
// finds no keys, or overwrites the same daily values if deletion failed the first time.
func (f *Flusher) Run(ctx context.Context, date time.Time) (result *Result, err error) {
	started := time.Now()
	result = &Result{RunID: uuid.NewString(), Date: date}

	ctx = observability.WithRunID(ctx, result.RunID)
	ctx, span := observability.StartSpan(ctx, "flush.Run",
		attribute.String("flush.date", period.Format(date)),
		attribute.String("flush.run_id", result.RunID),
	)

	log := f.log.WithFields(logrus.Fields{
		"job":    "flush",
		"run_id": result.RunID,
		"date":   period.Format(date),
	})

	defer func() {
		result.Duration = time.Since(started)
		status := "success"
		if err != nil {
			status = "failure"
		}
		f.metrics.RecordFlush(status, result.Duration, result.Persisted, result.Skipped, result.CumulativeFailed, result.Deleted)
		span.SetAttributes(
			attribute.Int("flush.persisted", result.Persisted),
			attribute.Int("flush.deleted", result.Deleted),
		)
		observability.EndSpan(span, err)
	}()

	scan, err := f.source.ScanDate(ctx, date)
	if err != nil {
		log.WithError(err).Error("failed to scan buffered counters")
		return result, fmt.Errorf("%w: %w", ErrScan, err)
	}

	result.Scanned = len(scan.Snapshots) + len(scan.Malformed) + scan.Empty
	result.Skipped = len(scan.Malformed) + scan.Empty
	for _, key := range scan.Malformed {
		log.WithField("key", key).Warn("skipping malformed counter key")
	}

	if len(scan.Snapshots) == 0 {
		log.Info("nothing to flush")
		return result, nil
	}

	rows := make([]storage.DailyStats, len(scan.Snapshots))
	keys := make([]string, len(scan.Snapshots))
	for i, snap := range scan.Snapshots {
		rows[i] = storage.DailyStats{
			BookID:          snap.BookID,
			StatDate:        snap.Date,
			ReadCount:       snap.Counters.ReadCount,
			RecommendVotes:  snap.Counters.RecommendVotes,
			MonthlyTickets:  snap.Counters.MonthlyTickets,
			CollectionCount: snap.Counters.CollectionCount,
		}
		keys[i] = snap.Key
	}

	if err := f.store.UpsertDailyStats(ctx, rows); err != nil {
		log.WithError(err).WithField("rows", len(rows)).Error("failed to persist daily stats, keeping counter keys")
		return result, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	result.Persisted = len(rows)

	errs := async.Batch(ctx, rows, f.workers, f.timeout, func(ctx context.Context, row storage.DailyStats) error {
		return f.store.AddCumulativeStats(ctx, row)
	})
	for i, cerr := range errs {
		if cerr != nil {
			log.WithError(cerr).WithField("book_id", rows[i].BookID).Error("failed to update cumulative stats")
		}
	}
	result.CumulativeFailed = async.Failures(errs)
	result.CumulativeUpdated = len(rows) - result.CumulativeFailed

	deleted, derr := f.source.DeleteKeys(ctx, keys)
	result.Deleted = int(deleted)
	if derr != nil {
		result.DeleteError = derr.Error()
		log.WithError(derr).WithField("keys", len(keys)).Error("failed to delete flushed counter keys; a rerun will overwrite the daily rows")
	}

	log.WithFields(logrus.Fields{
		"scanned":            result.Scanned,
		"skipped":            result.Skipped,
		"persisted":          result.Persisted,
		"cumulative_updated": result.CumulativeUpdated,
		"cumulative_failed":  result.CumulativeFailed,
		"deleted":            result.Deleted,
	}).Info("flush completed")

	return result, nil
}
