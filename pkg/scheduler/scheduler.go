package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/bookrank/pkg/flush"
	"github.com/platinummonkey/bookrank/pkg/period"
	"github.com/platinummonkey/bookrank/pkg/ranking"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultFlushSchedule flushes the previous day at 01:00
	DefaultFlushSchedule = "0 1 * * *"
	// DefaultRankingSchedule regenerates leaderboards at 02:00, after the flush
	DefaultRankingSchedule = "0 2 * * *"
	// DefaultJobTimeout bounds a single scheduled run
	DefaultJobTimeout = 30 * time.Minute
)

// FlushJob persists one day's buffered counters
type FlushJob interface {
	Run(ctx context.Context, date time.Time) (*flush.Result, error)
}

// RankingJob regenerates the leaderboards due on a day
type RankingJob interface {
	Run(ctx context.Context, today time.Time) *ranking.Report
}

// Config configures the cron entries
type Config struct {
	FlushSchedule   string
	RankingSchedule string
	Location        *time.Location
	JobTimeout      time.Duration

	// Now overrides the clock (tests)
	Now func() time.Time
}

// Scheduler triggers the flush and ranking jobs on their own cron entries. The two
// jobs never call each other; each skips a tick while its previous run is still going.
type Scheduler struct {
	cron      *cron.Cron
	flusher   FlushJob
	generator RankingJob
	loc       *time.Location
	timeout   time.Duration
	now       func() time.Time
	log       *logrus.Logger

	flushID   cron.EntryID
	rankingID cron.EntryID
}

// New validates the schedules and registers both jobs; call Start to begin ticking
func New(cfg Config, flusher FlushJob, generator RankingJob, logger *logrus.Logger) (*Scheduler, error) {
	if cfg.FlushSchedule == "" {
		cfg.FlushSchedule = DefaultFlushSchedule
	}
	if cfg.RankingSchedule == "" {
		cfg.RankingSchedule = DefaultRankingSchedule
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = logrus.New()
	}

	cl := cronLogger{entry: logger.WithField("component", "cron")}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		flusher:   flusher,
		generator: generator,
		loc:       cfg.Location,
		timeout:   cfg.JobTimeout,
		now:       cfg.Now,
		log:       logger,
	}

	var err error
	s.flushID, err = s.cron.AddFunc(cfg.FlushSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_, _ = s.RunFlush(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid flush schedule %q: %w", cfg.FlushSchedule, err)
	}

	s.rankingID, err = s.cron.AddFunc(cfg.RankingSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.RunRankings(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid ranking schedule %q: %w", cfg.RankingSchedule, err)
	}

	return s, nil
}

// Start begins ticking in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.WithFields(logrus.Fields{
		"flush_next":   s.cron.Entry(s.flushID).Next,
		"ranking_next": s.cron.Entry(s.rankingID).Next,
		"location":     s.loc.String(),
	}).Info("scheduler started")
}

// Stop stops ticking; the returned context is done once running jobs finish
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Today is the civil date in the scheduler's location
func (s *Scheduler) Today() time.Time {
	return period.Today(s.now(), s.loc)
}

// RunFlush flushes yesterday's counters
func (s *Scheduler) RunFlush(ctx context.Context) (*flush.Result, error) {
	date := s.Today().AddDate(0, 0, -1)
	log := s.log.WithFields(logrus.Fields{"job": "flush", "date": period.Format(date)})

	res, err := s.flusher.Run(ctx, date)
	if err != nil {
		log.WithError(err).Error("scheduled flush failed; keys are kept for the next run")
		return res, err
	}
	if res.DeleteError != "" {
		log.WithField("delete_error", res.DeleteError).Warn("scheduled flush persisted but left keys behind")
	}
	return res, nil
}

// RunRankings regenerates the leaderboards due today
func (s *Scheduler) RunRankings(ctx context.Context) *ranking.Report {
	report := s.generator.Run(ctx, s.Today())
	if err := report.Err(); err != nil {
		s.log.WithError(err).WithField("run_id", report.RunID).Error("scheduled ranking generation had failures")
	}
	return report
}

// cronLogger adapts logrus to cron.Logger
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}
