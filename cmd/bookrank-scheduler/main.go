package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platinummonkey/bookrank/pkg/config"
	"github.com/platinummonkey/bookrank/pkg/flush"
	"github.com/platinummonkey/bookrank/pkg/observability"
	"github.com/platinummonkey/bookrank/pkg/period"
	"github.com/platinummonkey/bookrank/pkg/ranking"
	"github.com/platinummonkey/bookrank/pkg/scheduler"
	"github.com/platinummonkey/bookrank/pkg/stats"
	"github.com/platinummonkey/bookrank/pkg/storage/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var (
	flushSchedule   = flag.String("flush-schedule", "", "Cron schedule for the counter flush (default from BOOKRANK_FLUSH_SCHEDULE, 01:00)")
	rankingSchedule = flag.String("ranking-schedule", "", "Cron schedule for ranking generation (default from BOOKRANK_RANKING_SCHEDULE, 02:00)")
	runOnce         = flag.Bool("run-once", false, "Run one job and exit (for retries and backfills)")
	job             = flag.String("job", "flush", "Job to run with --run-once: flush, rankings or backfill")
	jobDate         = flag.String("date", "", "YYYY-MM-DD. flush: day to flush (default yesterday). rankings: run as of this day (default today). backfill: period end (default yesterday)")
	rankType        = flag.String("rank-type", "daily", "Rank type for --job backfill: daily, weekly, monthly or peak")
	statType        = flag.String("stat-type", string(ranking.StatReadCount), "Stat type for --job backfill")
	metricsAddr     = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (disabled when empty)")
)

func main() {
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if *flushSchedule != "" {
		cfg.Flush.Schedule = *flushSchedule
	}
	if *rankingSchedule != "" {
		cfg.Ranking.Schedule = *rankingSchedule
	}
	if lvl, err := logrus.ParseLevel(cfg.Observability.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	// storage and tracing log through the request-path logger
	obsLogger := observability.NewLogger(cfg.LogLevel(), os.Stdout)
	ctx := context.Background()

	providers, err := observability.InitOTel(ctx, cfg.OTel(), obsLogger)
	if err != nil {
		log.WithError(err).Warn("OpenTelemetry disabled")
	}
	defer observability.ShutdownOTel(context.Background(), providers, obsLogger)

	var metrics *observability.Metrics
	if *metricsAddr != "" {
		registry := prometheus.NewRegistry()
		metrics = observability.NewMetrics(registry)
		go serveMetrics(log, *metricsAddr, registry)
	}

	backend, err := postgres.Open(ctx, cfg.Storage, obsLogger, metrics)
	if err != nil {
		log.WithError(err).Fatal("failed to open storage")
	}
	defer backend.Close()

	buffer := stats.NewBuffer(backend.Redis().Client(), stats.Options{
		TTL:       cfg.Stats.TTL,
		Location:  cfg.Location(),
		ScanCount: cfg.Stats.ScanCount,
		Logger:    obsLogger,
		Metrics:   metrics,
	})
	flusher := flush.NewFlusher(buffer, backend.Stats(), flush.Options{
		Workers:           cfg.Flush.Workers,
		CumulativeTimeout: cfg.Flush.CumulativeTimeout,
		Logger:            log,
		Metrics:           metrics,
	})
	calc := ranking.NewCalculator(backend.Stats(), backend.Rankings(), ranking.NewPeakScorer(&cfg.Ranking.PeakWeights), log)
	generator := ranking.NewGenerator(calc, cfg.Ranking.Limit, log, metrics)

	sched, err := scheduler.New(scheduler.Config{
		FlushSchedule:   cfg.Flush.Schedule,
		RankingSchedule: cfg.Ranking.Schedule,
		Location:        cfg.Location(),
		JobTimeout:      cfg.Ranking.JobTimeout,
	}, flusher, generator, log)
	if err != nil {
		log.WithError(err).Fatal("failed to create scheduler")
	}

	if *runOnce {
		jobCtx, cancel := context.WithTimeout(ctx, cfg.Ranking.JobTimeout)
		err := runJob(jobCtx, log, sched, flusher, generator)
		cancel()
		if err != nil {
			log.WithError(err).WithField("job", *job).Error("job failed")
			backend.Close()
			observability.ShutdownOTel(context.Background(), providers, obsLogger)
			os.Exit(1)
		}
		return
	}

	sched.Start()
	log.WithFields(logrus.Fields{
		"flush_schedule":   cfg.Flush.Schedule,
		"ranking_schedule": cfg.Ranking.Schedule,
		"timezone":         cfg.Stats.Timezone,
	}).Info("bookrank scheduler started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info("shutting down gracefully")

	stopped := sched.Stop()
	<-stopped.Done()
	log.Info("scheduler stopped")
}

func runJob(ctx context.Context, log *logrus.Logger, sched *scheduler.Scheduler, flusher *flush.Flusher, generator *ranking.Generator) error {
	date, err := parseDate(*jobDate)
	if err != nil {
		return err
	}

	switch *job {
	case "flush":
		if date == nil {
			res, err := sched.RunFlush(ctx)
			printResult(log, res)
			return err
		}
		res, err := flusher.Run(ctx, *date)
		printResult(log, res)
		return err

	case "rankings":
		today := sched.Today()
		if date != nil {
			today = *date
		}
		report := generator.Run(ctx, today)
		printResult(log, report)
		return report.Err()

	case "backfill":
		rt, err := ranking.ParseRankType(*rankType)
		if err != nil {
			return err
		}
		end := sched.Today().AddDate(0, 0, -1)
		if date != nil {
			end = *date
		}
		res, err := generator.Backfill(ctx, rt, ranking.StatType(*statType), end)
		printResult(log, res)
		return err

	default:
		return fmt.Errorf("unknown job %q: want flush, rankings or backfill", *job)
	}
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := period.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid --date %q: %w", s, err)
	}
	return &d, nil
}

func printResult(log *logrus.Logger, v interface{}) {
	if v == nil {
		return
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.WithError(err).Warn("failed to encode result")
		return
	}
	fmt.Println(string(out))
}

func serveMetrics(log *logrus.Logger, addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler(registry))
	log.WithField("addr", addr).Info("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Error("metrics server failed")
	}
}
