package ranking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/bookrank/pkg/observability"
	"github.com/platinummonkey/bookrank/pkg/period"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Unit is one leaderboard to (re)generate
type Unit struct {
	RankType RankType
	StatType StatType
	Period   period.Range
}

func (u Unit) String() string {
	return fmt.Sprintf("%s/%s %s", u.RankType, u.StatType, u.Period)
}

// UnitResult is the outcome of one unit
type UnitResult struct {
	RankType RankType      `json:"rank_type"`
	StatType StatType      `json:"stat_type"`
	Period   string        `json:"period"`
	Days     int           `json:"days"`
	Entries  int           `json:"entries"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report summarizes a generation run
type Report struct {
	RunID  string       `json:"run_id"`
	Today  time.Time    `json:"today"`
	Units  []UnitResult `json:"units"`
	Failed int          `json:"failed"`
}

// Err returns a summary error when any unit failed
func (r *Report) Err() error {
	if r.Failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d ranking units failed", r.Failed, len(r.Units))
}

// Generator decides which leaderboards are due and regenerates them
type Generator struct {
	calc    *Calculator
	limit   int
	log     *logrus.Logger
	metrics *observability.Metrics
}

// NewGenerator creates a generator; limit <= 0 uses DefaultLimit
func NewGenerator(calc *Calculator, limit int, logger *logrus.Logger, metrics *observability.Metrics) *Generator {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Generator{calc: calc, limit: limit, log: logger, metrics: metrics}
}

// Plan lists the units due on today: daily and peak for yesterday always, weekly for
// the week that ended yesterday when today is Monday, monthly for the month that ended
// yesterday when today is the 1st
func Plan(today time.Time) []Unit {
	yesterday := today.AddDate(0, 0, -1)

	var units []Unit
	for _, st := range CounterStatTypes {
		units = append(units, Unit{RankType: RankDaily, StatType: st, Period: period.Single(yesterday)})
	}
	for _, st := range PeakStatTypes {
		units = append(units, Unit{RankType: RankPeak, StatType: st, Period: period.Single(yesterday)})
	}
	if period.IsWeekStart(today) {
		for _, st := range CounterStatTypes {
			units = append(units, Unit{RankType: RankWeekly, StatType: st, Period: period.PreviousWeek(today)})
		}
	}
	if period.IsMonthStart(today) {
		for _, st := range CounterStatTypes {
			units = append(units, Unit{RankType: RankMonthly, StatType: st, Period: period.PreviousMonth(today)})
		}
	}
	return units
}

// Run regenerates every unit due on today. Units run independently; a failing
// unit is logged and recorded in the report and the rest still run.
func (g *Generator) Run(ctx context.Context, today time.Time) *Report {
	report := &Report{RunID: uuid.NewString(), Today: today}
	ctx = observability.WithRunID(ctx, report.RunID)
	ctx, span := observability.StartSpan(ctx, "ranking.Generate",
		attribute.String("ranking.today", period.Format(today)),
		attribute.String("ranking.run_id", report.RunID),
	)

	log := g.log.WithFields(logrus.Fields{
		"job":    "rankings",
		"run_id": report.RunID,
		"today":  period.Format(today),
	})

	for _, unit := range Plan(today) {
		res := g.runUnit(ctx, log, unit)
		if res.Error != "" {
			report.Failed++
		}
		report.Units = append(report.Units, res)
	}

	span.SetAttributes(attribute.Int("ranking.units", len(report.Units)), attribute.Int("ranking.failed", report.Failed))
	observability.EndSpan(span, report.Err())

	log.WithFields(logrus.Fields{
		"units":  len(report.Units),
		"failed": report.Failed,
	}).Info("ranking generation completed")
	return report
}

// Backfill regenerates one leaderboard ending on end:
// daily [end, end], weekly [end-6, end], monthly [first of month, end], peak [end, end]
func (g *Generator) Backfill(ctx context.Context, rankType RankType, statType StatType, end time.Time) (UnitResult, error) {
	if _, err := ValidateStatType(rankType, string(statType)); err != nil {
		return UnitResult{}, err
	}

	unit := Unit{RankType: rankType, StatType: statType}
	switch rankType {
	case RankDaily, RankPeak:
		unit.Period = period.Single(end)
	case RankWeekly:
		unit.Period = period.WeekEnding(end)
	case RankMonthly:
		unit.Period = period.MonthToDate(end)
	default:
		return UnitResult{}, fmt.Errorf("%w: %q", ErrInvalidRankType, rankType)
	}

	log := g.log.WithFields(logrus.Fields{"job": "rankings-backfill"})
	res := g.runUnit(ctx, log, unit)
	if res.Error != "" {
		return res, fmt.Errorf("backfill %s: %s", unit, res.Error)
	}
	return res, nil
}

func (g *Generator) runUnit(ctx context.Context, log *logrus.Entry, unit Unit) (res UnitResult) {
	started := time.Now()
	res = UnitResult{RankType: unit.RankType, StatType: unit.StatType, Period: unit.Period.String(), Days: unit.Period.Days()}
	ulog := log.WithFields(logrus.Fields{
		"rank_type": unit.RankType,
		"stat_type": unit.StatType,
		"period":    res.Period,
		"days":      res.Days,
	})

	ctx, span := observability.StartSpan(ctx, "ranking.Unit",
		attribute.String("ranking.rank_type", string(unit.RankType)),
		attribute.String("ranking.stat_type", string(unit.StatType)),
		attribute.Int("ranking.period_days", res.Days),
	)

	var err error
	defer func() {
		if perr := observability.MustRecover(recover()); perr != nil {
			err = perr
		}
		res.Duration = time.Since(started)
		status := "success"
		if err != nil {
			status = "failure"
			res.Error = err.Error()
			ulog.WithError(err).Error("ranking unit failed")
		}
		g.metrics.RecordRankingUnit(string(unit.RankType), string(unit.StatType), status, res.Entries, res.Duration)
		observability.EndSpan(span, err)
	}()

	var items []Item
	if unit.RankType == RankPeak {
		items, err = g.calc.ComputePeakRanking(ctx, unit.StatType.Channel(), g.limit)
	} else {
		items, err = g.calc.ComputeRanking(ctx, unit.StatType, unit.Period.Start, unit.Period.End, g.limit)
	}
	if err != nil {
		return res
	}

	if err = g.calc.PersistRanking(ctx, unit.RankType, unit.StatType, unit.Period.Start, unit.Period.End, items); err != nil {
		return res
	}

	res.Entries = len(items)
	ulog.WithField("entries", res.Entries).Info("ranking unit generated")
	return res
}
