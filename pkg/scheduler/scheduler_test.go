package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/platinummonkey/bookrank/pkg/flush"
	"github.com/platinummonkey/bookrank/pkg/period"
	"github.com/platinummonkey/bookrank/pkg/ranking"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFlush struct {
	mu      sync.Mutex
	dates   []time.Time
	err     error
	result  *flush.Result
	started chan struct{}
	release chan struct{}
}

func (f *fakeFlush) Run(_ context.Context, date time.Time) (*flush.Result, error) {
	f.mu.Lock()
	f.dates = append(f.dates, date)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	if f.result == nil {
		return &flush.Result{Date: date}, f.err
	}
	return f.result, f.err
}

func (f *fakeFlush) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dates)
}

type fakeRanking struct {
	days   []time.Time
	failed int
}

func (f *fakeRanking) Run(_ context.Context, today time.Time) *ranking.Report {
	f.days = append(f.days, today)
	return &ranking.Report{RunID: "run-1", Today: today, Failed: f.failed, Units: make([]ranking.UnitResult, 3)}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNew_DefaultsAndEntries(t *testing.T) {
	s, err := New(Config{}, &fakeFlush{}, &fakeRanking{}, quietLogger())
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 2)
	assert.Equal(t, time.UTC, s.loc)
	assert.Equal(t, DefaultJobTimeout, s.timeout)
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New(Config{FlushSchedule: "every day"}, &fakeFlush{}, &fakeRanking{}, quietLogger())
	assert.ErrorContains(t, err, "invalid flush schedule")

	_, err = New(Config{RankingSchedule: "61 * * * *"}, &fakeFlush{}, &fakeRanking{}, quietLogger())
	assert.ErrorContains(t, err, "invalid ranking schedule")
}

func TestRunFlush_FlushesYesterdayInLocation(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	f := &fakeFlush{}
	// 17:30 UTC on June 1 is already June 2 in UTC+8
	s, err := New(Config{Location: loc, Now: fixedNow(time.Date(2024, 6, 1, 17, 30, 0, 0, time.UTC))},
		f, &fakeRanking{}, quietLogger())
	require.NoError(t, err)

	_, err = s.RunFlush(context.Background())
	require.NoError(t, err)
	require.Len(t, f.dates, 1)
	assert.Equal(t, "2024-06-01", period.Format(f.dates[0]))
}

func TestRunFlush_Failure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	f := &fakeFlush{err: flush.ErrPersist}
	s, err := New(Config{Now: fixedNow(time.Date(2024, 6, 3, 1, 0, 0, 0, time.UTC))}, f, &fakeRanking{}, logger)
	require.NoError(t, err)

	_, err = s.RunFlush(context.Background())
	assert.ErrorIs(t, err, flush.ErrPersist)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "2024-06-02", hook.LastEntry().Data["date"])
}

func TestRunFlush_DeleteErrorIsWarning(t *testing.T) {
	logger, hook := test.NewNullLogger()
	f := &fakeFlush{result: &flush.Result{DeleteError: "READONLY"}}
	s, err := New(Config{}, f, &fakeRanking{}, logger)
	require.NoError(t, err)

	_, err = s.RunFlush(context.Background())
	require.NoError(t, err)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestRunRankings_UsesToday(t *testing.T) {
	logger, hook := test.NewNullLogger()
	r := &fakeRanking{failed: 1}
	s, err := New(Config{Now: fixedNow(time.Date(2024, 6, 3, 2, 0, 0, 0, time.UTC))}, &fakeFlush{}, r, logger)
	require.NoError(t, err)

	report := s.RunRankings(context.Background())
	assert.Equal(t, 1, report.Failed)
	require.Len(t, r.days, 1)
	assert.Equal(t, "2024-06-03", period.Format(r.days[0]))
	assert.Equal(t, "run-1", hook.LastEntry().Data["run_id"])
}

func TestScheduledFlush_SkipsWhileStillRunning(t *testing.T) {
	f := &fakeFlush{started: make(chan struct{}), release: make(chan struct{})}
	s, err := New(Config{}, f, &fakeRanking{}, quietLogger())
	require.NoError(t, err)

	job := s.cron.Entry(s.flushID).WrappedJob
	done := make(chan struct{})
	go func() {
		job.Run()
		close(done)
	}()
	<-f.started

	// overlapping tick returns immediately without running
	job.Run()
	assert.Equal(t, 1, f.calls())

	close(f.release)
	<-done
}

func TestScheduledJob_RecoversPanic(t *testing.T) {
	s, err := New(Config{}, &fakeFlush{}, panicRanking{}, quietLogger())
	require.NoError(t, err)

	assert.NotPanics(t, func() { s.cron.Entry(s.rankingID).WrappedJob.Run() })
}

type panicRanking struct{}

func (panicRanking) Run(context.Context, time.Time) *ranking.Report {
	panic(errors.New("boom"))
}

func TestStartStop(t *testing.T) {
	s, err := New(Config{}, &fakeFlush{}, &fakeRanking{}, quietLogger())
	require.NoError(t, err)

	s.Start()
	select {
	case <-s.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestCronLoggerFields(t *testing.T) {
	f := fields([]interface{}{"entry", 1, "next", "soon", "dangling"})
	assert.Equal(t, logrus.Fields{"entry": 1, "next": "soon"}, f)
}
