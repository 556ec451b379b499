package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-hub/aura-hub/pkg/timeutil"
)

type countingJob struct {
	name  string
	err   error
	calls atomic.Int32
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "counts runs" }

func (j *countingJob) Run(context.Context) error {
	j.calls.Add(1)
	return j.err
}

var base = time.Date(2024, 3, 10, 12, 30, 0, 0, time.UTC)

func testScheduler(clock timeutil.Clock) *Scheduler {
	return NewScheduler(SchedulerConfig{
		Clock:         clock,
		TickInterval:  5 * time.Millisecond,
		EnableMetrics: true,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// CRON
// ══════════════════════════════════════════════════════════════════════════════

func TestParseCronExpression_Invalid(t *testing.T) {
	for _, expr := range []string{
		"",
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * * 13 *",
		"* * * * 8",
		"*/0 * * * *",
		"5-1 * * * *",
		"a * * * *",
	} {
		_, err := ParseCronExpression(expr)
		assert.Error(t, err, expr)
	}
}

func TestCronExpression_Next(t *testing.T) {
	cases := []struct {
		expr string
		from time.Time
		want time.Time
	}{
		{"* * * * *", base, base.Add(time.Minute)},
		{"0 * * * *", base, time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", base, time.Date(2024, 3, 10, 12, 45, 0, 0, time.UTC)},
		{"0 21 * * *", base, time.Date(2024, 3, 10, 21, 0, 0, 0, time.UTC)},
		{"0 9 * * *", base, time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)},
		{"0 0 1 * *", base, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
		// 2024-03-10 is a Sunday.
		{"0 8 * * 1-5", base, time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC)},
		{"0 8 * * 7", base, time.Date(2024, 3, 17, 8, 0, 0, 0, time.UTC)},
		{"0 0 29 2 *", base, time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC)},
		{"30 12 10,20 * *", base, time.Date(2024, 3, 20, 12, 30, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			got := MustParseCronExpression(tc.expr).Next(tc.from)
			assert.True(t, tc.want.Equal(got), "want %s, got %s", tc.want, got)
		})
	}
}

func TestCronExpression_DayFieldsAreOredWhenBothRestricted(t *testing.T) {
	// The 15th or any Monday, whichever comes first.
	ce := MustParseCronExpression("0 0 15 * 1")
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), ce.Next(base))
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), ce.Next(time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)))
}

func TestCronExpression_ImpossibleDate(t *testing.T) {
	assert.True(t, MustParseCronExpression("0 0 31 2 *").Next(base).IsZero())
}

func TestCronExpression_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	got := MustParseCronExpression("0 21 * * *").Next(base.In(loc))
	assert.Equal(t, time.Date(2024, 3, 10, 21, 0, 0, 0, loc), got)
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULES
// ══════════════════════════════════════════════════════════════════════════════

func TestParseSchedule(t *testing.T) {
	s, err := ParseSchedule("@every 24h")
	require.NoError(t, err)
	assert.Equal(t, base.Add(24*time.Hour), s.Next(base))

	s, err = ParseSchedule("21:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 21, 0, 0, 0, time.UTC), s.Next(base))
	assert.Equal(t, "@daily 21:00", s.String())

	s, err = ParseSchedule("12:30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 11, 12, 30, 0, 0, time.UTC), s.Next(base))

	s, err = ParseSchedule("0 3 * * *")
	require.NoError(t, err)
	assert.Equal(t, "0 3 * * *", s.String())

	for _, bad := range []string{"", "@every nope", "@every -1h", "25:00", "0 3 * *"} {
		_, err := ParseSchedule(bad)
		assert.Error(t, err, bad)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

func TestScheduler_Register(t *testing.T) {
	s := testScheduler(timeutil.NewFixedClock(base))
	job := &countingJob{name: "a"}

	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Hour)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Hour)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "b"}, nil), ErrNilSchedule)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Equal(t, base.Add(time.Hour), jobs[0].NextRun)
	assert.True(t, jobs[0].Enabled)

	assert.ErrorIs(t, s.DisableJob("missing"), ErrJobNotFound)
}

func TestScheduler_RunNow(t *testing.T) {
	s := testScheduler(timeutil.NewFixedClock(base))
	ok := &countingJob{name: "ok"}
	bad := &countingJob{name: "bad", err: errors.New("boom")}
	require.NoError(t, s.Register(ok, NewIntervalSchedule(time.Hour)))
	require.NoError(t, s.Register(bad, NewIntervalSchedule(time.Hour)))

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Manual)

	res, err = s.RunNow(context.Background(), "bad")
	assert.EqualError(t, err, "boom")
	assert.False(t, res.Success)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	assert.Len(t, s.GetHistory(0), 2)
	snap := s.GetMetrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalExecutions)
	assert.Equal(t, int64(1), snap.TotalFailures)
	assert.InDelta(t, 0.5, snap.SuccessRate, 1e-9)
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	clock := timeutil.NewFixedClock(base)
	s := testScheduler(clock)
	due := &countingJob{name: "due"}
	later := &countingJob{name: "later"}
	require.NoError(t, s.Register(due, NewIntervalSchedule(time.Minute)))
	require.NoError(t, s.Register(later, NewIntervalSchedule(time.Hour)))

	done := make(chan JobResult, 1)
	s.OnJobComplete(func(r JobResult) { done <- r })

	clock.Advance(2 * time.Minute)
	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	select {
	case r := <-done:
		assert.Equal(t, "due", r.JobName)
		assert.True(t, r.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not run")
	}

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	assert.Equal(t, int32(1), due.calls.Load())
	assert.Zero(t, later.calls.Load())
}

func TestScheduler_DisabledJobIsNotScheduled(t *testing.T) {
	clock := timeutil.NewFixedClock(base)
	s := testScheduler(clock)
	job := &countingJob{name: "off"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Minute)))
	require.NoError(t, s.DisableJob("off"))

	clock.Advance(time.Hour)
	s.checkAndRunJobs()
	s.wg.Wait()
	assert.Zero(t, job.calls.Load())

	_, err := s.RunNow(context.Background(), "off")
	require.NoError(t, err)
	assert.Equal(t, int32(1), job.calls.Load())
}
