package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/aura-hub/aura-hub/pkg/timeutil"
)

// IntervalSchedule schedules a job to run at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	return "@every " + s.Interval.String()
}

// DailySchedule runs once a day at a wall-clock time in the location of the
// time passed to Next.
type DailySchedule struct {
	Hour   int
	Minute int
}

// NewDailySchedule parses an "HH:MM" time of day.
func NewDailySchedule(clock string) (*DailySchedule, error) {
	hour, minute, err := timeutil.ParseClock(clock)
	if err != nil {
		return nil, err
	}
	return &DailySchedule{Hour: hour, Minute: minute}, nil
}

// Next returns the next occurrence strictly after t.
func (s *DailySchedule) Next(t time.Time) time.Time {
	return timeutil.NextAt(t, s.Hour, s.Minute)
}

func (s *DailySchedule) String() string {
	return fmt.Sprintf("@daily %02d:%02d", s.Hour, s.Minute)
}

// ParseSchedule accepts "@every <duration>", a 5-field cron expression or an
// "HH:MM" time of day.
func ParseSchedule(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	switch {
	case spec == "":
		return nil, ErrNilSchedule
	case strings.HasPrefix(spec, "@every "):
		d, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(spec, "@every ")))
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", spec, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid interval %q: must be positive", spec)
		}
		return NewIntervalSchedule(d), nil
	case strings.Contains(spec, " "):
		return ParseCronExpression(spec)
	default:
		return NewDailySchedule(spec)
	}
}
