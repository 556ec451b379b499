package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronExpression is a parsed 5-field cron expression:
//
//	minute hour day-of-month month day-of-week
//
// Each field accepts "*", "n", "n-m", any of those with "/step", and comma
// separated lists of the above. Day-of-week 0 and 7 are both Sunday. When
// both day fields are restricted, a day matches if either field matches.
type CronExpression struct {
	raw      string
	minutes  uint64
	hours    uint64
	days     uint64
	months   uint64
	weekdays uint64

	daysStar     bool
	weekdaysStar bool
}

var _ Schedule = (*CronExpression)(nil)

type cronField struct {
	name     string
	min, max int
}

var cronFields = [5]cronField{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 7},
}

// ParseCronExpression parses a cron expression string.
func ParseCronExpression(expr string) (*CronExpression, error) {
	fields := strings.Fields(expr)
	if len(fields) != len(cronFields) {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}

	var sets [5]uint64
	for i, f := range fields {
		bits, err := parseCronField(f, cronFields[i])
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
		}
		sets[i] = bits
	}

	// 7 is an alias for Sunday.
	if sets[4]&(1<<7) != 0 {
		sets[4] = sets[4]&^(1<<7) | 1
	}

	return &CronExpression{
		raw:          strings.Join(fields, " "),
		minutes:      sets[0],
		hours:        sets[1],
		days:         sets[2],
		months:       sets[3],
		weekdays:     sets[4],
		daysStar:     strings.HasPrefix(fields[2], "*"),
		weekdaysStar: strings.HasPrefix(fields[4], "*"),
	}, nil
}

// MustParseCronExpression parses a cron expression or panics.
// Use only for constants.
func MustParseCronExpression(expr string) *CronExpression {
	ce, err := ParseCronExpression(expr)
	if err != nil {
		panic(err)
	}
	return ce
}

func parseCronField(field string, spec cronField) (uint64, error) {
	var bits uint64
	for _, part := range strings.Split(field, ",") {
		lo, hi, step := spec.min, spec.max, 1

		rangePart := part
		if base, stepStr, ok := strings.Cut(part, "/"); ok {
			n, err := strconv.Atoi(stepStr)
			if err != nil || n <= 0 {
				return 0, fmt.Errorf("%s: invalid step %q", spec.name, stepStr)
			}
			step = n
			rangePart = base
		}

		switch {
		case rangePart == "*":
		case strings.Contains(rangePart, "-"):
			a, b, _ := strings.Cut(rangePart, "-")
			var err error
			if lo, err = cronValue(a, spec); err != nil {
				return 0, err
			}
			if hi, err = cronValue(b, spec); err != nil {
				return 0, err
			}
			if lo > hi {
				return 0, fmt.Errorf("%s: empty range %q", spec.name, rangePart)
			}
		default:
			v, err := cronValue(rangePart, spec)
			if err != nil {
				return 0, err
			}
			lo = v
			if step == 1 {
				hi = v
			}
		}

		for v := lo; v <= hi; v += step {
			bits |= 1 << uint(v)
		}
	}
	return bits, nil
}

func cronValue(s string, spec cronField) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid value %q", spec.name, s)
	}
	if v < spec.min || v > spec.max {
		return 0, fmt.Errorf("%s: %d out of range [%d-%d]", spec.name, v, spec.min, spec.max)
	}
	return v, nil
}

// String returns the normalized expression.
func (ce *CronExpression) String() string {
	return ce.raw
}

// Next returns the first matching minute strictly after t, in t's location.
// It returns the zero time when nothing matches within five years, which
// only happens for impossible dates such as "0 0 31 2 *".
func (ce *CronExpression) Next(t time.Time) time.Time {
	loc := t.Location()
	t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()+1, 0, 0, loc)
	limit := t.AddDate(5, 0, 0)

	for t.Before(limit) {
		if ce.months&(1<<uint(t.Month())) == 0 {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
			continue
		}
		if !ce.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
			continue
		}
		if ce.hours&(1<<uint(t.Hour())) == 0 {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
			continue
		}
		if ce.minutes&(1<<uint(t.Minute())) == 0 {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}

func (ce *CronExpression) dayMatches(t time.Time) bool {
	dom := ce.days&(1<<uint(t.Day())) != 0
	dow := ce.weekdays&(1<<uint(t.Weekday())) != 0
	if ce.daysStar || ce.weekdaysStar {
		return dom && dow
	}
	return dom || dow
}
