// Package timeutil provides the clock abstraction used across Aura Hub.
// Calculation code never calls time.Now directly: it receives a Clock, so tests
// can pin the date and the debug "time travel" offset can shift it without
// touching any calculation code.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"sync"
	"time"
)

// Common format layouts.
const (
	FormatDate     = "2006-01-02"
	FormatTime     = "15:04"
	FormatDateTime = "2006-01-02 15:04:05"
)

// Clock is the source of "now" for every component that needs it.
type Clock interface {
	Now() time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// SYSTEM CLOCK
// ══════════════════════════════════════════════════════════════════════════════

// SystemClock reads the wall clock and converts it to Location.
type SystemClock struct {
	Location *time.Location
}

// NewSystemClock creates a SystemClock. A nil location means UTC.
func NewSystemClock(loc *time.Location) SystemClock {
	if loc == nil {
		loc = time.UTC
	}
	return SystemClock{Location: loc}
}

// Now returns the current time in the clock's location.
func (c SystemClock) Now() time.Time {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return time.Now().In(loc)
}

// ══════════════════════════════════════════════════════════════════════════════
// OFFSET CLOCK (time travel)
// ══════════════════════════════════════════════════════════════════════════════

// OffsetClock shifts another clock by a whole number of days.
// It is safe for concurrent use.
type OffsetClock struct {
	base Clock

	mu   sync.RWMutex
	days int
}

// NewOffsetClock wraps base with a zero offset.
func NewOffsetClock(base Clock) *OffsetClock {
	return &OffsetClock{base: base}
}

// Now returns the base time shifted by the current offset.
func (c *OffsetClock) Now() time.Time {
	c.mu.RLock()
	days := c.days
	c.mu.RUnlock()
	return c.base.Now().AddDate(0, 0, days)
}

// SetOffset sets the offset in days. Negative values travel backwards.
func (c *OffsetClock) SetOffset(days int) {
	c.mu.Lock()
	c.days = days
	c.mu.Unlock()
}

// Offset returns the current offset in days.
func (c *OffsetClock) Offset() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.days
}

// Reset returns to the base clock's time.
func (c *OffsetClock) Reset() {
	c.SetOffset(0)
}

// ══════════════════════════════════════════════════════════════════════════════
// FIXED CLOCK
// ══════════════════════════════════════════════════════════════════════════════

// FixedClock always returns the same instant. Useful in tests.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock creates a FixedClock at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

// Now returns the fixed instant.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// LoadLocation loads an IANA timezone, falling back to UTC for an empty name.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last nanosecond of t's day in t's location.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// StartOfYear returns midnight of January 1st of t's year.
func StartOfYear(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}

// ParseClock parses an "HH:MM" time of day.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse(FormatTime, s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// NextAt returns the next occurrence of hour:minute strictly after from, in from's location.
func NextAt(from time.Time, hour, minute int) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
