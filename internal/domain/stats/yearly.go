// Package stats rolls a calendar year of completion records into a summary
// of participation, consistency and aura trends.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/checkin"
	"github.com/aura-hub/aura-hub/internal/domain/gamification"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

// YearlyInput is everything Aggregate needs. Records should belong to one user;
// records of other years are ignored.
type YearlyInput struct {
	Year        int
	Today       shared.Date
	Location    *time.Location
	Memberships []challenge.Membership
	Records     []checkin.Record
}

// ChallengeStats counts challenge outcomes.
type ChallengeStats struct {
	Participated int `json:"participated"`
	Completed    int `json:"completed"`
	Abandoned    int `json:"abandoned"`
}

// CheckStats summarises completion volume and consistency.
type CheckStats struct {
	Total      int     `json:"total"`
	AvgPerWeek float64 `json:"avgPerWeek"`
	BestStreak int     `json:"bestStreak"`
	MissedDays int     `json:"missedDays"`
}

// AuraStats summarises how the aura tier evolved over the year.
type AuraStats struct {
	Histogram           map[gamification.Aura]int `json:"histogram"`
	MostCommonState     gamification.Aura         `json:"mostCommonState"`
	LongestStrongPeriod int                       `json:"longestStrongPeriod"`
	AuraBreaks          int                       `json:"auraBreaks"`
}

// YearlyStats is the full summary.
type YearlyStats struct {
	Year                int            `json:"year"`
	Challenges          ChallengeStats `json:"challenges"`
	Checks              CheckStats     `json:"checks"`
	Aura                AuraStats      `json:"aura"`
	Months              []MonthStats   `json:"months"`
	MostConsistentMonth int            `json:"mostConsistentMonth"`
}

// Aggregate computes the yearly summary. It never mutates its input.
func Aggregate(in YearlyInput) YearlyStats {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}

	yearStart := shared.NewDate(in.Year, time.January, 1)
	yearEnd := shared.NewDate(in.Year, time.December, 31)

	yearChecks := make([]checkin.Record, 0, len(in.Records))
	for _, r := range checkin.Completed(in.Records) {
		if !r.Date.Before(yearStart) && !r.Date.After(yearEnd) {
			yearChecks = append(yearChecks, r)
		}
	}
	byChallenge := make(map[shared.ChallengeID][]checkin.Record)
	for _, r := range yearChecks {
		byChallenge[r.ChallengeID] = append(byChallenge[r.ChallengeID], r)
	}

	var inYear []challenge.Membership
	for _, m := range in.Memberships {
		if m.Challenge == nil {
			continue
		}
		if m.Challenge.StartDate(loc).Year() == in.Year || len(byChallenge[m.Challenge.ID]) > 0 {
			inYear = append(inYear, m)
		}
	}

	dates := uniqueSortedDates(yearChecks)
	months := monthlyBreakdown(yearChecks)

	return YearlyStats{
		Year:       in.Year,
		Challenges: challengeStats(inYear, byChallenge, in.Today, loc),
		Checks: CheckStats{
			Total:      len(yearChecks),
			AvgPerWeek: avgPerWeek(len(yearChecks), yearStart, yearEnd, in.Today),
			BestStreak: gamification.BestStreak(dates),
			MissedDays: missedDays(inYear, byChallenge, in.Year, in.Today, loc),
		},
		Aura:                auraStats(dates),
		Months:              months,
		MostConsistentMonth: mostConsistentMonth(months),
	}
}

func challengeStats(memberships []challenge.Membership, checks map[shared.ChallengeID][]checkin.Record, today shared.Date, loc *time.Location) ChallengeStats {
	s := ChallengeStats{Participated: len(memberships)}
	for _, m := range memberships {
		c := m.Challenge
		count := len(checks[c.ID])

		if c.IsLongTerm {
			switch {
			case m.Participant != nil && m.Participant.IsCompleted():
				s.Completed++
			case count == 0:
				s.Abandoned++
			}
			continue
		}

		switch {
		case count >= c.DurationDays:
			s.Completed++
		case today.After(c.EndDate(loc)):
			s.Abandoned++
		}
	}
	return s
}

// avgPerWeek divides by the weeks elapsed since January 1st, counting today,
// with a minimum of one week. Past years use December 31st as the end.
func avgPerWeek(total int, yearStart, yearEnd, today shared.Date) float64 {
	end := today
	if end.After(yearEnd) {
		end = yearEnd
	}
	days := yearStart.DaysUntil(end) + 1
	weeks := int(math.Ceil(float64(days) / 7))
	if weeks < 1 {
		weeks = 1
	}
	return math.Round(float64(total)/float64(weeks)*10) / 10
}

// missedDays counts days inside each daily challenge's window, clipped to
// the year and to today, without a completed check for that challenge.
func missedDays(memberships []challenge.Membership, checks map[shared.ChallengeID][]checkin.Record, year int, today shared.Date, loc *time.Location) int {
	missed := 0
	for _, m := range memberships {
		c := m.Challenge
		if c.IsLongTerm {
			continue
		}

		checked := make(map[shared.Date]bool, len(checks[c.ID]))
		for _, r := range checks[c.ID] {
			checked[r.Date] = true
		}

		end := c.EndDate(loc)
		if end.After(today) {
			end = today
		}
		for d := c.StartDate(loc); !d.After(end); d = d.AddDays(1) {
			if d.Year() == year && !checked[d] {
				missed++
			}
		}
	}
	return missed
}

// auraStats walks the active dates in order. The streak on each active date
// is the number of consecutive active dates ending there; a gap is a break.
func auraStats(dates []shared.Date) AuraStats {
	s := AuraStats{
		Histogram:       make(map[gamification.Aura]int, 5),
		MostCommonState: gamification.AuraInactive,
	}
	if len(dates) == 0 {
		return s
	}

	streak, strongRun := 0, 0
	for i, d := range dates {
		if i > 0 && !dates[i-1].AddDays(1).Equal(d) {
			s.AuraBreaks++
			streak = 0
		}
		streak++

		tier := gamification.Classify(streak)
		s.Histogram[tier]++

		if tier.IsHigh() {
			strongRun++
			s.LongestStrongPeriod = max(s.LongestStrongPeriod, strongRun)
		} else {
			strongRun = 0
		}
	}

	best := -1
	for _, tier := range []gamification.Aura{
		gamification.AuraInactive, gamification.AuraWeak, gamification.AuraStable,
		gamification.AuraStrong, gamification.AuraLegendary,
	} {
		if n := s.Histogram[tier]; n > best {
			best = n
			s.MostCommonState = tier
		}
	}
	return s
}

func uniqueSortedDates(records []checkin.Record) []shared.Date {
	seen := make(map[shared.Date]bool, len(records))
	dates := make([]shared.Date, 0, len(records))
	for _, r := range records {
		if !seen[r.Date] {
			seen[r.Date] = true
			dates = append(dates, r.Date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}
