// Package gamification derives the motivational signals of a user from the
// completion log: the consecutive-day streak, the aura tier and points.
// Everything here is a pure function of its inputs. The reference day is
// always supplied by the caller.
package gamification

import (
	"sort"

	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/checkin"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

// Streak returns the number of consecutive days with a completed record,
// ending today or yesterday. A gap of more than one day before today breaks
// the streak. Records dated after today are ignored.
func Streak(records []checkin.Record, today shared.Date) int {
	if today.IsZero() {
		return 0
	}
	return walkBack(completedDates(records, today), today)
}

// ChallengeStreak is Streak restricted to one challenge.
func ChallengeStreak(records []checkin.Record, challengeID shared.ChallengeID, today shared.Date) int {
	return Streak(checkin.ForChallenge(records, challengeID), today)
}

// GlobalStreak is the best per-challenge streak across the user's daily
// challenges. Long-term challenges and records of unknown challenges are
// ignored.
func GlobalStreak(records []checkin.Record, challenges []*challenge.Challenge, today shared.Date) int {
	daily := make(map[shared.ChallengeID]bool, len(challenges))
	for _, c := range challenges {
		if c != nil && !c.IsLongTerm {
			daily[c.ID] = true
		}
	}

	grouped := make(map[shared.ChallengeID][]checkin.Record, len(daily))
	for _, r := range records {
		if daily[r.ChallengeID] {
			grouped[r.ChallengeID] = append(grouped[r.ChallengeID], r)
		}
	}

	best := 0
	for _, rs := range grouped {
		if s := Streak(rs, today); s > best {
			best = s
		}
	}
	return best
}

// BestStreak returns the longest run of consecutive days among dates,
// regardless of where the run ends. Duplicates are ignored.
func BestStreak(dates []shared.Date) int {
	unique := uniqueDates(dates)
	if len(unique) == 0 {
		return 0
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i].Before(unique[j]) })

	best, run := 1, 1
	for i := 1; i < len(unique); i++ {
		if unique[i-1].AddDays(1).Equal(unique[i]) {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best
}

// walkBack counts consecutive days from the newest date, which must be
// today or yesterday. dates must be unique and sorted descending.
func walkBack(dates []shared.Date, today shared.Date) int {
	if len(dates) == 0 {
		return 0
	}

	last := dates[0]
	if !last.Equal(today) && !last.Equal(today.AddDays(-1)) {
		return 0
	}

	streak := 0
	expected := last
	for _, d := range dates {
		if !d.Equal(expected) {
			break
		}
		streak++
		expected = expected.AddDays(-1)
	}
	return streak
}

// completedDates returns unique completed dates up to today, newest first.
func completedDates(records []checkin.Record, today shared.Date) []shared.Date {
	dates := make([]shared.Date, 0, len(records))
	for _, r := range checkin.Completed(records) {
		if !r.Date.After(today) {
			dates = append(dates, r.Date)
		}
	}
	dates = uniqueDates(dates)
	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })
	return dates
}

func uniqueDates(dates []shared.Date) []shared.Date {
	seen := make(map[shared.Date]struct{}, len(dates))
	out := make([]shared.Date, 0, len(dates))
	for _, d := range dates {
		if d.IsZero() {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}
