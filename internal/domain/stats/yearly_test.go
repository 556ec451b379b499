package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/checkin"
	"github.com/aura-hub/aura-hub/internal/domain/gamification"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

const (
	me       = shared.UserID("aaaaaaaa-0000-4000-8000-000000000001")
	daily    = shared.ChallengeID("cccccccc-0000-4000-8000-00000000000a")
	shortOne = shared.ChallengeID("cccccccc-0000-4000-8000-00000000000b")
	longOne  = shared.ChallengeID("cccccccc-0000-4000-8000-00000000000c")
	idleLong = shared.ChallengeID("cccccccc-0000-4000-8000-00000000000d")
)

func at(day string) time.Time {
	return shared.MustParseDate(day).Time().Add(9 * time.Hour)
}

func run(id shared.ChallengeID, from string, days int) []checkin.Record {
	start := shared.MustParseDate(from)
	out := make([]checkin.Record, 0, days)
	for i := 0; i < days; i++ {
		out = append(out, checkin.Record{UserID: me, ChallengeID: id, Date: start.AddDays(i), Completed: true})
	}
	return out
}

func member(c *challenge.Challenge, completedAt *time.Time) challenge.Membership {
	return challenge.Membership{
		Challenge:   c,
		Participant: &challenge.Participant{UserID: me, ChallengeID: c.ID, CompletedAt: completedAt},
	}
}

func TestAggregate_Empty(t *testing.T) {
	s := Aggregate(YearlyInput{Year: 2024, Today: shared.MustParseDate("2024-01-01")})

	assert.Equal(t, 2024, s.Year)
	assert.Zero(t, s.Checks.Total)
	assert.Zero(t, s.Checks.AvgPerWeek)
	assert.Equal(t, gamification.AuraInactive, s.Aura.MostCommonState)
	assert.Len(t, s.Months, 12)
	assert.Zero(t, s.MostConsistentMonth)
}

func TestAggregate_FullYear(t *testing.T) {
	finished := at("2024-05-01")
	memberships := []challenge.Membership{
		member(&challenge.Challenge{ID: daily, DurationDays: 10, CreatedAt: at("2024-03-01")}, nil),
		member(&challenge.Challenge{ID: shortOne, DurationDays: 5, CreatedAt: at("2024-06-01")}, nil),
		member(&challenge.Challenge{ID: longOne, IsLongTerm: true, DurationDays: 100, CreatedAt: at("2024-02-01")}, &finished),
		member(&challenge.Challenge{ID: idleLong, IsLongTerm: true, DurationDays: 100, CreatedAt: at("2024-02-01")}, nil),
	}

	var records []checkin.Record
	records = append(records, run(daily, "2024-03-01", 10)...)   // completed: 10/10
	records = append(records, run(shortOne, "2024-06-02", 2)...) // abandoned: 2/5, window over
	records = append(records, run(longOne, "2024-02-10", 1)...)  // one nudge
	records = append(records, run(daily, "2023-12-30", 2)...)    // previous year, ignored
	records = append(records, checkin.Record{UserID: me, ChallengeID: daily, Date: shared.MustParseDate("2024-03-20")})

	s := Aggregate(YearlyInput{
		Year:        2024,
		Today:       shared.MustParseDate("2024-12-31"),
		Memberships: memberships,
		Records:     records,
	})

	assert.Equal(t, ChallengeStats{Participated: 4, Completed: 2, Abandoned: 2}, s.Challenges)
	assert.Equal(t, 13, s.Checks.Total)
	assert.Equal(t, 10, s.Checks.BestStreak)
	// 53 weeks in a leap year counted from Jan 1st through Dec 31st.
	assert.Equal(t, 0.2, s.Checks.AvgPerWeek)
	// shortOne window 06-01..06-05 with checks on 06-02 and 06-03.
	assert.Equal(t, 3, s.Checks.MissedDays)

	assert.Equal(t, 10, s.Months[2].Checks)
	assert.Equal(t, 2, s.Months[5].Checks)
	assert.Equal(t, 1, s.Months[1].ActiveDays)
	assert.Equal(t, 3, s.MostConsistentMonth)
}

func TestAggregate_AuraTrend(t *testing.T) {
	var records []checkin.Record
	records = append(records, run(daily, "2024-01-01", 8)...)  // weak, weak, stable x4, strong x2
	records = append(records, run(daily, "2024-01-20", 2)...)  // break, weak x2
	records = append(records, run(daily, "2024-02-01", 15)...) // break, full run to legendary

	s := Aggregate(YearlyInput{
		Year:        2024,
		Today:       shared.MustParseDate("2024-03-01"),
		Memberships: []challenge.Membership{member(&challenge.Challenge{ID: daily, DurationDays: 365, CreatedAt: at("2024-01-01")}, nil)},
		Records:     records,
	})

	assert.Equal(t, 2, s.Aura.AuraBreaks)
	assert.Equal(t, 9, s.Aura.LongestStrongPeriod)
	assert.Equal(t, 8, s.Aura.Histogram[gamification.AuraStable])
	assert.Equal(t, 6, s.Aura.Histogram[gamification.AuraWeak])
	assert.Equal(t, 9, s.Aura.Histogram[gamification.AuraStrong])
	assert.Equal(t, 2, s.Aura.Histogram[gamification.AuraLegendary])
	assert.Equal(t, gamification.AuraStrong, s.Aura.MostCommonState)
	assert.Equal(t, 15, s.Checks.BestStreak)
	// 2024-01-01..2024-03-01 is 61 days, 9 weeks.
	assert.Equal(t, 2.8, s.Checks.AvgPerWeek)
}

func TestAggregate_DoesNotMutateInput(t *testing.T) {
	records := run(daily, "2024-04-03", 3)
	records[0], records[2] = records[2], records[0]
	snapshot := append([]checkin.Record(nil), records...)

	Aggregate(YearlyInput{Year: 2024, Today: shared.MustParseDate("2024-04-05"), Records: records})

	assert.Equal(t, snapshot, records)
}

func TestAvgPerWeek_MinimumOneWeek(t *testing.T) {
	start := shared.MustParseDate("2024-01-01")
	end := shared.MustParseDate("2024-12-31")

	assert.Equal(t, 3.0, avgPerWeek(3, start, end, start))
	assert.Equal(t, 1.5, avgPerWeek(3, start, end, shared.MustParseDate("2024-01-08")))
}
