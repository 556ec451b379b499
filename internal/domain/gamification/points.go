package gamification

import (
	"math"

	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/checkin"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

// Completion bonus interpolation bounds.
const (
	MinBonus        = 100
	MaxBonus        = 500
	MinBonusDays    = 30
	MaxBonusDays    = 365
	bonusPerDaySpan = float64(MaxBonus-MinBonus) / float64(MaxBonusDays-MinBonusDays)
)

// Rewards holds the global point values.
type Rewards struct {
	DailyCheckReward int
	NudgeReward      int
}

// DefaultRewards returns the stock reward values.
func DefaultRewards() Rewards {
	return Rewards{DailyCheckReward: 5, NudgeReward: 5}
}

// ChallengeTally is what points are computed from for one user in one challenge.
type ChallengeTally struct {
	ChallengeID    shared.ChallengeID
	IsLongTerm     bool
	DurationDays   int
	CompletedCount int
	IsCompleted    bool
	Config         challenge.PointsConfig
}

// CompletionBonus interpolates linearly from 100 points at 30 days to 500
// points at 365 days, clamped at both ends and rounded to the nearest point.
func CompletionBonus(durationDays int) int {
	raw := MinBonus + float64(durationDays-MinBonusDays)*bonusPerDaySpan
	raw = math.Max(MinBonus, math.Min(MaxBonus, raw))
	return int(math.Round(raw))
}

// ChallengePoints returns the points earned in one challenge.
// A challenge-level reward overrides the global one when set.
func ChallengePoints(t ChallengeTally, r Rewards) int {
	if !t.IsLongTerm {
		reward := r.DailyCheckReward
		if t.Config.PerCheck > 0 {
			reward = t.Config.PerCheck
		}
		return t.CompletedCount * reward
	}

	reward := r.NudgeReward
	if t.Config.PerNudge > 0 {
		reward = t.Config.PerNudge
	}
	points := t.CompletedCount * reward
	if t.IsCompleted {
		points += CompletionBonus(t.DurationDays)
	}
	return points
}

// TotalPoints sums ChallengePoints over all tallies.
func TotalPoints(tallies []ChallengeTally, r Rewards) int {
	total := 0
	for _, t := range tallies {
		total += ChallengePoints(t, r)
	}
	return total
}

// Tally builds the tally for one user from a membership and the user's records.
func Tally(m challenge.Membership, records []checkin.Record) ChallengeTally {
	c := m.Challenge
	t := ChallengeTally{
		ChallengeID:  c.ID,
		IsLongTerm:   c.IsLongTerm,
		DurationDays: c.DurationDays,
		Config:       c.PointsConfig,
	}
	if m.Participant != nil {
		t.IsCompleted = c.IsLongTerm && m.Participant.IsCompleted()
	}
	for _, r := range records {
		if r.ChallengeID == c.ID && r.Completed && !r.Date.IsZero() {
			t.CompletedCount++
		}
	}
	return t
}

// Tallies builds tallies for every membership.
func Tallies(memberships []challenge.Membership, records []checkin.Record) []ChallengeTally {
	out := make([]ChallengeTally, 0, len(memberships))
	for _, m := range memberships {
		if m.Challenge == nil {
			continue
		}
		out = append(out, Tally(m, records))
	}
	return out
}
