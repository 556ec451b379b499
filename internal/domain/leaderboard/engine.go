package leaderboard

import (
	"sort"
	"time"

	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/checkin"
	"github.com/aura-hub/aura-hub/internal/domain/gamification"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
	"github.com/aura-hub/aura-hub/internal/domain/user"
)

// BuildInput - всё, что нужно для построения рейтинга одного челленджа.
type BuildInput struct {
	Challenge    *challenge.Challenge
	Participants []*challenge.Participant
	Records      []checkin.Record
	Users        map[shared.UserID]*user.User
	Today        shared.Date
	Rewards      gamification.Rewards
}

// Build строит рейтинг челленджа. Каждый участник попадает в рейтинг,
// даже без единой отметки. Отметки не-участников игнорируются.
// Повторы участника схлопываются в первое вхождение.
// Функция чистая: входные данные не изменяются.
func Build(in BuildInput) *Ranking {
	c := in.Challenge
	r := NewRanking(c.ID, c.IsLongTerm)

	participants := uniqueParticipants(in.Participants)
	members := make(map[shared.UserID]bool, len(participants))
	for _, p := range participants {
		members[p.UserID] = true
	}

	var memberRecords []checkin.Record
	for _, rec := range in.Records {
		if rec.ChallengeID == c.ID && members[rec.UserID] {
			memberRecords = append(memberRecords, rec)
		}
	}
	counts := checkin.CountCompletedByUser(memberRecords)

	entries := make([]*Entry, 0, len(participants))
	for _, p := range participants {
		e := &Entry{
			UserID: p.UserID,
			Count:  counts[p.UserID],
		}
		if c.IsLongTerm && p.CompletedAt != nil {
			at := *p.CompletedAt
			e.CompletedAt = &at
			e.IsCompleted = true
		}

		name := ""
		if u, ok := in.Users[p.UserID]; ok && u != nil {
			name = u.DisplayName
			e.CurrentStreak = u.CurrentStreak
		}
		e.DisplayName = user.DisplayLabel(p.UserID, name)
		e.Aura = gamification.Classify(e.CurrentStreak)

		e.TotalPoints = gamification.ChallengePoints(gamification.ChallengeTally{
			ChallengeID:    c.ID,
			IsLongTerm:     c.IsLongTerm,
			DurationDays:   c.DurationDays,
			CompletedCount: e.Count,
			IsCompleted:    e.IsCompleted,
			Config:         c.PointsConfig,
		}, in.Rewards)

		entries = append(entries, e)
	}

	if c.IsLongTerm {
		rankLongTerm(entries)
	} else {
		previous := checkin.CountCompletedByUser(checkin.Before(memberRecords, in.Today))
		rankDaily(entries, previous)
	}

	r.entries = entries
	for _, e := range entries {
		r.byID[e.UserID] = e
	}
	return r
}

// uniqueParticipants оставляет первое вхождение каждого пользователя.
// nil-участники отбрасываются.
func uniqueParticipants(in []*challenge.Participant) []*challenge.Participant {
	seen := make(map[shared.UserID]bool, len(in))
	out := make([]*challenge.Participant, 0, len(in))
	for _, p := range in {
		if p == nil || seen[p.UserID] {
			continue
		}
		seen[p.UserID] = true
		out = append(out, p)
	}
	return out
}

// rankDaily assigns shared ranks by count and sorts by count descending.
// previous holds counts from records dated before today.
func rankDaily(entries []*Entry, previous map[shared.UserID]int) {
	current := make([]int, len(entries))
	before := make([]int, len(entries))
	for i, e := range entries {
		current[i] = e.Count
		before[i] = previous[e.UserID]
	}
	currentRanks := SharedRanks(current)
	previousRanks := SharedRanks(before)
	for i, e := range entries {
		e.CurrentRank = currentRanks[i]
		e.PreviousRank = previousRanks[i]
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return tieBreak(a, b)
	})
}

// rankLongTerm orders finishers first (earliest first), then the rest by
// nudge count. Equal keys share a rank. No day-boundary delta exists, so
// the previous rank always equals the current one.
func rankLongTerm(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if c := compareLongTerm(a, b); c != 0 {
			return c < 0
		}
		return tieBreak(a, b)
	})

	for i, e := range entries {
		if i > 0 && compareLongTerm(entries[i-1], e) == 0 {
			e.CurrentRank = entries[i-1].CurrentRank
		} else {
			e.CurrentRank = Rank(i + 1)
		}
		e.PreviousRank = e.CurrentRank
	}
}

// compareLongTerm returns -1 when a is strictly ahead of b.
func compareLongTerm(a, b *Entry) int {
	switch {
	case a.IsCompleted && !b.IsCompleted:
		return -1
	case !a.IsCompleted && b.IsCompleted:
		return 1
	case a.IsCompleted && b.IsCompleted:
		return compareTime(*a.CompletedAt, *b.CompletedAt)
	case a.Count != b.Count:
		if a.Count > b.Count {
			return -1
		}
		return 1
	default:
		return 0
	}
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

func tieBreak(a, b *Entry) bool {
	if a.DisplayName != b.DisplayName {
		return a.DisplayName < b.DisplayName
	}
	return a.UserID < b.UserID
}

// SharedRanks returns, for each score, 1 + the number of strictly greater
// scores. Equal scores share a rank and ranks are not compressed:
// [5,5,3] gives [1,1,3].
func SharedRanks(scores []int) []Rank {
	sorted := make([]int, len(scores))
	copy(sorted, scores)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))

	ranks := make([]Rank, len(scores))
	for i, s := range scores {
		greater := sort.Search(len(sorted), func(k int) bool { return sorted[k] <= s })
		ranks[i] = Rank(greater + 1)
	}
	return ranks
}
