package leaderboard

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/checkin"
	"github.com/aura-hub/aura-hub/internal/domain/gamification"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
	"github.com/aura-hub/aura-hub/internal/domain/user"
)

const (
	chal  = shared.ChallengeID("cccccccc-0000-4000-8000-000000000001")
	alice = shared.UserID("aaaaaaaa-0000-4000-8000-000000000001")
	bob   = shared.UserID("bbbbbbbb-0000-4000-8000-000000000002")
	carol = shared.UserID("cccccccc-1111-4000-8000-000000000003")
	dave  = shared.UserID("dddddddd-0000-4000-8000-000000000004")
)

var today = shared.MustParseDate("2024-03-10")

func participants(ids ...shared.UserID) []*challenge.Participant {
	out := make([]*challenge.Participant, 0, len(ids))
	for _, id := range ids {
		out = append(out, &challenge.Participant{UserID: id, ChallengeID: chal})
	}
	return out
}

func done(u shared.UserID, daysAgo ...int) []checkin.Record {
	out := make([]checkin.Record, 0, len(daysAgo))
	for _, d := range daysAgo {
		out = append(out, checkin.Record{UserID: u, ChallengeID: chal, Date: today.AddDays(-d), Completed: true})
	}
	return out
}

func concat(parts ...[]checkin.Record) []checkin.Record {
	var out []checkin.Record
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func dailyInput(records []checkin.Record, ids ...shared.UserID) BuildInput {
	return BuildInput{
		Challenge:    &challenge.Challenge{ID: chal, DurationDays: 30},
		Participants: participants(ids...),
		Records:      records,
		Today:        today,
		Rewards:      gamification.DefaultRewards(),
	}
}

func TestSharedRanks(t *testing.T) {
	assert.Equal(t, []Rank{1, 1, 3}, SharedRanks([]int{5, 5, 3}))
	assert.Equal(t, []Rank{3, 1, 1, 4}, SharedRanks([]int{3, 5, 5, 0}))
	assert.Empty(t, SharedRanks(nil))
}

func TestBuild_DailyTiesAreNotCompressed(t *testing.T) {
	records := concat(done(alice, 1, 2, 3), done(bob, 0, 1, 2), done(carol, 5))
	r := Build(dailyInput(records, alice, bob, carol))

	assert.Equal(t, Rank(1), r.Get(alice).CurrentRank)
	assert.Equal(t, Rank(1), r.Get(bob).CurrentRank)
	assert.Equal(t, Rank(3), r.Get(carol).CurrentRank)
	assert.Equal(t, 15, r.Get(alice).TotalPoints)
}

func TestBuild_IncludesZeroCountParticipants(t *testing.T) {
	records := concat(done(alice, 0), done(carol, 0))
	r := Build(dailyInput(records, alice, bob))

	require.Equal(t, 2, r.Count())
	assert.Equal(t, 0, r.Get(bob).Count)
	assert.Equal(t, Rank(2), r.Get(bob).CurrentRank)
	assert.Nil(t, r.Get(carol))
	assert.Equal(t, []shared.UserID{alice, bob}, []shared.UserID{r.All()[0].UserID, r.All()[1].UserID})
}

func TestBuild_DuplicateParticipantCountsOnce(t *testing.T) {
	records := concat(done(alice, 0, 1, 2, 3, 4), done(bob, 0, 1, 2))
	r := Build(dailyInput(records, alice, alice, bob))

	require.Equal(t, 2, r.Count())
	assert.Equal(t, Rank(1), r.Get(alice).CurrentRank)
	assert.Equal(t, Rank(2), r.Get(bob).CurrentRank)
	assert.Equal(t, 5, r.Get(alice).Count)
}

func TestBuild_DailyRankDelta(t *testing.T) {
	// Before today: alice 2, bob 1. Bob and carol check in today.
	records := concat(
		done(alice, 1, 2),
		done(bob, 3, 0),
		done(carol, 0),
	)
	r := Build(dailyInput(records, alice, bob, carol, dave))

	a, b, c, d := r.Get(alice), r.Get(bob), r.Get(carol), r.Get(dave)

	assert.Equal(t, Rank(1), a.PreviousRank)
	assert.Equal(t, Rank(1), a.CurrentRank)
	assert.Equal(t, RankChange(0), a.RankChange())

	assert.Equal(t, Rank(2), b.PreviousRank)
	assert.Equal(t, Rank(1), b.CurrentRank)
	assert.Equal(t, RankDirectionUp, b.Direction())

	// Previous ranking has two members, so newcomers start at 3.
	assert.Equal(t, Rank(3), c.PreviousRank)
	assert.Equal(t, Rank(3), c.CurrentRank)
	assert.Equal(t, Rank(3), d.PreviousRank)
	assert.Equal(t, Rank(4), d.CurrentRank)
	assert.Equal(t, RankDirectionDown, d.Direction())
}

func TestBuild_FirstEverCompletionMovesUp(t *testing.T) {
	records := concat(done(alice, 1), done(bob, 0), done(carol, 1, 2))
	r := Build(dailyInput(records, alice, bob, carol))

	assert.Equal(t, Rank(3), r.Get(bob).PreviousRank)
	assert.Equal(t, Rank(2), r.Get(bob).CurrentRank)
	assert.Greater(t, int(r.Get(bob).RankChange()), 0)
}

func TestBuild_StableUnderPermutation(t *testing.T) {
	records := concat(done(alice, 0, 1, 2), done(bob, 1), done(carol, 0, 1), done(dave, 0, 1))
	ids := []shared.UserID{alice, bob, carol, dave}
	want := Build(dailyInput(records, ids...))

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		rng.Shuffle(len(records), func(a, b int) { records[a], records[b] = records[b], records[a] })
		rng.Shuffle(len(ids), func(a, b int) { ids[a], ids[b] = ids[b], ids[a] })
		got := Build(dailyInput(records, ids...))

		for j, e := range want.All() {
			assert.Equal(t, e.UserID, got.All()[j].UserID)
			assert.Equal(t, e.CurrentRank, got.All()[j].CurrentRank)
			assert.Equal(t, e.PreviousRank, got.All()[j].PreviousRank)
		}
	}
}

func TestBuild_ReplayedRecordsDoNotDoubleCount(t *testing.T) {
	records := done(alice, 0, 1)
	replayed := append(append([]checkin.Record{}, records...), records...)

	once := Build(dailyInput(checkin.NewLog(records...).Records(), alice))
	twice := Build(dailyInput(checkin.NewLog(replayed...).Records(), alice))

	assert.Equal(t, once.Get(alice).Count, twice.Get(alice).Count)
	assert.Equal(t, once.Get(alice).TotalPoints, twice.Get(alice).TotalPoints)
}

func TestBuild_DisplayNameAndAura(t *testing.T) {
	in := dailyInput(done(alice, 0), alice, bob)
	in.Users = map[shared.UserID]*user.User{
		alice: {ID: alice, DisplayName: "Cosmic Sage", CurrentStreak: 8},
		bob:   {ID: bob, DisplayName: "Unknown"},
	}
	r := Build(in)

	assert.Equal(t, "Cosmic Sage", r.Get(alice).DisplayName)
	assert.Equal(t, gamification.AuraStrong, r.Get(alice).Aura)
	assert.Equal(t, "User bbbbbb...", r.Get(bob).DisplayName)
	assert.Equal(t, gamification.AuraInactive, r.Get(bob).Aura)
}

func TestBuild_LongTermOrdering(t *testing.T) {
	early := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	late := early.Add(48 * time.Hour)

	parts := participants(alice, bob, carol, dave)
	parts[1].CompletedAt = &late
	parts[3].CompletedAt = &early

	in := BuildInput{
		Challenge:    &challenge.Challenge{ID: chal, IsLongTerm: true, DurationDays: 365},
		Participants: parts,
		Records:      concat(done(alice, 1, 2, 3), done(bob, 1), done(carol, 1, 2, 3)),
		Today:        today,
		Rewards:      gamification.DefaultRewards(),
	}
	r := Build(in)

	order := make([]shared.UserID, 0, 4)
	for _, e := range r.All() {
		order = append(order, e.UserID)
	}
	assert.Equal(t, []shared.UserID{dave, bob, alice, carol}, order)

	assert.Equal(t, Rank(1), r.Get(dave).CurrentRank)
	assert.Equal(t, Rank(2), r.Get(bob).CurrentRank)
	assert.Equal(t, Rank(3), r.Get(alice).CurrentRank)
	assert.Equal(t, Rank(3), r.Get(carol).CurrentRank)

	for _, e := range r.All() {
		assert.Equal(t, RankChange(0), e.RankChange())
	}
	assert.Equal(t, 5+500, r.Get(bob).TotalPoints)
	assert.True(t, r.Get(dave).IsCompleted)
	assert.False(t, r.Get(alice).IsCompleted)
}

func TestRanking_Helpers(t *testing.T) {
	records := concat(done(alice, 0, 1, 2), done(bob, 0, 1), done(carol, 0))
	r := Build(dailyInput(records, alice, bob, carol, dave))

	assert.Len(t, r.Top(2), 2)
	assert.Len(t, r.Top(10), 4)
	assert.Nil(t, r.Top(0))
	assert.Len(t, r.Neighbors(carol, 1), 3)
	assert.Nil(t, r.Neighbors("missing", 1))
	assert.ErrorIs(t, r.Add(&Entry{UserID: alice}), ErrDuplicateUser)
	assert.ErrorIs(t, r.Add(nil), ErrNilEntry)
}

func TestRankChange_String(t *testing.T) {
	assert.Equal(t, "+3", RankChange(3).String())
	assert.Equal(t, "-2", RankChange(-2).String())
	assert.Equal(t, "±0", RankChange(0).String())
}
