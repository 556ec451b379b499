package command

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-hub/aura-hub/internal/application/query"
	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/gamification"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
	"github.com/aura-hub/aura-hub/internal/infrastructure/persistence/memory"
	"github.com/aura-hub/aura-hub/pkg/timeutil"
)

const (
	alice = shared.UserID("aaaaaaaa-0000-4000-8000-000000000001")
	bob   = shared.UserID("bbbbbbbb-0000-4000-8000-000000000002")
	carol = shared.UserID("cccccccc-0000-4000-8000-000000000003")
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store      *memory.Store
	clock      *timeutil.FixedClock
	challenges *ChallengeHandlers
	checks     *RecordCheckHandler
}

func newFixture(t *testing.T, random io.Reader) *fixture {
	t.Helper()
	store := memory.New()
	clock := timeutil.NewFixedClock(now)
	return &fixture{
		store: store,
		clock: clock,
		challenges: NewChallengeHandlers(ChallengeHandlersConfig{
			Challenges:   store.Challenges(),
			Participants: store.Participants(),
			Checks:       store.Checks(),
			Users:        store.Users(),
			Cache:        store.RankingCache(),
			Clock:        clock,
			Random:       random,
		}),
		checks: NewRecordCheckHandler(store.Challenges(), store.Participants(), store.Checks(), store.Users(),
			store.RankingCache(), clock, nil),
	}
}

// codes returns a reader yielding the given invite codes in order.
func codes(hexCodes ...[]byte) io.Reader {
	return bytes.NewReader(bytes.Join(hexCodes, nil))
}

func (f *fixture) create(t *testing.T, cmd CreateChallengeCommand) *challenge.Challenge {
	t.Helper()
	if cmd.Title == "" {
		cmd.Title = "Morning run"
	}
	c, err := f.challenges.CreateChallenge(context.Background(), cmd)
	require.NoError(t, err)
	return c
}

func (f *fixture) check(t *testing.T, userID shared.UserID, challengeID shared.ChallengeID, day string, completed bool) *RecordCheckResult {
	t.Helper()
	res, err := f.checks.Handle(context.Background(), RecordCheckCommand{
		UserID:      userID,
		ChallengeID: challengeID,
		Date:        shared.MustParseDate(day),
		Completed:   completed,
	})
	require.NoError(t, err)
	return res
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD CHECK
// ══════════════════════════════════════════════════════════════════════════════

func TestRecordCheck_UpdatesStreak(t *testing.T) {
	f := newFixture(t, nil)
	c := f.create(t, CreateChallengeCommand{OwnerID: alice})

	f.check(t, alice, c.ID, "2024-03-08", true)
	f.check(t, alice, c.ID, "2024-03-09", true)
	res := f.check(t, alice, c.ID, "2024-03-10", true)

	assert.Equal(t, 3, res.CurrentStreak)
	assert.Equal(t, gamification.AuraStable, res.Aura)
	assert.True(t, res.Record.Completed)
	assert.NotEmpty(t, res.Record.ID)

	u, err := f.store.Users().GetByID(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, 3, u.CurrentStreak)
	assert.Equal(t, 2, u.PreviousStreak)
	assert.Equal(t, shared.MustParseDate("2024-03-10"), u.LastCheckDate)
}

func TestRecordCheck_ReplayIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	c := f.create(t, CreateChallengeCommand{OwnerID: alice})

	first := f.check(t, alice, c.ID, "2024-03-10", true)
	second := f.check(t, alice, c.ID, "2024-03-10", true)

	assert.Equal(t, first.Record.ID, second.Record.ID)
	assert.Equal(t, first.CurrentStreak, second.CurrentStreak)

	records, err := f.store.Checks().ListByChallenge(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRecordCheck_UncheckRecomputes(t *testing.T) {
	f := newFixture(t, nil)
	c := f.create(t, CreateChallengeCommand{OwnerID: alice})

	f.check(t, alice, c.ID, "2024-03-08", true)
	f.check(t, alice, c.ID, "2024-03-09", true)
	f.check(t, alice, c.ID, "2024-03-10", true)
	res := f.check(t, alice, c.ID, "2024-03-10", false)

	assert.Equal(t, 2, res.CurrentStreak)
	assert.False(t, res.Record.Completed)

	records, err := f.store.Checks().ListByUser(context.Background(), alice)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestRecordCheck_InvalidatesCachedRanking(t *testing.T) {
	f := newFixture(t, nil)
	c := f.create(t, CreateChallengeCommand{OwnerID: alice})
	ctx := context.Background()
	today := shared.DateOf(now)

	require.NoError(t, f.store.RankingCache().Set(ctx, c.ID, today, nil))
	f.check(t, alice, c.ID, "2024-03-10", true)

	_, err := f.store.RankingCache().Get(ctx, c.ID, today)
	assert.True(t, shared.IsNotFound(err))
}

// rankingOf reads the challenge ranking through the cached query path.
func (f *fixture) rankingOf(t *testing.T, challengeID shared.ChallengeID) *query.GetRankingResult {
	t.Helper()
	h := query.NewGetRankingHandler(query.GetRankingConfig{
		Challenges:   f.store.Challenges(),
		Participants: f.store.Participants(),
		Checks:       f.store.Checks(),
		Users:        f.store.Users(),
		Cache:        f.store.RankingCache(),
		Rewards:      gamification.DefaultRewards(),
		Clock:        f.clock,
	})
	res, err := h.Handle(context.Background(), query.GetRankingQuery{ChallengeID: challengeID})
	require.NoError(t, err)
	return res
}

func TestRecordCheck_StreakChangeRefreshesOtherRankings(t *testing.T) {
	f := newFixture(t, nil)
	a := f.create(t, CreateChallengeCommand{OwnerID: alice, Title: "Run"})
	b := f.create(t, CreateChallengeCommand{OwnerID: alice, Title: "Read"})

	f.check(t, alice, b.ID, "2024-03-10", true)

	first := f.rankingOf(t, b.ID)
	require.Len(t, first.Entries, 1)
	assert.Equal(t, 1, first.Entries[0].CurrentStreak)
	assert.Equal(t, gamification.AuraWeak, first.Entries[0].Aura)
	require.True(t, f.rankingOf(t, b.ID).Cached)

	f.check(t, alice, a.ID, "2024-03-08", true)
	f.check(t, alice, a.ID, "2024-03-09", true)
	f.check(t, alice, a.ID, "2024-03-10", true)

	after := f.rankingOf(t, b.ID)
	assert.False(t, after.Cached)
	require.Len(t, after.Entries, 1)
	assert.Equal(t, 3, after.Entries[0].CurrentStreak)
	assert.Equal(t, gamification.AuraStable, after.Entries[0].Aura)
	assert.Equal(t, 1, after.Entries[0].Count)
}

func TestRecordCheck_Errors(t *testing.T) {
	f := newFixture(t, nil)
	c := f.create(t, CreateChallengeCommand{OwnerID: alice})
	ctx := context.Background()

	_, err := f.checks.Handle(ctx, RecordCheckCommand{UserID: alice, ChallengeID: c.ID})
	assert.True(t, shared.IsValidation(err), "missing date")

	_, err = f.checks.Handle(ctx, RecordCheckCommand{UserID: "nope", ChallengeID: c.ID, Date: shared.DateOf(now)})
	assert.True(t, shared.IsValidation(err), "bad user id")

	_, err = f.checks.Handle(ctx, RecordCheckCommand{UserID: bob, ChallengeID: c.ID, Date: shared.DateOf(now), Completed: true})
	assert.True(t, shared.IsNotFound(err), "not a participant")

	_, err = f.checks.Handle(ctx, RecordCheckCommand{
		UserID: alice, ChallengeID: "dddddddd-0000-4000-8000-000000000009", Date: shared.DateOf(now), Completed: true,
	})
	assert.True(t, shared.IsNotFound(err), "unknown challenge")
}

// ══════════════════════════════════════════════════════════════════════════════
// CREATE
// ══════════════════════════════════════════════════════════════════════════════

func TestCreateChallenge_AssignsCodeAndJoinsOwner(t *testing.T) {
	f := newFixture(t, codes([]byte{0xab, 0xcd, 0xef}))
	ctx := context.Background()

	c := f.create(t, CreateChallengeCommand{OwnerID: alice, Title: "  Read daily  ", DurationDays: 0})

	assert.True(t, c.ID.IsValid())
	assert.Equal(t, challenge.InviteCode("ABCDEF"), c.InviteCode)
	assert.Equal(t, "Read daily", c.Title)
	assert.Equal(t, challenge.DefaultDurationDays, c.DurationDays)
	assert.Equal(t, alice, c.OwnerID)

	p, err := f.store.Participants().Get(ctx, c.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, now, p.JoinedAt)

	u, err := f.store.Users().GetByID(ctx, alice)
	require.NoError(t, err)
	assert.NotEmpty(t, u.DisplayName)
}

func TestCreateChallenge_RetriesOnCollision(t *testing.T) {
	f := newFixture(t, codes([]byte{0xab, 0xcd, 0xef}, []byte{0xab, 0xcd, 0xef}, []byte{0x12, 0x34, 0x56}))

	first := f.create(t, CreateChallengeCommand{OwnerID: alice})
	second := f.create(t, CreateChallengeCommand{OwnerID: bob})

	assert.Equal(t, challenge.InviteCode("ABCDEF"), first.InviteCode)
	assert.Equal(t, challenge.InviteCode("123456"), second.InviteCode)
}

func TestCreateChallenge_GivesUpAfterMaxAttempts(t *testing.T) {
	taken := []byte{0xab, 0xcd, 0xef}
	chunks := make([][]byte, 0, MaxInviteCodeAttempts+1)
	for range MaxInviteCodeAttempts + 1 {
		chunks = append(chunks, taken)
	}
	f := newFixture(t, codes(chunks...))
	f.create(t, CreateChallengeCommand{OwnerID: alice})

	_, err := f.challenges.CreateChallenge(context.Background(), CreateChallengeCommand{OwnerID: bob, Title: "Second"})
	assert.True(t, shared.IsConflict(err))
}

func TestCreateChallenge_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cases := map[string]CreateChallengeCommand{
		"blank title":    {OwnerID: alice, Title: "   "},
		"long duration":  {OwnerID: alice, Title: "x", DurationDays: 366},
		"bad owner":      {OwnerID: "alice", Title: "x"},
		"points too big": {OwnerID: alice, Title: "x", PointsConfig: challenge.PointsConfig{PerCheck: 1001}},
	}
	for name, cmd := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.challenges.CreateChallenge(ctx, cmd)
			assert.True(t, shared.IsValidation(err))
		})
	}

	all, err := f.store.Challenges().ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

// ══════════════════════════════════════════════════════════════════════════════
// JOIN / LEAVE
// ══════════════════════════════════════════════════════════════════════════════

func TestJoinChallenge_CaseInsensitiveAndIdempotent(t *testing.T) {
	f := newFixture(t, codes([]byte{0xab, 0xcd, 0xef}))
	c := f.create(t, CreateChallengeCommand{OwnerID: alice})
	ctx := context.Background()

	res, err := f.challenges.JoinChallenge(ctx, JoinChallengeCommand{UserID: bob, InviteCode: " abcdef "})
	require.NoError(t, err)
	assert.True(t, res.Joined)
	assert.Equal(t, c.ID, res.Challenge.ID)

	res, err = f.challenges.JoinChallenge(ctx, JoinChallengeCommand{UserID: bob, InviteCode: "ABCDEF"})
	require.NoError(t, err)
	assert.False(t, res.Joined)
	assert.Equal(t, c.ID, res.Challenge.ID)

	members, err := f.store.Participants().ListByChallenge(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestJoinChallenge_Errors(t *testing.T) {
	f := newFixture(t, codes([]byte{0xab, 0xcd, 0xef}))
	f.create(t, CreateChallengeCommand{OwnerID: alice})
	ctx := context.Background()

	_, err := f.challenges.JoinChallenge(ctx, JoinChallengeCommand{UserID: bob, InviteCode: "ABC"})
	assert.True(t, shared.IsValidation(err))

	_, err = f.challenges.JoinChallenge(ctx, JoinChallengeCommand{UserID: bob, InviteCode: "FFFFFF"})
	assert.True(t, shared.IsNotFound(err))
}

func TestLeaveChallenge_PrivateOwnerDeletes(t *testing.T) {
	f := newFixture(t, codes([]byte{0xab, 0xcd, 0xef}))
	c := f.create(t, CreateChallengeCommand{OwnerID: alice, IsPrivate: true})
	ctx := context.Background()

	_, err := f.challenges.JoinChallenge(ctx, JoinChallengeCommand{UserID: bob, InviteCode: "ABCDEF"})
	require.NoError(t, err)
	f.check(t, bob, c.ID, "2024-03-10", true)

	res, err := f.challenges.LeaveChallenge(ctx, LeaveChallengeCommand{UserID: alice, ChallengeID: c.ID})
	require.NoError(t, err)
	assert.True(t, res.Deleted)

	_, err = f.store.Challenges().GetByID(ctx, c.ID)
	assert.True(t, shared.IsNotFound(err))
	records, err := f.store.Checks().ListByUser(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLeaveChallenge_MemberLeavesOnlyEdge(t *testing.T) {
	f := newFixture(t, codes([]byte{0xab, 0xcd, 0xef}))
	c := f.create(t, CreateChallengeCommand{OwnerID: alice, IsPrivate: true})
	ctx := context.Background()

	_, err := f.challenges.JoinChallenge(ctx, JoinChallengeCommand{UserID: bob, InviteCode: "ABCDEF"})
	require.NoError(t, err)
	f.check(t, bob, c.ID, "2024-03-10", true)

	res, err := f.challenges.LeaveChallenge(ctx, LeaveChallengeCommand{UserID: bob, ChallengeID: c.ID})
	require.NoError(t, err)
	assert.False(t, res.Deleted)

	_, err = f.store.Challenges().GetByID(ctx, c.ID)
	require.NoError(t, err)
	_, err = f.store.Participants().Get(ctx, c.ID, bob)
	assert.True(t, shared.IsNotFound(err))

	u, err := f.store.Users().GetByID(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 0, u.CurrentStreak)
}

func TestLeaveChallenge_NotParticipant(t *testing.T) {
	f := newFixture(t, nil)
	c := f.create(t, CreateChallengeCommand{OwnerID: alice})

	_, err := f.challenges.LeaveChallenge(context.Background(), LeaveChallengeCommand{UserID: carol, ChallengeID: c.ID})
	assert.True(t, shared.IsNotFound(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE
// ══════════════════════════════════════════════════════════════════════════════

func TestCompleteChallenge_LongTerm(t *testing.T) {
	f := newFixture(t, nil)
	c := f.create(t, CreateChallengeCommand{OwnerID: alice, IsLongTerm: true, DurationDays: 200})
	ctx := context.Background()

	res, err := f.challenges.CompleteChallenge(ctx, CompleteChallengeCommand{UserID: alice, ChallengeID: c.ID})
	require.NoError(t, err)
	assert.Equal(t, now, res.CompletedAt)
	assert.Equal(t, 303, res.Bonus)
	require.NotNil(t, res.Record)
	assert.Equal(t, shared.DateOf(now), res.Record.Date)

	p, err := f.store.Participants().Get(ctx, c.ID, alice)
	require.NoError(t, err)
	require.NotNil(t, p.CompletedAt)

	records, err := f.store.Checks().ListByChallenge(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Completed)
	assert.Equal(t, shared.DateOf(now), records[0].Date)

	_, err = f.challenges.CompleteChallenge(ctx, CompleteChallengeCommand{UserID: alice, ChallengeID: c.ID})
	assert.True(t, shared.IsConflict(err))
}

func TestCompleteChallenge_DailyIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	c := f.create(t, CreateChallengeCommand{OwnerID: alice})

	_, err := f.challenges.CompleteChallenge(context.Background(), CompleteChallengeCommand{UserID: alice, ChallengeID: c.ID})
	assert.True(t, shared.IsValidation(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// UPSERT USER
// ══════════════════════════════════════════════════════════════════════════════

func TestUpsertUser(t *testing.T) {
	store := memory.New()
	clock := timeutil.NewFixedClock(now)
	h := NewUpsertUserHandler(store.Users(), store.Challenges(), store.RankingCache(), clock, nil, nil)
	ctx := context.Background()

	u, err := h.Handle(ctx, UpsertUserCommand{UserID: alice})
	require.NoError(t, err)
	generated := u.DisplayName
	assert.NotEmpty(t, generated)

	u, err = h.Handle(ctx, UpsertUserCommand{UserID: alice, DisplayName: " "})
	require.NoError(t, err)
	assert.Equal(t, generated, u.DisplayName, "blank name keeps the current one")

	u, err = h.Handle(ctx, UpsertUserCommand{UserID: alice, DisplayName: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.DisplayName)

	_, err = h.Handle(ctx, UpsertUserCommand{UserID: "alice"})
	assert.True(t, shared.IsValidation(err))
}

func TestUpsertUser_RenameRefreshesRankings(t *testing.T) {
	f := newFixture(t, nil)
	c := f.create(t, CreateChallengeCommand{OwnerID: alice})
	f.check(t, alice, c.ID, "2024-03-10", true)
	h := NewUpsertUserHandler(f.store.Users(), f.store.Challenges(), f.store.RankingCache(), f.clock, nil, nil)

	before := f.rankingOf(t, c.ID)
	require.Len(t, before.Entries, 1)
	require.NotEqual(t, "Alicia", before.Entries[0].DisplayName)
	require.True(t, f.rankingOf(t, c.ID).Cached)

	_, err := h.Handle(context.Background(), UpsertUserCommand{UserID: alice, DisplayName: "Alicia"})
	require.NoError(t, err)

	after := f.rankingOf(t, c.ID)
	assert.False(t, after.Cached)
	assert.Equal(t, "Alicia", after.Entries[0].DisplayName)
}
