package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/checkin"
	"github.com/aura-hub/aura-hub/internal/domain/leaderboard"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

const (
	owner  = shared.UserID("aaaaaaaa-0000-4000-8000-000000000001")
	member = shared.UserID("bbbbbbbb-0000-4000-8000-000000000002")
	first  = shared.ChallengeID("dddddddd-0000-4000-8000-000000000001")
	second = shared.ChallengeID("dddddddd-0000-4000-8000-000000000002")
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func mustCreate(t *testing.T, s *Store, id shared.ChallengeID, code string, createdAt time.Time) {
	t.Helper()
	c := &challenge.Challenge{ID: id, Title: "t", OwnerID: owner, InviteCode: challenge.InviteCode(code), CreatedAt: createdAt, DurationDays: 30}
	require.NoError(t, s.Challenges().Create(context.Background(), c, &challenge.Participant{UserID: owner, ChallengeID: id, JoinedAt: createdAt}))
}

func TestChallengeRepo_InviteCodeCollisionIsCaseInsensitive(t *testing.T) {
	s := New()
	ctx := context.Background()
	mustCreate(t, s, first, "ABCDEF", now)

	err := s.Challenges().Create(ctx, &challenge.Challenge{ID: second, InviteCode: "abcdef", CreatedAt: now}, nil)
	assert.True(t, shared.IsConflict(err))

	exists, err := s.Challenges().InviteCodeExists(ctx, "ABCDEF")
	require.NoError(t, err)
	assert.True(t, exists)

	c, err := s.Challenges().GetByInviteCode(ctx, "ABCDEF")
	require.NoError(t, err)
	assert.Equal(t, first, c.ID)
}

func TestChallengeRepo_DeleteCascades(t *testing.T) {
	s := New()
	ctx := context.Background()
	mustCreate(t, s, first, "AAAAAA", now)
	mustCreate(t, s, second, "BBBBBB", now)

	day := shared.DateOf(now)
	_, err := s.Checks().Upsert(ctx, &checkin.Record{UserID: owner, ChallengeID: first, Date: day, Completed: true})
	require.NoError(t, err)
	_, err = s.Checks().Upsert(ctx, &checkin.Record{UserID: owner, ChallengeID: second, Date: day, Completed: true})
	require.NoError(t, err)
	require.NoError(t, s.Snapshots().Save(ctx, &leaderboard.Snapshot{ChallengeID: first, Date: day}))
	require.NoError(t, s.RankingCache().Set(ctx, first, day, nil))

	require.NoError(t, s.Challenges().Delete(ctx, first))

	_, err = s.Challenges().GetByID(ctx, first)
	assert.True(t, shared.IsNotFound(err))
	_, err = s.Participants().Get(ctx, first, owner)
	assert.True(t, shared.IsNotFound(err))
	_, err = s.Snapshots().Get(ctx, first, day)
	assert.ErrorIs(t, err, leaderboard.ErrSnapshotNotFound)
	_, err = s.RankingCache().Get(ctx, first, day)
	assert.True(t, shared.IsNotFound(err))

	records, err := s.Checks().ListByUser(ctx, owner)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, second, records[0].ChallengeID)
}

func TestChallengeRepo_ListForUserOrdersByCreation(t *testing.T) {
	s := New()
	ctx := context.Background()
	mustCreate(t, s, second, "BBBBBB", now.Add(-time.Hour))
	mustCreate(t, s, first, "AAAAAA", now)

	ms, err := s.Challenges().ListForUser(ctx, owner)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, second, ms[0].Challenge.ID)
	assert.Equal(t, first, ms[1].Challenge.ID)
	assert.Equal(t, owner, ms[0].Participant.UserID)
}

func TestParticipantRepo(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Participants().Add(ctx, &challenge.Participant{UserID: member, ChallengeID: first})
	assert.True(t, shared.IsNotFound(err), "unknown challenge")

	mustCreate(t, s, first, "AAAAAA", now)
	created, err := s.Participants().Add(ctx, &challenge.Participant{UserID: member, ChallengeID: first, JoinedAt: now})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = s.Participants().Add(ctx, &challenge.Participant{UserID: member, ChallengeID: first, JoinedAt: now})
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, s.Participants().MarkCompleted(ctx, first, member, now))
	err = s.Participants().MarkCompleted(ctx, first, member, now)
	assert.True(t, shared.IsConflict(err))

	require.NoError(t, s.Participants().Remove(ctx, first, member))
	assert.True(t, shared.IsNotFound(s.Participants().Remove(ctx, first, member)))
}

func TestCheckRepo_UpsertByNaturalKeyAndID(t *testing.T) {
	s := New()
	ctx := context.Background()
	mustCreate(t, s, first, "AAAAAA", now)
	day := shared.DateOf(now)

	a, err := s.Checks().Upsert(ctx, &checkin.Record{UserID: owner, ChallengeID: first, Date: day, Completed: true, UpdatedAt: now})
	require.NoError(t, err)
	b, err := s.Checks().Upsert(ctx, &checkin.Record{UserID: owner, ChallengeID: first, Date: day, Completed: false, UpdatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.False(t, b.Completed)

	// An explicit id moves the record to the new natural key.
	moved, err := s.Checks().Upsert(ctx, &checkin.Record{ID: a.ID, UserID: owner, ChallengeID: first, Date: day.AddDays(-1), Completed: true})
	require.NoError(t, err)
	assert.Equal(t, a.ID, moved.ID)
	assert.False(t, moved.UpdatedAt.IsZero())

	records, err := s.Checks().ListByChallenge(ctx, first)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, day.AddDays(-1), records[0].Date)

	completed, err := s.Checks().ListCompletedOn(ctx, []shared.ChallengeID{first}, day.AddDays(-1))
	require.NoError(t, err)
	assert.Len(t, completed, 1)

	_, err = s.Checks().Upsert(ctx, &checkin.Record{UserID: owner, ChallengeID: second, Date: day})
	assert.True(t, shared.IsNotFound(err))
}

func TestUserRepo_UpsertKeepsNameWhenBlank(t *testing.T) {
	s := New()
	ctx := context.Background()

	u, err := s.Users().Upsert(ctx, owner, "", "Bright Falcon", now)
	require.NoError(t, err)
	assert.Equal(t, "Bright Falcon", u.DisplayName)

	u, err = s.Users().Upsert(ctx, owner, "", "Other Name", now)
	require.NoError(t, err)
	assert.Equal(t, "Bright Falcon", u.DisplayName)

	u, err = s.Users().Upsert(ctx, owner, "Ann", "", now)
	require.NoError(t, err)
	assert.Equal(t, "Ann", u.DisplayName)

	many, err := s.Users().GetMany(ctx, []shared.UserID{owner, member})
	require.NoError(t, err)
	assert.Len(t, many, 1)
}

func TestSnapshotRepo_LatestAndPrune(t *testing.T) {
	s := New()
	ctx := context.Background()
	day := shared.DateOf(now)
	for _, d := range []int{-3, -2, 0} {
		require.NoError(t, s.Snapshots().Save(ctx, &leaderboard.Snapshot{ChallengeID: first, Date: day.AddDays(d)}))
	}

	latest, err := s.Snapshots().Latest(ctx, first, day)
	require.NoError(t, err)
	assert.Equal(t, day.AddDays(-2), latest.Date)

	n, err := s.Snapshots().Prune(ctx, day.AddDays(-2))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Snapshots().Latest(ctx, first, day.AddDays(-2))
	assert.True(t, shared.IsNotFound(err))
}
