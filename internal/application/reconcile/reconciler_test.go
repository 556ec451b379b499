package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/checkin"
	"github.com/aura-hub/aura-hub/internal/domain/gamification"
	"github.com/aura-hub/aura-hub/internal/domain/leaderboard"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
	"github.com/aura-hub/aura-hub/pkg/timeutil"
)

const (
	me      = shared.UserID("aaaaaaaa-0000-4000-8000-000000000001")
	friend  = shared.UserID("bbbbbbbb-0000-4000-8000-000000000002")
	lurker  = shared.UserID("dddddddd-0000-4000-8000-000000000003")
	running = shared.ChallengeID("cccccccc-0000-4000-8000-000000000001")
	reading = shared.ChallengeID("cccccccc-0000-4000-8000-000000000002")
)

var (
	now   = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	today = shared.DateOf(now)
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKE STORE
// ══════════════════════════════════════════════════════════════════════════════

type fakeStore struct {
	mu         sync.Mutex
	challenges map[shared.ChallengeID]*challenge.Challenge
	members    map[shared.ChallengeID]map[shared.UserID]*challenge.Participant
	records    *checkin.Log
	seq        int

	listErr    error
	upsertErr  error
	joinErr    error
	rankingErr error
	gate       chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		challenges: make(map[shared.ChallengeID]*challenge.Challenge),
		members:    make(map[shared.ChallengeID]map[shared.UserID]*challenge.Participant),
		records:    checkin.NewLog(),
	}
}

func (f *fakeStore) addChallenge(id shared.ChallengeID, longTerm bool, users ...shared.UserID) *challenge.Challenge {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &challenge.Challenge{ID: id, Title: string(id[:8]), OwnerID: users[0], InviteCode: challenge.InviteCode("ABC" + string(id[len(id)-3:])),
		CreatedAt: now.AddDate(0, 0, -20), DurationDays: 30, IsLongTerm: longTerm}
	f.challenges[id] = c
	f.members[id] = make(map[shared.UserID]*challenge.Participant)
	for _, u := range users {
		f.members[id][u] = &challenge.Participant{UserID: u, ChallengeID: id, JoinedAt: c.CreatedAt}
	}
	return c
}

func (f *fakeStore) put(u shared.UserID, c shared.ChallengeID, daysAgo ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range daysAgo {
		f.seq++
		f.records.Upsert(checkin.Record{ID: "srv", UserID: u, ChallengeID: c, Date: today.AddDays(-d), Completed: true})
	}
}

func (f *fakeStore) ListChallengesForUser(_ context.Context, userID shared.UserID) ([]challenge.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []challenge.Membership
	for _, id := range []shared.ChallengeID{running, reading} {
		if p, ok := f.members[id][userID]; ok {
			cp := *p
			out = append(out, challenge.Membership{Challenge: f.challenges[id], Participant: &cp})
		}
	}
	return out, nil
}

func (f *fakeStore) ListRecordsByUser(_ context.Context, userID shared.UserID) ([]checkin.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return checkin.ForUser(f.records.Records(), userID), nil
}

func (f *fakeStore) ListRecordsByChallenge(_ context.Context, id shared.ChallengeID) ([]checkin.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return checkin.ForChallenge(f.records.Records(), id), nil
}

func (f *fakeStore) UpsertRecord(_ context.Context, rec checkin.Record) (*checkin.Record, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	rec.ID = "srv"
	rec.UpdatedAt = now
	f.records.Upsert(rec)
	return &rec, nil
}

func (f *fakeStore) CreateChallenge(_ context.Context, p challenge.NewChallengeParams) (*challenge.Challenge, error) {
	p.ID = reading
	p.InviteCode = "NEW001"
	p.CreatedAt = now
	c, err := challenge.NewChallenge(p)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.challenges[c.ID] = c
	f.members[c.ID] = map[shared.UserID]*challenge.Participant{p.OwnerID: {UserID: p.OwnerID, ChallengeID: c.ID, JoinedAt: now}}
	return c, nil
}

func (f *fakeStore) JoinChallenge(_ context.Context, code challenge.InviteCode, userID shared.UserID) (*challenge.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return nil, f.joinErr
	}
	for id, c := range f.challenges {
		if c.InviteCode == code {
			if _, ok := f.members[id][userID]; !ok {
				f.members[id][userID] = &challenge.Participant{UserID: userID, ChallengeID: id, JoinedAt: now}
			}
			return c, nil
		}
	}
	return nil, shared.NewDomainError("challenge", "Join", shared.ErrNotFound, "invite code not found")
}

func (f *fakeStore) LeaveChallenge(_ context.Context, id shared.ChallengeID, userID shared.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.members[id][userID]; !ok {
		return shared.NewDomainError("challenge", "Leave", shared.ErrNotFound, "not a participant")
	}
	delete(f.members[id], userID)
	return nil
}

func (f *fakeStore) CompleteChallenge(_ context.Context, id shared.ChallengeID, userID shared.UserID) (time.Time, *checkin.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.members[id][userID]
	if !ok {
		return time.Time{}, nil, shared.NewDomainError("challenge", "Complete", shared.ErrNotFound, "not a participant")
	}
	if err := p.Complete(f.challenges[id], now); err != nil {
		return time.Time{}, nil, err
	}
	rec := checkin.Record{ID: "srv", UserID: userID, ChallengeID: id, Date: today, Completed: true, UpdatedAt: now}
	f.records.Upsert(rec)
	return now, &rec, nil
}

// GetRanking ranks every member the way the server does.
func (f *fakeStore) GetRanking(_ context.Context, id shared.ChallengeID) ([]*leaderboard.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rankingErr != nil {
		return nil, f.rankingErr
	}
	c, ok := f.challenges[id]
	if !ok {
		return nil, shared.NewDomainError("challenge", "GetRanking", shared.ErrNotFound, "challenge not found")
	}
	var participants []*challenge.Participant
	for _, u := range []shared.UserID{me, friend, lurker} {
		if p, ok := f.members[id][u]; ok {
			cp := *p
			participants = append(participants, &cp)
		}
	}
	return leaderboard.Build(leaderboard.BuildInput{
		Challenge:    c,
		Participants: participants,
		Records:      checkin.ForChallenge(f.records.Records(), id),
		Today:        today,
		Rewards:      gamification.DefaultRewards(),
	}).All(), nil
}

func newReconciler(t *testing.T, store *fakeStore) *Reconciler {
	t.Helper()
	return New(store, me, Options{Clock: timeutil.NewFixedClock(now)})
}

func synced(t *testing.T, store *fakeStore) *Reconciler {
	t.Helper()
	r := newReconciler(t, store)
	require.NoError(t, r.SyncFromServer(context.Background()))
	return r
}

func checked(v *View, c shared.ChallengeID, day shared.Date) bool {
	rec, ok := v.Record(checkin.Key{UserID: me, ChallengeID: c, Date: day})
	return ok && rec.Completed
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestSyncFromServer_BuildsView(t *testing.T) {
	store := newFakeStore()
	store.addChallenge(running, false, me, friend)
	store.put(me, running, 1, 2, 3)
	store.put(friend, running, 0, 1)

	r := synced(t, store)
	v := r.Snapshot()

	assert.Len(t, v.Challenges(), 1)
	assert.Len(t, v.Records(running), 5)
	assert.Len(t, v.UserRecords(), 3)
	assert.Equal(t, 3, r.Streak(today))
	assert.Equal(t, 15, r.Points(gamification.DefaultRewards()))

	ranking := r.LocalRanking(running, nil, today, gamification.DefaultRewards())
	assert.Equal(t, 2, ranking.Count())
	assert.Equal(t, 3, ranking.Get(me).Count)
}

func TestSyncFromServer_IdenticalStateDoesNotSwap(t *testing.T) {
	store := newFakeStore()
	store.addChallenge(running, false, me)
	store.put(me, running, 0, 1)

	r := synced(t, store)
	before := r.Snapshot()

	require.NoError(t, r.SyncFromServer(context.Background()))
	assert.Same(t, before, r.Snapshot())

	store.put(me, running, 2)
	require.NoError(t, r.SyncFromServer(context.Background()))
	assert.NotSame(t, before, r.Snapshot())
	assert.NotEqual(t, before.Digest(), r.Snapshot().Digest())
}

func TestSyncFromServer_FailureKeepsLastGoodView(t *testing.T) {
	store := newFakeStore()
	store.addChallenge(running, false, me)
	store.put(me, running, 0)
	r := synced(t, store)
	before := r.Snapshot()

	store.listErr = errors.New("connection refused")
	err := r.SyncFromServer(context.Background())

	require.Error(t, err)
	assert.True(t, shared.IsTransient(err))
	assert.Same(t, before, r.Snapshot())
	assert.Equal(t, 1, r.Streak(today))
}

func TestApplyOptimistic_ConfirmAndRevert(t *testing.T) {
	store := newFakeStore()
	store.addChallenge(running, false, me)
	r := synced(t, store)

	id := r.ApplyOptimistic(SetCompletion{ChallengeID: running, Date: today, Completed: true})
	assert.True(t, checked(r.Snapshot(), running, today))
	st, _ := r.Status(id)
	assert.Equal(t, StatePending, st.State)

	require.NoError(t, r.Confirm(id))
	st, _ = r.Status(id)
	assert.Equal(t, StateConfirmed, st.State)

	second := r.ApplyOptimistic(SetCompletion{ChallengeID: running, Date: today.AddDays(-1), Completed: true})
	state, err := r.Fail(second, shared.NewDomainError("checkin", "Upsert", shared.ErrValidation, "bad date"))
	require.NoError(t, err)
	assert.Equal(t, StateReverted, state)
	assert.False(t, checked(r.Snapshot(), running, today.AddDays(-1)))
	assert.True(t, checked(r.Snapshot(), running, today))

	assert.ErrorIs(t, r.Confirm(second), shared.ErrConflict)
	assert.ErrorIs(t, r.Confirm(999), shared.ErrNotFound)
}

func TestFail_TransientKeepsPending(t *testing.T) {
	store := newFakeStore()
	store.addChallenge(running, false, me)
	r := synced(t, store)

	id := r.ApplyOptimistic(SetCompletion{ChallengeID: running, Date: today, Completed: true})
	before := r.Snapshot()

	state, err := r.Fail(id, shared.ErrTimeout)
	require.NoError(t, err)
	assert.Equal(t, StatePending, state)
	assert.Same(t, before, r.Snapshot())

	pending := r.Pending()
	require.Len(t, pending, 1)
	assert.ErrorIs(t, pending[0].Err, shared.ErrTimeout)
}

func TestFail_LaterMutationOnSameKeyWins(t *testing.T) {
	store := newFakeStore()
	store.addChallenge(running, false, me)
	r := synced(t, store)

	first := r.ApplyOptimistic(SetCompletion{ChallengeID: running, Date: today, Completed: true})
	r.ApplyOptimistic(SetCompletion{ChallengeID: running, Date: today, Completed: false})

	state, err := r.Fail(first, shared.ErrAlreadyExists)
	require.NoError(t, err)
	assert.Equal(t, StateReverted, state)

	rec, ok := r.Snapshot().Record(checkin.Key{UserID: me, ChallengeID: running, Date: today})
	require.True(t, ok)
	assert.False(t, rec.Completed)
}

func TestRemoveChallenge_RevertRestores(t *testing.T) {
	store := newFakeStore()
	store.addChallenge(running, false, me)
	store.put(me, running, 0, 1)
	r := synced(t, store)

	id := r.ApplyOptimistic(RemoveChallenge{ChallengeID: running})
	_, ok := r.Snapshot().Challenge(running)
	assert.False(t, ok)
	assert.Empty(t, r.Snapshot().Records(running))

	_, err := r.Fail(id, shared.ErrNotFound)
	require.NoError(t, err)
	_, ok = r.Snapshot().Challenge(running)
	assert.True(t, ok)
	assert.Len(t, r.Snapshot().Records(running), 2)
}

func TestPostCompletion_ConfirmsInBackground(t *testing.T) {
	store := newFakeStore()
	store.addChallenge(running, false, me)
	store.gate = make(chan struct{})
	r := synced(t, store)

	id := r.PostCompletion(context.Background(), running, today, true)
	assert.True(t, checked(r.Snapshot(), running, today))

	close(store.gate)
	r.Wait()

	st, ok := r.Status(id)
	require.True(t, ok)
	assert.Equal(t, StateConfirmed, st.State)
	rec, _ := r.Snapshot().Record(checkin.Key{UserID: me, ChallengeID: running, Date: today})
	assert.Equal(t, "srv", rec.ID)
}

func TestPostCompletion_DefinitiveFailureReverts(t *testing.T) {
	store := newFakeStore()
	store.addChallenge(running, false, me)
	store.upsertErr = shared.NewDomainError("checkin", "Upsert", shared.ErrNotFound, "challenge deleted")
	r := synced(t, store)

	id := r.PostCompletion(context.Background(), running, today, true)
	r.Wait()

	st, _ := r.Status(id)
	assert.Equal(t, StateReverted, st.State)
	assert.False(t, checked(r.Snapshot(), running, today))
}

func TestPostCompletion_ReplayDoesNotDoubleCount(t *testing.T) {
	store := newFakeStore()
	store.addChallenge(running, false, me)
	store.put(me, running, 1)
	r := synced(t, store)

	r.PostCompletion(context.Background(), running, today, true)
	r.Wait()
	streak, points := r.Streak(today), r.Points(gamification.DefaultRewards())

	r.PostCompletion(context.Background(), running, today, true)
	r.Wait()
	require.NoError(t, r.SyncFromServer(context.Background()))

	assert.Equal(t, streak, r.Streak(today))
	assert.Equal(t, points, r.Points(gamification.DefaultRewards()))
	assert.Equal(t, 2, streak)
}

func TestSyncFromServer_ConfirmsReflectedPending(t *testing.T) {
	store := newFakeStore()
	store.addChallenge(running, false, me)
	r := synced(t, store)

	id := r.ApplyOptimistic(SetCompletion{ChallengeID: running, Date: today, Completed: true})
	store.put(me, running, 0)
	require.NoError(t, r.SyncFromServer(context.Background()))

	st, _ := r.Status(id)
	assert.Equal(t, StateConfirmed, st.State)
	assert.Empty(t, r.Pending())
}

func TestSyncFromServer_ServerOverridesUnconfirmedGuess(t *testing.T) {
	store := newFakeStore()
	store.addChallenge(running, false, me)
	r := synced(t, store)

	id := r.ApplyOptimistic(SetCompletion{ChallengeID: running, Date: today, Completed: true})
	require.NoError(t, r.SyncFromServer(context.Background()))
	assert.False(t, checked(r.Snapshot(), running, today))

	// The rejected write was never applied by the store, so nothing to undo.
	before := r.Snapshot()
	state, err := r.Fail(id, shared.ErrValidation)
	require.NoError(t, err)
	assert.Equal(t, StateReverted, state)
	assert.Same(t, before, r.Snapshot())
}

func TestConfirmedOperations_WaitForStore(t *testing.T) {
	store := newFakeStore()
	store.addChallenge(running, true, friend)
	r := synced(t, store)
	assert.Empty(t, r.Snapshot().Challenges())

	store.joinErr = shared.ErrServiceUnavailable
	_, err := r.JoinChallenge(context.Background(), "ABC001")
	require.Error(t, err)
	assert.True(t, shared.IsTransient(err))
	assert.Empty(t, r.Snapshot().Challenges())

	store.joinErr = nil
	c, err := r.JoinChallenge(context.Background(), "ABC001")
	require.NoError(t, err)
	assert.Equal(t, running, c.ID)
	_, ok := r.Snapshot().Challenge(running)
	assert.True(t, ok)

	at, err := r.CompleteChallenge(context.Background(), running)
	require.NoError(t, err)
	assert.Equal(t, now, at)
	m, _ := r.Snapshot().Challenge(running)
	assert.True(t, m.Participant.IsCompleted())
	assert.True(t, checked(r.Snapshot(), running, today))

	_, err = r.CompleteChallenge(context.Background(), running)
	assert.True(t, shared.IsConflict(err))

	require.NoError(t, r.LeaveChallenge(context.Background(), running))
	_, ok = r.Snapshot().Challenge(running)
	assert.False(t, ok)

	err = r.LeaveChallenge(context.Background(), running)
	assert.True(t, shared.IsNotFound(err))
}

func TestCreateChallenge_AppendsAfterConfirmation(t *testing.T) {
	store := newFakeStore()
	r := newReconciler(t, store)

	_, err := r.CreateChallenge(context.Background(), challenge.NewChallengeParams{Title: "  "})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.Empty(t, r.Snapshot().Challenges())

	c, err := r.CreateChallenge(context.Background(), challenge.NewChallengeParams{Title: "Read 20 pages"})
	require.NoError(t, err)
	assert.Equal(t, me, c.OwnerID)

	m, ok := r.Snapshot().Challenge(c.ID)
	require.True(t, ok)
	assert.Equal(t, me, m.Participant.UserID)
}

func TestView_QueriesNeverFail(t *testing.T) {
	r := newReconciler(t, newFakeStore())
	v := r.Snapshot()

	_, ok := v.Challenge(running)
	assert.False(t, ok)
	assert.Empty(t, v.Records(running))
	assert.Empty(t, v.UserRecords())
	assert.Equal(t, 0, v.Streak(today))
	assert.Equal(t, 0, v.Ranking(running, nil, today, gamification.DefaultRewards()).Count())
}

func TestRanking_CoversEveryParticipant(t *testing.T) {
	store := newFakeStore()
	store.addChallenge(running, true, me, friend, lurker)
	store.put(me, running, 1, 2, 3)
	store.put(friend, running, 5)
	_, _, err := store.CompleteChallenge(context.Background(), running, friend)
	require.NoError(t, err)

	r := synced(t, store)
	entries, err := r.Ranking(context.Background(), running)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, friend, entries[0].UserID)
	assert.EqualValues(t, 1, entries[0].CurrentRank)
	assert.True(t, entries[0].IsCompleted)
	assert.Equal(t, me, entries[1].UserID)
	assert.EqualValues(t, 2, entries[1].CurrentRank)
	assert.Equal(t, lurker, entries[2].UserID)
	assert.EqualValues(t, 3, entries[2].CurrentRank)
	assert.Equal(t, 0, entries[2].Count)
	assert.Greater(t, entries[0].TotalPoints, entries[1].TotalPoints)

	// The view alone cannot see the lurker or the friend's completion.
	local := r.LocalRanking(running, nil, today, gamification.DefaultRewards())
	assert.Nil(t, local.Get(lurker))
	assert.False(t, local.Get(friend).IsCompleted)
}

func TestRanking_StoreFailureIsReported(t *testing.T) {
	store := newFakeStore()
	store.addChallenge(running, false, me)
	r := synced(t, store)

	store.rankingErr = shared.NewDomainError("recordstore", "GetRanking", shared.ErrTransientSync, "unreachable")
	_, err := r.Ranking(context.Background(), running)
	require.Error(t, err)
	assert.True(t, shared.IsTransient(err))
}

func TestCompleteChallenge_MirrorsStoredDay(t *testing.T) {
	store := newFakeStore()
	store.addChallenge(running, true, me)

	// Local midnight has already passed; the store still dates the record today.
	east := time.FixedZone("UTC+14", 14*60*60)
	r := New(store, me, Options{Clock: timeutil.NewFixedClock(now.In(east))})
	require.NoError(t, r.SyncFromServer(context.Background()))
	require.NotEqual(t, today, shared.DateOf(now.In(east)))

	_, err := r.CompleteChallenge(context.Background(), running)
	require.NoError(t, err)

	assert.True(t, checked(r.Snapshot(), running, today))
	assert.False(t, checked(r.Snapshot(), running, today.AddDays(1)))
}
