package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/checkin"
	"github.com/aura-hub/aura-hub/internal/domain/gamification"
	"github.com/aura-hub/aura-hub/internal/domain/leaderboard"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
	"github.com/aura-hub/aura-hub/internal/domain/user"
	"github.com/aura-hub/aura-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

const (
	defaultFetchConcurrency = 4
	maxSettled              = 1024
)

// Options configures a Reconciler. Zero values fall back to defaults.
type Options struct {
	Logger *slog.Logger
	Clock  timeutil.Clock

	// FetchConcurrency bounds parallel per-challenge record fetches.
	FetchConcurrency int
}

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILER
// ══════════════════════════════════════════════════════════════════════════════

// Reconciler owns the local view for one user.
//
// Reads go through an atomic pointer and never block. Writes (optimistic
// mutations, confirmations, syncs) are serialized by mu and always publish
// a freshly sealed View.
type Reconciler struct {
	store  RemoteStore
	userID shared.UserID
	logger *slog.Logger
	clock  timeutil.Clock
	fetchN int

	view atomic.Pointer[View]

	mu        sync.Mutex
	seq       MutationID
	mutations map[MutationID]*mutationEntry
	settled   []MutationID
	lastTouch map[string]MutationID

	// Records confirmed by the store, tagged with a write epoch. A sync that
	// started before a confirmation overlays it onto the fetched state.
	epoch     uint64
	confirmed map[checkin.Key]confirmedWrite

	posts sync.WaitGroup
}

type confirmedWrite struct {
	record checkin.Record
	epoch  uint64
}

// New creates a Reconciler with an empty view.
func New(store RemoteStore, userID shared.UserID, opts Options) *Reconciler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.NewSystemClock(time.UTC)
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = defaultFetchConcurrency
	}

	r := &Reconciler{
		store:     store,
		userID:    userID,
		logger:    opts.Logger.With("component", "reconciler", "user_id", userID.String()),
		clock:     opts.Clock,
		fetchN:    opts.FetchConcurrency,
		mutations: make(map[MutationID]*mutationEntry),
		lastTouch: make(map[string]MutationID),
		confirmed: make(map[checkin.Key]confirmedWrite),
	}
	r.view.Store(emptyView(userID))
	return r
}

// Snapshot returns the current view. Derived values computed from one
// snapshot are always mutually consistent.
func (r *Reconciler) Snapshot() *View {
	return r.view.Load()
}

// Streak returns the owner's global streak from the current view.
func (r *Reconciler) Streak(today shared.Date) int {
	return r.Snapshot().Streak(today)
}

// Points returns the owner's total points from the current view.
func (r *Reconciler) Points(rewards gamification.Rewards) int {
	return r.Snapshot().Points(rewards)
}

// Ranking fetches the store's ranking of the challenge. It covers every
// participant, which the view cannot: the view holds only the owner's
// membership.
func (r *Reconciler) Ranking(ctx context.Context, challengeID shared.ChallengeID) ([]*leaderboard.Entry, error) {
	entries, err := r.store.GetRanking(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: ranking: %w", err)
	}
	return entries, nil
}

// LocalRanking builds an approximate ranking from the current view, for use
// while the store is unreachable. See View.Ranking for what it misses.
func (r *Reconciler) LocalRanking(challengeID shared.ChallengeID, users map[shared.UserID]*user.User, today shared.Date, rewards gamification.Rewards) *leaderboard.Ranking {
	return r.Snapshot().Ranking(challengeID, users, today, rewards)
}

// update publishes fn applied to a copy of the current view. Caller holds mu.
func (r *Reconciler) update(fn func(v *View)) {
	next := r.view.Load().copy()
	fn(next)
	r.view.Store(next.seal())
}

func (r *Reconciler) locked(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

// ══════════════════════════════════════════════════════════════════════════════
// OPTIMISTIC MUTATIONS
// ══════════════════════════════════════════════════════════════════════════════

// ApplyOptimistic applies m to the view synchronously and returns its id.
// The mutation stays pending until Confirm or Fail settles it.
func (r *Reconciler) ApplyOptimistic(m Mutation) MutationID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	id := r.seq
	now := r.clock.Now()

	var restore func(*View)
	r.update(func(v *View) { restore = m.apply(v, r.userID, now) })

	r.mutations[id] = &mutationEntry{
		MutationStatus: MutationStatus{ID: id, Mutation: m, State: StatePending, AppliedAt: now},
		restore:        restore,
	}
	r.lastTouch[m.key()] = id
	return id
}

// Confirm marks a pending mutation as accepted by the store.
func (r *Reconciler) Confirm(id MutationID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.confirmLocked(id, nil)
}

func (r *Reconciler) confirmLocked(id MutationID, saved *checkin.Record) error {
	e, ok := r.mutations[id]
	if !ok {
		return shared.NewDomainError("sync", "Confirm", shared.ErrNotFound, fmt.Sprintf("mutation %d not found", id))
	}
	if e.State == StateReverted {
		return shared.NewDomainError("sync", "Confirm", shared.ErrConflict, fmt.Sprintf("mutation %d already reverted", id))
	}

	if saved != nil {
		r.epoch++
		r.confirmed[saved.Key()] = confirmedWrite{record: *saved, epoch: r.epoch}
		if r.lastTouch[e.Mutation.key()] == id {
			r.update(func(v *View) { v.records[saved.Key()] = *saved })
		}
	}
	if e.State == StatePending {
		r.settle(e, StateConfirmed, nil)
	}
	return nil
}

// Fail reports a store failure for a pending mutation and returns the
// resulting state. Only definitive failures (validation, not found,
// conflict) revert; anything else leaves the mutation pending and the view
// unchanged. A revert restores the pre-mutation value unless a later
// mutation has touched the same key.
func (r *Reconciler) Fail(id MutationID, err error) (MutationState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.mutations[id]
	if !ok {
		return StatePending, shared.NewDomainError("sync", "Fail", shared.ErrNotFound, fmt.Sprintf("mutation %d not found", id))
	}
	if e.State != StatePending {
		return e.State, nil
	}

	e.Err = err
	if !shared.IsDefinitive(err) {
		r.logger.Warn("mutation left pending after transient failure",
			"mutation_id", uint64(id), "key", e.Mutation.key(), "error", err)
		return StatePending, nil
	}

	key := e.Mutation.key()
	if r.lastTouch[key] == id {
		if e.restore != nil {
			r.update(e.restore)
		}
		delete(r.lastTouch, key)
	}
	r.settle(e, StateReverted, err)
	r.logger.Info("mutation reverted", "mutation_id", uint64(id), "key", key, "error", err)
	return StateReverted, nil
}

func (r *Reconciler) settle(e *mutationEntry, state MutationState, err error) {
	e.State = state
	if err != nil {
		e.Err = err
	}
	e.restore = nil
	r.settled = append(r.settled, e.ID)
	for len(r.settled) > maxSettled {
		delete(r.mutations, r.settled[0])
		r.settled = r.settled[1:]
	}
}

// Status returns the state of a mutation. Old settled mutations are
// eventually forgotten.
func (r *Reconciler) Status(id MutationID) (MutationStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.mutations[id]
	if !ok {
		return MutationStatus{}, false
	}
	return e.MutationStatus, true
}

// Pending returns the mutations not yet settled, oldest first.
func (r *Reconciler) Pending() []MutationStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []MutationStatus
	for id := MutationID(1); id <= r.seq; id++ {
		if e, ok := r.mutations[id]; ok && e.State == StatePending {
			out = append(out, e.MutationStatus)
		}
	}
	return out
}

// PostCompletion applies a check toggle optimistically and writes it to the
// store in the background. Toggling back before confirmation is just another
// post; the latest write wins. Use Wait to join outstanding posts.
func (r *Reconciler) PostCompletion(ctx context.Context, challengeID shared.ChallengeID, date shared.Date, completed bool) MutationID {
	id := r.ApplyOptimistic(SetCompletion{ChallengeID: challengeID, Date: date, Completed: completed})

	ctx = context.WithoutCancel(ctx)
	r.posts.Add(1)
	go func() {
		defer r.posts.Done()

		saved, err := r.store.UpsertRecord(ctx, checkin.Record{
			UserID:      r.userID,
			ChallengeID: challengeID,
			Date:        date,
			Completed:   completed,
		})
		if err != nil {
			if _, ferr := r.Fail(id, err); ferr != nil {
				r.logger.Error("settle failed post", "mutation_id", uint64(id), "error", ferr)
			}
			return
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if cerr := r.confirmLocked(id, saved); cerr != nil {
			r.logger.Error("confirm post", "mutation_id", uint64(id), "error", cerr)
		}
	}()
	return id
}

// Wait blocks until every background post has settled.
func (r *Reconciler) Wait() {
	r.posts.Wait()
}

// ══════════════════════════════════════════════════════════════════════════════
// SYNC
// ══════════════════════════════════════════════════════════════════════════════

// SyncFromServer replaces the view with the store's state. The old view
// stays readable until the new one is fully assembled, and survives any
// failure. A sync that produces identical content publishes nothing.
func (r *Reconciler) SyncFromServer(ctx context.Context) error {
	const op = "SyncFromServer"

	var startEpoch uint64
	r.locked(func() { startEpoch = r.epoch })

	var (
		memberships []challenge.Membership
		own         []checkin.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ms, err := r.store.ListChallengesForUser(gctx, r.userID)
		memberships = ms
		return err
	})
	g.Go(func() error {
		recs, err := r.store.ListRecordsByUser(gctx, r.userID)
		own = recs
		return err
	})
	if err := g.Wait(); err != nil {
		return r.syncFailed(op, err)
	}

	perChallenge := make([][]checkin.Record, len(memberships))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(r.fetchN)
	for i, m := range memberships {
		if m.Challenge == nil {
			continue
		}
		g.Go(func() error {
			recs, err := r.store.ListRecordsByChallenge(gctx, m.Challenge.ID)
			perChallenge[i] = recs
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return r.syncFailed(op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := newView(r.userID, memberships, perChallenge, own, r.clock.Now())
	overlaid := false
	for k, w := range r.confirmed {
		if w.epoch > startEpoch {
			next.records[k] = w.record
			overlaid = true
		} else {
			delete(r.confirmed, k)
		}
	}
	if overlaid {
		next.seal()
	}

	confirmedN := 0
	for _, e := range r.mutations {
		if e.State != StatePending {
			continue
		}
		if e.Mutation.reflectedIn(next, r.userID) {
			r.settle(e, StateConfirmed, nil)
			confirmedN++
			continue
		}
		e.restore = nil
	}

	current := r.view.Load()
	if next.Digest() == current.Digest() {
		r.logger.Debug("sync produced no changes", "challenges", len(memberships))
		return nil
	}
	r.view.Store(next)
	r.logger.Info("view synced",
		"challenges", len(memberships), "own_records", len(own), "confirmed_mutations", confirmedN)
	return nil
}

func (r *Reconciler) syncFailed(op string, err error) error {
	r.logger.Warn("sync failed, keeping last good view", "error", err)
	return shared.WrapError("sync", op, shared.ErrTransientSync, "fetch from record store failed", err)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONFIRMED OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// CreateChallenge creates a challenge owned by the view owner. The view
// changes only after the store returns the assigned id and invite code.
func (r *Reconciler) CreateChallenge(ctx context.Context, p challenge.NewChallengeParams) (*challenge.Challenge, error) {
	p.OwnerID = r.userID
	c, err := r.store.CreateChallenge(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("reconcile: create challenge: %w", err)
	}
	r.locked(func() {
		r.update(func(v *View) {
			v.putMembership(challenge.Membership{
				Challenge:   c,
				Participant: &challenge.Participant{UserID: r.userID, ChallengeID: c.ID, JoinedAt: c.CreatedAt},
			})
		})
	})
	return c, nil
}

// JoinChallenge joins by invite code and appends the challenge once the store
// confirms. Joining a challenge already in the view keeps its participation.
func (r *Reconciler) JoinChallenge(ctx context.Context, code challenge.InviteCode) (*challenge.Challenge, error) {
	c, err := r.store.JoinChallenge(ctx, code, r.userID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: join challenge: %w", err)
	}
	r.locked(func() {
		r.update(func(v *View) {
			m := challenge.Membership{
				Challenge:   c,
				Participant: &challenge.Participant{UserID: r.userID, ChallengeID: c.ID, JoinedAt: r.clock.Now()},
			}
			if existing, ok := v.Challenge(c.ID); ok && existing.Participant != nil {
				m.Participant = existing.Participant
			}
			v.putMembership(m)
		})
	})
	return c, nil
}

// LeaveChallenge removes the challenge from the view only after the store
// confirms, so a failed leave never looks successful.
func (r *Reconciler) LeaveChallenge(ctx context.Context, challengeID shared.ChallengeID) error {
	if err := r.store.LeaveChallenge(ctx, challengeID, r.userID); err != nil {
		return fmt.Errorf("reconcile: leave challenge: %w", err)
	}
	r.locked(func() {
		r.update(func(v *View) { v.removeChallenge(challengeID) })
	})
	return nil
}

// CompleteChallenge completes a long-term challenge. The store also records
// a completed check for the day of completion; the view mirrors both, using
// the store's record so the day matches the store's calendar.
func (r *Reconciler) CompleteChallenge(ctx context.Context, challengeID shared.ChallengeID) (time.Time, error) {
	at, stored, err := r.store.CompleteChallenge(ctx, challengeID, r.userID)
	if err != nil {
		return time.Time{}, fmt.Errorf("reconcile: complete challenge: %w", err)
	}

	r.locked(func() {
		r.update(func(v *View) {
			m, ok := v.Challenge(challengeID)
			if !ok {
				return
			}
			p := *participantOf(m, r.userID)
			completedAt := at
			p.CompletedAt = &completedAt
			v.putMembership(challenge.Membership{Challenge: m.Challenge, Participant: &p})

			rec := checkin.Record{UserID: r.userID, ChallengeID: challengeID, Completed: true, UpdatedAt: at}
			if stored != nil {
				rec = *stored
			} else {
				// Best guess until the next sync brings the stored record.
				rec.Date = shared.DateOf(at.In(r.clock.Now().Location()))
			}
			v.records[rec.Key()] = rec
		})
	})
	return at, nil
}
