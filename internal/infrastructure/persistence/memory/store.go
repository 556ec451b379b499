// Package memory implements the domain repositories in process memory.
// It backs development runs without DATABASE_URL and the handler tests.
// All repositories of one Store share a single lock, so multi-entity
// operations (create with owner, delete with cascade) are atomic.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/checkin"
	"github.com/aura-hub/aura-hub/internal/domain/leaderboard"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
	"github.com/aura-hub/aura-hub/internal/domain/user"
)

// Store holds all in-memory state.
type Store struct {
	mu           sync.RWMutex
	challenges   map[shared.ChallengeID]*challenge.Challenge
	participants map[shared.ChallengeID]map[shared.UserID]*challenge.Participant
	records      map[checkin.Key]*checkin.Record
	users        map[shared.UserID]*user.User
	snapshots    map[leaderboard.SnapshotKey]*leaderboard.Snapshot
	rankings     map[shared.ChallengeID]map[shared.Date][]*leaderboard.Entry
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		challenges:   make(map[shared.ChallengeID]*challenge.Challenge),
		participants: make(map[shared.ChallengeID]map[shared.UserID]*challenge.Participant),
		records:      make(map[checkin.Key]*checkin.Record),
		users:        make(map[shared.UserID]*user.User),
		snapshots:    make(map[leaderboard.SnapshotKey]*leaderboard.Snapshot),
		rankings:     make(map[shared.ChallengeID]map[shared.Date][]*leaderboard.Entry),
	}
}

// Challenges returns the challenge repository view of the store.
func (s *Store) Challenges() *ChallengeRepo { return &ChallengeRepo{s: s} }

// Participants returns the participant repository view of the store.
func (s *Store) Participants() *ParticipantRepo { return &ParticipantRepo{s: s} }

// Checks returns the completion record repository view of the store.
func (s *Store) Checks() *CheckRepo { return &CheckRepo{s: s} }

// Users returns the user repository view of the store.
func (s *Store) Users() *UserRepo { return &UserRepo{s: s} }

// Snapshots returns the ranking snapshot store view of the store.
func (s *Store) Snapshots() *SnapshotRepo { return &SnapshotRepo{s: s} }

// RankingCache returns an in-process ranking cache.
func (s *Store) RankingCache() *RankingCache { return &RankingCache{s: s} }

func notFound(domain, op, what string) error {
	return shared.NewDomainError(domain, op, shared.ErrNotFound, what+" not found")
}

func cloneChallenge(c *challenge.Challenge) *challenge.Challenge {
	cp := *c
	return &cp
}

func cloneParticipant(p *challenge.Participant) *challenge.Participant {
	cp := *p
	if p.CompletedAt != nil {
		at := *p.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

// ══════════════════════════════════════════════════════════════════════════════
// CHALLENGES
// ══════════════════════════════════════════════════════════════════════════════

// ChallengeRepo implements challenge.Repository.
type ChallengeRepo struct{ s *Store }

var _ challenge.Repository = (*ChallengeRepo)(nil)

func (r *ChallengeRepo) Create(_ context.Context, c *challenge.Challenge, owner *challenge.Participant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.challenges[c.ID]; ok {
		return shared.NewDomainError("challenge", "Create", shared.ErrAlreadyExists, "challenge id already exists")
	}
	for _, existing := range r.s.challenges {
		if strings.EqualFold(string(existing.InviteCode), string(c.InviteCode)) {
			return shared.NewDomainError("challenge", "Create", shared.ErrAlreadyExists, "invite code already in use")
		}
	}

	r.s.challenges[c.ID] = cloneChallenge(c)
	r.s.participants[c.ID] = make(map[shared.UserID]*challenge.Participant)
	if owner != nil {
		r.s.participants[c.ID][owner.UserID] = cloneParticipant(owner)
	}
	return nil
}

func (r *ChallengeRepo) GetByID(_ context.Context, id shared.ChallengeID) (*challenge.Challenge, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.challenges[id]
	if !ok {
		return nil, notFound("challenge", "GetByID", "challenge")
	}
	return cloneChallenge(c), nil
}

func (r *ChallengeRepo) GetByInviteCode(_ context.Context, code challenge.InviteCode) (*challenge.Challenge, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, c := range r.s.challenges {
		if strings.EqualFold(string(c.InviteCode), string(code)) {
			return cloneChallenge(c), nil
		}
	}
	return nil, notFound("challenge", "GetByInviteCode", "invite code")
}

func (r *ChallengeRepo) InviteCodeExists(_ context.Context, code challenge.InviteCode) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, c := range r.s.challenges {
		if strings.EqualFold(string(c.InviteCode), string(code)) {
			return true, nil
		}
	}
	return false, nil
}

func (r *ChallengeRepo) Delete(_ context.Context, id shared.ChallengeID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.challenges[id]; !ok {
		return notFound("challenge", "Delete", "challenge")
	}
	delete(r.s.challenges, id)
	delete(r.s.participants, id)
	delete(r.s.rankings, id)
	for k := range r.s.records {
		if k.ChallengeID == id {
			delete(r.s.records, k)
		}
	}
	for k := range r.s.snapshots {
		if k.ChallengeID == id {
			delete(r.s.snapshots, k)
		}
	}
	return nil
}

func (r *ChallengeRepo) ListAll(_ context.Context) ([]*challenge.Challenge, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*challenge.Challenge, 0, len(r.s.challenges))
	for _, c := range r.s.challenges {
		out = append(out, cloneChallenge(c))
	}
	sortChallenges(out)
	return out, nil
}

func (r *ChallengeRepo) ListForUser(_ context.Context, userID shared.UserID) ([]challenge.Membership, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var cs []*challenge.Challenge
	for id, members := range r.s.participants {
		if _, ok := members[userID]; ok {
			cs = append(cs, r.s.challenges[id])
		}
	}
	sortChallenges(cs)

	out := make([]challenge.Membership, 0, len(cs))
	for _, c := range cs {
		out = append(out, challenge.Membership{
			Challenge:   cloneChallenge(c),
			Participant: cloneParticipant(r.s.participants[c.ID][userID]),
		})
	}
	return out, nil
}

func sortChallenges(cs []*challenge.Challenge) {
	sort.Slice(cs, func(i, j int) bool {
		if !cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].CreatedAt.Before(cs[j].CreatedAt)
		}
		return cs[i].ID < cs[j].ID
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// PARTICIPANTS
// ══════════════════════════════════════════════════════════════════════════════

// ParticipantRepo implements challenge.ParticipantRepository.
type ParticipantRepo struct{ s *Store }

var _ challenge.ParticipantRepository = (*ParticipantRepo)(nil)

func (r *ParticipantRepo) Add(_ context.Context, p *challenge.Participant) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	members, ok := r.s.participants[p.ChallengeID]
	if !ok {
		return false, notFound("challenge", "AddParticipant", "challenge")
	}
	if _, exists := members[p.UserID]; exists {
		return false, nil
	}
	members[p.UserID] = cloneParticipant(p)
	return true, nil
}

func (r *ParticipantRepo) Get(_ context.Context, challengeID shared.ChallengeID, userID shared.UserID) (*challenge.Participant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.participants[challengeID][userID]
	if !ok {
		return nil, notFound("challenge", "GetParticipant", "participant")
	}
	return cloneParticipant(p), nil
}

func (r *ParticipantRepo) Remove(_ context.Context, challengeID shared.ChallengeID, userID shared.UserID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.participants[challengeID][userID]; !ok {
		return notFound("challenge", "RemoveParticipant", "participant")
	}
	delete(r.s.participants[challengeID], userID)
	return nil
}

func (r *ParticipantRepo) ListByChallenge(_ context.Context, challengeID shared.ChallengeID) ([]*challenge.Participant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*challenge.Participant, 0, len(r.s.participants[challengeID]))
	for _, p := range r.s.participants[challengeID] {
		out = append(out, cloneParticipant(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (r *ParticipantRepo) MarkCompleted(_ context.Context, challengeID shared.ChallengeID, userID shared.UserID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.participants[challengeID][userID]
	if !ok {
		return notFound("challenge", "MarkCompleted", "participant")
	}
	if p.CompletedAt != nil {
		return shared.NewDomainError("challenge", "MarkCompleted", shared.ErrConflict, "challenge already completed")
	}
	completed := at
	p.CompletedAt = &completed
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETION RECORDS
// ══════════════════════════════════════════════════════════════════════════════

// CheckRepo implements checkin.Repository.
type CheckRepo struct{ s *Store }

var _ checkin.Repository = (*CheckRepo)(nil)

func (r *CheckRepo) Upsert(_ context.Context, rec *checkin.Record) (*checkin.Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.challenges[rec.ChallengeID]; !ok {
		return nil, notFound("checkin", "Upsert", "challenge")
	}

	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	if rec.ID != "" {
		for k, existing := range r.s.records {
			if existing.ID == rec.ID {
				delete(r.s.records, k)
				break
			}
		}
	}

	stored, ok := r.s.records[rec.Key()]
	if !ok {
		stored = &checkin.Record{
			ID:          rec.ID,
			UserID:      rec.UserID,
			ChallengeID: rec.ChallengeID,
			Date:        rec.Date,
		}
		if stored.ID == "" {
			stored.ID = uuid.NewString()
		}
		r.s.records[rec.Key()] = stored
	}
	stored.Completed = rec.Completed
	stored.UpdatedAt = updatedAt

	out := *stored
	return &out, nil
}

func (r *CheckRepo) list(match func(checkin.Key) bool) []checkin.Record {
	out := make([]checkin.Record, 0)
	for k, rec := range r.s.records {
		if match(k) {
			out = append(out, *rec)
		}
	}
	checkin.SortByDate(out)
	return out
}

func (r *CheckRepo) ListByUser(_ context.Context, userID shared.UserID) ([]checkin.Record, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.list(func(k checkin.Key) bool { return k.UserID == userID }), nil
}

func (r *CheckRepo) ListByChallenge(_ context.Context, challengeID shared.ChallengeID) ([]checkin.Record, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.list(func(k checkin.Key) bool { return k.ChallengeID == challengeID }), nil
}

func (r *CheckRepo) ListCompletedOn(_ context.Context, challengeIDs []shared.ChallengeID, day shared.Date) ([]checkin.Record, error) {
	wanted := make(map[shared.ChallengeID]bool, len(challengeIDs))
	for _, id := range challengeIDs {
		wanted[id] = true
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.list(func(k checkin.Key) bool {
		return wanted[k.ChallengeID] && k.Date.Equal(day) && r.s.records[k].Completed
	}), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// USERS
// ══════════════════════════════════════════════════════════════════════════════

// UserRepo implements user.Repository.
type UserRepo struct{ s *Store }

var _ user.Repository = (*UserRepo)(nil)

func (r *UserRepo) Upsert(_ context.Context, id shared.UserID, displayName, defaultName string, at time.Time) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	displayName = strings.TrimSpace(displayName)
	u, ok := r.s.users[id]
	if !ok {
		name := displayName
		if name == "" {
			name = defaultName
		}
		u = &user.User{ID: id, DisplayName: name, CreatedAt: at, UpdatedAt: at}
		r.s.users[id] = u
	} else if displayName != "" {
		u.DisplayName = displayName
		u.UpdatedAt = at
	}

	out := *u
	return &out, nil
}

func (r *UserRepo) GetByID(_ context.Context, id shared.UserID) (*user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, notFound("user", "GetByID", "user")
	}
	out := *u
	return &out, nil
}

func (r *UserRepo) GetMany(_ context.Context, ids []shared.UserID) (map[shared.UserID]*user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make(map[shared.UserID]*user.User, len(ids))
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok {
			cp := *u
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *UserRepo) UpdateStreak(_ context.Context, u *user.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.users[u.ID]
	if !ok {
		return notFound("user", "UpdateStreak", "user")
	}
	stored.CurrentStreak = u.CurrentStreak
	stored.PreviousStreak = u.PreviousStreak
	stored.LastCheckDate = u.LastCheckDate
	stored.UpdatedAt = u.UpdatedAt
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING SNAPSHOTS AND CACHE
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotRepo implements leaderboard.SnapshotStore.
type SnapshotRepo struct{ s *Store }

var _ leaderboard.SnapshotStore = (*SnapshotRepo)(nil)

func (r *SnapshotRepo) Save(_ context.Context, snap *leaderboard.Snapshot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.snapshots[snap.Key()] = snap.Clone()
	return nil
}

func (r *SnapshotRepo) Get(_ context.Context, challengeID shared.ChallengeID, day shared.Date) (*leaderboard.Snapshot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	snap, ok := r.s.snapshots[leaderboard.SnapshotKey{ChallengeID: challengeID, Date: day}]
	if !ok {
		return nil, leaderboard.ErrSnapshotNotFound
	}
	return snap.Clone(), nil
}

func (r *SnapshotRepo) Latest(_ context.Context, challengeID shared.ChallengeID, before shared.Date) (*leaderboard.Snapshot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var latest *leaderboard.Snapshot
	for k, snap := range r.s.snapshots {
		if k.ChallengeID != challengeID || !k.Date.Before(before) {
			continue
		}
		if latest == nil || k.Date.After(latest.Date) {
			latest = snap
		}
	}
	if latest == nil {
		return nil, leaderboard.ErrSnapshotNotFound
	}
	return latest.Clone(), nil
}

func (r *SnapshotRepo) Prune(_ context.Context, olderThan shared.Date) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := 0
	for k := range r.s.snapshots {
		if k.Date.Before(olderThan) {
			delete(r.s.snapshots, k)
			n++
		}
	}
	return n, nil
}

// RankingCache implements leaderboard.RankingCache without expiry; entries
// live until the challenge is written to.
type RankingCache struct{ s *Store }

var _ leaderboard.RankingCache = (*RankingCache)(nil)

func (c *RankingCache) Get(_ context.Context, challengeID shared.ChallengeID, day shared.Date) ([]*leaderboard.Entry, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	entries, ok := c.s.rankings[challengeID][day]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneEntries(entries), nil
}

func (c *RankingCache) Set(_ context.Context, challengeID shared.ChallengeID, day shared.Date, entries []*leaderboard.Entry) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	if c.s.rankings[challengeID] == nil {
		c.s.rankings[challengeID] = make(map[shared.Date][]*leaderboard.Entry)
	}
	c.s.rankings[challengeID][day] = cloneEntries(entries)
	return nil
}

func (c *RankingCache) Invalidate(_ context.Context, challengeID shared.ChallengeID) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	delete(c.s.rankings, challengeID)
	return nil
}

func cloneEntries(entries []*leaderboard.Entry) []*leaderboard.Entry {
	out := make([]*leaderboard.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Clone())
	}
	return out
}
