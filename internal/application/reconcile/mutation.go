package reconcile

import (
	"fmt"
	"time"

	"github.com/aura-hub/aura-hub/internal/domain/checkin"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

// MutationID identifies an optimistic mutation. IDs increase monotonically.
type MutationID uint64

// MutationState is the lifecycle of an optimistic mutation.
type MutationState int

const (
	StatePending MutationState = iota
	StateConfirmed
	StateReverted
)

func (s MutationState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StateReverted:
		return "reverted"
	default:
		return fmt.Sprintf("MutationState(%d)", int(s))
	}
}

// Mutation is a local change applied before the store confirms it.
// The set of mutations is closed: SetCompletion and RemoveChallenge.
type Mutation interface {
	key() string
	apply(v *View, userID shared.UserID, at time.Time) (restore func(*View))
	reflectedIn(v *View, userID shared.UserID) bool
}

// SetCompletion checks or unchecks the view owner's record for a day.
type SetCompletion struct {
	ChallengeID shared.ChallengeID
	Date        shared.Date
	Completed   bool
}

func (m SetCompletion) recordKey(userID shared.UserID) checkin.Key {
	return checkin.Key{UserID: userID, ChallengeID: m.ChallengeID, Date: m.Date}
}

func (m SetCompletion) key() string {
	return "check/" + string(m.ChallengeID) + "/" + m.Date.String()
}

func (m SetCompletion) apply(v *View, userID shared.UserID, at time.Time) func(*View) {
	k := m.recordKey(userID)
	prev, had := v.records[k]

	next := checkin.Record{
		ID:          prev.ID,
		UserID:      userID,
		ChallengeID: m.ChallengeID,
		Date:        m.Date,
		Completed:   m.Completed,
		UpdatedAt:   at,
	}
	v.records[k] = next

	return func(v *View) {
		if had {
			v.records[k] = prev
		} else {
			delete(v.records, k)
		}
	}
}

func (m SetCompletion) reflectedIn(v *View, userID shared.UserID) bool {
	r, ok := v.records[m.recordKey(userID)]
	if !ok {
		return !m.Completed
	}
	return r.Completed == m.Completed
}

// RemoveChallenge hides a challenge and its records from the view.
type RemoveChallenge struct {
	ChallengeID shared.ChallengeID
}

func (m RemoveChallenge) key() string {
	return "challenge/" + string(m.ChallengeID)
}

func (m RemoveChallenge) apply(v *View, _ shared.UserID, _ time.Time) func(*View) {
	membership, had, records := v.removeChallenge(m.ChallengeID)
	return func(v *View) {
		if had {
			v.putMembership(membership)
		}
		for _, r := range records {
			v.records[r.Key()] = r
		}
	}
}

func (m RemoveChallenge) reflectedIn(v *View, _ shared.UserID) bool {
	_, ok := v.index[m.ChallengeID]
	return !ok
}

// MutationStatus is the externally visible state of a mutation.
type MutationStatus struct {
	ID        MutationID
	Mutation  Mutation
	State     MutationState
	Err       error
	AppliedAt time.Time
}

type mutationEntry struct {
	MutationStatus
	// restore is nil once a server sync has replaced the state the mutation
	// was applied to.
	restore func(*View)
}
