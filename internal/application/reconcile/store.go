// Package reconcile keeps a local, immediately readable view of a user's
// challenges and completion records consistent with the authoritative record
// store. Check toggles and removals are applied optimistically and confirmed
// in the background; creation, joining and leaving wait for the store.
package reconcile

import (
	"context"
	"time"

	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/checkin"
	"github.com/aura-hub/aura-hub/internal/domain/leaderboard"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

// RemoteStore is the record-store boundary. Implementations report failures
// with the shared error kinds so the reconciler can tell definitive
// rejections from transient outages.
type RemoteStore interface {
	ListChallengesForUser(ctx context.Context, userID shared.UserID) ([]challenge.Membership, error)
	ListRecordsByUser(ctx context.Context, userID shared.UserID) ([]checkin.Record, error)
	ListRecordsByChallenge(ctx context.Context, challengeID shared.ChallengeID) ([]checkin.Record, error)

	// UpsertRecord writes by natural key and returns the stored record.
	UpsertRecord(ctx context.Context, rec checkin.Record) (*checkin.Record, error)

	// CreateChallenge ignores ID, InviteCode and CreatedAt; the store assigns them.
	CreateChallenge(ctx context.Context, p challenge.NewChallengeParams) (*challenge.Challenge, error)
	JoinChallenge(ctx context.Context, code challenge.InviteCode, userID shared.UserID) (*challenge.Challenge, error)
	LeaveChallenge(ctx context.Context, challengeID shared.ChallengeID, userID shared.UserID) error

	// CompleteChallenge returns the completion time and the completed record
	// stored for that day. The record may be nil.
	CompleteChallenge(ctx context.Context, challengeID shared.ChallengeID, userID shared.UserID) (time.Time, *checkin.Record, error)

	// GetRanking returns the ranking over every participant, best first.
	GetRanking(ctx context.Context, challengeID shared.ChallengeID) ([]*leaderboard.Entry, error)
}
