package recordstore

import (
	"encoding/json"
	"time"

	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/checkin"
	"github.com/aura-hub/aura-hub/internal/domain/leaderboard"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// API RESPONSE WRAPPERS
// ══════════════════════════════════════════════════════════════════════════════

// apiResponse is the server's envelope. Data is decoded lazily into the
// caller's type.
type apiResponse struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *apiError       `json:"error,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// apiError represents an error response from the server.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / RESPONSE BODIES
// ══════════════════════════════════════════════════════════════════════════════

type upsertUserRequest struct {
	UserID      shared.UserID `json:"userId"`
	DisplayName string        `json:"displayName,omitempty"`
}

type recordCheckRequest struct {
	ID          string             `json:"id,omitempty"`
	UserID      shared.UserID      `json:"userId"`
	ChallengeID shared.ChallengeID `json:"challengeId"`
	Date        shared.Date        `json:"date"`
	Completed   *bool              `json:"completed,omitempty"`
}

type recordCheckResponse struct {
	Record *checkin.Record `json:"record"`
}

type createChallengeRequest struct {
	OwnerID      shared.UserID          `json:"ownerId"`
	Title        string                 `json:"title"`
	Description  string                 `json:"description,omitempty"`
	DurationDays int                    `json:"durationDays,omitempty"`
	IsPrivate    bool                   `json:"isPrivate"`
	IsLongTerm   bool                   `json:"isLongTerm"`
	PointsConfig challenge.PointsConfig `json:"pointsConfig"`
}

type joinChallengeRequest struct {
	InviteCode string        `json:"inviteCode"`
	UserID     shared.UserID `json:"userId"`
}

type joinChallengeResponse struct {
	Challenge *challenge.Challenge `json:"challenge"`
	Joined    bool                 `json:"joined"`
}

type completeChallengeRequest struct {
	UserID shared.UserID `json:"userId"`
}

type completeChallengeResponse struct {
	CompletedAt time.Time       `json:"completedAt"`
	Bonus       int             `json:"bonus"`
	Record      *checkin.Record `json:"record"`
}

type rankingResponse struct {
	ChallengeID shared.ChallengeID   `json:"challengeId"`
	Date        shared.Date          `json:"date"`
	LongTerm    bool                 `json:"isLongTerm"`
	Entries     []*leaderboard.Entry `json:"entries"`
}
