package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/checkin"
	"github.com/aura-hub/aura-hub/internal/domain/gamification"
	"github.com/aura-hub/aura-hub/internal/domain/leaderboard"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
	"github.com/aura-hub/aura-hub/internal/domain/user"
	"github.com/aura-hub/aura-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD CHECK COMMAND
// Upserts one completion record by natural key (userId, challengeId, date).
// Replaying the same command leaves every derived value unchanged.
// ══════════════════════════════════════════════════════════════════════════════

// RecordCheckCommand contains the data of a check or uncheck.
type RecordCheckCommand struct {
	// ID is an optional client-side record id used as an alternate identity.
	ID string

	UserID      shared.UserID
	ChallengeID shared.ChallengeID
	Date        shared.Date
	Completed   bool
}

// Validate validates the command.
func (c RecordCheckCommand) Validate() error {
	rec := checkin.Record{UserID: c.UserID, ChallengeID: c.ChallengeID, Date: c.Date}
	return rec.Validate()
}

// RecordCheckResult contains the stored record and the refreshed streak.
type RecordCheckResult struct {
	Record        *checkin.Record   `json:"record"`
	CurrentStreak int               `json:"currentStreak"`
	Aura          gamification.Aura `json:"auraState"`
}

// RecordCheckHandler handles RecordCheckCommand.
type RecordCheckHandler struct {
	challenges   challenge.Repository
	participants challenge.ParticipantRepository
	checks       checkin.Repository
	streaks      streakCache
	cache        leaderboard.RankingCache
	clock        timeutil.Clock
	logger       *slog.Logger
}

// NewRecordCheckHandler creates a new RecordCheckHandler. cache may be nil.
func NewRecordCheckHandler(
	challenges challenge.Repository,
	participants challenge.ParticipantRepository,
	checks checkin.Repository,
	users user.Repository,
	cache leaderboard.RankingCache,
	clock timeutil.Clock,
	logger *slog.Logger,
) *RecordCheckHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordCheckHandler{
		challenges:   challenges,
		participants: participants,
		checks:       checks,
		streaks:      streakCache{challenges: challenges, checks: checks, users: users, cache: cache, logger: logger},
		cache:        cache,
		clock:        clock,
		logger:       logger,
	}
}

// Handle executes the command.
func (h *RecordCheckHandler) Handle(ctx context.Context, cmd RecordCheckCommand) (*RecordCheckResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	if _, err := h.challenges.GetByID(ctx, cmd.ChallengeID); err != nil {
		return nil, fmt.Errorf("record_check: %w", err)
	}
	if _, err := h.participants.Get(ctx, cmd.ChallengeID, cmd.UserID); err != nil {
		return nil, fmt.Errorf("record_check: %w", err)
	}

	now := h.clock.Now()
	saved, err := h.checks.Upsert(ctx, &checkin.Record{
		ID:          cmd.ID,
		UserID:      cmd.UserID,
		ChallengeID: cmd.ChallengeID,
		Date:        cmd.Date,
		Completed:   cmd.Completed,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("record_check: upsert: %w", err)
	}

	invalidate(ctx, h.cache, h.logger, cmd.ChallengeID)

	u, err := h.streaks.afterCheck(ctx, cmd.UserID, cmd.Date, cmd.Completed, now)
	if err != nil {
		// The record is stored; the streak cache is rebuilt on the next write.
		h.logger.Error("streak refresh failed", "user_id", cmd.UserID.String(), "error", err)
		return &RecordCheckResult{Record: saved}, nil
	}

	h.logger.Debug("check recorded",
		"user_id", cmd.UserID.String(), "challenge_id", cmd.ChallengeID.String(),
		"date", cmd.Date.String(), "completed", cmd.Completed, "streak", u.CurrentStreak)

	return &RecordCheckResult{
		Record:        saved,
		CurrentStreak: u.CurrentStreak,
		Aura:          gamification.Classify(u.CurrentStreak),
	}, nil
}
