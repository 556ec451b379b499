package command

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/checkin"
	"github.com/aura-hub/aura-hub/internal/domain/gamification"
	"github.com/aura-hub/aura-hub/internal/domain/leaderboard"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
	"github.com/aura-hub/aura-hub/internal/domain/user"
	"github.com/aura-hub/aura-hub/pkg/timeutil"
)

// MaxInviteCodeAttempts bounds invite code generation on collisions.
const MaxInviteCodeAttempts = 5

// ChallengeHandlers groups the membership commands. They share the same
// repositories, so they share one dependency set.
type ChallengeHandlers struct {
	challenges   challenge.Repository
	participants challenge.ParticipantRepository
	checks       checkin.Repository
	users        user.Repository
	streaks      streakCache
	cache        leaderboard.RankingCache
	clock        timeutil.Clock
	logger       *slog.Logger
	random       io.Reader
}

// ChallengeHandlersConfig wires ChallengeHandlers. Cache and Random may be nil;
// a nil Random uses crypto/rand.
type ChallengeHandlersConfig struct {
	Challenges   challenge.Repository
	Participants challenge.ParticipantRepository
	Checks       checkin.Repository
	Users        user.Repository
	Cache        leaderboard.RankingCache
	Clock        timeutil.Clock
	Logger       *slog.Logger
	Random       io.Reader
}

// NewChallengeHandlers creates the membership command handlers.
func NewChallengeHandlers(cfg ChallengeHandlersConfig) *ChallengeHandlers {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	streaks := streakCache{
		challenges: cfg.Challenges,
		checks:     cfg.Checks,
		users:      cfg.Users,
		cache:      cfg.Cache,
		logger:     cfg.Logger,
	}
	return &ChallengeHandlers{
		challenges:   cfg.Challenges,
		participants: cfg.Participants,
		checks:       cfg.Checks,
		users:        cfg.Users,
		streaks:      streaks,
		cache:        cfg.Cache,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		random:       cfg.Random,
	}
}

// refreshStreak recomputes the cached streak after a membership change.
func (h *ChallengeHandlers) refreshStreak(ctx context.Context, userID shared.UserID) {
	u, err := h.users.GetByID(ctx, userID)
	if err != nil {
		return
	}
	streak, memberships, err := h.streaks.recompute(ctx, userID, shared.DateOf(h.clock.Now()))
	if err != nil {
		h.logger.Warn("streak refresh failed", "user_id", userID.String(), "error", err)
		return
	}
	if streak == u.CurrentStreak {
		return
	}
	u.ApplyUndo(streak, h.clock.Now())
	if err := h.users.UpdateStreak(ctx, u); err != nil {
		h.logger.Warn("streak refresh failed", "user_id", userID.String(), "error", err)
		return
	}
	h.streaks.invalidateMemberships(ctx, memberships)
}

// ══════════════════════════════════════════════════════════════════════════════
// CREATE CHALLENGE
// ══════════════════════════════════════════════════════════════════════════════

// CreateChallengeCommand contains the client-supplied challenge fields.
// The id, invite code and creation time are assigned here.
type CreateChallengeCommand struct {
	OwnerID      shared.UserID
	Title        string
	Description  string
	DurationDays int
	IsPrivate    bool
	IsLongTerm   bool
	PointsConfig challenge.PointsConfig
}

// CreateChallenge validates the fields, allocates a unique invite code and
// stores the challenge together with the owner's participation.
func (h *ChallengeHandlers) CreateChallenge(ctx context.Context, cmd CreateChallengeCommand) (*challenge.Challenge, error) {
	params := challenge.NewChallengeParams{
		Title:        cmd.Title,
		Description:  cmd.Description,
		OwnerID:      cmd.OwnerID,
		InviteCode:   "000000",
		CreatedAt:    h.clock.Now(),
		DurationDays: cmd.DurationDays,
		IsPrivate:    cmd.IsPrivate,
		IsLongTerm:   cmd.IsLongTerm,
		PointsConfig: cmd.PointsConfig,
		ID:           shared.ChallengeID(uuid.NewString()),
	}
	// Validate before touching the store.
	if _, err := challenge.NewChallenge(params); err != nil {
		return nil, err
	}

	if err := ensureUser(ctx, h.users, cmd.OwnerID, params.CreatedAt); err != nil {
		return nil, fmt.Errorf("create_challenge: %w", err)
	}

	for attempt := 1; attempt <= MaxInviteCodeAttempts; attempt++ {
		code, err := challenge.GenerateInviteCode(h.random)
		if err != nil {
			return nil, fmt.Errorf("create_challenge: %w", err)
		}
		taken, err := h.challenges.InviteCodeExists(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("create_challenge: %w", err)
		}
		if taken {
			continue
		}

		params.InviteCode = code
		c, err := challenge.NewChallenge(params)
		if err != nil {
			return nil, err
		}
		owner := &challenge.Participant{UserID: cmd.OwnerID, ChallengeID: c.ID, JoinedAt: c.CreatedAt}

		err = h.challenges.Create(ctx, c, owner)
		if shared.IsConflict(err) {
			// Lost a race for the same code.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create_challenge: %w", err)
		}

		h.logger.Info("challenge created",
			"challenge_id", c.ID.String(), "owner_id", cmd.OwnerID.String(), "long_term", c.IsLongTerm, "attempts", attempt)
		return c, nil
	}

	return nil, shared.NewDomainError("challenge", "Create", shared.ErrConflict,
		fmt.Sprintf("no free invite code after %d attempts", MaxInviteCodeAttempts))
}

// ══════════════════════════════════════════════════════════════════════════════
// JOIN CHALLENGE
// ══════════════════════════════════════════════════════════════════════════════

// JoinChallengeCommand joins a challenge by invite code.
type JoinChallengeCommand struct {
	UserID     shared.UserID
	InviteCode string
}

// JoinChallengeResult reports whether a new participation was created.
type JoinChallengeResult struct {
	Challenge *challenge.Challenge `json:"challenge"`
	Joined    bool                 `json:"joined"`
}

// JoinChallenge is case-insensitive on the code. Joining twice is a no-op
// that returns the challenge again.
func (h *ChallengeHandlers) JoinChallenge(ctx context.Context, cmd JoinChallengeCommand) (*JoinChallengeResult, error) {
	if !cmd.UserID.IsValid() {
		return nil, shared.WrapError("challenge", "Join", shared.ErrValidation, "invalid user id", shared.ErrInvalidID)
	}
	code, err := challenge.ParseInviteCode(cmd.InviteCode)
	if err != nil {
		return nil, shared.WrapError("challenge", "Join", shared.ErrValidation, "invalid invite code", err)
	}

	c, err := h.challenges.GetByInviteCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("join_challenge: %w", err)
	}

	now := h.clock.Now()
	if err := ensureUser(ctx, h.users, cmd.UserID, now); err != nil {
		return nil, fmt.Errorf("join_challenge: %w", err)
	}

	created, err := h.participants.Add(ctx, &challenge.Participant{UserID: cmd.UserID, ChallengeID: c.ID, JoinedAt: now})
	if err != nil {
		return nil, fmt.Errorf("join_challenge: %w", err)
	}
	if created {
		invalidate(ctx, h.cache, h.logger, c.ID)
		h.refreshStreak(ctx, cmd.UserID)
		h.logger.Info("challenge joined", "challenge_id", c.ID.String(), "user_id", cmd.UserID.String())
	}
	return &JoinChallengeResult{Challenge: c, Joined: created}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEAVE CHALLENGE
// ══════════════════════════════════════════════════════════════════════════════

// LeaveChallengeCommand removes a user from a challenge.
type LeaveChallengeCommand struct {
	UserID      shared.UserID
	ChallengeID shared.ChallengeID
}

// LeaveChallengeResult reports whether the whole challenge was deleted.
type LeaveChallengeResult struct {
	Deleted bool `json:"deleted"`
}

// LeaveChallenge deletes a private challenge when its owner leaves and
// otherwise removes only the participation.
func (h *ChallengeHandlers) LeaveChallenge(ctx context.Context, cmd LeaveChallengeCommand) (*LeaveChallengeResult, error) {
	if !cmd.UserID.IsValid() || !cmd.ChallengeID.IsValid() {
		return nil, shared.WrapError("challenge", "Leave", shared.ErrValidation, "invalid id", shared.ErrInvalidID)
	}

	c, err := h.challenges.GetByID(ctx, cmd.ChallengeID)
	if err != nil {
		return nil, fmt.Errorf("leave_challenge: %w", err)
	}
	if _, err := h.participants.Get(ctx, cmd.ChallengeID, cmd.UserID); err != nil {
		return nil, fmt.Errorf("leave_challenge: %w", err)
	}

	result := &LeaveChallengeResult{}
	if c.DeletesOnLeave(cmd.UserID) {
		if err := h.challenges.Delete(ctx, c.ID); err != nil {
			return nil, fmt.Errorf("leave_challenge: delete: %w", err)
		}
		result.Deleted = true
	} else if err := h.participants.Remove(ctx, c.ID, cmd.UserID); err != nil {
		return nil, fmt.Errorf("leave_challenge: %w", err)
	}

	invalidate(ctx, h.cache, h.logger, c.ID)
	h.refreshStreak(ctx, cmd.UserID)
	h.logger.Info("challenge left",
		"challenge_id", c.ID.String(), "user_id", cmd.UserID.String(), "deleted", result.Deleted)
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE CHALLENGE
// ══════════════════════════════════════════════════════════════════════════════

// CompleteChallengeCommand finishes a long-term challenge for a user.
type CompleteChallengeCommand struct {
	UserID      shared.UserID
	ChallengeID shared.ChallengeID
}

// CompleteChallengeResult contains the completion time, the bonus earned and
// the completed record stored for the day of completion.
type CompleteChallengeResult struct {
	CompletedAt time.Time       `json:"completedAt"`
	Bonus       int             `json:"bonus"`
	Record      *checkin.Record `json:"record"`
}

// CompleteChallenge is valid only for long-term challenges; a second call is
// a conflict. A completed record for today is stored as well, so the
// completion counts as a nudge.
func (h *ChallengeHandlers) CompleteChallenge(ctx context.Context, cmd CompleteChallengeCommand) (*CompleteChallengeResult, error) {
	if !cmd.UserID.IsValid() || !cmd.ChallengeID.IsValid() {
		return nil, shared.WrapError("challenge", "Complete", shared.ErrValidation, "invalid id", shared.ErrInvalidID)
	}

	c, err := h.challenges.GetByID(ctx, cmd.ChallengeID)
	if err != nil {
		return nil, fmt.Errorf("complete_challenge: %w", err)
	}
	p, err := h.participants.Get(ctx, cmd.ChallengeID, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("complete_challenge: %w", err)
	}

	now := h.clock.Now()
	// Domain check first: it reports non-long-term and repeated completion.
	if err := p.Complete(c, now); err != nil {
		return nil, err
	}

	// The record upsert is idempotent, so it goes before the one-shot mark.
	saved, err := h.checks.Upsert(ctx, &checkin.Record{
		UserID:      cmd.UserID,
		ChallengeID: cmd.ChallengeID,
		Date:        shared.DateOf(now),
		Completed:   true,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("complete_challenge: record: %w", err)
	}
	if err := h.participants.MarkCompleted(ctx, cmd.ChallengeID, cmd.UserID, now); err != nil {
		return nil, fmt.Errorf("complete_challenge: %w", err)
	}

	invalidate(ctx, h.cache, h.logger, c.ID)
	bonus := gamification.CompletionBonus(c.DurationDays)
	h.logger.Info("challenge completed",
		"challenge_id", c.ID.String(), "user_id", cmd.UserID.String(), "bonus", bonus)
	return &CompleteChallengeResult{CompletedAt: now, Bonus: bonus, Record: saved}, nil
}
