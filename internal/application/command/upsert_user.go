package command

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/leaderboard"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
	"github.com/aura-hub/aura-hub/internal/domain/user"
	"github.com/aura-hub/aura-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPSERT USER COMMAND
// Registers a user on first contact. A missing name is generated; an
// existing name only changes when a new one is given. A rename drops the
// cached rankings of the user's challenges.
// ══════════════════════════════════════════════════════════════════════════════

// UpsertUserCommand contains the user identity and an optional display name.
type UpsertUserCommand struct {
	UserID      shared.UserID
	DisplayName string
}

// Validate validates the command.
func (c UpsertUserCommand) Validate() error {
	if !c.UserID.IsValid() {
		return shared.WrapError("user", "Upsert", shared.ErrValidation, "invalid user id", shared.ErrInvalidID)
	}
	if strings.TrimSpace(c.DisplayName) != "" {
		return user.ValidateDisplayName(c.DisplayName)
	}
	return nil
}

// UpsertUserHandler handles UpsertUserCommand.
type UpsertUserHandler struct {
	users   user.Repository
	streaks streakCache
	clock   timeutil.Clock
	rng     *rand.Rand
}

// NewUpsertUserHandler creates a new UpsertUserHandler. cache, rng and
// logger may be nil.
func NewUpsertUserHandler(
	users user.Repository,
	challenges challenge.Repository,
	cache leaderboard.RankingCache,
	clock timeutil.Clock,
	rng *rand.Rand,
	logger *slog.Logger,
) *UpsertUserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UpsertUserHandler{
		users:   users,
		streaks: streakCache{challenges: challenges, users: users, cache: cache, logger: logger},
		clock:   clock,
		rng:     rng,
	}
}

// Handle executes the command.
func (h *UpsertUserHandler) Handle(ctx context.Context, cmd UpsertUserCommand) (*user.User, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(cmd.DisplayName)
	u, err := h.users.Upsert(ctx, cmd.UserID, name, user.GenerateDisplayName(h.rng), h.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("upsert_user: %w", err)
	}
	if name != "" {
		h.streaks.invalidateUser(ctx, cmd.UserID)
	}
	return u, nil
}
