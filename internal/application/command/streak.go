// Package command contains write operations (CQRS - Commands).
// Commands change the record store and keep the derived caches (user
// streaks, cached rankings) in step with it.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/checkin"
	"github.com/aura-hub/aura-hub/internal/domain/gamification"
	"github.com/aura-hub/aura-hub/internal/domain/leaderboard"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
	"github.com/aura-hub/aura-hub/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK CACHE
// The user's CurrentStreak is a cache over the record log. Every command
// that changes records or memberships refreshes it through streakCache.
// ══════════════════════════════════════════════════════════════════════════════

type streakCache struct {
	challenges challenge.Repository
	checks     checkin.Repository
	users      user.Repository
	cache      leaderboard.RankingCache
	logger     *slog.Logger
}

// recompute returns the user's global streak with reference as "today"
// together with the memberships it was computed over.
func (s streakCache) recompute(ctx context.Context, userID shared.UserID, reference shared.Date) (int, []challenge.Membership, error) {
	memberships, err := s.challenges.ListForUser(ctx, userID)
	if err != nil {
		return 0, nil, fmt.Errorf("list memberships: %w", err)
	}
	records, err := s.checks.ListByUser(ctx, userID)
	if err != nil {
		return 0, nil, fmt.Errorf("list records: %w", err)
	}

	challenges := make([]*challenge.Challenge, 0, len(memberships))
	for _, m := range memberships {
		challenges = append(challenges, m.Challenge)
	}
	return gamification.GlobalStreak(records, challenges, reference), memberships, nil
}

// afterCheck stores the streak following a check or uncheck on day.
// A check keeps the old value as PreviousStreak; an uncheck only recomputes.
// When the streak moves, every ranking the user appears in is dropped.
func (s streakCache) afterCheck(ctx context.Context, userID shared.UserID, day shared.Date, completed bool, at time.Time) (*user.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	before := u.CurrentStreak

	streak, memberships, err := s.recompute(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	if completed {
		u.ApplyCheck(streak, day, at)
	} else {
		u.ApplyUndo(streak, at)
	}

	if err := s.users.UpdateStreak(ctx, u); err != nil {
		return nil, fmt.Errorf("update streak: %w", err)
	}
	if u.CurrentStreak != before {
		s.invalidateMemberships(ctx, memberships)
	}
	return u, nil
}

// invalidateUser drops the cached ranking of every challenge the user is in.
// Rankings carry the user's name and streak, so user-level changes reach them.
func (s streakCache) invalidateUser(ctx context.Context, userID shared.UserID) {
	if s.cache == nil {
		return
	}
	memberships, err := s.challenges.ListForUser(ctx, userID)
	if err != nil {
		s.logger.Warn("ranking cache invalidation failed", "user_id", userID.String(), "error", err)
		return
	}
	s.invalidateMemberships(ctx, memberships)
}

func (s streakCache) invalidateMemberships(ctx context.Context, memberships []challenge.Membership) {
	for _, m := range memberships {
		if m.Challenge != nil {
			invalidate(ctx, s.cache, s.logger, m.Challenge.ID)
		}
	}
}

// invalidate drops the cached ranking. Failures are only logged.
func invalidate(ctx context.Context, cache leaderboard.RankingCache, logger *slog.Logger, challengeID shared.ChallengeID) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx, challengeID); err != nil {
		logger.Warn("ranking cache invalidation failed", "challenge_id", challengeID.String(), "error", err)
	}
}

// ensureUser creates the user with a generated name when absent.
func ensureUser(ctx context.Context, users user.Repository, id shared.UserID, at time.Time) error {
	if _, err := users.Upsert(ctx, id, "", user.GenerateDisplayName(nil), at); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}
