package query

import (
	"context"
	"fmt"

	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/checkin"
	"github.com/aura-hub/aura-hub/internal/domain/gamification"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
	"github.com/aura-hub/aura-hub/internal/domain/stats"
	"github.com/aura-hub/aura-hub/internal/domain/user"
	"github.com/aura-hub/aura-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER SUMMARY
// ══════════════════════════════════════════════════════════════════════════════

// ChallengePoints - очки пользователя в одном челлендже.
type ChallengePoints struct {
	ChallengeID    shared.ChallengeID `json:"challengeId"`
	Title          string             `json:"title"`
	IsLongTerm     bool               `json:"isLongTerm"`
	CompletedCount int                `json:"completedCount"`
	Points         int                `json:"points"`
}

// UserSummary - стрик, аура и очки пользователя.
type UserSummary struct {
	UserID        shared.UserID     `json:"userId"`
	DisplayName   string            `json:"displayName"`
	CurrentStreak int               `json:"currentStreak"`
	Aura          gamification.Aura `json:"auraState"`
	TotalPoints   int               `json:"totalPoints"`
	Challenges    []ChallengePoints `json:"challenges"`
	Date          shared.Date       `json:"date"`
}

// UserSummaryHandler собирает сводку по пользователю.
type UserSummaryHandler struct {
	challenges challenge.Repository
	checks     checkin.Repository
	users      user.Repository
	rewards    gamification.Rewards
	clock      timeutil.Clock

	// degrade включает смягчение ауры при обрыве стрика.
	degrade bool
}

// NewUserSummaryHandler создаёт обработчик.
func NewUserSummaryHandler(
	challenges challenge.Repository,
	checks checkin.Repository,
	users user.Repository,
	rewards gamification.Rewards,
	clock timeutil.Clock,
	degrade bool,
) *UserSummaryHandler {
	return &UserSummaryHandler{
		challenges: challenges,
		checks:     checks,
		users:      users,
		rewards:    rewards,
		clock:      clock,
		degrade:    degrade,
	}
}

// Handle выполняет запрос. Стрик считается заново от сегодняшнего дня;
// закешированное значение у пользователя служит только прошлым уровнем ауры.
func (h *UserSummaryHandler) Handle(ctx context.Context, userID shared.UserID) (*UserSummary, error) {
	if !userID.IsValid() {
		return nil, shared.WrapError("user", "Summary", shared.ErrValidation, "invalid user id", shared.ErrInvalidID)
	}

	u, err := h.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user_summary: %w", err)
	}
	memberships, err := h.challenges.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user_summary: memberships: %w", err)
	}
	records, err := h.checks.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user_summary: records: %w", err)
	}

	today := shared.DateOf(h.clock.Now())
	challenges := make([]*challenge.Challenge, 0, len(memberships))
	for _, m := range memberships {
		challenges = append(challenges, m.Challenge)
	}
	streak := gamification.GlobalStreak(records, challenges, today)

	summary := &UserSummary{
		UserID:        u.ID,
		DisplayName:   u.Label(),
		CurrentStreak: streak,
		Aura:          gamification.Recompute(gamification.Classify(u.CurrentStreak), streak, h.degrade),
		Challenges:    make([]ChallengePoints, 0, len(memberships)),
		Date:          today,
	}
	for _, m := range memberships {
		if m.Challenge == nil {
			continue
		}
		t := gamification.Tally(m, records)
		points := gamification.ChallengePoints(t, h.rewards)
		summary.TotalPoints += points
		summary.Challenges = append(summary.Challenges, ChallengePoints{
			ChallengeID:    m.Challenge.ID,
			Title:          m.Challenge.Title,
			IsLongTerm:     m.Challenge.IsLongTerm,
			CompletedCount: t.CompletedCount,
			Points:         points,
		})
	}
	return summary, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// YEARLY STATS
// ══════════════════════════════════════════════════════════════════════════════

// YearlyStatsQuery - пользователь и год.
type YearlyStatsQuery struct {
	UserID shared.UserID
	Year   int
}

// Validate проверяет запрос.
func (q YearlyStatsQuery) Validate() error {
	if !q.UserID.IsValid() {
		return shared.WrapError("stats", "Yearly", shared.ErrValidation, "invalid user id", shared.ErrInvalidID)
	}
	if q.Year < 2000 || q.Year > 9999 {
		return shared.Validationf("stats", "Yearly", "year %d is out of range", q.Year)
	}
	return nil
}

// YearlyStatsHandler считает годовую статистику пользователя.
type YearlyStatsHandler struct {
	challenges challenge.Repository
	checks     checkin.Repository
	clock      timeutil.Clock
}

// NewYearlyStatsHandler создаёт обработчик.
func NewYearlyStatsHandler(challenges challenge.Repository, checks checkin.Repository, clock timeutil.Clock) *YearlyStatsHandler {
	return &YearlyStatsHandler{challenges: challenges, checks: checks, clock: clock}
}

// Handle выполняет запрос.
func (h *YearlyStatsHandler) Handle(ctx context.Context, q YearlyStatsQuery) (*stats.YearlyStats, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	memberships, err := h.challenges.ListForUser(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("yearly_stats: memberships: %w", err)
	}
	records, err := h.checks.ListByUser(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("yearly_stats: records: %w", err)
	}

	now := h.clock.Now()
	result := stats.Aggregate(stats.YearlyInput{
		Year:        q.Year,
		Today:       shared.DateOf(now),
		Location:    now.Location(),
		Memberships: memberships,
		Records:     records,
	})
	return &result, nil
}
