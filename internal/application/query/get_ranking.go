// Package query contains read operations following CQRS pattern.
// Queries never modify domain state; the ranking query only fills caches
// and the snapshot history.
package query

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
	"github.com/aura-hub/aura-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET RANKING QUERY
// Строит рейтинг челленджа на сегодня. Результат кешируется до первой
// записи в челлендж, а снапшот дня сохраняется для истории.
// ══════════════════════════════════════════════════════════════════════════════

// GetRankingQuery содержит параметры запроса рейтинга.
type GetRankingQuery struct {
	ChallengeID shared.ChallengeID

	// Limit ограничивает число записей (0 = все).
	Limit int
}

// GetRankingResult - рейтинг челленджа.
type GetRankingResult struct {
	ChallengeID shared.ChallengeID   `json:"challengeId"`
	Date        shared.Date          `json:"date"`
	LongTerm    bool                 `json:"isLongTerm"`
	Entries     []*leaderboard.Entry `json:"entries"`
	TotalCount  int                  `json:"totalCount"`
	Cached      bool                 `json:"cached"`
}

// GetRankingHandler обрабатывает запросы рейтинга.
type GetRankingHandler struct {
	challenges   challenge.Repository
	participants challenge.ParticipantRepository
	checks       checkin.Repository
	users        user.Repository
	cache        leaderboard.RankingCache
	snapshots    leaderboard.SnapshotStore
	rewards      gamification.Rewards
	clock        timeutil.Clock
	logger       *slog.Logger

	// observe получает длительность построения рейтинга (метрики).
	observe func(time.Duration)
}

// GetRankingConfig - зависимости обработчика. Cache, Snapshots и Observe
// необязательны.
type GetRankingConfig struct {
	Challenges   challenge.Repository
	Participants challenge.ParticipantRepository
	Checks       checkin.Repository
	Users        user.Repository
	Cache        leaderboard.RankingCache
	Snapshots    leaderboard.SnapshotStore
	Rewards      gamification.Rewards
	Clock        timeutil.Clock
	Logger       *slog.Logger
	Observe      func(time.Duration)
}

// NewGetRankingHandler создаёт обработчик запроса рейтинга.
func NewGetRankingHandler(cfg GetRankingConfig) *GetRankingHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &GetRankingHandler{
		challenges:   cfg.Challenges,
		participants: cfg.Participants,
		checks:       cfg.Checks,
		users:        cfg.Users,
		cache:        cfg.Cache,
		snapshots:    cfg.Snapshots,
		rewards:      cfg.Rewards,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		observe:      cfg.Observe,
	}
}

// Handle выполняет запрос.
func (h *GetRankingHandler) Handle(ctx context.Context, q GetRankingQuery) (*GetRankingResult, error) {
	if !q.ChallengeID.IsValid() {
		return nil, shared.WrapError("leaderboard", "GetRanking", shared.ErrValidation, "invalid challenge id", shared.ErrInvalidID)
	}
	if q.Limit < 0 {
		return nil, shared.Validationf("leaderboard", "GetRanking", "limit cannot be negative")
	}

	c, err := h.challenges.GetByID(ctx, q.ChallengeID)
	if err != nil {
		return nil, fmt.Errorf("get_ranking: %w", err)
	}
	today := shared.DateOf(h.clock.Now())

	if h.cache != nil {
		entries, err := h.cache.Get(ctx, c.ID, today)
		switch {
		case err == nil:
			return newRankingResult(c, today, entries, q.Limit, true), nil
		case !shared.IsNotFound(err):
			h.logger.Warn("ranking cache read failed", "challenge_id", c.ID.String(), "error", err)
		}
	}

	ranking, err := h.Build(ctx, c, today)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, c.ID, today, ranking.All()); err != nil {
			h.logger.Warn("ranking cache write failed", "challenge_id", c.ID.String(), "error", err)
		}
	}
	if h.snapshots != nil {
		snap := leaderboard.NewSnapshot(today, ranking, h.clock.Now())
		if err := h.snapshots.Save(ctx, snap); err != nil {
			h.logger.Warn("ranking snapshot save failed", "challenge_id", c.ID.String(), "error", err)
		}
	}

	return newRankingResult(c, today, ranking.All(), q.Limit, false), nil
}

// Build загружает участников, отметки и пользователей и строит рейтинг.
// Используется также джобой ежедневных снапшотов.
func (h *GetRankingHandler) Build(ctx context.Context, c *challenge.Challenge, today shared.Date) (*leaderboard.Ranking, error) {
	participants, err := h.participants.ListByChallenge(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("get_ranking: participants: %w", err)
	}
	records, err := h.checks.ListByChallenge(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("get_ranking: records: %w", err)
	}

	ids := make([]shared.UserID, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}
	users, err := h.users.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get_ranking: users: %w", err)
	}

	start := time.Now()
	ranking := leaderboard.Build(leaderboard.BuildInput{
		Challenge:    c,
		Participants: participants,
		Records:      records,
		Users:        users,
		Today:        today,
		Rewards:      h.rewards,
	})
	if h.observe != nil {
		h.observe(time.Since(start))
	}
	return ranking, nil
}

func newRankingResult(c *challenge.Challenge, day shared.Date, entries []*leaderboard.Entry, limit int, cached bool) *GetRankingResult {
	total := len(entries)
	if limit > 0 && limit < total {
		entries = entries[:limit]
	}
	return &GetRankingResult{
		ChallengeID: c.ID,
		Date:        day,
		LongTerm:    c.IsLongTerm,
		Entries:     entries,
		TotalCount:  total,
		Cached:      cached,
	}
}
