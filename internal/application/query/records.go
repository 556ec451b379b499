package query

import (
	"context"
	"fmt"

	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/checkin"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
	"github.com/aura-hub/aura-hub/internal/domain/user"
	"github.com/aura-hub/aura-hub/pkg/timeutil"
)

// MaxBulkChallenges - предел числа челленджей в одном bulk-запросе.
const MaxBulkChallenges = 50

// ══════════════════════════════════════════════════════════════════════════════
// LIST USER CHALLENGES
// ══════════════════════════════════════════════════════════════════════════════

// ListUserChallengesHandler возвращает челленджи пользователя вместе с участием.
type ListUserChallengesHandler struct {
	challenges challenge.Repository
}

// NewListUserChallengesHandler создаёт обработчик.
func NewListUserChallengesHandler(challenges challenge.Repository) *ListUserChallengesHandler {
	return &ListUserChallengesHandler{challenges: challenges}
}

// Handle выполняет запрос.
func (h *ListUserChallengesHandler) Handle(ctx context.Context, userID shared.UserID) ([]challenge.Membership, error) {
	if !userID.IsValid() {
		return nil, shared.WrapError("challenge", "ListForUser", shared.ErrValidation, "invalid user id", shared.ErrInvalidID)
	}
	ms, err := h.challenges.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list_user_challenges: %w", err)
	}
	return ms, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GET CHALLENGE
// ══════════════════════════════════════════════════════════════════════════════

// ChallengeDetails - челлендж вместе с участниками.
type ChallengeDetails struct {
	*challenge.Challenge
	Participants []*challenge.Participant `json:"participants"`
}

// GetChallengeHandler возвращает один челлендж.
type GetChallengeHandler struct {
	challenges   challenge.Repository
	participants challenge.ParticipantRepository
}

// NewGetChallengeHandler создаёт обработчик.
func NewGetChallengeHandler(challenges challenge.Repository, participants challenge.ParticipantRepository) *GetChallengeHandler {
	return &GetChallengeHandler{challenges: challenges, participants: participants}
}

// Handle выполняет запрос.
func (h *GetChallengeHandler) Handle(ctx context.Context, id shared.ChallengeID) (*ChallengeDetails, error) {
	if !id.IsValid() {
		return nil, shared.WrapError("challenge", "Get", shared.ErrValidation, "invalid challenge id", shared.ErrInvalidID)
	}
	c, err := h.challenges.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ps, err := h.participants.ListByChallenge(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get_challenge: participants: %w", err)
	}
	return &ChallengeDetails{Challenge: c, Participants: ps}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIST RECORDS
// ══════════════════════════════════════════════════════════════════════════════

// ListRecordsQuery - ровно один из фильтров должен быть задан.
type ListRecordsQuery struct {
	UserID      shared.UserID
	ChallengeID shared.ChallengeID
}

// Validate проверяет, что задан ровно один корректный фильтр.
func (q ListRecordsQuery) Validate() error {
	const op = "ListRecords"
	switch {
	case q.UserID == "" && q.ChallengeID == "":
		return shared.Validationf("checkin", op, "either userId or challengeId is required")
	case q.UserID != "" && q.ChallengeID != "":
		return shared.Validationf("checkin", op, "only one of userId and challengeId may be given")
	case q.UserID != "" && !q.UserID.IsValid():
		return shared.WrapError("checkin", op, shared.ErrValidation, "invalid user id", shared.ErrInvalidID)
	case q.ChallengeID != "" && !q.ChallengeID.IsValid():
		return shared.WrapError("checkin", op, shared.ErrValidation, "invalid challenge id", shared.ErrInvalidID)
	}
	return nil
}

// ListRecordsHandler возвращает отметки по пользователю или по челленджу.
type ListRecordsHandler struct {
	checks checkin.Repository
}

// NewListRecordsHandler создаёт обработчик.
func NewListRecordsHandler(checks checkin.Repository) *ListRecordsHandler {
	return &ListRecordsHandler{checks: checks}
}

// Handle выполняет запрос.
func (h *ListRecordsHandler) Handle(ctx context.Context, q ListRecordsQuery) ([]checkin.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var (
		records []checkin.Record
		err     error
	)
	if q.UserID != "" {
		records, err = h.checks.ListByUser(ctx, q.UserID)
	} else {
		records, err = h.checks.ListByChallenge(ctx, q.ChallengeID)
	}
	if err != nil {
		return nil, fmt.Errorf("list_records: %w", err)
	}
	return records, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TODAY CHECKS
// Кто отметился сегодня: для карточки челленджа и списка челленджей.
// ══════════════════════════════════════════════════════════════════════════════

// TodayChecks - отметки за сегодня по одному челленджу.
type TodayChecks struct {
	Count              int         `json:"count"`
	UserNames          []string    `json:"userNames"`
	CompletedUserNames []string    `json:"completedUserNames"`
	Date               shared.Date `json:"date"`
}

// TodayChecksHandler обрабатывает одиночные и bulk-запросы.
type TodayChecksHandler struct {
	participants challenge.ParticipantRepository
	checks       checkin.Repository
	users        user.Repository
	clock        timeutil.Clock
}

// NewTodayChecksHandler создаёт обработчик.
func NewTodayChecksHandler(participants challenge.ParticipantRepository, checks checkin.Repository, users user.Repository, clock timeutil.Clock) *TodayChecksHandler {
	return &TodayChecksHandler{participants: participants, checks: checks, users: users, clock: clock}
}

// Handle возвращает отметки за сегодня по челленджам.
// Допускается от 1 до MaxBulkChallenges идентификаторов.
func (h *TodayChecksHandler) Handle(ctx context.Context, ids []shared.ChallengeID) (map[shared.ChallengeID]*TodayChecks, error) {
	const op = "TodayChecks"
	if len(ids) == 0 || len(ids) > MaxBulkChallenges {
		return nil, shared.Validationf("checkin", op, "challengeIds must contain 1-%d entries", MaxBulkChallenges)
	}
	for _, id := range ids {
		if !id.IsValid() {
			return nil, shared.WrapError("checkin", op, shared.ErrValidation, "invalid challenge id", shared.ErrInvalidID)
		}
	}

	now := h.clock.Now()
	today := shared.DateOf(now)
	records, err := h.checks.ListCompletedOn(ctx, ids, today)
	if err != nil {
		return nil, fmt.Errorf("today_checks: %w", err)
	}

	completions := make(map[shared.ChallengeID][]shared.UserID, len(ids))
	for _, id := range ids {
		participants, err := h.participants.ListByChallenge(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("today_checks: %w", err)
		}
		for _, p := range participants {
			if p.CompletedAt != nil && shared.DateOf(p.CompletedAt.In(now.Location())) == today {
				completions[id] = append(completions[id], p.UserID)
			}
		}
	}

	userIDs := make([]shared.UserID, 0, len(records))
	for _, r := range records {
		userIDs = append(userIDs, r.UserID)
	}
	for _, us := range completions {
		userIDs = append(userIDs, us...)
	}
	users, err := h.users.GetMany(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("today_checks: users: %w", err)
	}
	name := func(id shared.UserID) string {
		if u, ok := users[id]; ok {
			return u.Label()
		}
		return user.DisplayLabel(id, "")
	}

	out := make(map[shared.ChallengeID]*TodayChecks, len(ids))
	for _, id := range ids {
		out[id] = &TodayChecks{UserNames: []string{}, CompletedUserNames: []string{}, Date: today}
	}
	for _, r := range records {
		tc := out[r.ChallengeID]
		tc.UserNames = append(tc.UserNames, name(r.UserID))
		tc.Count++
	}
	for id, us := range completions {
		for _, u := range us {
			out[id].CompletedUserNames = append(out[id].CompletedUserNames, name(u))
		}
	}
	return out, nil
}

// HandleOne - то же для одного челленджа.
func (h *TodayChecksHandler) HandleOne(ctx context.Context, id shared.ChallengeID) (*TodayChecks, error) {
	out, err := h.Handle(ctx, []shared.ChallengeID{id})
	if err != nil {
		return nil, err
	}
	return out[id], nil
}
