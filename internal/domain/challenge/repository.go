package challenge

import (
	"context"
	"time"

	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет контракт хранения челленджей.
// Реализации находятся в infrastructure слое (PostgreSQL, in-memory).
// Отсутствующая сущность возвращается как shared.ErrNotFound.
type Repository interface {
	// Create атомарно сохраняет челлендж и участие владельца.
	// Коллизия инвайт-кода возвращается как shared.ErrAlreadyExists.
	Create(ctx context.Context, c *Challenge, owner *Participant) error

	// GetByID возвращает челлендж по ID.
	GetByID(ctx context.Context, id shared.ChallengeID) (*Challenge, error)

	// GetByInviteCode ищет челлендж по коду без учёта регистра.
	GetByInviteCode(ctx context.Context, code InviteCode) (*Challenge, error)

	// InviteCodeExists проверяет занятость кода.
	InviteCodeExists(ctx context.Context, code InviteCode) (bool, error)

	// Delete удаляет челлендж вместе с участниками и отметками.
	Delete(ctx context.Context, id shared.ChallengeID) error

	// ListAll возвращает все челленджи (для ежедневных снапшотов рейтинга).
	ListAll(ctx context.Context) ([]*Challenge, error)

	// ListForUser возвращает челленджи пользователя вместе с его участием.
	ListForUser(ctx context.Context, userID shared.UserID) ([]Membership, error)
}

// ParticipantRepository определяет контракт хранения участий.
type ParticipantRepository interface {
	// Add добавляет участие. Повторное добавление не ошибка: created == false.
	Add(ctx context.Context, p *Participant) (created bool, err error)

	// Get возвращает участие пользователя.
	Get(ctx context.Context, challengeID shared.ChallengeID, userID shared.UserID) (*Participant, error)

	// Remove удаляет участие.
	Remove(ctx context.Context, challengeID shared.ChallengeID, userID shared.UserID) error

	// ListByChallenge возвращает всех участников челленджа.
	ListByChallenge(ctx context.Context, challengeID shared.ChallengeID) ([]*Participant, error)

	// MarkCompleted выставляет CompletedAt, только если он ещё не выставлен.
	// Повторный вызов возвращает shared.ErrConflict.
	MarkCompleted(ctx context.Context, challengeID shared.ChallengeID, userID shared.UserID, at time.Time) error
}
