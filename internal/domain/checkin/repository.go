package checkin

import (
	"context"

	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

// Repository определяет контракт хранения отметок.
type Repository interface {
	// Upsert сохраняет отметку по естественному ключу (userId, challengeId, date).
	// Если у записи задан ID и запись с таким ID существует, обновляется она.
	// Повторный вызов с теми же данными не создаёт дубликатов.
	Upsert(ctx context.Context, r *Record) (*Record, error)

	// ListByUser возвращает все отметки пользователя.
	ListByUser(ctx context.Context, userID shared.UserID) ([]Record, error)

	// ListByChallenge возвращает все отметки челленджа.
	ListByChallenge(ctx context.Context, challengeID shared.ChallengeID) ([]Record, error)

	// ListCompletedOn возвращает выполненные отметки за день по набору челленджей.
	ListCompletedOn(ctx context.Context, challengeIDs []shared.ChallengeID, day shared.Date) ([]Record, error)
}
