package leaderboard

import (
	"context"

	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT STORE
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotStore хранит версии рейтинга по ключу (challengeID, date).
// Реализации: PostgreSQL (история), Redis (быстрое чтение), in-memory (тесты, dev).
type SnapshotStore interface {
	// Save сохраняет снапшот, заменяя существующий с тем же ключом.
	Save(ctx context.Context, s *Snapshot) error

	// Get возвращает снапшот за конкретный день или ErrSnapshotNotFound.
	Get(ctx context.Context, challengeID shared.ChallengeID, day shared.Date) (*Snapshot, error)

	// Latest возвращает самый поздний снапшот строго раньше before.
	Latest(ctx context.Context, challengeID shared.ChallengeID, before shared.Date) (*Snapshot, error)

	// Prune удаляет снапшоты с датой раньше olderThan. Возвращает число удалённых.
	Prune(ctx context.Context, olderThan shared.Date) (int, error)
}

// RankingCache кеширует построенный рейтинг на текущий день.
// Любая запись в челлендж должна инвалидировать кеш.
// Промах кеша возвращается как shared.ErrNotFound.
type RankingCache interface {
	Get(ctx context.Context, challengeID shared.ChallengeID, day shared.Date) ([]*Entry, error)
	Set(ctx context.Context, challengeID shared.ChallengeID, day shared.Date, entries []*Entry) error
	Invalidate(ctx context.Context, challengeID shared.ChallengeID) error
}
