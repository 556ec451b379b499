// Package leaderboard содержит доменную модель рейтинга челленджа.
// Рейтинг строится из журнала отметок: ранг - это число участников
// со строго большим результатом плюс один, поэтому равные результаты
// делят место, а следующие места не сжимаются.
package leaderboard

import (
	"errors"
	"fmt"
	"time"

	"github.com/aura-hub/aura-hub/internal/domain/gamification"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNilEntry - попытка добавить nil запись.
	ErrNilEntry = errors.New("leaderboard: nil entry")

	// ErrDuplicateUser - пользователь уже есть в рейтинге.
	ErrDuplicateUser = errors.New("leaderboard: duplicate user")

	// ErrSnapshotNotFound - снапшот не найден.
	ErrSnapshotNotFound = fmt.Errorf("%w: ranking snapshot", shared.ErrNotFound)
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Rank представляет позицию в рейтинге. Начинается с 1.
type Rank int

// IsValid проверяет, что ранг положительный.
func (r Rank) IsValid() bool {
	return r > 0
}

// String возвращает строковое представление ранга.
func (r Rank) String() string {
	return fmt.Sprintf("#%d", r)
}

// RankChange - изменение позиции: previous - current.
// Положительное значение = подъём, отрицательное = падение.
type RankChange int

// Direction возвращает направление изменения.
func (rc RankChange) Direction() RankDirection {
	switch {
	case rc > 0:
		return RankDirectionUp
	case rc < 0:
		return RankDirectionDown
	default:
		return RankDirectionStable
	}
}

// Abs возвращает абсолютное значение изменения.
func (rc RankChange) Abs() int {
	if rc < 0 {
		return int(-rc)
	}
	return int(rc)
}

// String возвращает строковое представление изменения.
func (rc RankChange) String() string {
	switch {
	case rc > 0:
		return fmt.Sprintf("+%d", rc)
	case rc < 0:
		return fmt.Sprintf("%d", rc)
	default:
		return "±0"
	}
}

// RankDirection определяет направление изменения ранга.
type RankDirection string

const (
	RankDirectionUp     RankDirection = "up"
	RankDirectionDown   RankDirection = "down"
	RankDirectionStable RankDirection = "stable"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry - одна строка рейтинга челленджа.
type Entry struct {
	UserID        shared.UserID     `json:"userId"`
	DisplayName   string            `json:"displayName"`
	Count         int               `json:"count"`
	TotalPoints   int               `json:"totalPoints"`
	CurrentRank   Rank              `json:"currentRank"`
	PreviousRank  Rank              `json:"previousRank"`
	CompletedAt   *time.Time        `json:"completedAt,omitempty"`
	IsCompleted   bool              `json:"isCompleted"`
	CurrentStreak int               `json:"currentStreak"`
	Aura          gamification.Aura `json:"auraState"`
}

// RankChange возвращает previous - current.
func (e *Entry) RankChange() RankChange {
	return RankChange(e.PreviousRank - e.CurrentRank)
}

// Direction возвращает направление изменения ранга.
func (e *Entry) Direction() RankDirection {
	return e.RankChange().Direction()
}

// Clone создаёт копию записи.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	clone := *e
	if e.CompletedAt != nil {
		at := *e.CompletedAt
		clone.CompletedAt = &at
	}
	return &clone
}

// String возвращает строковое представление для логирования.
func (e *Entry) String() string {
	return fmt.Sprintf("Entry{Rank: %d, User: %s, Count: %d, Change: %s}",
		e.CurrentRank, e.DisplayName, e.Count, e.RankChange())
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING
// ══════════════════════════════════════════════════════════════════════════════

// Ranking - упорядоченный для отображения список записей с индексом по пользователю.
type Ranking struct {
	ChallengeID shared.ChallengeID
	LongTerm    bool

	entries []*Entry
	byID    map[shared.UserID]*Entry
}

// NewRanking создаёт пустой Ranking.
func NewRanking(challengeID shared.ChallengeID, longTerm bool) *Ranking {
	return &Ranking{
		ChallengeID: challengeID,
		LongTerm:    longTerm,
		entries:     make([]*Entry, 0),
		byID:        make(map[shared.UserID]*Entry),
	}
}

// Add добавляет запись в конец (без пересортировки).
func (r *Ranking) Add(entry *Entry) error {
	if entry == nil {
		return ErrNilEntry
	}
	if _, exists := r.byID[entry.UserID]; exists {
		return ErrDuplicateUser
	}
	r.entries = append(r.entries, entry)
	r.byID[entry.UserID] = entry
	return nil
}

// Get возвращает запись пользователя или nil.
func (r *Ranking) Get(userID shared.UserID) *Entry {
	return r.byID[userID]
}

// Top возвращает первые n записей.
func (r *Ranking) Top(n int) []*Entry {
	if n <= 0 {
		return nil
	}
	if n > len(r.entries) {
		n = len(r.entries)
	}
	return r.entries[:n]
}

// Neighbors возвращает записи вокруг пользователя (rangeSize выше и ниже).
func (r *Ranking) Neighbors(userID shared.UserID, rangeSize int) []*Entry {
	idx := -1
	for i, e := range r.entries {
		if e.UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	from := max(0, idx-rangeSize)
	to := min(len(r.entries), idx+rangeSize+1)
	return r.entries[from:to]
}

// Count возвращает количество записей.
func (r *Ranking) Count() int {
	return len(r.entries)
}

// All возвращает все записи в порядке отображения.
func (r *Ranking) All() []*Entry {
	return r.entries
}
