// Package checkin содержит доменную модель отметки о выполнении (CompletionRecord).
// Отметка - единственный источник истины: стрик, аура, очки и рейтинг
// всегда пересчитываются из журнала отметок.
package checkin

import (
	"sort"
	"time"

	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

// Key - естественный ключ отметки. На один ключ приходится не более одной записи.
type Key struct {
	UserID      shared.UserID
	ChallengeID shared.ChallengeID
	Date        shared.Date
}

// Record - отметка пользователя по челленджу за календарный день.
type Record struct {
	ID          string             `json:"id"`
	UserID      shared.UserID      `json:"userId"`
	ChallengeID shared.ChallengeID `json:"challengeId"`
	Date        shared.Date        `json:"date"`
	Completed   bool               `json:"completed"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// Key возвращает естественный ключ записи.
func (r Record) Key() Key {
	return Key{UserID: r.UserID, ChallengeID: r.ChallengeID, Date: r.Date}
}

// Validate проверяет обязательные поля.
func (r Record) Validate() error {
	const op = "Validate"
	if !r.UserID.IsValid() {
		return shared.WrapError("checkin", op, shared.ErrValidation, "invalid user id", shared.ErrInvalidID)
	}
	if !r.ChallengeID.IsValid() {
		return shared.WrapError("checkin", op, shared.ErrValidation, "invalid challenge id", shared.ErrInvalidID)
	}
	if r.Date.IsZero() {
		return shared.Validationf("checkin", op, "date is required")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LOG (last-writer-wins)
// ══════════════════════════════════════════════════════════════════════════════

// Log - журнал отметок с семантикой last-writer-wins по естественному ключу.
// Нулевое значение готово к использованию.
type Log struct {
	byKey map[Key]Record
}

// NewLog строит журнал из записей; более поздние записи перекрывают ранние.
func NewLog(records ...Record) *Log {
	l := &Log{byKey: make(map[Key]Record, len(records))}
	for _, r := range records {
		l.Upsert(r)
	}
	return l
}

// Upsert вставляет или заменяет запись с тем же ключом.
func (l *Log) Upsert(r Record) {
	if l.byKey == nil {
		l.byKey = make(map[Key]Record)
	}
	l.byKey[r.Key()] = r
}

// Get возвращает запись по ключу.
func (l *Log) Get(k Key) (Record, bool) {
	r, ok := l.byKey[k]
	return r, ok
}

// Len возвращает число записей.
func (l *Log) Len() int {
	return len(l.byKey)
}

// Records возвращает записи, отсортированные по (дата, челлендж, пользователь).
func (l *Log) Records() []Record {
	out := make([]Record, 0, len(l.byKey))
	for _, r := range l.byKey {
		out = append(out, r)
	}
	SortByDate(out)
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// SLICE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// SortByDate сортирует записи по дате по возрастанию, детерминированно.
func SortByDate(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if c := a.Date.Compare(b.Date); c != 0 {
			return c < 0
		}
		if a.ChallengeID != b.ChallengeID {
			return a.ChallengeID < b.ChallengeID
		}
		return a.UserID < b.UserID
	})
}

// Completed возвращает только выполненные отметки с валидной датой.
func Completed(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Completed && !r.Date.IsZero() {
			out = append(out, r)
		}
	}
	return out
}

// ForChallenge возвращает записи одного челленджа.
func ForChallenge(records []Record, id shared.ChallengeID) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.ChallengeID == id {
			out = append(out, r)
		}
	}
	return out
}

// ForUser возвращает записи одного пользователя.
func ForUser(records []Record, id shared.UserID) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.UserID == id {
			out = append(out, r)
		}
	}
	return out
}

// Before возвращает записи строго раньше day.
func Before(records []Record, day shared.Date) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Date.Before(day) {
			out = append(out, r)
		}
	}
	return out
}

// CountCompletedByUser считает выполненные отметки по пользователям.
func CountCompletedByUser(records []Record) map[shared.UserID]int {
	counts := make(map[shared.UserID]int)
	for _, r := range records {
		if r.Completed && !r.Date.IsZero() {
			counts[r.UserID]++
		}
	}
	return counts
}
