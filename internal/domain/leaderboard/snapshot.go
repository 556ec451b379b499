package leaderboard

import (
	"fmt"
	"sort"
	"time"

	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANKING SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot - зафиксированный рейтинг челленджа за календарный день.
// Ключ снапшота - (ChallengeID, Date); повторное сохранение за тот же день
// заменяет предыдущую версию.
type Snapshot struct {
	ChallengeID shared.ChallengeID `json:"challengeId"`
	Date        shared.Date        `json:"date"`
	TakenAt     time.Time          `json:"takenAt"`
	Entries     []*Entry           `json:"entries"`

	byID map[shared.UserID]*Entry
}

// SnapshotKey - ключ снапшота.
type SnapshotKey struct {
	ChallengeID shared.ChallengeID
	Date        shared.Date
}

// Key возвращает ключ снапшота.
func (s *Snapshot) Key() SnapshotKey {
	return SnapshotKey{ChallengeID: s.ChallengeID, Date: s.Date}
}

// NewSnapshot фиксирует рейтинг. Записи копируются, поэтому дальнейшие
// изменения рейтинга не затрагивают снапшот.
func NewSnapshot(day shared.Date, ranking *Ranking, takenAt time.Time) *Snapshot {
	s := &Snapshot{
		ChallengeID: ranking.ChallengeID,
		Date:        day,
		TakenAt:     takenAt,
		Entries:     make([]*Entry, 0, ranking.Count()),
	}
	for _, e := range ranking.All() {
		s.Entries = append(s.Entries, e.Clone())
	}
	s.RebuildIndex()
	return s
}

// Clone возвращает глубокую копию снапшота.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := &Snapshot{
		ChallengeID: s.ChallengeID,
		Date:        s.Date,
		TakenAt:     s.TakenAt,
		Entries:     make([]*Entry, 0, len(s.Entries)),
	}
	for _, e := range s.Entries {
		c.Entries = append(c.Entries, e.Clone())
	}
	c.RebuildIndex()
	return c
}

// Get возвращает запись пользователя или nil.
func (s *Snapshot) Get(userID shared.UserID) *Entry {
	if s.byID == nil {
		s.RebuildIndex()
	}
	return s.byID[userID]
}

// GetRank возвращает ранг пользователя или 0, если его нет в снапшоте.
func (s *Snapshot) GetRank(userID shared.UserID) Rank {
	if e := s.Get(userID); e != nil {
		return e.CurrentRank
	}
	return 0
}

// Contains проверяет наличие пользователя.
func (s *Snapshot) Contains(userID shared.UserID) bool {
	return s.Get(userID) != nil
}

// IsEmpty возвращает true для пустого снапшота.
func (s *Snapshot) IsEmpty() bool {
	return len(s.Entries) == 0
}

// RebuildIndex перестраивает индекс byID.
// Используется после десериализации из БД или кеша.
func (s *Snapshot) RebuildIndex() {
	s.byID = make(map[shared.UserID]*Entry, len(s.Entries))
	for _, e := range s.Entries {
		s.byID[e.UserID] = e
	}
}

// String возвращает строковое представление для логирования.
func (s *Snapshot) String() string {
	return fmt.Sprintf("Snapshot{Challenge: %s, Date: %s, Entries: %d}", s.ChallengeID, s.Date, len(s.Entries))
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT DIFF
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotDiff - изменения между двумя снапшотами одного челленджа.
type SnapshotDiff struct {
	// RankChanges - изменение ранга по пользователям, присутствующим в обоих снапшотах.
	RankChanges map[shared.UserID]RankChange

	// NewEntries - пользователи, которых не было в старом снапшоте.
	NewEntries []*Entry

	// RemovedEntries - пользователи, покинувшие рейтинг.
	RemovedEntries []*Entry
}

// CalculateDiff вычисляет разницу между снапшотами. old может быть nil.
func CalculateDiff(old, current *Snapshot) *SnapshotDiff {
	diff := &SnapshotDiff{
		RankChanges:    make(map[shared.UserID]RankChange),
		NewEntries:     make([]*Entry, 0),
		RemovedEntries: make([]*Entry, 0),
	}
	if current == nil {
		return diff
	}

	for _, e := range current.Entries {
		if old == nil || !old.Contains(e.UserID) {
			diff.NewEntries = append(diff.NewEntries, e)
			continue
		}
		diff.RankChanges[e.UserID] = RankChange(old.GetRank(e.UserID) - e.CurrentRank)
	}

	if old != nil {
		for _, e := range old.Entries {
			if !current.Contains(e.UserID) {
				diff.RemovedEntries = append(diff.RemovedEntries, e)
			}
		}
	}
	return diff
}

// HasChanges возвращает true, если есть какие-либо изменения.
func (d *SnapshotDiff) HasChanges() bool {
	if len(d.NewEntries) > 0 || len(d.RemovedEntries) > 0 {
		return true
	}
	for _, c := range d.RankChanges {
		if c != 0 {
			return true
		}
	}
	return false
}

// Movers возвращает пользователей с |изменением| >= threshold, по убыванию модуля.
func (d *SnapshotDiff) Movers(threshold int) []shared.UserID {
	out := make([]shared.UserID, 0)
	for id, c := range d.RankChanges {
		if c != 0 && c.Abs() >= threshold {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := d.RankChanges[out[i]].Abs(), d.RankChanges[out[j]].Abs()
		if ai != aj {
			return ai > aj
		}
		return out[i] < out[j]
	})
	return out
}
