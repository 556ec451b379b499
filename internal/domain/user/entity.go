// Package user содержит доменную модель пользователя.
// CurrentStreak и PreviousStreak - кеш, который всегда можно пересчитать
// из журнала отметок; PreviousStreak нужен только для отмены отметки.
package user

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

// MaxDisplayNameLength - максимальная длина имени.
const MaxDisplayNameLength = 100

// User - участник челленджей.
type User struct {
	ID             shared.UserID `json:"id"`
	DisplayName    string        `json:"displayName"`
	CurrentStreak  int           `json:"currentStreak"`
	PreviousStreak int           `json:"previousStreak"`
	LastCheckDate  shared.Date   `json:"lastCheckDate,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// Label возвращает имя для отображения.
// Пустое или "Unknown" имя заменяется на "User xxxxxx...".
func (u *User) Label() string {
	return DisplayLabel(u.ID, u.DisplayName)
}

// DisplayLabel - то же, что Label, но без сущности.
func DisplayLabel(id shared.UserID, name string) string {
	switch strings.TrimSpace(name) {
	case "", "Unknown", "Unknown User":
		return fmt.Sprintf("User %s...", id.Short())
	default:
		return name
	}
}

// ApplyCheck обновляет кеш стрика после отметки.
// Предыдущее значение сохраняется для отмены.
func (u *User) ApplyCheck(newStreak int, checkDate shared.Date, at time.Time) {
	u.PreviousStreak = u.CurrentStreak
	u.CurrentStreak = newStreak
	u.LastCheckDate = checkDate
	u.UpdatedAt = at
}

// ApplyUndo обновляет кеш после снятия отметки пересчитанным стриком.
func (u *User) ApplyUndo(recomputed int, at time.Time) {
	u.CurrentStreak = recomputed
	u.UpdatedAt = at
}

// ValidateDisplayName проверяет имя, если оно задано.
func ValidateDisplayName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n == 0 || n > MaxDisplayNameLength {
		return shared.Validationf("user", "ValidateDisplayName", "display name must be 1-%d characters", MaxDisplayNameLength)
	}
	return nil
}

var (
	namePrefixes = []string{
		"Shadow", "Golden", "Ultra", "Spirit", "Cosmic", "Legendary",
		"Silent", "Iron", "Steel", "Dark", "Light", "Hidden",
		"Eternal", "Zenith", "Apex", "Crimson", "Swift", "Lunar",
	}
	nameSuffixes = []string{
		"Hunter", "Alchemist", "Titan", "Pirate", "Ninja", "Samurai",
		"Hero", "Sensei", "Warrior", "Slayer", "Ranger", "Wanderer",
		"Guardian", "Phoenix", "Falcon", "Nomad", "Sage", "Knight",
	}
)

// GenerateDisplayName выдаёт имя вида "Prefix Suffix" для новых пользователей.
func GenerateDisplayName(rng *rand.Rand) string {
	if rng == nil {
		return namePrefixes[rand.IntN(len(namePrefixes))] + " " + nameSuffixes[rand.IntN(len(nameSuffixes))]
	}
	return namePrefixes[rng.IntN(len(namePrefixes))] + " " + nameSuffixes[rng.IntN(len(nameSuffixes))]
}

// Repository определяет контракт хранения пользователей.
type Repository interface {
	// Upsert создаёт пользователя или обновляет имя.
	// Если пользователь существует, а displayName пуст, имя не меняется.
	// Для нового пользователя defaultName используется при пустом displayName.
	Upsert(ctx context.Context, id shared.UserID, displayName, defaultName string, at time.Time) (*User, error)

	// GetByID возвращает пользователя.
	GetByID(ctx context.Context, id shared.UserID) (*User, error)

	// GetMany возвращает найденных пользователей; отсутствующие пропускаются.
	GetMany(ctx context.Context, ids []shared.UserID) (map[shared.UserID]*User, error)

	// UpdateStreak сохраняет кеш стрика.
	UpdateStreak(ctx context.Context, u *User) error
}
