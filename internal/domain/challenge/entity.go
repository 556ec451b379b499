// Package challenge содержит доменную модель челленджа: сам челлендж,
// участие пользователя (Participant) и инвайт-коды.
// Челлендж бывает ежедневным (оценивается стриком и очками за отметку)
// или долгосрочным (оценивается "толчками" и разовым бонусом за завершение).
package challenge

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// MaxTitleLength - максимальная длина названия.
	MaxTitleLength = 100

	// MaxDescriptionLength - максимальная длина описания.
	MaxDescriptionLength = 500

	// MinDurationDays и MaxDurationDays - допустимая длительность.
	MinDurationDays = 1
	MaxDurationDays = 365

	// DefaultDurationDays используется, если длительность не указана.
	DefaultDurationDays = 30

	// MaxPointsPerCheck - верхняя граница очков за одну отметку.
	MaxPointsPerCheck = 1000
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Kind различает ежедневные и долгосрочные челленджи.
type Kind string

const (
	KindDaily    Kind = "daily"
	KindLongTerm Kind = "long_term"
)

// PointsConfig задаёт награды челленджа.
// Нулевые значения означают "использовать глобальные настройки".
type PointsConfig struct {
	// PerCheck - очки за одну выполненную отметку (ежедневный челлендж).
	PerCheck int `json:"perCheck,omitempty"`

	// PerNudge - очки за один "толчок" (долгосрочный челлендж).
	PerNudge int `json:"perNudge,omitempty"`
}

// Validate проверяет границы наград.
func (p PointsConfig) Validate() error {
	if p.PerCheck < 0 || p.PerCheck > MaxPointsPerCheck {
		return fmt.Errorf("%w: points per check must be between 0 and %d", shared.ErrValueOutOfRange, MaxPointsPerCheck)
	}
	if p.PerNudge < 0 || p.PerNudge > MaxPointsPerCheck {
		return fmt.Errorf("%w: points per nudge must be between 0 and %d", shared.ErrValueOutOfRange, MaxPointsPerCheck)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CHALLENGE ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Challenge - челлендж, к которому присоединяются пользователи.
type Challenge struct {
	ID           shared.ChallengeID `json:"id"`
	Title        string             `json:"title"`
	Description  string             `json:"description,omitempty"`
	OwnerID      shared.UserID      `json:"ownerId"`
	InviteCode   InviteCode         `json:"inviteCode"`
	CreatedAt    time.Time          `json:"createdAt"`
	DurationDays int                `json:"durationDays"`
	IsPrivate    bool               `json:"isPrivate"`
	IsLongTerm   bool               `json:"isLongTerm"`
	PointsConfig PointsConfig       `json:"pointsConfig"`
}

// Kind возвращает тип челленджа.
func (c *Challenge) Kind() Kind {
	if c.IsLongTerm {
		return KindLongTerm
	}
	return KindDaily
}

// StartDate - календарный день создания в зоне loc.
func (c *Challenge) StartDate(loc *time.Location) shared.Date {
	if loc == nil {
		loc = time.UTC
	}
	return shared.DateOf(c.CreatedAt.In(loc))
}

// EndDate - последний день окна ежедневного челленджа (включительно).
func (c *Challenge) EndDate(loc *time.Location) shared.Date {
	return c.StartDate(loc).AddDays(c.DurationDays - 1)
}

// IsOwnedBy проверяет владельца.
func (c *Challenge) IsOwnedBy(userID shared.UserID) bool {
	return c.OwnerID == userID
}

// DeletesOnLeave - уход владельца удаляет приватный челлендж целиком.
func (c *Challenge) DeletesOnLeave(userID shared.UserID) bool {
	return c.IsPrivate && c.IsOwnedBy(userID)
}

// NewChallengeParams - параметры создания челленджа.
type NewChallengeParams struct {
	ID           shared.ChallengeID
	Title        string
	Description  string
	OwnerID      shared.UserID
	InviteCode   InviteCode
	CreatedAt    time.Time
	DurationDays int
	IsPrivate    bool
	IsLongTerm   bool
	PointsConfig PointsConfig
}

// NewChallenge создаёт челлендж с валидацией всех полей.
// Нулевая длительность заменяется на DefaultDurationDays.
func NewChallenge(p NewChallengeParams) (*Challenge, error) {
	const op = "NewChallenge"

	title := strings.TrimSpace(p.Title)
	if title == "" {
		return nil, shared.Validationf("challenge", op, "title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, shared.Validationf("challenge", op, "title must be at most %d characters", MaxTitleLength)
	}

	description := strings.TrimSpace(p.Description)
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return nil, shared.Validationf("challenge", op, "description must be at most %d characters", MaxDescriptionLength)
	}

	if !p.ID.IsValid() {
		return nil, shared.WrapError("challenge", op, shared.ErrValidation, "invalid challenge id", shared.ErrInvalidID)
	}
	if !p.OwnerID.IsValid() {
		return nil, shared.WrapError("challenge", op, shared.ErrValidation, "invalid owner id", shared.ErrInvalidID)
	}

	duration := p.DurationDays
	if duration == 0 {
		duration = DefaultDurationDays
	}
	if duration < MinDurationDays || duration > MaxDurationDays {
		return nil, shared.Validationf("challenge", op, "duration must be between %d and %d days", MinDurationDays, MaxDurationDays)
	}

	if err := p.PointsConfig.Validate(); err != nil {
		return nil, shared.WrapError("challenge", op, shared.ErrValidation, "invalid points config", err)
	}

	code, err := ParseInviteCode(string(p.InviteCode))
	if err != nil {
		return nil, shared.WrapError("challenge", op, shared.ErrValidation, "invalid invite code", err)
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		return nil, shared.Validationf("challenge", op, "creation time is required")
	}

	return &Challenge{
		ID:           p.ID,
		Title:        title,
		Description:  description,
		OwnerID:      p.OwnerID,
		InviteCode:   code,
		CreatedAt:    createdAt,
		DurationDays: duration,
		IsPrivate:    p.IsPrivate,
		IsLongTerm:   p.IsLongTerm,
		PointsConfig: p.PointsConfig,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PARTICIPANT
// ══════════════════════════════════════════════════════════════════════════════

// Participant - связь пользователя и челленджа.
// CompletedAt выставляется не более одного раза и только для долгосрочных челленджей.
type Participant struct {
	UserID      shared.UserID      `json:"userId"`
	ChallengeID shared.ChallengeID `json:"challengeId"`
	JoinedAt    time.Time          `json:"joinedAt"`
	CompletedAt *time.Time         `json:"completedAt,omitempty"`
}

// IsCompleted - завершил ли участник долгосрочный челлендж.
func (p *Participant) IsCompleted() bool {
	return p.CompletedAt != nil
}

// Complete отмечает завершение. Повторное завершение - конфликт.
func (p *Participant) Complete(c *Challenge, at time.Time) error {
	const op = "Complete"
	if !c.IsLongTerm {
		return shared.Validationf("challenge", op, "only long-term challenges can be completed")
	}
	if p.CompletedAt != nil {
		return shared.NewDomainError("challenge", op, shared.ErrConflict, "challenge already completed")
	}
	completed := at
	p.CompletedAt = &completed
	return nil
}

// Membership - челлендж вместе с участием конкретного пользователя.
type Membership struct {
	Challenge   *Challenge   `json:"challenge"`
	Participant *Participant `json:"participant"`
}
