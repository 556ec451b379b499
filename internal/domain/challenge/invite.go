package challenge

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

// InviteCodeLength - длина инвайт-кода.
const InviteCodeLength = 6

// InviteCode - короткий код для присоединения к челленджу.
// Хранится в верхнем регистре, сравнение нечувствительно к регистру.
type InviteCode string

// String возвращает строковое представление.
func (c InviteCode) String() string {
	return string(c)
}

// ParseInviteCode нормализует код и проверяет длину.
func ParseInviteCode(raw string) (InviteCode, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != InviteCodeLength {
		return "", fmt.Errorf("%w: invite code must be %d characters", shared.ErrInvalidFormat, InviteCodeLength)
	}
	return InviteCode(code), nil
}

// GenerateInviteCode выдаёт 6 шестнадцатеричных символов в верхнем регистре
// из 3 случайных байт. rnd == nil означает crypto/rand.
func GenerateInviteCode(rnd io.Reader) (InviteCode, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	buf := make([]byte, InviteCodeLength/2)
	if _, err := io.ReadFull(rnd, buf); err != nil {
		return "", fmt.Errorf("generate invite code: %w", err)
	}
	return InviteCode(strings.ToUpper(hex.EncodeToString(buf))), nil
}
