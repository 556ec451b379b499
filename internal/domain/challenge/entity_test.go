package challenge

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

const (
	testChallengeID = shared.ChallengeID("7ed99bd0-87b2-4dbb-a97b-596c3f29c49b")
	testOwnerID     = shared.UserID("9ca4322d-ebd5-4ffa-a340-56fe811bbab1")
)

func validParams() NewChallengeParams {
	return NewChallengeParams{
		ID:         testChallengeID,
		Title:      "  Morning run  ",
		OwnerID:    testOwnerID,
		InviteCode: "a1b2c3",
		CreatedAt:  time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestNewChallenge_Defaults(t *testing.T) {
	c, err := NewChallenge(validParams())
	require.NoError(t, err)

	assert.Equal(t, "Morning run", c.Title)
	assert.Equal(t, DefaultDurationDays, c.DurationDays)
	assert.Equal(t, InviteCode("A1B2C3"), c.InviteCode)
	assert.Equal(t, KindDaily, c.Kind())
	assert.Equal(t, shared.MustParseDate("2024-01-30"), c.EndDate(time.UTC))
}

func TestNewChallenge_Validation(t *testing.T) {
	cases := map[string]func(p *NewChallengeParams){
		"empty title":        func(p *NewChallengeParams) { p.Title = "   " },
		"long title":         func(p *NewChallengeParams) { p.Title = strings.Repeat("x", 101) },
		"long description":   func(p *NewChallengeParams) { p.Description = strings.Repeat("d", 501) },
		"duration too long":  func(p *NewChallengeParams) { p.DurationDays = 366 },
		"negative duration":  func(p *NewChallengeParams) { p.DurationDays = -1 },
		"points too high":    func(p *NewChallengeParams) { p.PointsConfig.PerCheck = 1001 },
		"bad owner":          func(p *NewChallengeParams) { p.OwnerID = "nope" },
		"short invite code":  func(p *NewChallengeParams) { p.InviteCode = "ABC" },
		"missing created at": func(p *NewChallengeParams) { p.CreatedAt = time.Time{} },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := validParams()
			mutate(&p)
			_, err := NewChallenge(p)
			assert.True(t, shared.IsValidation(err), "got %v", err)
		})
	}
}

func TestParticipant_Complete(t *testing.T) {
	p := validParams()
	p.IsLongTerm = true
	c, err := NewChallenge(p)
	require.NoError(t, err)

	part := &Participant{UserID: testOwnerID, ChallengeID: c.ID}
	at := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, part.Complete(c, at))
	assert.True(t, part.IsCompleted())
	assert.Equal(t, at, *part.CompletedAt)

	err = part.Complete(c, at.Add(time.Hour))
	assert.True(t, shared.IsConflict(err))
	assert.Equal(t, at, *part.CompletedAt)
}

func TestParticipant_CompleteDailyRejected(t *testing.T) {
	c, err := NewChallenge(validParams())
	require.NoError(t, err)

	part := &Participant{UserID: testOwnerID, ChallengeID: c.ID}
	assert.True(t, shared.IsValidation(part.Complete(c, time.Now())))
	assert.False(t, part.IsCompleted())
}

func TestDeletesOnLeave(t *testing.T) {
	p := validParams()
	p.IsPrivate = true
	c, err := NewChallenge(p)
	require.NoError(t, err)

	assert.True(t, c.DeletesOnLeave(testOwnerID))
	assert.False(t, c.DeletesOnLeave("11111111-1111-1111-1111-111111111111"))

	c.IsPrivate = false
	assert.False(t, c.DeletesOnLeave(testOwnerID))
}

func TestGenerateInviteCode(t *testing.T) {
	code, err := GenerateInviteCode(bytes.NewReader([]byte{0xab, 0x01, 0xff}))
	require.NoError(t, err)
	assert.Equal(t, InviteCode("AB01FF"), code)

	_, err = GenerateInviteCode(bytes.NewReader([]byte{0x01}))
	assert.Error(t, err)

	random, err := GenerateInviteCode(nil)
	require.NoError(t, err)
	assert.Len(t, random.String(), InviteCodeLength)
	assert.Equal(t, strings.ToUpper(random.String()), random.String())
}

func TestParseInviteCode_CaseInsensitive(t *testing.T) {
	code, err := ParseInviteCode(" ab01ff ")
	require.NoError(t, err)
	assert.Equal(t, InviteCode("AB01FF"), code)
}
