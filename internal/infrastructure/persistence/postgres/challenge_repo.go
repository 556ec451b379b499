package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHALLENGE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

const challengeColumns = `c.id::text, c.title, c.description, c.owner_id::text, c.invite_code, c.created_at,
	c.duration_days, c.is_private, c.is_long_term, c.points_per_check, c.points_per_nudge`

// ChallengeRepository implements challenge.Repository for PostgreSQL.
type ChallengeRepository struct {
	conn *Connection
}

var _ challenge.Repository = (*ChallengeRepository)(nil)

// NewChallengeRepository creates a new ChallengeRepository.
func NewChallengeRepository(conn *Connection) *ChallengeRepository {
	return &ChallengeRepository{conn: conn}
}

// Create inserts the challenge and the owner's participation in one transaction.
func (r *ChallengeRepository) Create(ctx context.Context, c *challenge.Challenge, owner *challenge.Participant) error {
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO challenges (
				id, title, description, owner_id, invite_code, created_at,
				duration_days, is_private, is_long_term, points_per_check, points_per_nudge
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			c.ID.String(),
			c.Title,
			c.Description,
			c.OwnerID.String(),
			c.InviteCode.String(),
			c.CreatedAt,
			c.DurationDays,
			c.IsPrivate,
			c.IsLongTerm,
			c.PointsConfig.PerCheck,
			c.PointsConfig.PerNudge,
		)
		if err != nil {
			return err
		}

		if owner == nil {
			return nil
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO participants (challenge_id, user_id, joined_at) VALUES ($1, $2, $3)
		`, c.ID.String(), owner.UserID.String(), owner.JoinedAt)
		return err
	})
	return mapError("challenge", "Create", err)
}

// GetByID returns a challenge by ID.
func (r *ChallengeRepository) GetByID(ctx context.Context, id shared.ChallengeID) (*challenge.Challenge, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+challengeColumns+` FROM challenges c WHERE c.id = $1`, id.String())
	c, err := scanChallenge(row)
	if err != nil {
		return nil, mapError("challenge", "GetByID", err)
	}
	return c, nil
}

// GetByInviteCode returns a challenge by invite code, ignoring case.
func (r *ChallengeRepository) GetByInviteCode(ctx context.Context, code challenge.InviteCode) (*challenge.Challenge, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+challengeColumns+` FROM challenges c WHERE UPPER(c.invite_code) = UPPER($1)`, code.String())
	c, err := scanChallenge(row)
	if err != nil {
		return nil, mapError("challenge", "GetByInviteCode", err)
	}
	return c, nil
}

// InviteCodeExists checks whether the code is taken.
func (r *ChallengeRepository) InviteCodeExists(ctx context.Context, code challenge.InviteCode) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM challenges WHERE UPPER(invite_code) = UPPER($1))`,
		code.String(),
	).Scan(&exists)
	if err != nil {
		return false, mapError("challenge", "InviteCodeExists", err)
	}
	return exists, nil
}

// Delete removes the challenge. Participants, checks and snapshots cascade.
func (r *ChallengeRepository) Delete(ctx context.Context, id shared.ChallengeID) error {
	result, err := r.conn.Exec(ctx, `DELETE FROM challenges WHERE id = $1`, id.String())
	if err != nil {
		return mapError("challenge", "Delete", err)
	}
	if result.RowsAffected() == 0 {
		return shared.NewDomainError("challenge", "Delete", shared.ErrNotFound, "challenge not found")
	}
	return nil
}

// ListAll returns every challenge ordered by creation.
func (r *ChallengeRepository) ListAll(ctx context.Context) ([]*challenge.Challenge, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+challengeColumns+` FROM challenges c ORDER BY c.created_at, c.id`)
	if err != nil {
		return nil, mapError("challenge", "ListAll", err)
	}
	defer rows.Close()

	var out []*challenge.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListForUser returns the user's challenges together with the participation edge.
func (r *ChallengeRepository) ListForUser(ctx context.Context, userID shared.UserID) ([]challenge.Membership, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+challengeColumns+`, p.joined_at, p.completed_at
		FROM participants p
		JOIN challenges c ON c.id = p.challenge_id
		WHERE p.user_id = $1
		ORDER BY c.created_at, c.id
	`, userID.String())
	if err != nil {
		return nil, mapError("challenge", "ListForUser", err)
	}
	defer rows.Close()

	out := make([]challenge.Membership, 0)
	for rows.Next() {
		var (
			c           challenge.Challenge
			id, ownerID string
			code        string
			joinedAt    time.Time
			completedAt *time.Time
		)
		err := rows.Scan(
			&id, &c.Title, &c.Description, &ownerID, &code, &c.CreatedAt,
			&c.DurationDays, &c.IsPrivate, &c.IsLongTerm, &c.PointsConfig.PerCheck, &c.PointsConfig.PerNudge,
			&joinedAt, &completedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		c.ID = shared.ChallengeID(id)
		c.OwnerID = shared.UserID(ownerID)
		c.InviteCode = challenge.InviteCode(code)

		out = append(out, challenge.Membership{
			Challenge: &c,
			Participant: &challenge.Participant{
				UserID:      userID,
				ChallengeID: c.ID,
				JoinedAt:    joinedAt,
				CompletedAt: completedAt,
			},
		})
	}
	return out, rows.Err()
}

func scanChallenge(row pgx.Row) (*challenge.Challenge, error) {
	var (
		c           challenge.Challenge
		id, ownerID string
		code        string
	)
	err := row.Scan(
		&id, &c.Title, &c.Description, &ownerID, &code, &c.CreatedAt,
		&c.DurationDays, &c.IsPrivate, &c.IsLongTerm, &c.PointsConfig.PerCheck, &c.PointsConfig.PerNudge,
	)
	if err != nil {
		return nil, err
	}
	c.ID = shared.ChallengeID(id)
	c.OwnerID = shared.UserID(ownerID)
	c.InviteCode = challenge.InviteCode(code)
	return &c, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PARTICIPANT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ParticipantRepository implements challenge.ParticipantRepository for PostgreSQL.
type ParticipantRepository struct {
	conn *Connection
}

var _ challenge.ParticipantRepository = (*ParticipantRepository)(nil)

// NewParticipantRepository creates a new ParticipantRepository.
func NewParticipantRepository(conn *Connection) *ParticipantRepository {
	return &ParticipantRepository{conn: conn}
}

// Add inserts the participation. An existing one is left untouched.
func (r *ParticipantRepository) Add(ctx context.Context, p *challenge.Participant) (bool, error) {
	result, err := r.conn.Exec(ctx, `
		INSERT INTO participants (challenge_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (challenge_id, user_id) DO NOTHING
	`, p.ChallengeID.String(), p.UserID.String(), p.JoinedAt)
	if err != nil {
		return false, mapError("challenge", "AddParticipant", err)
	}
	return result.RowsAffected() == 1, nil
}

// Get returns the user's participation.
func (r *ParticipantRepository) Get(ctx context.Context, challengeID shared.ChallengeID, userID shared.UserID) (*challenge.Participant, error) {
	p := &challenge.Participant{ChallengeID: challengeID, UserID: userID}
	err := r.conn.QueryRow(ctx, `
		SELECT joined_at, completed_at FROM participants WHERE challenge_id = $1 AND user_id = $2
	`, challengeID.String(), userID.String()).Scan(&p.JoinedAt, &p.CompletedAt)
	if err != nil {
		return nil, mapError("challenge", "GetParticipant", err)
	}
	return p, nil
}

// Remove deletes the participation.
func (r *ParticipantRepository) Remove(ctx context.Context, challengeID shared.ChallengeID, userID shared.UserID) error {
	result, err := r.conn.Exec(ctx,
		`DELETE FROM participants WHERE challenge_id = $1 AND user_id = $2`,
		challengeID.String(), userID.String(),
	)
	if err != nil {
		return mapError("challenge", "RemoveParticipant", err)
	}
	if result.RowsAffected() == 0 {
		return shared.NewDomainError("challenge", "RemoveParticipant", shared.ErrNotFound, "participant not found")
	}
	return nil
}

// ListByChallenge returns all participants ordered by join time.
func (r *ParticipantRepository) ListByChallenge(ctx context.Context, challengeID shared.ChallengeID) ([]*challenge.Participant, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT user_id::text, joined_at, completed_at
		FROM participants
		WHERE challenge_id = $1
		ORDER BY joined_at, user_id
	`, challengeID.String())
	if err != nil {
		return nil, mapError("challenge", "ListParticipants", err)
	}
	defer rows.Close()

	out := make([]*challenge.Participant, 0)
	for rows.Next() {
		var userID string
		p := &challenge.Participant{ChallengeID: challengeID}
		if err := rows.Scan(&userID, &p.JoinedAt, &p.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p.UserID = shared.UserID(userID)
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkCompleted sets completed_at once. A second call is a conflict.
func (r *ParticipantRepository) MarkCompleted(ctx context.Context, challengeID shared.ChallengeID, userID shared.UserID, at time.Time) error {
	result, err := r.conn.Exec(ctx, `
		UPDATE participants SET completed_at = $3
		WHERE challenge_id = $1 AND user_id = $2 AND completed_at IS NULL
	`, challengeID.String(), userID.String(), at)
	if err != nil {
		return mapError("challenge", "MarkCompleted", err)
	}
	if result.RowsAffected() == 1 {
		return nil
	}

	// Distinguish a missing participant from a repeated completion.
	if _, err := r.Get(ctx, challengeID, userID); err != nil {
		return err
	}
	return shared.NewDomainError("challenge", "MarkCompleted", shared.ErrConflict, "challenge already completed")
}
