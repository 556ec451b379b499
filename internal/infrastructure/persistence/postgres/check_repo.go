package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aura-hub/aura-hub/internal/domain/checkin"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETION RECORD REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

const checkColumns = `id::text, user_id::text, challenge_id::text, date, completed, updated_at`

// CheckRepository implements checkin.Repository for PostgreSQL.
type CheckRepository struct {
	conn *Connection
}

var _ checkin.Repository = (*CheckRepository)(nil)

// NewCheckRepository creates a new CheckRepository.
func NewCheckRepository(conn *Connection) *CheckRepository {
	return &CheckRepository{conn: conn}
}

// Upsert stores the record by natural key. A given ID that currently names
// a record under another key moves that identity to the new key.
func (r *CheckRepository) Upsert(ctx context.Context, rec *checkin.Record) (*checkin.Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return nil, shared.WrapError("checkin", "Upsert", shared.ErrValidation, "record id must be a uuid", shared.ErrInvalidID)
	}

	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	var saved *checkin.Record
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if rec.ID != "" {
			_, err := tx.Exec(ctx, `
				DELETE FROM checks
				WHERE id = $1 AND NOT (user_id = $2 AND challenge_id = $3 AND date = $4)
			`, rec.ID, rec.UserID.String(), rec.ChallengeID.String(), rec.Date.Time())
			if err != nil {
				return err
			}
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO checks (id, user_id, challenge_id, date, completed, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id, challenge_id, date)
			DO UPDATE SET completed = EXCLUDED.completed, updated_at = EXCLUDED.updated_at
			RETURNING `+checkColumns,
			id, rec.UserID.String(), rec.ChallengeID.String(), rec.Date.Time(), rec.Completed, updatedAt,
		)
		var err error
		saved, err = scanCheck(row)
		return err
	})
	if err != nil {
		return nil, mapError("checkin", "Upsert", err)
	}
	return saved, nil
}

// ListByUser returns all of the user's records ordered by date.
func (r *CheckRepository) ListByUser(ctx context.Context, userID shared.UserID) ([]checkin.Record, error) {
	return r.list(ctx, "ListByUser",
		`SELECT `+checkColumns+` FROM checks WHERE user_id = $1 ORDER BY date, challenge_id`,
		userID.String())
}

// ListByChallenge returns all of the challenge's records ordered by date.
func (r *CheckRepository) ListByChallenge(ctx context.Context, challengeID shared.ChallengeID) ([]checkin.Record, error) {
	return r.list(ctx, "ListByChallenge",
		`SELECT `+checkColumns+` FROM checks WHERE challenge_id = $1 ORDER BY date, user_id`,
		challengeID.String())
}

// ListCompletedOn returns completed records of one day across challenges.
func (r *CheckRepository) ListCompletedOn(ctx context.Context, challengeIDs []shared.ChallengeID, day shared.Date) ([]checkin.Record, error) {
	if len(challengeIDs) == 0 {
		return []checkin.Record{}, nil
	}
	ids := make([]string, len(challengeIDs))
	for i, id := range challengeIDs {
		ids[i] = id.String()
	}
	return r.list(ctx, "ListCompletedOn", `
		SELECT `+checkColumns+`
		FROM checks
		WHERE challenge_id = ANY($1::uuid[]) AND date = $2 AND completed
		ORDER BY challenge_id, updated_at, user_id
	`, ids, day.Time())
}

func (r *CheckRepository) list(ctx context.Context, op, query string, args ...any) ([]checkin.Record, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("checkin", op, err)
	}
	defer rows.Close()

	out := make([]checkin.Record, 0)
	for rows.Next() {
		rec, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanCheck(row pgx.Row) (*checkin.Record, error) {
	var (
		rec                     checkin.Record
		id, userID, challengeID string
		date                    time.Time
	)
	if err := row.Scan(&id, &userID, &challengeID, &date, &rec.Completed, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.ID = id
	rec.UserID = shared.UserID(userID)
	rec.ChallengeID = shared.ChallengeID(challengeID)
	rec.Date = shared.DateOf(date)
	return &rec, nil
}
