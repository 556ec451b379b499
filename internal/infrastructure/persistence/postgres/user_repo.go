package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aura-hub/aura-hub/internal/domain/shared"
	"github.com/aura-hub/aura-hub/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

const userColumns = `id::text, display_name, current_streak, previous_streak, last_check_date, created_at, updated_at`

// UserRepository implements user.Repository for PostgreSQL.
type UserRepository struct {
	conn *Connection
}

var _ user.Repository = (*UserRepository)(nil)

// NewUserRepository creates a new UserRepository.
func NewUserRepository(conn *Connection) *UserRepository {
	return &UserRepository{conn: conn}
}

// Upsert creates the user or renames it. A blank name never overwrites.
func (r *UserRepository) Upsert(ctx context.Context, id shared.UserID, displayName, defaultName string, at time.Time) (*user.User, error) {
	row := r.conn.QueryRow(ctx, `
		INSERT INTO users (id, display_name, created_at, updated_at)
		VALUES ($1, CASE WHEN $2::text = '' THEN $3::text ELSE $2::text END, $4, $4)
		ON CONFLICT (id) DO UPDATE SET
			display_name = CASE WHEN $2::text = '' THEN users.display_name ELSE $2::text END,
			updated_at = CASE WHEN $2::text = '' THEN users.updated_at ELSE $4 END
		RETURNING `+userColumns,
		id.String(), strings.TrimSpace(displayName), defaultName, at,
	)
	u, err := scanUser(row)
	if err != nil {
		return nil, mapError("user", "Upsert", err)
	}
	return u, nil
}

// GetByID returns a user.
func (r *UserRepository) GetByID(ctx context.Context, id shared.UserID) (*user.User, error) {
	u, err := scanUser(r.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String()))
	if err != nil {
		return nil, mapError("user", "GetByID", err)
	}
	return u, nil
}

// GetMany returns the users found; missing ids are skipped.
func (r *UserRepository) GetMany(ctx context.Context, ids []shared.UserID) (map[shared.UserID]*user.User, error) {
	out := make(map[shared.UserID]*user.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	rows, err := r.conn.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1::uuid[])`, raw)
	if err != nil {
		return nil, mapError("user", "GetMany", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

// UpdateStreak stores the cached streak fields.
func (r *UserRepository) UpdateStreak(ctx context.Context, u *user.User) error {
	var lastCheck *time.Time
	if !u.LastCheckDate.IsZero() {
		t := u.LastCheckDate.Time()
		lastCheck = &t
	}

	result, err := r.conn.Exec(ctx, `
		UPDATE users SET current_streak = $2, previous_streak = $3, last_check_date = $4, updated_at = $5
		WHERE id = $1
	`, u.ID.String(), u.CurrentStreak, u.PreviousStreak, lastCheck, u.UpdatedAt)
	if err != nil {
		return mapError("user", "UpdateStreak", err)
	}
	if result.RowsAffected() == 0 {
		return shared.NewDomainError("user", "UpdateStreak", shared.ErrNotFound, "user not found")
	}
	return nil
}

func scanUser(row pgx.Row) (*user.User, error) {
	var (
		u         user.User
		id        string
		lastCheck *time.Time
	)
	if err := row.Scan(&id, &u.DisplayName, &u.CurrentStreak, &u.PreviousStreak, &lastCheck, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.ID = shared.UserID(id)
	if lastCheck != nil {
		u.LastCheckDate = shared.DateOf(*lastCheck)
	}
	return &u, nil
}
