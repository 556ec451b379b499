package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies embedded migrations and records them in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a migrator with the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations()}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("scan migration row: %w", err)
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
	}
	return nil
}

// Rollback reverts the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	last := 0
	for v := range applied {
		last = max(last, v)
	}
	if last == 0 {
		return nil
	}

	var mig *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			mig = &m.migrations[i]
		}
	}
	if mig == nil || mig.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
	}

	return m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
			return fmt.Errorf("rollback migration %d: %w", last, err)
		}
		_, err := tx.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", last)
		return err
	})
}

// Status returns every known migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Migration, len(m.migrations))
	copy(out, m.migrations)
	for i := range out {
		if at, ok := applied[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}

// GetMigrations returns all embedded migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_users_and_challenges", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_checks", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_ranking_snapshots", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: USERS, CHALLENGES, PARTICIPANTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    display_name VARCHAR(100) NOT NULL DEFAULT '',
    current_streak INTEGER NOT NULL DEFAULT 0,
    previous_streak INTEGER NOT NULL DEFAULT 0,
    last_check_date DATE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_streaks CHECK (current_streak >= 0 AND previous_streak >= 0)
);

CREATE TABLE IF NOT EXISTS challenges (
    id UUID PRIMARY KEY,
    title VARCHAR(100) NOT NULL,
    description VARCHAR(500) NOT NULL DEFAULT '',
    owner_id UUID NOT NULL,
    invite_code CHAR(6) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    duration_days INTEGER NOT NULL DEFAULT 30,
    is_private BOOLEAN NOT NULL DEFAULT FALSE,
    is_long_term BOOLEAN NOT NULL DEFAULT FALSE,
    points_per_check INTEGER NOT NULL DEFAULT 0,
    points_per_nudge INTEGER NOT NULL DEFAULT 0,

    CONSTRAINT valid_duration CHECK (duration_days BETWEEN 1 AND 365),
    CONSTRAINT valid_points CHECK (points_per_check BETWEEN 0 AND 1000 AND points_per_nudge BETWEEN 0 AND 1000)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_challenges_invite_code ON challenges(UPPER(invite_code));
CREATE INDEX IF NOT EXISTS idx_challenges_owner ON challenges(owner_id);

CREATE TABLE IF NOT EXISTS participants (
    challenge_id UUID NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
    user_id UUID NOT NULL,
    joined_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMP WITH TIME ZONE,

    PRIMARY KEY (challenge_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_participants_user ON participants(user_id);
`

const migration001Down = `
DROP TABLE IF EXISTS participants;
DROP TABLE IF EXISTS challenges;
DROP TABLE IF EXISTS users;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: COMPLETION RECORDS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS checks (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL,
    challenge_id UUID NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
    date DATE NOT NULL,
    completed BOOLEAN NOT NULL DEFAULT TRUE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT unique_check_per_day UNIQUE (user_id, challenge_id, date)
);

CREATE INDEX IF NOT EXISTS idx_checks_user ON checks(user_id, date);
CREATE INDEX IF NOT EXISTS idx_checks_challenge ON checks(challenge_id, date);
CREATE INDEX IF NOT EXISTS idx_checks_completed_day ON checks(date, challenge_id) WHERE completed;
`

const migration002Down = `
DROP TABLE IF EXISTS checks;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: RANKING SNAPSHOTS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS ranking_snapshots (
    challenge_id UUID NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
    date DATE NOT NULL,
    taken_at TIMESTAMP WITH TIME ZONE NOT NULL,
    entries JSONB NOT NULL DEFAULT '[]'::jsonb,

    PRIMARY KEY (challenge_id, date)
);

CREATE INDEX IF NOT EXISTS idx_ranking_snapshots_date ON ranking_snapshots(date);
`

const migration003Down = `
DROP TABLE IF EXISTS ranking_snapshots;
`
