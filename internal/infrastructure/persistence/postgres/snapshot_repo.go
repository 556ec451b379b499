package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aura-hub/aura-hub/internal/domain/leaderboard"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANKING SNAPSHOT REPOSITORY IMPLEMENTATION
// Entries are stored as one JSONB document per (challenge, day).
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotRepository implements leaderboard.SnapshotStore for PostgreSQL.
type SnapshotRepository struct {
	conn *Connection
}

var _ leaderboard.SnapshotStore = (*SnapshotRepository)(nil)

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(conn *Connection) *SnapshotRepository {
	return &SnapshotRepository{conn: conn}
}

// Save stores the snapshot, replacing an existing one for the same day.
func (r *SnapshotRepository) Save(ctx context.Context, s *leaderboard.Snapshot) error {
	entries, err := json.Marshal(s.Entries)
	if err != nil {
		return fmt.Errorf("marshal snapshot entries: %w", err)
	}

	_, err = r.conn.Exec(ctx, `
		INSERT INTO ranking_snapshots (challenge_id, date, taken_at, entries)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (challenge_id, date)
		DO UPDATE SET taken_at = EXCLUDED.taken_at, entries = EXCLUDED.entries
	`, s.ChallengeID.String(), s.Date.Time(), s.TakenAt, entries)
	return mapError("leaderboard", "SaveSnapshot", err)
}

// Get returns the snapshot of one day.
func (r *SnapshotRepository) Get(ctx context.Context, challengeID shared.ChallengeID, day shared.Date) (*leaderboard.Snapshot, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT challenge_id::text, date, taken_at, entries
		FROM ranking_snapshots
		WHERE challenge_id = $1 AND date = $2
	`, challengeID.String(), day.Time())
	return scanSnapshot(row)
}

// Latest returns the newest snapshot dated strictly before the given day.
func (r *SnapshotRepository) Latest(ctx context.Context, challengeID shared.ChallengeID, before shared.Date) (*leaderboard.Snapshot, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT challenge_id::text, date, taken_at, entries
		FROM ranking_snapshots
		WHERE challenge_id = $1 AND date < $2
		ORDER BY date DESC
		LIMIT 1
	`, challengeID.String(), before.Time())
	return scanSnapshot(row)
}

// Prune deletes snapshots dated before olderThan.
func (r *SnapshotRepository) Prune(ctx context.Context, olderThan shared.Date) (int, error) {
	result, err := r.conn.Exec(ctx, `DELETE FROM ranking_snapshots WHERE date < $1`, olderThan.Time())
	if err != nil {
		return 0, mapError("leaderboard", "PruneSnapshots", err)
	}
	return int(result.RowsAffected()), nil
}

func scanSnapshot(row pgx.Row) (*leaderboard.Snapshot, error) {
	var (
		s           leaderboard.Snapshot
		challengeID string
		date        time.Time
		raw         []byte
	)
	err := row.Scan(&challengeID, &date, &s.TakenAt, &raw)
	if IsNoRows(err) {
		return nil, leaderboard.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, mapError("leaderboard", "GetSnapshot", err)
	}

	if err := json.Unmarshal(raw, &s.Entries); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot entries: %w", err)
	}
	s.ChallengeID = shared.ChallengeID(challengeID)
	s.Date = shared.DateOf(date)
	s.RebuildIndex()
	return &s, nil
}
