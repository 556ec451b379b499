package redis

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aura-hub/aura-hub/internal/domain/leaderboard"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

// MirroredSnapshotStore puts the Redis SnapshotStore in front of a durable
// store. The primary is the source of truth: writes must succeed there,
// while mirror failures are only logged. Reads try the mirror first and
// fall back to the primary on a miss or an error.
type MirroredSnapshotStore struct {
	primary leaderboard.SnapshotStore
	mirror  leaderboard.SnapshotStore
	logger  *slog.Logger
}

var _ leaderboard.SnapshotStore = (*MirroredSnapshotStore)(nil)

// NewMirroredSnapshotStore wraps primary with a Redis mirror.
func NewMirroredSnapshotStore(primary leaderboard.SnapshotStore, mirror *SnapshotStore, logger *slog.Logger) *MirroredSnapshotStore {
	return newMirroredSnapshotStore(primary, mirror, logger)
}

func newMirroredSnapshotStore(primary, mirror leaderboard.SnapshotStore, logger *slog.Logger) *MirroredSnapshotStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MirroredSnapshotStore{
		primary: primary,
		mirror:  mirror,
		logger:  logger.With("component", "snapshot_mirror"),
	}
}

// Save writes the primary, then the mirror.
func (s *MirroredSnapshotStore) Save(ctx context.Context, snap *leaderboard.Snapshot) error {
	if err := s.primary.Save(ctx, snap); err != nil {
		return err
	}
	if err := s.mirror.Save(ctx, snap); err != nil {
		s.logger.Warn("mirror save failed",
			"challenge_id", snap.ChallengeID.String(),
			"date", snap.Date.String(),
			"error", err,
		)
	}
	return nil
}

// Get reads the mirror, then the primary. A snapshot found only in the
// primary is copied back into the mirror.
func (s *MirroredSnapshotStore) Get(ctx context.Context, challengeID shared.ChallengeID, day shared.Date) (*leaderboard.Snapshot, error) {
	snap, err := s.mirror.Get(ctx, challengeID, day)
	if err == nil {
		return snap, nil
	}
	s.logMirrorMiss("get", challengeID, err)

	snap, err = s.primary.Get(ctx, challengeID, day)
	if err != nil {
		return nil, err
	}
	if err := s.mirror.Save(ctx, snap); err != nil {
		s.logger.Debug("mirror backfill failed", "challenge_id", challengeID.String(), "error", err)
	}
	return snap, nil
}

// Latest reads the mirror, then the primary. The mirror may hold fewer days
// than the primary after a restart, so a mirror hit is only trusted when it
// is the day right before the requested one.
func (s *MirroredSnapshotStore) Latest(ctx context.Context, challengeID shared.ChallengeID, before shared.Date) (*leaderboard.Snapshot, error) {
	snap, err := s.mirror.Latest(ctx, challengeID, before)
	if err == nil && snap.Date.Equal(before.AddDays(-1)) {
		return snap, nil
	}
	if err != nil {
		s.logMirrorMiss("latest", challengeID, err)
	}
	return s.primary.Latest(ctx, challengeID, before)
}

// Prune prunes both stores and reports the primary's count.
func (s *MirroredSnapshotStore) Prune(ctx context.Context, olderThan shared.Date) (int, error) {
	n, err := s.primary.Prune(ctx, olderThan)
	if err != nil {
		return n, err
	}
	if _, err := s.mirror.Prune(ctx, olderThan); err != nil {
		s.logger.Warn("mirror prune failed", "error", err)
	}
	return n, nil
}

func (s *MirroredSnapshotStore) logMirrorMiss(op string, challengeID shared.ChallengeID, err error) {
	if errors.Is(err, leaderboard.ErrSnapshotNotFound) {
		return
	}
	s.logger.Warn("mirror read failed, using primary",
		"op", op,
		"challenge_id", challengeID.String(),
		"error", err,
	)
}
