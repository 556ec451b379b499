package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aura-hub/aura-hub/internal/domain/leaderboard"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
	"github.com/aura-hub/aura-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRUNE SNAPSHOTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// DefaultSnapshotRetentionDays is used when no retention is configured.
const DefaultSnapshotRetentionDays = 30

// PruneSnapshotsJob removes ranking snapshots older than the retention window.
type PruneSnapshotsJob struct {
	snapshots     leaderboard.SnapshotStore
	clock         timeutil.Clock
	logger        *slog.Logger
	retentionDays int
}

// NewPruneSnapshotsJob creates a new prune job. A non-positive retention
// falls back to DefaultSnapshotRetentionDays.
func NewPruneSnapshotsJob(snapshots leaderboard.SnapshotStore, clock timeutil.Clock, logger *slog.Logger, retentionDays int) *PruneSnapshotsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if retentionDays <= 0 {
		retentionDays = DefaultSnapshotRetentionDays
	}
	return &PruneSnapshotsJob{
		snapshots:     snapshots,
		clock:         clock,
		logger:        logger.With("job", "prune_snapshots"),
		retentionDays: retentionDays,
	}
}

// Name returns the job name.
func (j *PruneSnapshotsJob) Name() string {
	return "prune_snapshots"
}

// Description returns a human-readable description.
func (j *PruneSnapshotsJob) Description() string {
	return fmt.Sprintf("Removes ranking snapshots older than %d days", j.retentionDays)
}

// Cutoff returns the first day that is kept.
func (j *PruneSnapshotsJob) Cutoff() shared.Date {
	return shared.DateOf(j.clock.Now()).AddDays(-j.retentionDays)
}

// Run executes the job.
func (j *PruneSnapshotsJob) Run(ctx context.Context) error {
	cutoff := j.Cutoff()
	n, err := j.snapshots.Prune(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune_snapshots: %w", err)
	}
	j.logger.Info("snapshots pruned", "older_than", cutoff.String(), "deleted", n)
	return nil
}
