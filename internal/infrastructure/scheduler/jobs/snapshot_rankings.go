// Package jobs contains the scheduled jobs run by the worker.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/leaderboard"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
	"github.com/aura-hub/aura-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT RANKINGS JOB
// ══════════════════════════════════════════════════════════════════════════════

// RankingBuilder builds the ranking of one challenge for a given day.
// query.GetRankingHandler satisfies it.
type RankingBuilder interface {
	Build(ctx context.Context, c *challenge.Challenge, today shared.Date) (*leaderboard.Ranking, error)
}

// SnapshotRankingsConfig contains configuration for the snapshot job.
type SnapshotRankingsConfig struct {
	// Concurrency limits how many rankings are built at once.
	Concurrency int

	// Timeout is the maximum duration of one run.
	Timeout time.Duration
}

// DefaultSnapshotRankingsConfig returns sensible defaults.
func DefaultSnapshotRankingsConfig() SnapshotRankingsConfig {
	return SnapshotRankingsConfig{
		Concurrency: 8,
		Timeout:     5 * time.Minute,
	}
}

// SnapshotStats contains statistics from a snapshot run.
type SnapshotStats struct {
	StartedAt  time.Time
	Duration   time.Duration
	Day        shared.Date
	Challenges int
	Saved      int
	Failed     int
}

// SnapshotRankingsJob saves the ranking of every challenge under
// (challengeID, today) so later reads can diff against it.
type SnapshotRankingsJob struct {
	challenges challenge.Repository
	builder    RankingBuilder
	snapshots  leaderboard.SnapshotStore
	clock      timeutil.Clock
	logger     *slog.Logger
	config     SnapshotRankingsConfig

	lastStats atomic.Pointer[SnapshotStats]
}

// NewSnapshotRankingsJob creates a new snapshot job.
func NewSnapshotRankingsJob(
	challenges challenge.Repository,
	builder RankingBuilder,
	snapshots leaderboard.SnapshotStore,
	clock timeutil.Clock,
	logger *slog.Logger,
	config SnapshotRankingsConfig,
) *SnapshotRankingsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &SnapshotRankingsJob{
		challenges: challenges,
		builder:    builder,
		snapshots:  snapshots,
		clock:      clock,
		logger:     logger.With("job", "snapshot_rankings"),
		config:     config,
	}
}

// Name returns the job name.
func (j *SnapshotRankingsJob) Name() string {
	return "snapshot_rankings"
}

// Description returns a human-readable description.
func (j *SnapshotRankingsJob) Description() string {
	return "Saves today's ranking of every challenge to the snapshot store"
}

// Run executes the job. A challenge whose ranking cannot be built or saved
// is logged and counted; the run fails only when every challenge failed.
func (j *SnapshotRankingsJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	now := j.clock.Now()
	stats := &SnapshotStats{StartedAt: now, Day: shared.DateOf(now)}
	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		j.lastStats.Store(stats)
	}()

	all, err := j.challenges.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("snapshot_rankings: list challenges: %w", err)
	}
	stats.Challenges = len(all)

	var saved, failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.Concurrency)

	for _, c := range all {
		g.Go(func() error {
			if err := j.snapshot(gctx, c, stats.Day, now); err != nil {
				failed.Add(1)
				j.logger.Warn("snapshot failed",
					"challenge_id", c.ID.String(),
					"error", err,
				)
				return nil
			}
			saved.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	stats.Saved = int(saved.Load())
	stats.Failed = int(failed.Load())

	j.logger.Info("rankings snapshotted",
		"day", stats.Day.String(),
		"challenges", stats.Challenges,
		"saved", stats.Saved,
		"failed", stats.Failed,
	)

	if stats.Failed > 0 && stats.Saved == 0 {
		return fmt.Errorf("snapshot_rankings: all %d snapshots failed", stats.Failed)
	}
	return ctx.Err()
}

func (j *SnapshotRankingsJob) snapshot(ctx context.Context, c *challenge.Challenge, day shared.Date, now time.Time) error {
	ranking, err := j.builder.Build(ctx, c, day)
	if err != nil {
		return err
	}
	return j.snapshots.Save(ctx, leaderboard.NewSnapshot(day, ranking, now))
}

// LastStats returns statistics of the last run, or nil before the first one.
func (j *SnapshotRankingsJob) LastStats() *SnapshotStats {
	return j.lastStats.Load()
}
