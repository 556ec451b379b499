// Package main is the entry point of the Aura Hub background worker.
//
// The worker runs periodic jobs:
//   - snapshot_rankings: saves every challenge's ranking under today's date
//   - prune_snapshots: drops snapshots older than the retention window
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aura-hub/aura-hub/config"
	"github.com/aura-hub/aura-hub/internal/application/query"
	"github.com/aura-hub/aura-hub/internal/bootstrap"
	"github.com/aura-hub/aura-hub/internal/infrastructure/scheduler"
	"github.com/aura-hub/aura-hub/internal/infrastructure/scheduler/jobs"
	"github.com/aura-hub/aura-hub/pkg/logger"
	"github.com/aura-hub/aura-hub/pkg/timeutil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. Configuration and logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	log.Info("starting Aura Hub worker",
		"env", cfg.App.Environment,
		"timezone", cfg.App.Timezone,
	)

	if !cfg.Scheduler.Enabled {
		log.Info("scheduler is disabled, nothing to do")
		return nil
	}
	if !cfg.Features.Enabled(config.FeatureRankingSnapshots) {
		log.Info("ranking snapshots are disabled, nothing to do")
		return nil
	}
	// An in-memory store would be private to this process.
	if !cfg.Database.Configured() {
		return errors.New("the worker needs DATABASE_URL or DB_HOST")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Storage
	// ─────────────────────────────────────────────────────────────────────────
	storage, err := bootstrap.OpenStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing storage")
		storage.Close()
	}()

	clock := timeutil.NewSystemClock(cfg.App.Location)

	builder := query.NewGetRankingHandler(query.GetRankingConfig{
		Challenges:   storage.Challenges,
		Participants: storage.Participants,
		Checks:       storage.Checks,
		Users:        storage.Users,
		Rewards:      bootstrap.Rewards(cfg),
		Clock:        clock,
		Logger:       log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Scheduler and jobs
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:         log,
		Clock:          clock,
		TickInterval:   cfg.Scheduler.TickInterval,
		MaxHistorySize: cfg.Scheduler.MaxHistorySize,
		EnableMetrics:  true,
	})

	snapshotSchedule, err := scheduler.ParseSchedule(cfg.Scheduler.SnapshotSchedule)
	if err != nil {
		return fmt.Errorf("snapshot schedule: %w", err)
	}
	pruneSchedule, err := scheduler.ParseSchedule(cfg.Scheduler.PruneSchedule)
	if err != nil {
		return fmt.Errorf("prune schedule: %w", err)
	}

	snapshotJob := jobs.NewSnapshotRankingsJob(storage.Challenges, builder, storage.Snapshots, clock, log,
		jobs.SnapshotRankingsConfig{
			Concurrency: cfg.Scheduler.SnapshotConcurrency,
			Timeout:     cfg.Scheduler.SnapshotTimeout,
		})
	pruneJob := jobs.NewPruneSnapshotsJob(storage.Snapshots, clock, log, cfg.Scheduler.SnapshotRetentionDays)

	if err := sched.Register(snapshotJob, snapshotSchedule); err != nil {
		return err
	}
	if err := sched.Register(pruneJob, pruneSchedule); err != nil {
		return err
	}

	sched.OnJobComplete(func(r scheduler.JobResult) {
		if !r.Success {
			log.Error("job failed", "job", r.JobName, "duration", r.Duration, "error", r.Error)
		}
	})

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	for _, j := range sched.ListJobs() {
		log.Info("job scheduled", "job", j.Name, "schedule", j.Schedule, "next_run", j.NextRun)
	}
	log.Info("Aura Hub worker is running", "storage", storage.Backend)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Graceful shutdown
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("received shutdown signal, waiting for running jobs")

	if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
		return fmt.Errorf("stop scheduler: %w", err)
	}

	m := sched.GetMetrics().Snapshot()
	log.Info("shutdown completed successfully",
		"total_runs", m.TotalExecutions,
		"failed_runs", m.TotalFailures,
	)
	return nil
}

// setupLogger routes the worker's slog output through the service logger.
func setupLogger(cfg *config.Config) *slog.Logger {
	level := logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		level = logger.LevelDebug
	}
	log := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  level,
		Format: logger.Format(cfg.Observability.LogFormat),
	}).Slog()
	slog.SetDefault(log)
	return log
}
