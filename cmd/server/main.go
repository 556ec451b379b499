// Package main is the entry point of the Aura Hub API server.
//
// The server exposes the REST API for users, challenges, completion records,
// rankings and statistics, plus /health and Prometheus metrics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aura-hub/aura-hub/config"
	"github.com/aura-hub/aura-hub/internal/application/command"
	"github.com/aura-hub/aura-hub/internal/application/query"
	"github.com/aura-hub/aura-hub/internal/bootstrap"
	httpapi "github.com/aura-hub/aura-hub/internal/interface/http"
	"github.com/aura-hub/aura-hub/internal/interface/http/health"
	"github.com/aura-hub/aura-hub/pkg/logger"
	"github.com/aura-hub/aura-hub/pkg/timeutil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
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
	slogger := log.Slog()
	log.Info("starting Aura Hub server",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Timezone),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Storage
	// ─────────────────────────────────────────────────────────────────────────
	storage, err := bootstrap.OpenStorage(ctx, cfg, slogger)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing storage")
		storage.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Clock, metrics and handlers
	// ─────────────────────────────────────────────────────────────────────────
	var clock timeutil.Clock = timeutil.NewSystemClock(cfg.App.Location)
	var timeTravel *timeutil.OffsetClock
	if cfg.Features.Enabled(config.FeatureTimeTravel) {
		timeTravel = timeutil.NewOffsetClock(clock)
		clock = timeTravel
		log.Warn("time travel is enabled, the current date can be shifted over the API")
	}

	var metrics *httpapi.Metrics
	var observe func(time.Duration)
	if cfg.Features.Enabled(config.FeatureMetrics) {
		metrics = httpapi.NewMetrics()
		observe = metrics.ObserveRankingBuild
	}

	rewards := bootstrap.Rewards(cfg)

	deps := httpapi.Dependencies{
		Challenges: command.NewChallengeHandlers(command.ChallengeHandlersConfig{
			Challenges:   storage.Challenges,
			Participants: storage.Participants,
			Checks:       storage.Checks,
			Users:        storage.Users,
			Cache:        storage.Cache,
			Clock:        clock,
			Logger:       slogger,
		}),
		RecordCheck: command.NewRecordCheckHandler(
			storage.Challenges, storage.Participants, storage.Checks, storage.Users,
			storage.Cache, clock, slogger,
		),
		UpsertUser:   command.NewUpsertUserHandler(storage.Users, storage.Challenges, storage.Cache, clock, nil, slogger),
		GetChallenge: query.NewGetChallengeHandler(storage.Challenges, storage.Participants),
		Ranking: query.NewGetRankingHandler(query.GetRankingConfig{
			Challenges:   storage.Challenges,
			Participants: storage.Participants,
			Checks:       storage.Checks,
			Users:        storage.Users,
			Cache:        storage.Cache,
			Snapshots:    storage.Snapshots,
			Rewards:      rewards,
			Clock:        clock,
			Logger:       slogger,
			Observe:      observe,
		}),
		UserChallenges: query.NewListUserChallengesHandler(storage.Challenges),
		Records:        query.NewListRecordsHandler(storage.Checks),
		TodayChecks:    query.NewTodayChecksHandler(storage.Participants, storage.Checks, storage.Users, clock),
		Summary: query.NewUserSummaryHandler(
			storage.Challenges, storage.Checks, storage.Users, rewards, clock,
			cfg.Features.Enabled(config.FeatureAuraDegradation),
		),
		YearlyStats: query.NewYearlyStatsHandler(storage.Challenges, storage.Checks, clock),
		TimeTravel:  timeTravel,
		Metrics:     metrics,
		Logger:      log,
	}

	checker := health.NewComposite(cfg.App.Version)
	storage.RegisterHealthChecks(checker)
	deps.HealthChecker = checker

	// ─────────────────────────────────────────────────────────────────────────
	// 4. HTTP server
	// ─────────────────────────────────────────────────────────────────────────
	serverCfg := httpapi.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverCfg.MetricsPath = cfg.Observability.MetricsPath
	serverCfg.RateLimitPerSecond = cfg.HTTP.RateLimitPerSecond
	serverCfg.RateLimitBurst = cfg.HTTP.RateLimitBurst

	server := httpapi.NewServer(serverCfg, deps)
	errCh := server.StartAsync()

	log.Info("Aura Hub server is running",
		logger.String("address", serverCfg.Address()),
		logger.String("storage", storage.Backend),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Graceful shutdown
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// setupLogger builds the service logger from the observability settings.
func setupLogger(cfg *config.Config) *logger.Logger {
	level := logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		level = logger.LevelDebug
	}
	format := logger.Format(cfg.Observability.LogFormat)
	if cfg.IsDevelopment() && format == "" {
		format = logger.FormatText
	}
	return logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     level,
		Format:    format,
		AddCaller: !cfg.IsProduction(),
	})
}
