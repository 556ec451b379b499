// Package bootstrap wires configuration into the storage layer shared by the
// server and the worker.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aura-hub/aura-hub/config"
	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/checkin"
	"github.com/aura-hub/aura-hub/internal/domain/gamification"
	"github.com/aura-hub/aura-hub/internal/domain/leaderboard"
	"github.com/aura-hub/aura-hub/internal/domain/user"
	"github.com/aura-hub/aura-hub/internal/infrastructure/persistence/memory"
	"github.com/aura-hub/aura-hub/internal/infrastructure/persistence/postgres"
	"github.com/aura-hub/aura-hub/internal/infrastructure/persistence/redis"
	"github.com/aura-hub/aura-hub/internal/interface/http/health"
	"github.com/aura-hub/aura-hub/pkg/retry"
)

// Storage holds the repositories behind the application handlers.
// Cache and Snapshots are nil when the matching feature is off.
type Storage struct {
	Challenges   challenge.Repository
	Participants challenge.ParticipantRepository
	Checks       checkin.Repository
	Users        user.Repository
	Snapshots    leaderboard.SnapshotStore
	Cache        leaderboard.RankingCache

	// Backend is "postgres" or "memory".
	Backend string

	closers []func()
	checks  map[string]health.CheckFunc
}

// OpenStorage connects to Postgres (or falls back to the in-memory store in
// development) and optionally layers Redis on top.
//
// Redis is best effort: a failed connection is logged and the service runs
// without the cache.
func OpenStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Storage, error) {
	s := &Storage{checks: make(map[string]health.CheckFunc)}

	if cfg.Database.Configured() {
		if err := s.openPostgres(ctx, cfg, log); err != nil {
			return nil, err
		}
	} else {
		log.Warn("no database configured, using the in-memory store")
		store := memory.New()
		s.Backend = "memory"
		s.Challenges = store.Challenges()
		s.Participants = store.Participants()
		s.Checks = store.Checks()
		s.Users = store.Users()
		s.Snapshots = store.Snapshots()
		s.Cache = store.RankingCache()
	}

	if !cfg.Features.Enabled(config.FeatureRankingCache) {
		s.Cache = nil
	}

	if cfg.Redis.Enabled {
		s.openRedis(cfg, log)
	}

	if !cfg.Features.Enabled(config.FeatureRankingSnapshots) {
		s.Snapshots = nil
	}

	return s, nil
}

func (s *Storage) openPostgres(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	pgCfg := postgres.Config{
		URL:             cfg.Database.URL,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Database:        cfg.Database.Name,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxConns),
		MinConns:        int32(cfg.Database.MinConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	}

	log.Info("connecting to database")
	conn, err := retry.DoWithData(ctx, retry.DatabaseRetrier(), func(ctx context.Context) (*postgres.Connection, error) {
		return postgres.NewConnection(ctx, pgCfg)
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	s.closers = append(s.closers, conn.Close)
	s.checks["database"] = health.PingCheck(conn)

	if cfg.Database.MigrateOnStart {
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			conn.Close()
			return fmt.Errorf("run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	s.Backend = "postgres"
	s.Challenges = postgres.NewChallengeRepository(conn)
	s.Participants = postgres.NewParticipantRepository(conn)
	s.Checks = postgres.NewCheckRepository(conn)
	s.Users = postgres.NewUserRepository(conn)
	s.Snapshots = postgres.NewSnapshotRepository(conn)
	return nil
}

func (s *Storage) openRedis(cfg *config.Config, log *slog.Logger) {
	redisCfg := redis.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		RankingTTL:   cfg.Redis.RankingTTL,
		SnapshotTTL:  cfg.Redis.SnapshotTTL,
	}

	log.Info("connecting to Redis", "addr", redisCfg.Addr())
	cache, err := redis.NewCache(redisCfg)
	if err != nil {
		log.Warn("failed to connect to Redis, caching disabled", "error", err)
		return
	}
	s.closers = append(s.closers, func() { _ = cache.Close() })
	s.checks["redis"] = health.PingCheck(cache)

	if cfg.Features.Enabled(config.FeatureRankingCache) {
		s.Cache = redis.NewRankingCache(cache)
	}
	if s.Snapshots != nil {
		s.Snapshots = redis.NewMirroredSnapshotStore(s.Snapshots, redis.NewSnapshotStore(cache), log)
	}
	log.Info("Redis connection established")
}

// RegisterHealthChecks adds a ping check per connected backend.
func (s *Storage) RegisterHealthChecks(c *health.Composite) {
	for name, check := range s.checks {
		c.AddCheck(name, check)
	}
}

// Rewards converts the configured point values.
func Rewards(cfg *config.Config) gamification.Rewards {
	return gamification.Rewards{
		DailyCheckReward: cfg.Gamification.DailyCheckReward,
		NudgeReward:      cfg.Gamification.NudgeReward,
	}
}

// Close releases connections in reverse order of opening.
func (s *Storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
