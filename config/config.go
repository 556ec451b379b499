// Package config provides configuration management for Aura Hub.
// Configuration is loaded from environment variables, optionally seeded
// from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aura-hub/aura-hub/pkg/timeutil"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration.
type Config struct {
	App           AppConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	HTTP          HTTPConfig
	Remote        RemoteConfig
	Gamification  GamificationConfig
	Scheduler     SchedulerConfig
	Features      *FeatureFlags
	Observability ObservabilityConfig
}

// AppConfig contains general application settings.
type AppConfig struct {
	Name        string
	Environment Environment
	Debug       bool
	Version     string

	// Timezone is the IANA zone that decides where "today" starts.
	Timezone string
	Location *time.Location

	ShutdownTimeout time.Duration
}

// DatabaseConfig contains PostgreSQL settings.
// An empty URL together with an empty Host selects the in-memory store,
// which is only accepted in development.
type DatabaseConfig struct {
	URL string

	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string

	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
	MigrateOnStart  bool
}

// Configured reports whether a PostgreSQL server is configured.
func (c DatabaseConfig) Configured() bool {
	return c.URL != "" || c.Host != ""
}

// RedisConfig contains Redis settings.
type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// RankingTTL bounds how long a built ranking is served from cache.
	RankingTTL time.Duration

	// SnapshotTTL is the lifetime of mirrored snapshots (0 = until pruned).
	SnapshotTTL time.Duration
}

// HTTPConfig contains REST server settings.
type HTTPConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string

	// RateLimitPerSecond is the sustained per-IP rate (0 = disabled).
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// RemoteConfig tells the interactive client where the API server runs.
type RemoteConfig struct {
	BaseURL           string
	Timeout           time.Duration
	MaxAttempts       int
	RequestsPerSecond float64
	Burst             int
}

// GamificationConfig contains global point values.
type GamificationConfig struct {
	DailyCheckReward int
	NudgeReward      int
}

// SchedulerConfig contains background job settings.
type SchedulerConfig struct {
	Enabled bool

	// SnapshotSchedule accepts "HH:MM", "@every <duration>" or a cron line.
	SnapshotSchedule      string
	SnapshotConcurrency   int
	SnapshotTimeout       time.Duration
	SnapshotRetentionDays int
	PruneSchedule         string
	TickInterval          time.Duration
	MaxHistorySize        int
}

// ObservabilityConfig contains logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsPath string
}

// Load loads configuration from environment variables.
// A .env file in the working directory is applied first when present;
// variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	app, err := loadAppConfig()
	if err != nil {
		return nil, fmt.Errorf("app config: %w", err)
	}

	cfg := &Config{
		App:           app,
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		HTTP:          loadHTTPConfig(),
		Remote:        loadRemoteConfig(),
		Gamification:  loadGamificationConfig(),
		Scheduler:     loadSchedulerConfig(),
		Features:      LoadFeatureFlags(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func loadAppConfig() (AppConfig, error) {
	env := Environment(getEnv("APP_ENV", "development"))
	timezone := getEnv("APP_TIMEZONE", "UTC")

	loc, err := timeutil.LoadLocation(timezone)
	if err != nil {
		return AppConfig{}, err
	}

	return AppConfig{
		Name:            getEnv("APP_NAME", "aura-hub"),
		Environment:     env,
		Debug:           env == EnvDevelopment || getEnvBool("APP_DEBUG", false),
		Version:         getEnv("APP_VERSION", "0.1.0"),
		Timezone:        timezone,
		Location:        loc,
		ShutdownTimeout: getEnvDuration("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
	}, nil
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("DATABASE_URL", ""),
		Host:            getEnv("DB_HOST", ""),
		Port:            getEnvInt("DB_PORT", 5432),
		Name:            getEnv("DB_NAME", "aura"),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxConns:        getEnvInt("DB_MAX_CONNS", 10),
		MinConns:        getEnvInt("DB_MIN_CONNS", 2),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		ConnectTimeout:  getEnvDuration("DB_CONNECT_TIMEOUT", 10*time.Second),
		MigrateOnStart:  getEnvBool("DB_MIGRATE", true),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      getEnvBool("REDIS_ENABLED", false),
		Host:         getEnv("REDIS_HOST", "localhost"),
		Port:         getEnvInt("REDIS_PORT", 6379),
		Password:     getEnv("REDIS_PASSWORD", ""),
		DB:           getEnvInt("REDIS_DB", 0),
		PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
		MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
		MaxRetries:   getEnvInt("REDIS_MAX_RETRIES", 3),
		DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RankingTTL:   getEnvDuration("REDIS_RANKING_TTL", 10*time.Minute),
		SnapshotTTL:  getEnvDuration("REDIS_SNAPSHOT_TTL", 0),
	}
}

func loadHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Host:               getEnv("HTTP_HOST", "0.0.0.0"),
		Port:               getEnvInt("HTTP_PORT", 8080),
		ReadTimeout:        getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:       getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:        getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		AllowedOrigins:     getEnvStringSlice("HTTP_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitPerSecond: getEnvFloat("HTTP_RATE_LIMIT", 5),
		RateLimitBurst:     getEnvInt("HTTP_RATE_LIMIT_BURST", 30),
	}
}

func loadRemoteConfig() RemoteConfig {
	return RemoteConfig{
		BaseURL:           getEnv("RECORD_STORE_URL", ""),
		Timeout:           getEnvDuration("RECORD_STORE_TIMEOUT", 10*time.Second),
		MaxAttempts:       getEnvInt("RECORD_STORE_MAX_ATTEMPTS", 3),
		RequestsPerSecond: getEnvFloat("RECORD_STORE_RATE_LIMIT", 10),
		Burst:             getEnvInt("RECORD_STORE_RATE_LIMIT_BURST", 20),
	}
}

func loadGamificationConfig() GamificationConfig {
	return GamificationConfig{
		DailyCheckReward: getEnvInt("POINTS_DAILY_CHECK", 5),
		NudgeReward:      getEnvInt("POINTS_NUDGE", 5),
	}
}

func loadSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:               getEnvBool("SCHEDULER_ENABLED", true),
		SnapshotSchedule:      getEnv("SCHEDULER_SNAPSHOT_AT", "23:55"),
		SnapshotConcurrency:   getEnvInt("SCHEDULER_SNAPSHOT_CONCURRENCY", 8),
		SnapshotTimeout:       getEnvDuration("SCHEDULER_SNAPSHOT_TIMEOUT", 5*time.Minute),
		SnapshotRetentionDays: getEnvInt("SCHEDULER_SNAPSHOT_RETENTION_DAYS", 30),
		PruneSchedule:         getEnv("SCHEDULER_PRUNE_SCHEDULE", "@every 24h"),
		TickInterval:          getEnvDuration("SCHEDULER_TICK_INTERVAL", 30*time.Second),
		MaxHistorySize:        getEnvInt("SCHEDULER_MAX_HISTORY", 100),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		MetricsPath: getEnv("METRICS_PATH", "/metrics"),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	switch c.App.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		errs = append(errs, fmt.Sprintf("APP_ENV must be development, staging or production, got %q", c.App.Environment))
	}

	// The in-memory store loses everything on restart.
	if c.App.Environment != EnvDevelopment && !c.Database.Configured() {
		errs = append(errs, "DATABASE_URL or DB_HOST is required outside development")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, "HTTP_PORT must be 1-65535")
	}
	if c.HTTP.RateLimitPerSecond < 0 {
		errs = append(errs, "HTTP_RATE_LIMIT must not be negative")
	}

	if c.Redis.Enabled && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, "REDIS_PORT must be 1-65535")
	}
	if c.Redis.DB < 0 || c.Redis.DB > 15 {
		errs = append(errs, "REDIS_DB must be 0-15")
	}

	if c.Gamification.DailyCheckReward < 0 || c.Gamification.NudgeReward < 0 {
		errs = append(errs, "POINTS_DAILY_CHECK and POINTS_NUDGE must not be negative")
	}

	if c.Scheduler.SnapshotSchedule == "" {
		errs = append(errs, "SCHEDULER_SNAPSHOT_AT is required")
	}
	if c.Scheduler.SnapshotRetentionDays < 1 {
		errs = append(errs, "SCHEDULER_SNAPSHOT_RETENTION_DAYS must be at least 1")
	}

	if c.Remote.MaxAttempts < 1 {
		errs = append(errs, "RECORD_STORE_MAX_ATTEMPTS must be at least 1")
	}

	if !strings.HasPrefix(c.Observability.MetricsPath, "/") {
		errs = append(errs, "METRICS_PATH must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// --- Helper functions for environment variable parsing ---

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}

	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return defaultVal
	}
	return result
}
