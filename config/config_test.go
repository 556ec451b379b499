package config

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, time.UTC, cfg.App.Location)
	assert.False(t, cfg.Database.Configured())
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 5, cfg.Gamification.DailyCheckReward)
	assert.Equal(t, 5, cfg.Gamification.NudgeReward)
	assert.Equal(t, "23:55", cfg.Scheduler.SnapshotSchedule)
	assert.Equal(t, 30, cfg.Scheduler.SnapshotRetentionDays)
	assert.Equal(t, "/metrics", cfg.Observability.MetricsPath)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("APP_TIMEZONE", "Europe/Berlin")
	t.Setenv("DATABASE_URL", "postgres://aura@db/aura")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_RANKING_TTL", "2m")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("HTTP_RATE_LIMIT", "2.5")
	t.Setenv("POINTS_NUDGE", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "Europe/Berlin", cfg.App.Location.String())
	assert.True(t, cfg.Database.Configured())
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Redis.RankingTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins)
	assert.InDelta(t, 2.5, cfg.HTTP.RateLimitPerSecond, 1e-9)
	assert.Equal(t, 7, cfg.Gamification.NudgeReward)
}

func TestLoad_InvalidTimezone(t *testing.T) {
	t.Setenv("APP_TIMEZONE", "Mars/Olympus")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Mars/Olympus")
}

func TestLoad_MalformedNumbersFallBack(t *testing.T) {
	t.Setenv("HTTP_PORT", "eighty")
	t.Setenv("SCHEDULER_TICK_INTERVAL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.TickInterval)
}

func TestValidate_AggregatesErrors(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("HTTP_PORT", "70000")
	t.Setenv("SCHEDULER_SNAPSHOT_RETENTION_DAYS", "0")
	t.Setenv("METRICS_PATH", "metrics")

	_, err := Load()
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "DATABASE_URL or DB_HOST is required outside development")
	assert.Contains(t, msg, "HTTP_PORT must be 1-65535")
	assert.Contains(t, msg, "SCHEDULER_SNAPSHOT_RETENTION_DAYS must be at least 1")
	assert.Contains(t, msg, "METRICS_PATH must start with /")
}

func TestValidate_UnknownEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "qa")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `got "qa"`)
}

func TestFeatureFlags_Defaults(t *testing.T) {
	ff := NewFeatureFlags()

	assert.False(t, ff.Enabled(FeatureAuraDegradation))
	assert.False(t, ff.Enabled(FeatureTimeTravel))
	assert.True(t, ff.Enabled(FeatureRankingCache))
	assert.True(t, ff.Enabled(FeatureRankingSnapshots))
	assert.True(t, ff.Enabled(FeatureMetrics))
	assert.False(t, ff.Enabled("no.such.flag"))
}

func TestFeatureFlags_FromEnvironment(t *testing.T) {
	t.Setenv("FEATURE_TIME_TRAVEL", "true")
	t.Setenv("FEATURE_RANKING_CACHE", "false")
	t.Setenv("FEATURE_AURA_DEGRADATION", "40")
	t.Setenv("FEATURE_METRICS", "garbage")

	ff := LoadFeatureFlags()

	assert.True(t, ff.Enabled(FeatureTimeTravel))
	assert.False(t, ff.Enabled(FeatureRankingCache))
	assert.True(t, ff.Enabled(FeatureAuraDegradation))
	assert.Equal(t, 40, ff.GetAllFeatures()[FeatureAuraDegradation].RolloutPercent)
	assert.True(t, ff.Enabled(FeatureMetrics))
}

func TestFeatureFlags_RolloutIsStablePerUser(t *testing.T) {
	ff := NewFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureAuraDegradation, 50))

	in := 0
	for i := range 200 {
		ctx := &FeatureContext{UserID: "user-" + strconv.Itoa(i)}
		first := ff.IsEnabled(FeatureAuraDegradation, ctx)
		assert.Equal(t, first, ff.IsEnabled(FeatureAuraDegradation, ctx))
		if first {
			in++
		}
	}
	assert.Greater(t, in, 0)
	assert.Less(t, in, 200)
}

func TestFeatureFlags_UserOverrides(t *testing.T) {
	ff := NewFeatureFlags()
	ctx := &FeatureContext{UserID: "u1"}

	ff.SetUserOverride("u1", FeatureTimeTravel, true)
	assert.True(t, ff.IsEnabled(FeatureTimeTravel, ctx))
	assert.False(t, ff.IsEnabled(FeatureTimeTravel, &FeatureContext{UserID: "u2"}))

	ff.ClearUserOverrides("u1")
	assert.False(t, ff.IsEnabled(FeatureTimeTravel, ctx))
}

func TestFeatureFlags_SetRolloutPercent(t *testing.T) {
	ff := NewFeatureFlags()

	assert.ErrorIs(t, ff.SetRolloutPercent("missing", 10), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureMetrics, 101), ErrInvalidRolloutPercent)

	require.NoError(t, ff.DisableFeature(FeatureMetrics))
	assert.False(t, ff.Enabled(FeatureMetrics))
	require.NoError(t, ff.EnableFeature(FeatureMetrics))
	assert.True(t, ff.Enabled(FeatureMetrics))
}
