package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo})

	log.With(Component("ranking")).Info("ranking built", ChallengeID("c-1"), Rank(3), Err(errors.New("boom")))

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "ranking built", entry.Message)
	assert.Equal(t, "ranking", entry.Fields["component"])
	assert.Equal(t, "c-1", entry.Fields["challenge_id"])
	assert.Equal(t, float64(3), entry.Fields["rank"])
	assert.Equal(t, "boom", entry.Fields["error"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelWarn})

	log.Debug("hidden")
	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.False(t, log.Enabled(LevelInfo))
	assert.True(t, log.WithLevel(LevelDebug).Enabled(LevelInfo))
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelDebug, Format: FormatText})

	log.Info("check recorded", UserID("u-1"), Date("2024-01-05"))

	line := buf.String()
	assert.True(t, strings.HasSuffix(line, "\n"))
	assert.Contains(t, line, " INFO check recorded")
	assert.Less(t, strings.Index(line, "date=2024-01-05"), strings.Index(line, "user_id=u-1"))
}

func TestLogger_SlogBridge(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo}).With(Component("scheduler"))

	log.Slog().Info("job done", "job", "snapshot_rankings")

	assert.Contains(t, buf.String(), `"component":"scheduler"`)
	assert.Contains(t, buf.String(), `"job":"snapshot_rankings"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestContextPropagation(t *testing.T) {
	log := Nop().WithRequestID("req-1")
	ctx := WithContext(context.Background(), log)

	assert.Same(t, log, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
