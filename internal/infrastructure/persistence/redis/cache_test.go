package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

func offlineCache(cfg Config) *Cache {
	return NewCacheWithClient(redis.NewClient(&redis.Options{Addr: cfg.Addr()}), cfg)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr())
	assert.Equal(t, TTLRanking, cfg.RankingTTL)
	assert.Zero(t, cfg.SnapshotTTL)
}

func TestKeys(t *testing.T) {
	cid := shared.ChallengeID("3f1c9a62-7c1e-4a8e-9d0a-5b7f2c1e8d44")
	day := shared.MustParseDate("2024-03-10")

	assert.Equal(t, "ranking:3f1c9a62-7c1e-4a8e-9d0a-5b7f2c1e8d44:2024-03-10", RankingKey(cid, day))
	assert.Equal(t, "ranking:3f1c9a62-7c1e-4a8e-9d0a-5b7f2c1e8d44:*", rankingPattern(cid))
	assert.Equal(t, "snapshot:3f1c9a62-7c1e-4a8e-9d0a-5b7f2c1e8d44:2024-03-10", SnapshotKey(cid, day))
	assert.Equal(t, "snapshot-index:3f1c9a62-7c1e-4a8e-9d0a-5b7f2c1e8d44", snapshotIndexKey(cid))
}

func TestDateScore_Ordered(t *testing.T) {
	a := shared.MustParseDate("2024-02-28")
	b := shared.MustParseDate("2024-02-29")
	assert.Less(t, dateScore(a), dateScore(b))
	assert.Equal(t, float64(24*60*60), dateScore(b)-dateScore(a))
}

func TestCache_ArgumentValidation(t *testing.T) {
	c := offlineCache(DefaultConfig())
	defer c.Close()
	ctx := context.Background()

	assert.ErrorIs(t, c.Set(ctx, "", 1, time.Minute), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.Set(ctx, "k", nil, time.Minute), ErrCacheNilValue)
	assert.ErrorIs(t, c.Set(ctx, "k", 1, -time.Second), ErrCacheInvalidTTL)
	assert.ErrorIs(t, c.Set(ctx, "k", make(chan int), time.Minute), ErrCacheSerialization)

	var dest int
	assert.ErrorIs(t, c.Get(ctx, "", &dest), ErrCacheKeyEmpty)

	_, err := c.DeleteByPattern(ctx, "")
	assert.ErrorIs(t, err, ErrCacheKeyEmpty)
	assert.NoError(t, c.Delete(ctx))
}

func TestNewRankingCache_FallsBackToDefaultTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RankingTTL = 0
	rc := NewRankingCache(offlineCache(cfg))
	assert.Equal(t, TTLRanking, rc.ttl)

	cfg.RankingTTL = time.Minute
	rc = NewRankingCache(offlineCache(cfg))
	assert.Equal(t, time.Minute, rc.ttl)
}
