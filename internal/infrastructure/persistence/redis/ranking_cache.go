package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aura-hub/aura-hub/internal/domain/leaderboard"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANKING CACHE
// ══════════════════════════════════════════════════════════════════════════════

// RankingCache implements leaderboard.RankingCache.
//
// Layout:
//   - String "ranking:{challengeID}:{date}" holds the entries as JSON
//
// Every write to a challenge drops all of its days, so a stale ranking is
// never served after a check.
type RankingCache struct {
	cache *Cache
	ttl   time.Duration
}

var _ leaderboard.RankingCache = (*RankingCache)(nil)

// NewRankingCache creates a RankingCache using the cache's RankingTTL.
func NewRankingCache(cache *Cache) *RankingCache {
	ttl := cache.Config().RankingTTL
	if ttl <= 0 {
		ttl = TTLRanking
	}
	return &RankingCache{cache: cache, ttl: ttl}
}

// RankingKey returns the cache key of one challenge day.
func RankingKey(challengeID shared.ChallengeID, day shared.Date) string {
	return fmt.Sprintf("%s%s:%s", PrefixRanking, challengeID, day)
}

// rankingPattern matches every cached day of a challenge.
func rankingPattern(challengeID shared.ChallengeID) string {
	return fmt.Sprintf("%s%s:*", PrefixRanking, challengeID)
}

// Get returns the cached entries or a NotFound error on a miss.
func (r *RankingCache) Get(ctx context.Context, challengeID shared.ChallengeID, day shared.Date) ([]*leaderboard.Entry, error) {
	var entries []*leaderboard.Entry
	err := r.cache.Get(ctx, RankingKey(challengeID, day), &entries)
	if errors.Is(err, ErrCacheMiss) {
		return nil, shared.WrapError("leaderboard", "RankingCache.Get", shared.ErrNotFound, "ranking not cached", err)
	}
	if err != nil {
		return nil, fmt.Errorf("get cached ranking: %w", err)
	}
	return entries, nil
}

// Set stores the entries of one challenge day.
func (r *RankingCache) Set(ctx context.Context, challengeID shared.ChallengeID, day shared.Date, entries []*leaderboard.Entry) error {
	if entries == nil {
		entries = []*leaderboard.Entry{}
	}
	if err := r.cache.Set(ctx, RankingKey(challengeID, day), entries, r.ttl); err != nil {
		return fmt.Errorf("cache ranking: %w", err)
	}
	return nil
}

// Invalidate drops every cached day of the challenge.
func (r *RankingCache) Invalidate(ctx context.Context, challengeID shared.ChallengeID) error {
	if _, err := r.cache.DeleteByPattern(ctx, rankingPattern(challengeID)); err != nil {
		return fmt.Errorf("invalidate ranking: %w", err)
	}
	return nil
}
