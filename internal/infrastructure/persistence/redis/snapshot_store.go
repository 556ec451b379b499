package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/aura-hub/aura-hub/internal/domain/leaderboard"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT STORE
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotStore implements leaderboard.SnapshotStore on Redis.
//
// Layout:
//   - String "snapshot:{challengeID}:{date}" holds the snapshot JSON
//   - Sorted Set "snapshot-index:{challengeID}" holds dates scored by unix time
//   - Set "snapshot-challenges" lists challenges with at least one snapshot
//
// The index allows Latest in O(log N). An index member whose value has
// expired is skipped and removed lazily.
type SnapshotStore struct {
	cache *Cache
}

var _ leaderboard.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore creates a SnapshotStore.
func NewSnapshotStore(cache *Cache) *SnapshotStore {
	return &SnapshotStore{cache: cache}
}

// SnapshotKey returns the key of one snapshot.
func SnapshotKey(challengeID shared.ChallengeID, day shared.Date) string {
	return fmt.Sprintf("%s%s:%s", PrefixSnapshot, challengeID, day)
}

func snapshotIndexKey(challengeID shared.ChallengeID) string {
	return keySnapshotIndex + challengeID.String()
}

func dateScore(day shared.Date) float64 {
	return float64(day.Time().Unix())
}

// Save stores the snapshot, replacing one of the same day.
func (s *SnapshotStore) Save(ctx context.Context, snap *leaderboard.Snapshot) error {
	if err := s.cache.Set(ctx, SnapshotKey(snap.ChallengeID, snap.Date), snap, s.cache.Config().SnapshotTTL); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	pipe := s.cache.Client().Pipeline()
	pipe.ZAdd(ctx, snapshotIndexKey(snap.ChallengeID), redis.Z{
		Score:  dateScore(snap.Date),
		Member: snap.Date.String(),
	})
	pipe.SAdd(ctx, keySnapshotChallenges, snap.ChallengeID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index snapshot: %w", err)
	}
	return nil
}

// Get returns the snapshot of one day.
func (s *SnapshotStore) Get(ctx context.Context, challengeID shared.ChallengeID, day shared.Date) (*leaderboard.Snapshot, error) {
	var snap leaderboard.Snapshot
	err := s.cache.Get(ctx, SnapshotKey(challengeID, day), &snap)
	if errors.Is(err, ErrCacheMiss) {
		return nil, leaderboard.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	snap.RebuildIndex()
	return &snap, nil
}

// Latest returns the newest snapshot dated strictly before the given day.
func (s *SnapshotStore) Latest(ctx context.Context, challengeID shared.ChallengeID, before shared.Date) (*leaderboard.Snapshot, error) {
	indexKey := snapshotIndexKey(challengeID)
	dates, err := s.cache.Client().ZRevRangeByScore(ctx, indexKey, &redis.ZRangeBy{
		Max: "(" + strconv.FormatInt(before.Time().Unix(), 10),
		Min: "-inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read snapshot index: %w", err)
	}

	for _, raw := range dates {
		day, err := shared.ParseDate(raw)
		if err != nil {
			continue
		}
		snap, err := s.Get(ctx, challengeID, day)
		if errors.Is(err, leaderboard.ErrSnapshotNotFound) {
			_ = s.cache.Client().ZRem(ctx, indexKey, raw).Err()
			continue
		}
		return snap, err
	}
	return nil, leaderboard.ErrSnapshotNotFound
}

// Prune deletes snapshots dated before olderThan across all challenges.
func (s *SnapshotStore) Prune(ctx context.Context, olderThan shared.Date) (int, error) {
	client := s.cache.Client()
	challengeIDs, err := client.SMembers(ctx, keySnapshotChallenges).Result()
	if err != nil {
		return 0, fmt.Errorf("list snapshot challenges: %w", err)
	}

	maxScore := "(" + strconv.FormatInt(olderThan.Time().Unix(), 10)
	removed := 0
	for _, raw := range challengeIDs {
		challengeID := shared.ChallengeID(raw)
		indexKey := snapshotIndexKey(challengeID)

		dates, err := client.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{Min: "-inf", Max: maxScore}).Result()
		if err != nil {
			return removed, fmt.Errorf("read snapshot index: %w", err)
		}
		if len(dates) == 0 {
			continue
		}

		keys := make([]string, 0, len(dates))
		for _, d := range dates {
			keys = append(keys, fmt.Sprintf("%s%s:%s", PrefixSnapshot, challengeID, d))
		}

		pipe := client.Pipeline()
		deleted := pipe.Del(ctx, keys...)
		pipe.ZRemRangeByScore(ctx, indexKey, "-inf", maxScore)
		if _, err := pipe.Exec(ctx); err != nil {
			return removed, fmt.Errorf("prune snapshots: %w", err)
		}
		removed += int(deleted.Val())

		if n, err := client.ZCard(ctx, indexKey).Result(); err == nil && n == 0 {
			_ = client.SRem(ctx, keySnapshotChallenges, raw).Err()
		}
	}
	return removed, nil
}
