package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-hub/aura-hub/internal/domain/leaderboard"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
	"github.com/aura-hub/aura-hub/internal/infrastructure/persistence/memory"
)

var errMirrorDown = errors.New("mirror down")

// brokenStore fails every call.
type brokenStore struct{}

func (brokenStore) Save(context.Context, *leaderboard.Snapshot) error { return errMirrorDown }
func (brokenStore) Get(context.Context, shared.ChallengeID, shared.Date) (*leaderboard.Snapshot, error) {
	return nil, errMirrorDown
}
func (brokenStore) Latest(context.Context, shared.ChallengeID, shared.Date) (*leaderboard.Snapshot, error) {
	return nil, errMirrorDown
}
func (brokenStore) Prune(context.Context, shared.Date) (int, error) { return 0, errMirrorDown }

func snapshotOn(cid shared.ChallengeID, day string) *leaderboard.Snapshot {
	return leaderboard.NewSnapshot(shared.MustParseDate(day), leaderboard.NewRanking(cid, false), time.Now())
}

func TestMirroredSnapshotStore_WritesBoth(t *testing.T) {
	ctx := context.Background()
	primary, mirror := memory.New().Snapshots(), memory.New().Snapshots()
	store := newMirroredSnapshotStore(primary, mirror, nil)
	cid := shared.ChallengeID("3f1c9a62-7c1e-4a8e-9d0a-5b7f2c1e8d44")

	require.NoError(t, store.Save(ctx, snapshotOn(cid, "2024-03-10")))

	_, err := primary.Get(ctx, cid, shared.MustParseDate("2024-03-10"))
	assert.NoError(t, err)
	_, err = mirror.Get(ctx, cid, shared.MustParseDate("2024-03-10"))
	assert.NoError(t, err)
}

func TestMirroredSnapshotStore_MirrorFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	primary := memory.New().Snapshots()
	store := newMirroredSnapshotStore(primary, brokenStore{}, nil)
	cid := shared.ChallengeID("3f1c9a62-7c1e-4a8e-9d0a-5b7f2c1e8d44")

	require.NoError(t, store.Save(ctx, snapshotOn(cid, "2024-03-10")))

	snap, err := store.Get(ctx, cid, shared.MustParseDate("2024-03-10"))
	require.NoError(t, err)
	assert.Equal(t, cid, snap.ChallengeID)

	latest, err := store.Latest(ctx, cid, shared.MustParseDate("2024-03-12"))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10", latest.Date.String())

	n, err := store.Prune(ctx, shared.MustParseDate("2024-03-11"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMirroredSnapshotStore_GetBackfillsMirror(t *testing.T) {
	ctx := context.Background()
	primary, mirror := memory.New().Snapshots(), memory.New().Snapshots()
	store := newMirroredSnapshotStore(primary, mirror, nil)
	cid := shared.ChallengeID("3f1c9a62-7c1e-4a8e-9d0a-5b7f2c1e8d44")
	day := shared.MustParseDate("2024-03-10")

	require.NoError(t, primary.Save(ctx, snapshotOn(cid, "2024-03-10")))

	_, err := store.Get(ctx, cid, day)
	require.NoError(t, err)
	_, err = mirror.Get(ctx, cid, day)
	assert.NoError(t, err)
}

func TestMirroredSnapshotStore_LatestPrefersPrimaryOnGap(t *testing.T) {
	ctx := context.Background()
	primary, mirror := memory.New().Snapshots(), memory.New().Snapshots()
	store := newMirroredSnapshotStore(primary, mirror, nil)
	cid := shared.ChallengeID("3f1c9a62-7c1e-4a8e-9d0a-5b7f2c1e8d44")

	// The mirror lost the most recent day.
	require.NoError(t, mirror.Save(ctx, snapshotOn(cid, "2024-03-08")))
	require.NoError(t, primary.Save(ctx, snapshotOn(cid, "2024-03-08")))
	require.NoError(t, primary.Save(ctx, snapshotOn(cid, "2024-03-09")))

	latest, err := store.Latest(ctx, cid, shared.MustParseDate("2024-03-10"))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-09", latest.Date.String())
}

func TestMirroredSnapshotStore_PrimaryErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	store := newMirroredSnapshotStore(brokenStore{}, memory.New().Snapshots(), nil)
	cid := shared.ChallengeID("3f1c9a62-7c1e-4a8e-9d0a-5b7f2c1e8d44")

	assert.ErrorIs(t, store.Save(ctx, snapshotOn(cid, "2024-03-10")), errMirrorDown)
	_, err := store.Get(ctx, cid, shared.MustParseDate("2024-03-10"))
	assert.ErrorIs(t, err, errMirrorDown)
}
