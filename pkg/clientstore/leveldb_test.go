package clientstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/adrianco/the-goodies/pkg/model"
	"github.com/adrianco/the-goodies/pkg/store"
	"github.com/adrianco/the-goodies/pkg/vectorclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *LevelDBStore {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "replica.ldb"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLevelDBStorePutAndGetCurrent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	v1 := model.FormatVersion(time.Now().UTC(), "alice")
	ev := model.EntityVersion{
		ID: "room-1", Version: v1, EntityType: model.EntityTypeRoom,
		Name: "Kitchen", SourceType: model.SourceManual, UserID: "alice",
	}
	require.NoError(t, s.PutVersion(ctx, ev, "dev1"))

	current, err := s.GetCurrent(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, v1, current.Version)
}

func TestLevelDBStoreRejectsMissingParent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	ev := model.EntityVersion{
		ID: "room-1", Version: model.FormatVersion(time.Now().UTC(), "alice"),
		EntityType: model.EntityTypeRoom, Name: "Kitchen",
		SourceType: model.SourceManual, UserID: "alice",
		ParentVersions: []string{"missing"},
	}
	err := s.PutVersion(ctx, ev, "dev1")
	assert.ErrorIs(t, err, store.ErrParentMissing)
}

func TestLevelDBStoreConcurrentLeavesAreConflict(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Now().UTC()
	v1 := model.FormatVersion(base, "alice")
	root := model.EntityVersion{
		ID: "room-1", Version: v1, EntityType: model.EntityTypeRoom,
		Name: "Kitchen", SourceType: model.SourceManual, UserID: "alice",
	}
	require.NoError(t, s.PutVersion(ctx, root, "dev1"))

	a := root
	a.Version = model.FormatVersion(base.Add(time.Second), "alice")
	a.ParentVersions = []string{v1}
	require.NoError(t, s.PutVersion(ctx, a, "dev1"))

	b := root
	b.Version = model.FormatVersion(base.Add(2*time.Second), "bob")
	b.ParentVersions = []string{v1}
	require.NoError(t, s.PutVersion(ctx, b, "dev2"))

	status, err := s.EntityStatus(ctx, "room-1")
	require.NoError(t, err)
	assert.True(t, status.Conflict)
	assert.Len(t, status.Leaves, 2)
}

func TestLevelDBStoreSinceAndServerClock(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Now().UTC()
	ev1 := model.EntityVersion{
		ID: "room-1", Version: model.FormatVersion(base, "alice"),
		EntityType: model.EntityTypeRoom, Name: "Kitchen",
		SourceType: model.SourceManual, UserID: "alice",
	}
	require.NoError(t, s.PutVersion(ctx, ev1, "dev1"))

	ev2 := model.EntityVersion{
		ID: "room-2", Version: model.FormatVersion(base.Add(time.Second), "alice"),
		EntityType: model.EntityTypeRoom, Name: "Bedroom",
		SourceType: model.SourceManual, UserID: "alice",
	}
	require.NoError(t, s.PutVersion(ctx, ev2, "dev1"))

	clock, err := s.ServerClock(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), clock["dev1"])

	delta, err := s.Since(ctx, vectorclock.Clock{"dev1": 1})
	require.NoError(t, err)
	require.Len(t, delta, 1)
	assert.Equal(t, "room-2", delta[0].ID)
}

func TestLevelDBStoreRelationshipRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	rel := model.Relationship{
		ID: "rel-1", FromEntityID: "device-1", FromEntityVersion: "v1",
		ToEntityID: "room-1", ToEntityVersion: "v1",
		RelationshipType: model.RelLocatedIn,
	}
	require.NoError(t, s.PutRelationship(ctx, rel))

	found, err := s.RelationshipsForVersion(ctx, "room-1", "v1")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, rel.ID, found[0].ID)
}
