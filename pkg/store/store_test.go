package store

import (
	"context"
	"testing"
	"time"

	"github.com/adrianco/the-goodies/pkg/model"
	"github.com/adrianco/the-goodies/pkg/vectorclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func version(t time.Time, user string) string {
	return model.FormatVersion(t, user)
}

func TestPutVersionCreationThenCurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	v1 := version(time.Now().UTC(), "alice")
	ev := model.EntityVersion{
		ID: "room-1", Version: v1, EntityType: model.EntityTypeRoom,
		Name: "Kitchen", SourceType: model.SourceManual, UserID: "alice",
	}
	require.NoError(t, s.PutVersion(ctx, ev, "dev1"))

	current, err := s.GetCurrent(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, v1, current.Version)
	assert.True(t, current.IsCreation())
}

func TestPutVersionRejectsMissingParent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ev := model.EntityVersion{
		ID: "room-1", Version: version(time.Now().UTC(), "alice"),
		EntityType: model.EntityTypeRoom, Name: "Kitchen",
		SourceType: model.SourceManual, UserID: "alice",
		ParentVersions: []string{"does-not-exist"},
	}
	err := s.PutVersion(ctx, ev, "dev1")
	assert.ErrorIs(t, err, ErrParentMissing)
}

func TestPutVersionIdempotentOnIdenticalDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	v1 := version(time.Now().UTC(), "alice")
	ev := model.EntityVersion{
		ID: "room-1", Version: v1, EntityType: model.EntityTypeRoom,
		Name: "Kitchen", Content: map[string]any{"color": "blue"},
		SourceType: model.SourceManual, UserID: "alice",
	}
	require.NoError(t, s.PutVersion(ctx, ev, "dev1"))
	// Re-applying the exact same version (e.g. a retried sync batch) must
	// be a no-op, not an error.
	assert.NoError(t, s.PutVersion(ctx, ev, "dev1"))
}

func TestPutVersionRejectsConflictingDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	v1 := version(time.Now().UTC(), "alice")
	ev := model.EntityVersion{
		ID: "room-1", Version: v1, EntityType: model.EntityTypeRoom,
		Name: "Kitchen", SourceType: model.SourceManual, UserID: "alice",
	}
	require.NoError(t, s.PutVersion(ctx, ev, "dev1"))

	conflicting := ev
	conflicting.Name = "Living Room"
	err := s.PutVersion(ctx, conflicting, "dev1")
	assert.ErrorIs(t, err, ErrDuplicateVersion)
}

func TestConcurrentUpdatesProduceConflictingLeaves(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	base := time.Now().UTC()
	v1 := version(base, "alice")
	root := model.EntityVersion{
		ID: "room-1", Version: v1, EntityType: model.EntityTypeRoom,
		Name: "Kitchen", SourceType: model.SourceManual, UserID: "alice",
	}
	require.NoError(t, s.PutVersion(ctx, root, "dev1"))

	v2 := version(base.Add(time.Second), "alice")
	v3 := version(base.Add(2*time.Second), "bob")

	updateA := root
	updateA.Version = v2
	updateA.Name = "Kitchen (renovated)"
	updateA.ParentVersions = []string{v1}
	require.NoError(t, s.PutVersion(ctx, updateA, "dev1"))

	updateB := root
	updateB.Version = v3
	updateB.Name = "Cook Room"
	updateB.ParentVersions = []string{v1}
	require.NoError(t, s.PutVersion(ctx, updateB, "dev2"))

	status, err := s.EntityStatus(ctx, "room-1")
	require.NoError(t, err)
	assert.True(t, status.Conflict)
	assert.Len(t, status.Leaves, 2)

	_, err = s.GetCurrent(ctx, "room-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMergeVersionResolvesConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	base := time.Now().UTC()
	v1 := version(base, "alice")
	root := model.EntityVersion{
		ID: "room-1", Version: v1, EntityType: model.EntityTypeRoom,
		Name: "Kitchen", SourceType: model.SourceManual, UserID: "alice",
	}
	require.NoError(t, s.PutVersion(ctx, root, "dev1"))

	v2 := version(base.Add(time.Second), "alice")
	v3 := version(base.Add(2*time.Second), "bob")
	updateA := root
	updateA.Version = v2
	updateA.ParentVersions = []string{v1}
	require.NoError(t, s.PutVersion(ctx, updateA, "dev1"))

	updateB := root
	updateB.Version = v3
	updateB.ParentVersions = []string{v1}
	require.NoError(t, s.PutVersion(ctx, updateB, "dev2"))

	merge := root
	merge.Version = version(base.Add(3*time.Second), "alice")
	merge.Name = "Kitchen (merged)"
	merge.ParentVersions = []string{v2, v3}
	require.NoError(t, s.PutVersion(ctx, merge, "dev1"))

	current, err := s.GetCurrent(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, merge.Version, current.Version)
	assert.True(t, current.IsMerge())
}

func TestSinceReturnsOnlyNewerThanCallerClock(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	base := time.Now().UTC()
	ev1 := model.EntityVersion{
		ID: "room-1", Version: version(base, "alice"),
		EntityType: model.EntityTypeRoom, Name: "Kitchen",
		SourceType: model.SourceManual, UserID: "alice",
	}
	require.NoError(t, s.PutVersion(ctx, ev1, "dev1"))

	ev2 := model.EntityVersion{
		ID: "room-2", Version: version(base.Add(time.Second), "alice"),
		EntityType: model.EntityTypeRoom, Name: "Bedroom",
		SourceType: model.SourceManual, UserID: "alice",
	}
	require.NoError(t, s.PutVersion(ctx, ev2, "dev1"))

	none, err := s.Since(ctx, vectorclock.Clock{"dev1": 2})
	require.NoError(t, err)
	assert.Empty(t, none)

	one, err := s.Since(ctx, vectorclock.Clock{"dev1": 1})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "room-2", one[0].ID)

	both, err := s.Since(ctx, vectorclock.Clock{})
	require.NoError(t, err)
	assert.Len(t, both, 2)
}

func TestGetChildrenFindsDescendants(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	base := time.Now().UTC()
	v1 := version(base, "alice")
	root := model.EntityVersion{
		ID: "room-1", Version: v1, EntityType: model.EntityTypeRoom,
		Name: "Kitchen", SourceType: model.SourceManual, UserID: "alice",
	}
	require.NoError(t, s.PutVersion(ctx, root, "dev1"))

	v2 := version(base.Add(time.Second), "alice")
	child := root
	child.Version = v2
	child.ParentVersions = []string{v1}
	require.NoError(t, s.PutVersion(ctx, child, "dev1"))

	children, err := s.GetChildren(ctx, "room-1", v1)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, v2, children[0].Version)
}

func TestFutureTimestampRejected(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.SetMaxClockSkew(time.Minute)

	farFuture := version(time.Now().UTC().Add(time.Hour), "alice")
	ev := model.EntityVersion{
		ID: "room-1", Version: farFuture, EntityType: model.EntityTypeRoom,
		Name: "Kitchen", SourceType: model.SourceManual, UserID: "alice",
	}
	err := s.PutVersion(ctx, ev, "dev1")
	assert.ErrorIs(t, err, ErrFutureTimestamp)
}

func TestDeletedTombstonePreservesLineage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	base := time.Now().UTC()
	v1 := version(base, "alice")
	root := model.EntityVersion{
		ID: "room-1", Version: v1, EntityType: model.EntityTypeRoom,
		Name: "Kitchen", SourceType: model.SourceManual, UserID: "alice",
	}
	require.NoError(t, s.PutVersion(ctx, root, "dev1"))

	tombstone := root
	tombstone.Version = version(base.Add(time.Second), "alice")
	tombstone.ParentVersions = []string{v1}
	tombstone.Content = map[string]any{"deleted": true}
	require.NoError(t, s.PutVersion(ctx, tombstone, "dev1"))

	current, err := s.GetCurrent(ctx, "room-1")
	require.NoError(t, err)
	assert.True(t, current.Deleted())
	assert.Equal(t, []string{v1}, current.ParentVersions)
}

func TestRelationshipRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

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
