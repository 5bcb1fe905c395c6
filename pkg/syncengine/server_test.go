package syncengine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adrianco/the-goodies/pkg/conflict"
	"github.com/adrianco/the-goodies/pkg/model"
	"github.com/adrianco/the-goodies/pkg/store"
)

func newEngine(t *testing.T, strategy conflict.Strategy) (*ServerEngine, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	resolver := conflict.New(conflict.Config{DefaultStrategy: strategy})
	return NewServerEngine(st, resolver), st
}

func roomChange(name, version string, parents ...string) model.Change {
	return model.Change{
		ChangeType: model.ChangeCreate,
		Entity: model.EntityVersion{
			ID:             "room-1",
			Version:        version,
			EntityType:     model.EntityTypeRoom,
			Name:           name,
			SourceType:     model.SourceManual,
			UserID:         "alice",
			ParentVersions: parents,
		},
	}
}

func TestSyncAppliesBatchAndReportsStats(t *testing.T) {
	engine, _ := newEngine(t, conflict.LastWriteWins)
	ctx := context.Background()

	req := model.SyncRequest{
		ProtocolVersion: model.ProtocolVersion,
		DeviceID:        "dev1",
		UserID:          "alice",
		SyncType:        model.SyncFull,
		Changes: []model.Change{
			roomChange("Kitchen", model.FormatVersion(time.Now().UTC(), "alice")),
		},
	}

	resp, err := engine.Sync(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.SyncStats.Received)
	assert.Equal(t, 1, resp.SyncStats.Applied)
	assert.Equal(t, 0, resp.SyncStats.Conflicts)
	assert.Equal(t, model.ProtocolVersion, resp.ProtocolVersion)
}

func TestSyncRejectsUnsupportedProtocolVersion(t *testing.T) {
	engine, _ := newEngine(t, conflict.LastWriteWins)

	_, err := engine.Sync(context.Background(), model.SyncRequest{
		ProtocolVersion: "inbetweenies-v1",
		SyncType:        model.SyncFull,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedProtocol))
}

func TestSyncRejectsOversizedBatch(t *testing.T) {
	engine, _ := newEngine(t, conflict.LastWriteWins)
	engine.MaxBatchSize = 1

	req := model.SyncRequest{
		ProtocolVersion: model.ProtocolVersion,
		SyncType:        model.SyncFull,
		Changes: []model.Change{
			roomChange("A", model.FormatVersion(time.Now().UTC(), "alice")),
			roomChange("B", model.FormatVersion(time.Now().Add(time.Second).UTC(), "alice")),
		},
	}

	_, err := engine.Sync(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBatchTooLarge))
}

func TestSyncReportsParentMissingWithoutAbortingBatch(t *testing.T) {
	engine, _ := newEngine(t, conflict.LastWriteWins)

	req := model.SyncRequest{
		ProtocolVersion: model.ProtocolVersion,
		DeviceID:        "dev1",
		UserID:          "alice",
		SyncType:        model.SyncFull,
		Changes: []model.Change{
			roomChange("Kitchen", model.FormatVersion(time.Now().UTC(), "alice"), "missing-parent-version"),
		},
	}

	resp, err := engine.Sync(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.SyncStats.Applied)
	assert.Equal(t, 1, resp.SyncStats.Rejected)
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, model.ConflictKindParentMissing, resp.Conflicts[0].Kind)
}

func TestSyncLastWriteWinsCollapsesConcurrentLeaves(t *testing.T) {
	engine, st := newEngine(t, conflict.LastWriteWins)
	ctx := context.Background()

	base := model.EntityVersion{
		ID: "room-1", Version: model.FormatVersion(time.Now().Add(-time.Hour).UTC(), "alice"),
		EntityType: model.EntityTypeRoom, Name: "Kitchen",
		SourceType: model.SourceManual, UserID: "alice",
	}
	require.NoError(t, st.PutVersion(ctx, base, "dev0"))

	req := model.SyncRequest{
		ProtocolVersion: model.ProtocolVersion,
		DeviceID:        "dev1",
		UserID:          "alice",
		SyncType:        model.SyncFull,
		Changes: []model.Change{
			roomChange("Kitchen A", model.FormatVersion(time.Now().UTC(), "alice"), base.Version),
			roomChange("Kitchen B", model.FormatVersion(time.Now().Add(time.Second).UTC(), "bob"), base.Version),
		},
	}

	resp, err := engine.Sync(ctx, req)
	require.NoError(t, err)
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, model.ConflictKindConcurrent, resp.Conflicts[0].Kind)
	require.NotNil(t, resp.Conflicts[0].Resolution)
	assert.Equal(t, string(conflict.LastWriteWins), resp.Conflicts[0].Resolution.Strategy)

	status, err := st.EntityStatus(ctx, "room-1")
	require.NoError(t, err)
	assert.False(t, status.Conflict)
	assert.Len(t, status.Leaves, 1)
}

func TestSyncManualStrategyLeavesBothLeaves(t *testing.T) {
	engine, st := newEngine(t, conflict.Manual)
	ctx := context.Background()

	base := model.EntityVersion{
		ID: "room-1", Version: model.FormatVersion(time.Now().Add(-time.Hour).UTC(), "alice"),
		EntityType: model.EntityTypeRoom, Name: "Kitchen",
		SourceType: model.SourceManual, UserID: "alice",
	}
	require.NoError(t, st.PutVersion(ctx, base, "dev0"))

	req := model.SyncRequest{
		ProtocolVersion: model.ProtocolVersion,
		DeviceID:        "dev1",
		UserID:          "alice",
		SyncType:        model.SyncFull,
		Changes: []model.Change{
			roomChange("Kitchen A", model.FormatVersion(time.Now().UTC(), "alice"), base.Version),
			roomChange("Kitchen B", model.FormatVersion(time.Now().Add(time.Second).UTC(), "bob"), base.Version),
		},
	}

	resp, err := engine.Sync(ctx, req)
	require.NoError(t, err)
	require.Len(t, resp.Conflicts, 1)
	assert.Empty(t, resp.Conflicts[0].Resolution.MergeVersion)

	status, err := st.EntityStatus(ctx, "room-1")
	require.NoError(t, err)
	assert.True(t, status.Conflict)
	assert.Len(t, status.Leaves, 2)

	conflicted, err := st.ConflictedEntities(ctx)
	require.NoError(t, err)
	require.Len(t, conflicted, 1)
	assert.Equal(t, "room-1", conflicted[0].ID)
}

func TestSyncFieldMergeCollapsesLeavesWithMergedContent(t *testing.T) {
	engine, st := newEngine(t, conflict.FieldMerge)
	ctx := context.Background()

	base := model.EntityVersion{
		ID: "room-1", Version: model.FormatVersion(time.Now().Add(-time.Hour).UTC(), "alice"),
		EntityType: model.EntityTypeRoom, Name: "Kitchen",
		SourceType: model.SourceManual, UserID: "alice",
	}
	require.NoError(t, st.PutVersion(ctx, base, "dev0"))

	req := model.SyncRequest{
		ProtocolVersion: model.ProtocolVersion,
		DeviceID:        "dev1",
		UserID:          "alice",
		SyncType:        model.SyncFull,
		Changes: []model.Change{
			roomChange("Kitchen A", model.FormatVersion(time.Now().UTC(), "alice"), base.Version),
			roomChange("Kitchen B", model.FormatVersion(time.Now().Add(time.Second).UTC(), "bob"), base.Version),
		},
	}

	resp, err := engine.Sync(ctx, req)
	require.NoError(t, err)
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, string(conflict.FieldMerge), resp.Conflicts[0].Resolution.Strategy)

	status, err := st.EntityStatus(ctx, "room-1")
	require.NoError(t, err)
	assert.False(t, status.Conflict)
	require.Len(t, status.Leaves, 1)
	assert.True(t, status.Leaves[0].IsMerge())
}

func TestSyncDeltaReturnsOnlyChangesSinceClock(t *testing.T) {
	engine, st := newEngine(t, conflict.LastWriteWins)
	ctx := context.Background()

	old := model.EntityVersion{
		ID: "room-old", Version: model.FormatVersion(time.Now().Add(-time.Hour).UTC(), "alice"),
		EntityType: model.EntityTypeRoom, Name: "Hallway",
		SourceType: model.SourceManual, UserID: "alice",
	}
	require.NoError(t, st.PutVersion(ctx, old, "dev0"))

	first, err := engine.Sync(ctx, model.SyncRequest{
		ProtocolVersion: model.ProtocolVersion,
		DeviceID:        "dev1",
		UserID:          "alice",
		SyncType:        model.SyncDelta,
	})
	require.NoError(t, err)

	req := model.SyncRequest{
		ProtocolVersion: model.ProtocolVersion,
		DeviceID:        "dev1",
		UserID:          "alice",
		SyncType:        model.SyncDelta,
		VectorClock:     first.VectorClock,
		Changes: []model.Change{
			roomChange("Kitchen", model.FormatVersion(time.Now().UTC(), "alice")),
		},
	}

	resp, err := engine.Sync(ctx, req)
	require.NoError(t, err)
	for _, c := range resp.Changes {
		assert.NotEqual(t, "room-old", c.Entity.ID, "delta sync should not resend a version already covered by the client's clock")
	}
}
