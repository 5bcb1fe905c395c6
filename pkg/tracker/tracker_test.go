package tracker

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/adrianco/the-goodies/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestTracker(t *testing.T) *Tracker {
	t.Helper()
	tr, err := Open(filepath.Join(t.TempDir(), "tracker.ldb"))
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestMarkPendingThenSynced(t *testing.T) {
	ctx := context.Background()
	tr := openTestTracker(t)

	require.NoError(t, tr.MarkPending(ctx, "room-1", model.EntityTypeRoom, OpCreate))
	rec, err := tr.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)

	require.NoError(t, tr.MarkSynced(ctx, "room-1"))
	rec, err = tr.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSynced, rec.Status)
	assert.Equal(t, 0, rec.RetryCount)
}

func TestMarkSyncedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	tr := openTestTracker(t)
	require.NoError(t, tr.MarkPending(ctx, "room-1", model.EntityTypeRoom, OpUpdate))

	require.NoError(t, tr.MarkSynced(ctx, "room-1"))
	first, err := tr.Get(ctx, "room-1")
	require.NoError(t, err)

	require.NoError(t, tr.MarkSynced(ctx, "room-1"))
	second, err := tr.Get(ctx, "room-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestMarkConflictIncrementsRetryCount(t *testing.T) {
	ctx := context.Background()
	tr := openTestTracker(t)
	require.NoError(t, tr.MarkPending(ctx, "room-1", model.EntityTypeRoom, OpUpdate))

	require.NoError(t, tr.MarkConflict(ctx, "room-1", "concurrent write"))
	rec, err := tr.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, StatusConflict, rec.Status)
	assert.Equal(t, "concurrent write", rec.ConflictReason)
	assert.Equal(t, 1, rec.RetryCount)
}

func TestLocalOverwriteResetsConflictToPending(t *testing.T) {
	ctx := context.Background()
	tr := openTestTracker(t)
	require.NoError(t, tr.MarkPending(ctx, "room-1", model.EntityTypeRoom, OpUpdate))
	require.NoError(t, tr.MarkConflict(ctx, "room-1", "concurrent write"))

	require.NoError(t, tr.MarkPending(ctx, "room-1", model.EntityTypeRoom, OpUpdate))
	rec, err := tr.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
}

func TestRetryExhaustionForcesConflict(t *testing.T) {
	ctx := context.Background()
	tr := openTestTracker(t)
	tr.SetMaxRetries(2)
	require.NoError(t, tr.MarkPending(ctx, "room-1", model.EntityTypeRoom, OpUpdate))

	require.NoError(t, tr.RecordPushFailure(ctx, "room-1"))
	rec, err := tr.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)

	require.NoError(t, tr.RecordPushFailure(ctx, "room-1"))
	rec, err = tr.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, StatusConflict, rec.Status)
	assert.Equal(t, ReasonRetryExhausted, rec.ConflictReason)
}

func TestDeleteRemovesRow(t *testing.T) {
	ctx := context.Background()
	tr := openTestTracker(t)
	require.NoError(t, tr.MarkPending(ctx, "room-1", model.EntityTypeRoom, OpDelete))
	require.NoError(t, tr.Delete(ctx, "room-1"))

	rec, err := tr.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestPendingListsOnlyPendingRows(t *testing.T) {
	ctx := context.Background()
	tr := openTestTracker(t)
	require.NoError(t, tr.MarkPending(ctx, "room-1", model.EntityTypeRoom, OpCreate))
	require.NoError(t, tr.MarkPending(ctx, "room-2", model.EntityTypeRoom, OpCreate))
	require.NoError(t, tr.MarkSynced(ctx, "room-2"))

	pending, err := tr.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "room-1", pending[0].EntityID)
}

func TestBatchCommitAppliesAllOrNothing(t *testing.T) {
	ctx := context.Background()
	tr := openTestTracker(t)
	require.NoError(t, tr.MarkPending(ctx, "room-1", model.EntityTypeRoom, OpCreate))
	require.NoError(t, tr.MarkPending(ctx, "room-2", model.EntityTypeRoom, OpCreate))

	batch := tr.NewBatch()
	require.NoError(t, batch.MarkSynced("room-1"))
	require.NoError(t, batch.MarkConflict("room-2", "concurrent write"))

	// Nothing staged is visible before Commit.
	staged, err := tr.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, staged.Status)

	require.NoError(t, batch.Commit())

	rec1, err := tr.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSynced, rec1.Status)

	rec2, err := tr.Get(ctx, "room-2")
	require.NoError(t, err)
	assert.Equal(t, StatusConflict, rec2.Status)
}
