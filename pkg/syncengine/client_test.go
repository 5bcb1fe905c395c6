package syncengine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adrianco/the-goodies/pkg/clientstore"
	"github.com/adrianco/the-goodies/pkg/model"
	"github.com/adrianco/the-goodies/pkg/tracker"
	"github.com/adrianco/the-goodies/pkg/vectorclock"
)

func newTestClientEngine(t *testing.T, handler http.HandlerFunc) (*ClientEngine, *httptest.Server) {
	t.Helper()
	dir := t.TempDir()

	st, err := clientstore.Open(filepath.Join(dir, "replica.ldb"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	trk, err := tracker.Open(filepath.Join(dir, "tracker.ldb"))
	require.NoError(t, err)
	t.Cleanup(func() { trk.Close() })

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	e := NewClientEngine(st, trk, srv.URL, "dev1", "alice")
	return e, srv
}

func TestClientSyncPushesPendingAndMarksSynced(t *testing.T) {
	ctx := context.Background()

	e, _ := newTestClientEngine(t, func(w http.ResponseWriter, r *http.Request) {
		var req model.SyncRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Changes, 1)
		assert.Equal(t, model.SyncFull, req.SyncType)

		resp := model.SyncResponse{
			ProtocolVersion: model.ProtocolVersion,
			VectorClock:     vectorclock.ToWire(vectorclock.Clock{"dev1": 1}),
			SyncType:        req.SyncType,
			SyncStats:       model.SyncStats{Received: 1, Applied: 1},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	ev := model.EntityVersion{
		ID: "room-1", Version: model.FormatVersion(time.Now().UTC(), "alice"),
		EntityType: model.EntityTypeRoom, Name: "Kitchen",
		SourceType: model.SourceManual, UserID: "alice",
	}
	require.NoError(t, e.Store.PutVersion(ctx, ev, "dev1"))
	require.NoError(t, e.Tracker.MarkPending(ctx, "room-1", model.EntityTypeRoom, tracker.OpCreate))

	stats, err := e.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Applied)

	rec, err := e.Tracker.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusSynced, rec.Status)
	assert.Equal(t, int64(1), e.Clock["dev1"])
}

func TestClientSyncMarksConflictFromServerReport(t *testing.T) {
	ctx := context.Background()

	e, _ := newTestClientEngine(t, func(w http.ResponseWriter, r *http.Request) {
		var req model.SyncRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := model.SyncResponse{
			ProtocolVersion: model.ProtocolVersion,
			VectorClock:     vectorclock.ToWire(vectorclock.Clock{"dev1": 1}),
			SyncType:        req.SyncType,
			Conflicts: []model.ConflictReport{
				{EntityID: "room-1", Kind: model.ConflictKindConcurrent, Detail: "concurrent write"},
			},
			SyncStats: model.SyncStats{Received: 1, Conflicts: 1},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	ev := model.EntityVersion{
		ID: "room-1", Version: model.FormatVersion(time.Now().UTC(), "alice"),
		EntityType: model.EntityTypeRoom, Name: "Kitchen",
		SourceType: model.SourceManual, UserID: "alice",
	}
	require.NoError(t, e.Store.PutVersion(ctx, ev, "dev1"))
	require.NoError(t, e.Tracker.MarkPending(ctx, "room-1", model.EntityTypeRoom, tracker.OpUpdate))

	_, err := e.Sync(ctx)
	require.NoError(t, err)

	rec, err := e.Tracker.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusConflict, rec.Status)
	assert.Equal(t, "concurrent write", rec.ConflictReason)
}

func TestClientSyncTransportFailureLeavesRowsPending(t *testing.T) {
	ctx := context.Background()

	e, _ := newTestClientEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(model.ErrorBody{ErrorKind: model.ErrorInternal, Detail: "boom"})
	})

	ev := model.EntityVersion{
		ID: "room-1", Version: model.FormatVersion(time.Now().UTC(), "alice"),
		EntityType: model.EntityTypeRoom, Name: "Kitchen",
		SourceType: model.SourceManual, UserID: "alice",
	}
	require.NoError(t, e.Store.PutVersion(ctx, ev, "dev1"))
	require.NoError(t, e.Tracker.MarkPending(ctx, "room-1", model.EntityTypeRoom, tracker.OpCreate))

	_, err := e.Sync(ctx)
	require.Error(t, err)

	rec, err := e.Tracker.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusPending, rec.Status)
	assert.Equal(t, 1, rec.RetryCount)
}

func TestClientSyncAppliesIncomingChangesFromServer(t *testing.T) {
	ctx := context.Background()

	remoteVersion := model.FormatVersion(time.Now().UTC(), "bob")
	e, _ := newTestClientEngine(t, func(w http.ResponseWriter, r *http.Request) {
		resp := model.SyncResponse{
			ProtocolVersion: model.ProtocolVersion,
			VectorClock:     vectorclock.ToWire(vectorclock.Clock{"server": 1}),
			SyncType:        model.SyncFull,
			Changes: []model.Change{
				{
					ChangeType: model.ChangeCreate,
					Entity: model.EntityVersion{
						ID: "room-2", Version: remoteVersion, EntityType: model.EntityTypeRoom,
						Name: "Bedroom", SourceType: model.SourceManual, UserID: "bob",
					},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	_, err := e.Sync(ctx)
	require.NoError(t, err)

	got, err := e.Store.GetCurrent(ctx, "room-2")
	require.NoError(t, err)
	assert.Equal(t, remoteVersion, got.Version)
}
