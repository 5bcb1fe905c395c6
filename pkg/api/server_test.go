package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adrianco/the-goodies/pkg/conflict"
	"github.com/adrianco/the-goodies/pkg/model"
	"github.com/adrianco/the-goodies/pkg/store"
	"github.com/adrianco/the-goodies/pkg/syncengine"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) (*Server, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	engine := syncengine.NewServerEngine(st, conflict.New(conflict.DefaultConfig()))
	srv := NewServer(engine, Config{JWTSecret: testSecret})
	return srv, st
}

func authedRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	token, err := IssueToken([]byte(testSecret), "alice", "dev1", time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestHealthDoesNotRequireAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSyncRejectsMissingToken(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIssueTokenRequiresCorrectProvisioningSecret(t *testing.T) {
	hash, err := HashProvisioningSecret("correct-horse-battery-staple")
	require.NoError(t, err)

	st := store.NewMemoryStore()
	engine := syncengine.NewServerEngine(st, conflict.New(conflict.DefaultConfig()))
	srv := NewServer(engine, Config{JWTSecret: testSecret, ProvisioningHash: hash})

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(map[string]string{
		"user_id": "alice", "device_id": "dev1", "secret": "wrong-secret",
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var buf2 bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf2).Encode(map[string]string{
		"user_id": "alice", "device_id": "dev1", "secret": "correct-horse-battery-staple",
	}))
	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", &buf2)
	req2.Header.Set("Content-Type", "application/json")
	w2 := httptest.NewRecorder()
	srv.router.ServeHTTP(w2, req2)
	require.Equal(t, http.StatusOK, w2.Code)

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(w2.Body).Decode(&body))
	assert.NotEmpty(t, body.Token)
}

func TestSyncAppliesChangeAndUpdatesStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	reqBody := model.SyncRequest{
		ProtocolVersion: model.ProtocolVersion,
		DeviceID:        "dev1",
		UserID:          "alice",
		SyncType:        model.SyncFull,
		Changes: []model.Change{
			{
				ChangeType: model.ChangeCreate,
				Entity: model.EntityVersion{
					ID:         "room-1",
					Version:    model.FormatVersion(time.Now().UTC(), "alice"),
					EntityType: model.EntityTypeRoom,
					Name:       "Kitchen",
					SourceType: model.SourceManual,
					UserID:     "alice",
				},
			},
		},
	}

	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/v1/sync/", reqBody))
	require.Equal(t, http.StatusOK, w.Code)

	var resp model.SyncResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 1, resp.SyncStats.Applied)

	w2 := httptest.NewRecorder()
	srv.router.ServeHTTP(w2, authedRequest(t, http.MethodGet, "/api/v1/sync/status?device_id=dev1", nil))
	require.Equal(t, http.StatusOK, w2.Code)

	var status model.StatusResponse
	require.NoError(t, json.NewDecoder(w2.Body).Decode(&status))
	require.NotNil(t, status.LastSync)
	assert.Equal(t, 0, status.PendingCount)
}

func TestConflictsListsUnresolvedManualConflicts(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	engine := syncengine.NewServerEngine(st, conflict.New(conflict.Config{DefaultStrategy: conflict.Manual}))
	srv := NewServer(engine, Config{JWTSecret: testSecret})

	base := model.EntityVersion{
		ID: "room-1", Version: model.FormatVersion(time.Now().Add(-time.Minute).UTC(), "alice"),
		EntityType: model.EntityTypeRoom, Name: "Kitchen",
		SourceType: model.SourceManual, UserID: "alice",
	}
	require.NoError(t, st.PutVersion(ctx, base, "dev1"))

	leafA := base
	leafA.Version = model.FormatVersion(time.Now().UTC(), "alice")
	leafA.ParentVersions = []string{base.Version}
	leafA.Name = "Kitchen A"
	require.NoError(t, st.PutVersion(ctx, leafA, "dev1"))

	leafB := base
	leafB.Version = model.FormatVersion(time.Now().Add(time.Second).UTC(), "bob")
	leafB.ParentVersions = []string{base.Version}
	leafB.Name = "Kitchen B"
	require.NoError(t, st.PutVersion(ctx, leafB, "dev2"))

	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/v1/sync/conflicts", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Conflicts []model.ConflictReport `json:"conflicts"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Len(t, body.Conflicts, 1)
	assert.Equal(t, "room-1", body.Conflicts[0].EntityID)
}
