package syncengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/adrianco/the-goodies/pkg/model"
	"github.com/adrianco/the-goodies/pkg/store"
	"github.com/adrianco/the-goodies/pkg/tracker"
	"github.com/adrianco/the-goodies/pkg/vectorclock"
)

// TransportError wraps a non-2xx response from the sync endpoint.
type TransportError struct {
	StatusCode int
	Body       model.ErrorBody
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("syncengine: server returned %d (%s): %s", e.StatusCode, e.Body.ErrorKind, e.Body.Detail)
}

// ClientEngine drives the push-pull cycle for one replica: it gathers
// locally pending changes from a Tracker, posts them to the server
// alongside the replica's vector clock, applies whatever the server
// sends back into the local Store, and retires or re-flags tracker rows
// depending on the outcome.
type ClientEngine struct {
	Store     store.Store
	Tracker   *tracker.Tracker
	HTTP      *http.Client
	ServerURL string
	AuthToken string
	DeviceID  string
	UserID    string
	Clock     vectorclock.Clock
	Logger    zerolog.Logger
}

// NewClientEngine wires a local store and tracker into a ClientEngine
// targeting serverURL.
func NewClientEngine(st store.Store, trk *tracker.Tracker, serverURL, deviceID, userID string) *ClientEngine {
	return &ClientEngine{
		Store:     st,
		Tracker:   trk,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		ServerURL: serverURL,
		DeviceID:  deviceID,
		UserID:    userID,
		Clock:     vectorclock.New(),
		Logger:    log.With().Str("component", "syncengine.client").Str("device_id", deviceID).Logger(),
	}
}

// Sync runs one push-pull cycle and returns the server's reported
// stats. A transport failure (network error or non-2xx response) is
// returned as-is and leaves every pending tracker row pending with its
// retry_count incremented, except a row whose retry_count reaches the
// tracker's retry limit, which moves to conflict; callers are expected
// to retry on the next cycle.
func (e *ClientEngine) Sync(ctx context.Context) (model.SyncStats, error) {
	pending, err := e.Tracker.Pending(ctx)
	if err != nil {
		return model.SyncStats{}, fmt.Errorf("syncengine: listing pending rows: %w", err)
	}

	changes, err := e.collectChanges(ctx, pending)
	if err != nil {
		return model.SyncStats{}, fmt.Errorf("syncengine: collecting local changes: %w", err)
	}

	syncType := model.SyncDelta
	if len(e.Clock) == 0 {
		syncType = model.SyncFull
	}

	req := model.SyncRequest{
		ProtocolVersion: model.ProtocolVersion,
		DeviceID:        e.DeviceID,
		UserID:          e.UserID,
		SyncType:        syncType,
		VectorClock:     vectorclock.ToWire(e.Clock),
		Changes:         changes,
	}

	resp, err := e.post(ctx, req)
	if err != nil {
		e.recordPushFailures(ctx, pending)
		return model.SyncStats{}, err
	}

	if err := e.applyIncoming(ctx, resp.Changes); err != nil {
		return model.SyncStats{}, fmt.Errorf("syncengine: applying server changes: %w", err)
	}

	if err := e.settlePending(ctx, pending, resp.Conflicts); err != nil {
		return model.SyncStats{}, fmt.Errorf("syncengine: updating tracker: %w", err)
	}

	newClock, err := vectorclock.FromWire(resp.VectorClock)
	if err != nil {
		return model.SyncStats{}, fmt.Errorf("syncengine: decoding response vector clock: %w", err)
	}
	e.Clock = newClock

	e.Logger.Info().
		Int("applied", resp.SyncStats.Applied).
		Int("rejected", resp.SyncStats.Rejected).
		Int("conflicts", resp.SyncStats.Conflicts).
		Msg("sync cycle complete")

	return resp.SyncStats, nil
}

// collectChanges turns each pending tracker row into a Change carrying
// its current local version and pinned relationships.
func (e *ClientEngine) collectChanges(ctx context.Context, pending []tracker.Record) ([]model.Change, error) {
	changes := make([]model.Change, 0, len(pending))
	for _, rec := range pending {
		ev, err := e.Store.GetCurrent(ctx, rec.EntityID)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", rec.EntityID, err)
		}
		rels, err := e.Store.RelationshipsForVersion(ctx, ev.ID, ev.Version)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", rec.EntityID, err)
		}

		var changeType model.ChangeType
		switch rec.Operation {
		case tracker.OpCreate:
			changeType = model.ChangeCreate
		case tracker.OpDelete:
			changeType = model.ChangeDelete
		default:
			changeType = model.ChangeUpdate
		}

		changes = append(changes, model.Change{
			ChangeType:    changeType,
			Entity:        *ev,
			Relationships: rels,
		})
	}
	return changes, nil
}

// applyIncoming writes every version the server sent back into the
// local replica, tagged as server-originated.
func (e *ClientEngine) applyIncoming(ctx context.Context, changes []model.Change) error {
	for _, change := range changes {
		if err := e.Store.PutVersion(ctx, change.Entity, ServerDeviceID); err != nil {
			if errors.Is(err, store.ErrDuplicateVersion) {
				continue
			}
			return err
		}
		for _, rel := range change.Relationships {
			if err := e.Store.PutRelationship(ctx, rel); err != nil {
				return err
			}
		}
	}
	return nil
}

// settlePending retires tracker rows that were pushed in this cycle:
// an entity named in the response's conflicts stays (or becomes)
// conflicted, everything else pushed is marked synced (or removed
// outright for an acknowledged delete). The whole batch commits
// atomically, so a cycle that fails partway never leaves the tracker
// half-updated.
func (e *ClientEngine) settlePending(ctx context.Context, pending []tracker.Record, conflicts []model.ConflictReport) error {
	if len(pending) == 0 {
		return nil
	}

	conflicted := make(map[string]string, len(conflicts))
	for _, c := range conflicts {
		conflicted[c.EntityID] = c.Detail
	}

	batch := e.Tracker.NewBatch()
	for _, rec := range pending {
		if reason, ok := conflicted[rec.EntityID]; ok {
			if err := batch.MarkConflict(rec.EntityID, reason); err != nil {
				return err
			}
			continue
		}
		if rec.Operation == tracker.OpDelete {
			if err := batch.Delete(rec.EntityID); err != nil {
				return err
			}
			continue
		}
		if err := batch.MarkSynced(rec.EntityID); err != nil {
			return err
		}
	}
	return batch.Commit()
}

// recordPushFailures increments retry_count for every row that was
// attempted this cycle, without otherwise changing its status unless
// the retry budget is exhausted.
func (e *ClientEngine) recordPushFailures(ctx context.Context, pending []tracker.Record) {
	for _, rec := range pending {
		if err := e.Tracker.RecordPushFailure(ctx, rec.EntityID); err != nil {
			e.Logger.Error().Err(err).Str("entity_id", rec.EntityID).Msg("recording push failure")
		}
	}
}

func (e *ClientEngine) post(ctx context.Context, req model.SyncRequest) (model.SyncResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return model.SyncResponse{}, fmt.Errorf("syncengine: encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.ServerURL+"/api/v1/sync/", bytes.NewReader(payload))
	if err != nil {
		return model.SyncResponse{}, fmt.Errorf("syncengine: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.AuthToken)
	}

	httpResp, err := e.HTTP.Do(httpReq)
	if err != nil {
		return model.SyncResponse{}, fmt.Errorf("syncengine: sync request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return model.SyncResponse{}, fmt.Errorf("syncengine: reading response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		var errBody model.ErrorBody
		_ = json.Unmarshal(body, &errBody)
		return model.SyncResponse{}, &TransportError{StatusCode: httpResp.StatusCode, Body: errBody}
	}

	var resp model.SyncResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.SyncResponse{}, fmt.Errorf("syncengine: decoding response: %w", err)
	}
	return resp, nil
}
