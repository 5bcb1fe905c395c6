package syncengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/adrianco/the-goodies/pkg/conflict"
	"github.com/adrianco/the-goodies/pkg/model"
	"github.com/adrianco/the-goodies/pkg/store"
	"github.com/adrianco/the-goodies/pkg/vectorclock"
)

// ServerEngine drives one sync round-trip against a Store on behalf of
// an HTTP handler. It holds no per-request state, so one ServerEngine
// serves every request concurrently.
type ServerEngine struct {
	Store        store.Store
	Resolver     *conflict.Resolver
	MaxBatchSize int
	Logger       zerolog.Logger
}

// NewServerEngine wires a store and resolver into a ServerEngine with
// default limits.
func NewServerEngine(st store.Store, resolver *conflict.Resolver) *ServerEngine {
	return &ServerEngine{
		Store:        st,
		Resolver:     resolver,
		MaxBatchSize: DefaultMaxBatchSize,
		Logger:       log.With().Str("component", "syncengine.server").Logger(),
	}
}

// Sync applies an incoming batch of changes and returns the response
// delta. Protocol-level problems (bad version, oversized batch) abort
// the whole request via the returned error; per-entity problems are
// collected into the response's Conflicts instead.
func (e *ServerEngine) Sync(ctx context.Context, req model.SyncRequest) (model.SyncResponse, error) {
	if req.ProtocolVersion != model.ProtocolVersion {
		return model.SyncResponse{}, fmt.Errorf("%w: got %q", ErrUnsupportedProtocol, req.ProtocolVersion)
	}
	if len(req.Changes) > e.MaxBatchSize {
		return model.SyncResponse{}, fmt.Errorf("%w: %d changes, max %d", ErrBatchTooLarge, len(req.Changes), e.MaxBatchSize)
	}

	stats := model.SyncStats{Received: len(req.Changes)}
	var conflicts []model.ConflictReport
	touched := make(map[string]struct{})

	for _, change := range req.Changes {
		if err := e.applyChange(ctx, req.DeviceID, change, &stats, &conflicts); err != nil {
			e.Logger.Error().Err(err).Str("entity_id", change.Entity.ID).Msg("change application failed")
			return model.SyncResponse{}, fmt.Errorf("%w: %v", ErrInternal, err)
		}
		touched[change.Entity.ID] = struct{}{}
	}

	for id := range touched {
		if err := e.resolveIfConflicting(ctx, id, req.UserID, &stats, &conflicts); err != nil {
			return model.SyncResponse{}, fmt.Errorf("%w: %v", ErrInternal, err)
		}
	}

	changes, err := e.buildResponseDelta(ctx, req)
	if err != nil {
		return model.SyncResponse{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	respClock, err := e.mergedClock(ctx, req.VectorClock)
	if err != nil {
		return model.SyncResponse{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	stats.Conflicts = len(conflicts)
	return model.SyncResponse{
		ProtocolVersion: model.ProtocolVersion,
		VectorClock:     respClock,
		Changes:         changes,
		Conflicts:       conflicts,
		SyncStats:       stats,
		SyncType:        req.SyncType,
	}, nil
}

// applyChange persists one change, updating stats and conflicts for
// any per-entity problem. A storage error other than the recognized
// sentinel kinds is returned so the caller aborts the whole request.
func (e *ServerEngine) applyChange(ctx context.Context, deviceID string, change model.Change, stats *model.SyncStats, conflicts *[]model.ConflictReport) error {
	err := e.Store.PutVersion(ctx, change.Entity, deviceID)
	switch {
	case err == nil:
		stats.Applied++
	case errors.Is(err, store.ErrParentMissing):
		stats.Rejected++
		*conflicts = append(*conflicts, model.ConflictReport{
			EntityID:     change.Entity.ID,
			Kind:         model.ConflictKindParentMissing,
			Detail:       "one or more declared parent versions are unknown to the server",
			LocalVersion: change.Entity.Version,
		})
		return nil
	case errors.Is(err, store.ErrDuplicateVersion):
		stats.Rejected++
		*conflicts = append(*conflicts, model.ConflictReport{
			EntityID:     change.Entity.ID,
			Kind:         model.ConflictKindDuplicateVersion,
			Detail:       "version id collides with a differently-valued existing version",
			LocalVersion: change.Entity.Version,
		})
		return nil
	case errors.Is(err, store.ErrFutureTimestamp):
		stats.Rejected++
		*conflicts = append(*conflicts, model.ConflictReport{
			EntityID:     change.Entity.ID,
			Kind:         model.ConflictKindFutureTimestamp,
			Detail:       "version timestamp is too far ahead of the server clock",
			LocalVersion: change.Entity.Version,
		})
		return nil
	default:
		return err
	}

	for _, rel := range change.Relationships {
		if err := e.Store.PutRelationship(ctx, rel); err != nil {
			return err
		}
	}
	return nil
}

// resolveIfConflicting checks id's current leaf set after a batch of
// writes and, if more than one leaf survived, invokes the resolver and
// persists its outcome.
func (e *ServerEngine) resolveIfConflicting(ctx context.Context, id, userID string, stats *model.SyncStats, conflicts *[]model.ConflictReport) error {
	status, err := e.Store.EntityStatus(ctx, id)
	if err != nil {
		return err
	}
	if !status.Conflict {
		return nil
	}

	outcome, err := e.Resolver.Resolve(status.Leaves, userID)
	if err != nil {
		return err
	}
	if outcome.Merge != nil {
		if err := e.Store.PutVersion(ctx, *outcome.Merge, ServerDeviceID); err != nil {
			return fmt.Errorf("persisting merge version for %s: %w", id, err)
		}
	}
	*conflicts = append(*conflicts, outcome.Report)
	return nil
}

func (e *ServerEngine) buildResponseDelta(ctx context.Context, req model.SyncRequest) ([]model.Change, error) {
	var versions []model.EntityVersion
	var err error

	if req.SyncType == model.SyncFull {
		versions, err = e.Store.AllCurrent(ctx)
	} else {
		var clock vectorclock.Clock
		clock, err = vectorclock.FromWire(req.VectorClock)
		if err != nil {
			return nil, err
		}
		versions, err = e.Store.Since(ctx, clock)
	}
	if err != nil {
		return nil, err
	}

	changes := make([]model.Change, 0, len(versions))
	for _, ev := range versions {
		rels, err := e.Store.RelationshipsForVersion(ctx, ev.ID, ev.Version)
		if err != nil {
			return nil, err
		}
		changeType := model.ChangeUpdate
		switch {
		case ev.IsCreation():
			changeType = model.ChangeCreate
		case ev.Deleted():
			changeType = model.ChangeDelete
		}
		changes = append(changes, model.Change{
			ChangeType:    changeType,
			Entity:        ev,
			Relationships: rels,
		})
	}
	return changes, nil
}

// mergedClock folds the request's clock into the server's and bumps
// the server's own counter, so the returned clock reflects having
// observed this request even when it applied nothing (e.g. a
// read-only delta sync).
func (e *ServerEngine) mergedClock(ctx context.Context, reqClock model.VectorClock) (model.VectorClock, error) {
	serverClock, err := e.Store.ServerClock(ctx)
	if err != nil {
		return model.VectorClock{}, err
	}
	clientClock, err := vectorclock.FromWire(reqClock)
	if err != nil {
		return model.VectorClock{}, err
	}
	merged := vectorclock.Advance(vectorclock.Merge(serverClock, clientClock), ServerDeviceID)
	return vectorclock.ToWire(merged), nil
}
