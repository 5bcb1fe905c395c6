// Package store implements the versioned entity store: an append-only
// log of entity and relationship versions keyed by (entity_id,
// version), with current-version recomputation and the since() query
// that drives delta sync.
package store

import (
	"context"
	"errors"

	"github.com/adrianco/the-goodies/pkg/model"
	"github.com/adrianco/the-goodies/pkg/vectorclock"
)

// Sentinel errors surfaced by PutVersion. Callers map these onto the
// per-entity conflict taxonomy reported back to clients rather than
// failing the whole batch.
var (
	// ErrParentMissing is returned when a declared parent version is not
	// present in the store at commit time.
	ErrParentMissing = errors.New("store: parent version missing")
	// ErrDuplicateVersion is returned on an (id, version) collision whose
	// payload differs from what is already stored. An identical payload
	// is idempotent and returns nil.
	ErrDuplicateVersion = errors.New("store: duplicate version with differing payload")
	// ErrFutureTimestamp is returned when a version's embedded timestamp
	// is further ahead of the store's clock than the configured skew
	// tolerance allows.
	ErrFutureTimestamp = errors.New("store: version timestamp too far in the future")
	// ErrNotFound is returned by lookups that find nothing.
	ErrNotFound = errors.New("store: not found")
)

// EntityStatus reports whether an entity currently has a single
// resolved leaf or is sitting in the multi-leaf conflicting state.
type EntityStatus struct {
	ID        string
	Current   *model.EntityVersion
	Leaves    []model.EntityVersion
	Conflict  bool
}

// Store is the interface shared by the server's Postgres-backed store
// and the client's embedded LevelDB-backed replica, so pkg/syncengine
// is storage-agnostic.
type Store interface {
	// PutVersion appends ev, authored by originDevice, to the store.
	// It returns ErrParentMissing if any declared parent is absent, or
	// ErrDuplicateVersion on an (id, version) collision with a
	// different payload. After a successful insert the store
	// recomputes the current-version pointer for ev.ID.
	PutVersion(ctx context.Context, ev model.EntityVersion, originDevice string) error

	// GetCurrent returns the single current (leaf) version of id, or
	// ErrNotFound if id is unknown or sitting in an unresolved conflict
	// with no unified leaf.
	GetCurrent(ctx context.Context, id string) (*model.EntityVersion, error)

	// GetVersion returns one specific (id, version) row.
	GetVersion(ctx context.Context, id, version string) (*model.EntityVersion, error)

	// GetChildren returns every stored version that lists (id, version)
	// in its parent_versions, used by the conflict detector to find
	// sibling leaves.
	GetChildren(ctx context.Context, id, version string) ([]model.EntityVersion, error)

	// EntityStatus reports the current leaf set for id.
	EntityStatus(ctx context.Context, id string) (EntityStatus, error)

	// AllCurrent returns the current version of every entity in the
	// store, for full sync.
	AllCurrent(ctx context.Context) ([]model.EntityVersion, error)

	// ConflictedEntities returns the status of every entity currently
	// sitting with more than one leaf version, for the unresolved
	// conflicts listing.
	ConflictedEntities(ctx context.Context) ([]EntityStatus, error)

	// Since returns every version whose origin device's counter exceeds
	// the corresponding entry in deviceClock, for delta sync.
	Since(ctx context.Context, deviceClock vectorclock.Clock) ([]model.EntityVersion, error)

	// PutRelationship appends (or idempotently re-affirms) a
	// relationship row pinned to specific entity versions.
	PutRelationship(ctx context.Context, rel model.Relationship) error

	// RelationshipsForVersion returns every relationship whose endpoint
	// pins to (id, version), on either side.
	RelationshipsForVersion(ctx context.Context, id, version string) ([]model.Relationship, error)

	// ServerClock returns the store's own view of the global vector
	// clock, i.e. the highest counter committed per device.
	ServerClock(ctx context.Context) (vectorclock.Clock, error)

	Close() error
}
