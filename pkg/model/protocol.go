package model

// ProtocolVersion is the only wire protocol version this implementation
// speaks. A SyncRequest carrying any other value is rejected with
// ErrUnsupportedProtocol before anything is applied.
const ProtocolVersion = "inbetweenies-v2"

// SyncType selects whether a sync round-trip is scoped to changes since
// a known vector clock (delta) or returns the server's entire current
// state (full).
type SyncType string

const (
	SyncFull  SyncType = "full"
	SyncDelta SyncType = "delta"
)

// ChangeType is the operation a Change carries.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// VectorClock is the wire representation of pkg/vectorclock.Clock:
// each device's integer counter carried as an opaque decimal string,
// keyed by device id.
type VectorClock struct {
	Clocks map[string]string `json:"clocks"`
}

// Change is one entity mutation, optionally carrying the relationships
// that should be re-pinned alongside it.
type Change struct {
	ChangeType    ChangeType      `json:"change_type"`
	Entity        EntityVersion   `json:"entity"`
	Relationships []Relationship  `json:"relationships,omitempty"`
}

// ConflictResolution describes how a ConflictReport's conflict was (or
// was not yet) resolved.
type ConflictResolution struct {
	Strategy      string `json:"strategy"`
	WinnerVersion string `json:"winner_version,omitempty"`
	MergeVersion  string `json:"merge_version,omitempty"`
}

// ConflictReport surfaces a per-entity outcome that is not a transport
// or protocol error: a concurrent write, a missing parent, or a
// rejected future timestamp.
type ConflictReport struct {
	EntityID     string              `json:"entity_id"`
	Kind         string              `json:"kind"`
	Detail       string              `json:"detail,omitempty"`
	LocalVersion string              `json:"local_version,omitempty"`
	RemoteVersion string             `json:"remote_version,omitempty"`
	Resolution   *ConflictResolution `json:"resolution,omitempty"`
}

// Conflict outcome kinds reported inside SyncResponse.Conflicts.
const (
	ConflictKindParentMissing    = "ParentMissing"
	ConflictKindDuplicateVersion = "DuplicateVersion"
	ConflictKindFutureTimestamp  = "FutureTimestamp"
	ConflictKindConcurrent       = "Concurrent"
)

// SyncRequest is the body of POST /api/v1/sync/.
type SyncRequest struct {
	ProtocolVersion string      `json:"protocol_version"`
	DeviceID        string      `json:"device_id"`
	UserID          string      `json:"user_id"`
	SyncType        SyncType    `json:"sync_type"`
	VectorClock     VectorClock `json:"vector_clock"`
	Changes         []Change    `json:"changes"`
}

// SyncStats summarizes what a sync round-trip did, for operator
// visibility and for the "sync completed (N applied, K conflicts)"
// user-visible outcome.
type SyncStats struct {
	Received  int `json:"received"`
	Applied   int `json:"applied"`
	Rejected  int `json:"rejected"`
	Conflicts int `json:"conflicts"`
}

// SyncResponse is the body returned from POST /api/v1/sync/.
type SyncResponse struct {
	ProtocolVersion string           `json:"protocol_version"`
	VectorClock     VectorClock      `json:"vector_clock"`
	Changes         []Change         `json:"changes"`
	Conflicts       []ConflictReport `json:"conflicts"`
	SyncStats       SyncStats        `json:"sync_stats"`
	SyncType        SyncType         `json:"sync_type"`
}

// ErrorKind tags the wire-level error taxonomy returned in ErrorBody.
type ErrorKind string

const (
	ErrorUnsupportedProtocol ErrorKind = "UnsupportedProtocol"
	ErrorUnauthorized        ErrorKind = "Unauthorized"
	ErrorBatchTooLarge       ErrorKind = "BatchTooLarge"
	ErrorParentMissing       ErrorKind = "ParentMissing"
	ErrorConflict            ErrorKind = "Conflict"
	ErrorInternal            ErrorKind = "Internal"
)

// ErrorBody is the JSON shape of a non-2xx transport response.
type ErrorBody struct {
	ErrorKind ErrorKind `json:"error_kind"`
	Detail    string    `json:"detail"`
}

// StatusResponse is the body of GET /api/v1/sync/status.
type StatusResponse struct {
	LastSync     *string     `json:"last_sync"`
	PendingCount int         `json:"pending_count"`
	VectorClock  VectorClock `json:"vector_clock"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
