// Package syncengine implements the server and client halves of the
// sync round-trip, built on top of pkg/store, pkg/vectorclock, and
// pkg/conflict.
package syncengine

import "errors"

// Errors that abort an entire sync attempt. Per-entity problems never
// reach here; they are collected into SyncResponse.Conflicts instead.
var (
	ErrUnsupportedProtocol = errors.New("syncengine: unsupported protocol version")
	ErrBatchTooLarge       = errors.New("syncengine: change batch exceeds configured maximum")
	ErrInternal            = errors.New("syncengine: internal storage error")
)

// DefaultMaxBatchSize caps the number of changes accepted per request
// before BatchTooLarge is returned.
const DefaultMaxBatchSize = 1000

// ServerDeviceID tags versions the server itself authors, such as
// conflict-resolution merges, inside the vector clock and origin_device
// column.
const ServerDeviceID = "server"
