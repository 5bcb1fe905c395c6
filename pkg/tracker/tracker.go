// Package tracker implements the client-side change tracker: the
// per-replica table that tags each locally-mutated entity with a sync
// status and the operation that produced it, driving what the client
// sync engine pushes next.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/adrianco/the-goodies/pkg/model"
)

// Status is a tracker row's position in the sync state machine.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSynced   Status = "synced"
	StatusConflict Status = "conflict"
)

// Operation is the local mutation kind that produced a tracker row.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// ReasonRetryExhausted marks a row force-transitioned to conflict after
// exceeding the configured retry budget rather than by a resolver
// report from the server.
const ReasonRetryExhausted = "retry_exhausted"

// DefaultMaxRetries is how many consecutive failed push attempts a
// pending row tolerates before it is force-transitioned to conflict.
const DefaultMaxRetries = 5

// Record is one change tracker row.
type Record struct {
	EntityID       string          `json:"entity_id"`
	EntityType     model.EntityType `json:"entity_type"`
	Status         Status          `json:"sync_status"`
	Operation      Operation       `json:"operation"`
	LastModified   time.Time       `json:"last_modified"`
	ConflictReason string          `json:"conflict_reason,omitempty"`
	RetryCount     int             `json:"retry_count"`
}

const rowPrefix = "tracker/"

func rowKey(id string) []byte {
	return []byte(rowPrefix + id)
}

// Tracker persists Records in an embedded LevelDB database.
type Tracker struct {
	mu         sync.Mutex
	db         *leveldb.DB
	maxRetries int
}

// Open opens (creating if absent) a tracker database at path.
func Open(path string) (*Tracker, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("tracker: opening %s: %w", path, err)
	}
	return &Tracker{db: db, maxRetries: DefaultMaxRetries}, nil
}

// SetMaxRetries overrides DefaultMaxRetries.
func (t *Tracker) SetMaxRetries(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maxRetries = n
}

func (t *Tracker) Close() error {
	return t.db.Close()
}

func (t *Tracker) get(id string) (*Record, error) {
	raw, err := t.db.Get(rowKey(id), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tracker: reading row %s: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("tracker: decoding row %s: %w", id, err)
	}
	return &rec, nil
}

func (t *Tracker) put(rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("tracker: encoding row %s: %w", rec.EntityID, err)
	}
	return t.db.Put(rowKey(rec.EntityID), payload, nil)
}

// Get returns the tracker row for id, or nil if no row exists.
func (t *Tracker) Get(ctx context.Context, id string) (*Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(id)
}

// MarkPending records a local mutation: synced->pending, conflict->pending
// on an explicit overwrite, or creates a fresh pending row.
func (t *Tracker) MarkPending(ctx context.Context, id string, entityType model.EntityType, op Operation) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := Record{
		EntityID:     id,
		EntityType:   entityType,
		Status:       StatusPending,
		Operation:    op,
		LastModified: time.Now().UTC(),
	}
	return t.put(rec)
}

// MarkSynced transitions id to synced, clearing conflict metadata.
// Calling it twice in a row is a no-op the second time, satisfying
// idempotence of tracker transitions.
func (t *Tracker) MarkSynced(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, err := t.get(id)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	if rec.Status == StatusSynced && rec.ConflictReason == "" && rec.RetryCount == 0 {
		return nil
	}
	rec.Status = StatusSynced
	rec.ConflictReason = ""
	rec.RetryCount = 0
	rec.LastModified = time.Now().UTC()
	return t.put(*rec)
}

// MarkConflict transitions id to conflict with reason, incrementing
// retry_count.
func (t *Tracker) MarkConflict(ctx context.Context, id, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, err := t.get(id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("tracker: no row for entity %s", id)
	}
	rec.Status = StatusConflict
	rec.ConflictReason = reason
	rec.RetryCount++
	rec.LastModified = time.Now().UTC()
	return t.put(*rec)
}

// RecordPushFailure increments retry_count for a pending row whose push
// failed (the client engine calls it when the sync request itself
// fails), keeping it pending until retry_count reaches the configured
// maximum, at which point it is force-transitioned to conflict with
// ReasonRetryExhausted.
func (t *Tracker) RecordPushFailure(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, err := t.get(id)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	rec.RetryCount++
	rec.LastModified = time.Now().UTC()
	if rec.RetryCount >= t.maxRetries {
		rec.Status = StatusConflict
		rec.ConflictReason = ReasonRetryExhausted
	}
	return t.put(*rec)
}

// Delete removes id's row, the terminal state once a delete has been
// acknowledged by the server.
func (t *Tracker) Delete(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.db.Delete(rowKey(id), nil); err != nil {
		return fmt.Errorf("tracker: deleting row %s: %w", id, err)
	}
	return nil
}

// Pending returns every row with sync_status=pending, ordered by id for
// determinism.
func (t *Tracker) Pending(ctx context.Context) ([]Record, error) {
	return t.byStatus(StatusPending)
}

// All returns every tracker row, ordered by id.
func (t *Tracker) All(ctx context.Context) ([]Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	iter := t.db.NewIterator(util.BytesPrefix([]byte(rowPrefix)), nil)
	defer iter.Release()

	var out []Record
	for iter.Next() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("tracker: decoding row: %w", err)
		}
		out = append(out, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

func (t *Tracker) byStatus(status Status) ([]Record, error) {
	all, err := t.All(context.Background())
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, rec := range all {
		if rec.Status == status {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Batch stages a group of tracker transitions to commit atomically, so
// a cancelled sync never leaves the tracker partially updated.
type Batch struct {
	t  *Tracker
	wb *leveldb.Batch
}

// NewBatch starts a new batch of staged transitions.
func (t *Tracker) NewBatch() *Batch {
	return &Batch{t: t, wb: new(leveldb.Batch)}
}

// MarkSynced stages a synced transition for id.
func (b *Batch) MarkSynced(id string) error {
	b.t.mu.Lock()
	defer b.t.mu.Unlock()
	rec, err := b.t.get(id)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	rec.Status = StatusSynced
	rec.ConflictReason = ""
	rec.RetryCount = 0
	rec.LastModified = time.Now().UTC()
	payload, err := json.Marshal(*rec)
	if err != nil {
		return err
	}
	b.wb.Put(rowKey(id), payload)
	return nil
}

// MarkConflict stages a conflict transition for id.
func (b *Batch) MarkConflict(id, reason string) error {
	b.t.mu.Lock()
	defer b.t.mu.Unlock()
	rec, err := b.t.get(id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("tracker: no row for entity %s", id)
	}
	rec.Status = StatusConflict
	rec.ConflictReason = reason
	rec.RetryCount++
	rec.LastModified = time.Now().UTC()
	payload, err := json.Marshal(*rec)
	if err != nil {
		return err
	}
	b.wb.Put(rowKey(id), payload)
	return nil
}

// Delete stages a row removal for id, used for an acknowledged delete
// that should leave no tracker row at all rather than a synced one.
func (b *Batch) Delete(id string) error {
	b.wb.Delete(rowKey(id))
	return nil
}

// Commit applies every staged transition atomically.
func (b *Batch) Commit() error {
	b.t.mu.Lock()
	defer b.t.mu.Unlock()
	return b.t.db.Write(b.wb, nil)
}
