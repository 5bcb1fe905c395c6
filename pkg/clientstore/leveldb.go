// Package clientstore implements the client's embedded replica of
// pkg/store.Store backed by goleveldb, so a client binary needs no
// external database.
package clientstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/adrianco/the-goodies/pkg/model"
	"github.com/adrianco/the-goodies/pkg/store"
	"github.com/adrianco/the-goodies/pkg/vectorclock"
)

const (
	versionPrefix = "ev/"
	counterPrefix = "dc/"
	relPrefix     = "rel/"
)

// versionRecord is the on-disk envelope around an EntityVersion, adding
// the origin device and per-device sequence number that Since() needs.
type versionRecord struct {
	Entity       model.EntityVersion `json:"entity"`
	OriginDevice string              `json:"origin_device"`
	DeviceSeq    int64               `json:"device_seq"`
}

func versionKey(id, version string) []byte {
	return []byte(fmt.Sprintf("%s%s/%s", versionPrefix, id, version))
}

func versionIDPrefix(id string) []byte {
	return []byte(fmt.Sprintf("%s%s/", versionPrefix, id))
}

func counterKey(device string) []byte {
	return []byte(counterPrefix + device)
}

func relKey(id string) []byte {
	return []byte(relPrefix + id)
}

// LevelDBStore is a store.Store backed by a single goleveldb database
// file. Composite operations (put-then-recompute-leaves) are
// serialized by mu, mirroring the advisory lock used by the Postgres
// store for the same purpose.
type LevelDBStore struct {
	mu           sync.Mutex
	db           *leveldb.DB
	maxClockSkew time.Duration
}

// Open opens (creating if absent) a LevelDB database at path.
func Open(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("clientstore: opening %s: %w", path, err)
	}
	return &LevelDBStore{db: db, maxClockSkew: 5 * time.Minute}, nil
}

// SetMaxClockSkew overrides the default future-timestamp tolerance.
func (s *LevelDBStore) SetMaxClockSkew(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxClockSkew = d
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

func (s *LevelDBStore) allVersionsLocked(id string) ([]versionRecord, error) {
	iter := s.db.NewIterator(util.BytesPrefix(versionIDPrefix(id)), nil)
	defer iter.Release()

	var out []versionRecord
	for iter.Next() {
		var rec versionRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("clientstore: decoding version record: %w", err)
		}
		out = append(out, rec)
	}
	return out, iter.Error()
}

func (s *LevelDBStore) leavesLocked(id string) ([]model.EntityVersion, error) {
	records, err := s.allVersionsLocked(id)
	if err != nil {
		return nil, err
	}
	referenced := make(map[string]bool)
	for _, rec := range records {
		for _, p := range rec.Entity.ParentVersions {
			referenced[p] = true
		}
	}
	var leaves []model.EntityVersion
	for _, rec := range records {
		if !referenced[rec.Entity.Version] {
			leaves = append(leaves, rec.Entity)
		}
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].Version < leaves[j].Version })
	return leaves, nil
}

func (s *LevelDBStore) PutVersion(ctx context.Context, ev model.EntityVersion, originDevice string) error {
	if ts, err := model.ParseVersionTimestamp(ev.Version); err == nil {
		s.mu.Lock()
		skew := s.maxClockSkew
		s.mu.Unlock()
		if ts.Sub(time.Now().UTC()) > skew {
			return store.ErrFutureTimestamp
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, parent := range ev.ParentVersions {
		if _, err := s.db.Get(versionKey(ev.ID, parent), nil); err != nil {
			if err == leveldb.ErrNotFound {
				return store.ErrParentMissing
			}
			return fmt.Errorf("clientstore: checking parent %s: %w", parent, err)
		}
	}

	if raw, err := s.db.Get(versionKey(ev.ID, ev.Version), nil); err == nil {
		var existing versionRecord
		if err := json.Unmarshal(raw, &existing); err != nil {
			return fmt.Errorf("clientstore: decoding existing version: %w", err)
		}
		if entityVersionsEqual(existing.Entity, ev) {
			return nil
		}
		return store.ErrDuplicateVersion
	} else if err != leveldb.ErrNotFound {
		return fmt.Errorf("clientstore: checking duplicate: %w", err)
	}

	seq, err := s.advanceCounterLocked(originDevice)
	if err != nil {
		return err
	}

	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	rec := versionRecord{Entity: ev, OriginDevice: originDevice, DeviceSeq: seq}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("clientstore: encoding version: %w", err)
	}
	if err := s.db.Put(versionKey(ev.ID, ev.Version), payload, nil); err != nil {
		return fmt.Errorf("clientstore: writing version: %w", err)
	}
	return nil
}

func entityVersionsEqual(a, b model.EntityVersion) bool {
	aJSON, _ := json.Marshal(a.Content)
	bJSON, _ := json.Marshal(b.Content)
	return a.EntityType == b.EntityType &&
		a.Name == b.Name &&
		a.SourceType == b.SourceType &&
		a.UserID == b.UserID &&
		bytes.Equal(aJSON, bJSON)
}

func (s *LevelDBStore) advanceCounterLocked(device string) (int64, error) {
	key := counterKey(device)
	var current int64
	if raw, err := s.db.Get(key, nil); err == nil {
		current, err = strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("clientstore: decoding counter for %s: %w", device, err)
		}
	} else if err != leveldb.ErrNotFound {
		return 0, fmt.Errorf("clientstore: reading counter for %s: %w", device, err)
	}
	current++
	if err := s.db.Put(key, []byte(strconv.FormatInt(current, 10)), nil); err != nil {
		return 0, fmt.Errorf("clientstore: writing counter for %s: %w", device, err)
	}
	return current, nil
}

func (s *LevelDBStore) GetVersion(ctx context.Context, id, version string) (*model.EntityVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := s.db.Get(versionKey(id, version), nil)
	if err == leveldb.ErrNotFound {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("clientstore: reading version: %w", err)
	}
	var rec versionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("clientstore: decoding version: %w", err)
	}
	return &rec.Entity, nil
}

func (s *LevelDBStore) GetCurrent(ctx context.Context, id string) (*model.EntityVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	leaves, err := s.leavesLocked(id)
	if err != nil {
		return nil, err
	}
	if len(leaves) != 1 {
		return nil, store.ErrNotFound
	}
	return &leaves[0], nil
}

func (s *LevelDBStore) EntityStatus(ctx context.Context, id string) (store.EntityStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	leaves, err := s.leavesLocked(id)
	if err != nil {
		return store.EntityStatus{}, err
	}
	status := store.EntityStatus{ID: id, Leaves: leaves}
	if len(leaves) == 1 {
		status.Current = &leaves[0]
	} else if len(leaves) > 1 {
		status.Conflict = true
	}
	return status, nil
}

func (s *LevelDBStore) GetChildren(ctx context.Context, id, version string) ([]model.EntityVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.allVersionsLocked(id)
	if err != nil {
		return nil, err
	}
	var out []model.EntityVersion
	for _, rec := range records {
		for _, p := range rec.Entity.ParentVersions {
			if p == version {
				out = append(out, rec.Entity)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *LevelDBStore) AllCurrent(ctx context.Context) ([]model.EntityVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[string]struct{})
	iter := s.db.NewIterator(util.BytesPrefix([]byte(versionPrefix)), nil)
	for iter.Next() {
		var rec versionRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			iter.Release()
			return nil, fmt.Errorf("clientstore: decoding version record: %w", err)
		}
		ids[rec.Entity.ID] = struct{}{}
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, err
	}

	sortedIDs := make([]string, 0, len(ids))
	for id := range ids {
		sortedIDs = append(sortedIDs, id)
	}
	sort.Strings(sortedIDs)

	var out []model.EntityVersion
	for _, id := range sortedIDs {
		leaves, err := s.leavesLocked(id)
		if err != nil {
			return nil, err
		}
		if len(leaves) == 1 {
			out = append(out, leaves[0])
		}
	}
	return out, nil
}

// ConflictedEntities returns the status of every locally-stored entity
// still sitting with more than one leaf version.
func (s *LevelDBStore) ConflictedEntities(ctx context.Context) ([]store.EntityStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[string]struct{})
	iter := s.db.NewIterator(util.BytesPrefix([]byte(versionPrefix)), nil)
	for iter.Next() {
		var rec versionRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			iter.Release()
			return nil, fmt.Errorf("clientstore: decoding version record: %w", err)
		}
		ids[rec.Entity.ID] = struct{}{}
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, err
	}

	sortedIDs := make([]string, 0, len(ids))
	for id := range ids {
		sortedIDs = append(sortedIDs, id)
	}
	sort.Strings(sortedIDs)

	var out []store.EntityStatus
	for _, id := range sortedIDs {
		leaves, err := s.leavesLocked(id)
		if err != nil {
			return nil, err
		}
		if len(leaves) > 1 {
			out = append(out, store.EntityStatus{ID: id, Leaves: leaves, Conflict: true})
		}
	}
	return out, nil
}

func (s *LevelDBStore) Since(ctx context.Context, deviceClock vectorclock.Clock) ([]model.EntityVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type seqEntry struct {
		ev  model.EntityVersion
		seq int64
	}
	var entries []seqEntry
	iter := s.db.NewIterator(util.BytesPrefix([]byte(versionPrefix)), nil)
	for iter.Next() {
		var rec versionRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			iter.Release()
			return nil, fmt.Errorf("clientstore: decoding version record: %w", err)
		}
		if rec.DeviceSeq > deviceClock[rec.OriginDevice] {
			entries = append(entries, seqEntry{ev: rec.Entity, seq: rec.DeviceSeq})
		}
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]model.EntityVersion, len(entries))
	for i, e := range entries {
		out[i] = e.ev
	}
	return out, nil
}

func (s *LevelDBStore) ServerClock(ctx context.Context) (vectorclock.Clock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clock := vectorclock.New()
	iter := s.db.NewIterator(util.BytesPrefix([]byte(counterPrefix)), nil)
	defer iter.Release()
	for iter.Next() {
		device := string(iter.Key()[len(counterPrefix):])
		counter, err := strconv.ParseInt(string(iter.Value()), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("clientstore: decoding counter for %s: %w", device, err)
		}
		clock[device] = counter
	}
	return clock, iter.Error()
}

func (s *LevelDBStore) PutRelationship(ctx context.Context, rel model.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, err := json.Marshal(rel)
	if err != nil {
		return fmt.Errorf("clientstore: encoding relationship: %w", err)
	}
	if err := s.db.Put(relKey(rel.ID), payload, nil); err != nil {
		return fmt.Errorf("clientstore: writing relationship: %w", err)
	}
	return nil
}

func (s *LevelDBStore) RelationshipsForVersion(ctx context.Context, id, version string) ([]model.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iter := s.db.NewIterator(util.BytesPrefix([]byte(relPrefix)), nil)
	defer iter.Release()

	var out []model.Relationship
	for iter.Next() {
		var rel model.Relationship
		if err := json.Unmarshal(iter.Value(), &rel); err != nil {
			return nil, fmt.Errorf("clientstore: decoding relationship: %w", err)
		}
		if (rel.FromEntityID == id && rel.FromEntityVersion == version) ||
			(rel.ToEntityID == id && rel.ToEntityVersion == version) {
			out = append(out, rel)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, iter.Error()
}

var _ store.Store = (*LevelDBStore)(nil)
