package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/adrianco/the-goodies/pkg/model"
	"github.com/adrianco/the-goodies/pkg/vectorclock"
)

// MemoryStore is an in-process Store implementation guarded by a single
// mutex, used by package tests that exercise sync and conflict logic
// without a running Postgres instance. It keeps the same leaf-finding
// and device-counter semantics as PostgresStore.
type MemoryStore struct {
	mu sync.Mutex

	versions  map[string]map[string]model.EntityVersion // id -> version -> row
	origin    map[string]map[string]string               // id -> version -> origin device
	deviceSeq map[string]map[string]int64                // id -> version -> device_seq
	counters  map[string]int64                            // device -> counter
	rels      map[string]model.Relationship

	maxClockSkew time.Duration
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		versions:     make(map[string]map[string]model.EntityVersion),
		origin:       make(map[string]map[string]string),
		deviceSeq:    make(map[string]map[string]int64),
		counters:     make(map[string]int64),
		rels:         make(map[string]model.Relationship),
		maxClockSkew: 5 * time.Minute,
	}
}

// SetMaxClockSkew overrides the default future-timestamp tolerance.
func (s *MemoryStore) SetMaxClockSkew(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxClockSkew = d
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) PutVersion(ctx context.Context, ev model.EntityVersion, originDevice string) error {
	if ts, err := model.ParseVersionTimestamp(ev.Version); err == nil {
		s.mu.Lock()
		skew := s.maxClockSkew
		s.mu.Unlock()
		if ts.Sub(time.Now().UTC()) > skew {
			return ErrFutureTimestamp
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byVersion := s.versions[ev.ID]
	for _, parent := range ev.ParentVersions {
		if byVersion == nil {
			return ErrParentMissing
		}
		if _, ok := byVersion[parent]; !ok {
			return ErrParentMissing
		}
	}

	if byVersion != nil {
		if existing, ok := byVersion[ev.Version]; ok {
			if entityVersionsEqual(existing, ev) {
				return nil
			}
			return ErrDuplicateVersion
		}
	}

	s.counters[originDevice]++
	seq := s.counters[originDevice]

	if byVersion == nil {
		byVersion = make(map[string]model.EntityVersion)
		s.versions[ev.ID] = byVersion
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	byVersion[ev.Version] = ev

	if s.origin[ev.ID] == nil {
		s.origin[ev.ID] = make(map[string]string)
	}
	s.origin[ev.ID][ev.Version] = originDevice

	if s.deviceSeq[ev.ID] == nil {
		s.deviceSeq[ev.ID] = make(map[string]int64)
	}
	s.deviceSeq[ev.ID][ev.Version] = seq

	return nil
}

func (s *MemoryStore) GetVersion(ctx context.Context, id, version string) (*model.EntityVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byVersion, ok := s.versions[id]
	if !ok {
		return nil, ErrNotFound
	}
	ev, ok := byVersion[version]
	if !ok {
		return nil, ErrNotFound
	}
	out := ev
	return &out, nil
}

// leavesForLocked must be called with s.mu held.
func (s *MemoryStore) leavesForLocked(id string) []model.EntityVersion {
	byVersion := s.versions[id]
	if byVersion == nil {
		return nil
	}
	referenced := make(map[string]bool)
	for _, ev := range byVersion {
		for _, p := range ev.ParentVersions {
			referenced[p] = true
		}
	}
	var leaves []model.EntityVersion
	for version, ev := range byVersion {
		if !referenced[version] {
			leaves = append(leaves, ev)
		}
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].Version < leaves[j].Version })
	return leaves
}

func (s *MemoryStore) GetCurrent(ctx context.Context, id string) (*model.EntityVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	leaves := s.leavesForLocked(id)
	if len(leaves) != 1 {
		return nil, ErrNotFound
	}
	return &leaves[0], nil
}

func (s *MemoryStore) EntityStatus(ctx context.Context, id string) (EntityStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	leaves := s.leavesForLocked(id)
	status := EntityStatus{ID: id, Leaves: leaves}
	if len(leaves) == 1 {
		status.Current = &leaves[0]
	} else if len(leaves) > 1 {
		status.Conflict = true
	}
	return status, nil
}

func (s *MemoryStore) GetChildren(ctx context.Context, id, version string) ([]model.EntityVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byVersion := s.versions[id]
	var out []model.EntityVersion
	for _, ev := range byVersion {
		for _, p := range ev.ParentVersions {
			if p == version {
				out = append(out, ev)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *MemoryStore) AllCurrent(ctx context.Context) ([]model.EntityVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id := range s.versions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []model.EntityVersion
	for _, id := range ids {
		leaves := s.leavesForLocked(id)
		if len(leaves) == 1 {
			out = append(out, leaves[0])
		}
	}
	return out, nil
}

func (s *MemoryStore) ConflictedEntities(ctx context.Context) ([]EntityStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id := range s.versions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []EntityStatus
	for _, id := range ids {
		leaves := s.leavesForLocked(id)
		if len(leaves) > 1 {
			out = append(out, EntityStatus{ID: id, Leaves: leaves, Conflict: true})
		}
	}
	return out, nil
}

func (s *MemoryStore) Since(ctx context.Context, deviceClock vectorclock.Clock) ([]model.EntityVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type seqEntry struct {
		ev  model.EntityVersion
		seq int64
	}
	var out []seqEntry
	for id, byVersion := range s.versions {
		for version, ev := range byVersion {
			dev := s.origin[id][version]
			seq := s.deviceSeq[id][version]
			if seq > deviceClock[dev] {
				out = append(out, seqEntry{ev: ev, seq: seq})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })

	result := make([]model.EntityVersion, len(out))
	for i, e := range out {
		result[i] = e.ev
	}
	return result, nil
}

func (s *MemoryStore) ServerClock(ctx context.Context) (vectorclock.Clock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clock := vectorclock.New()
	for device, counter := range s.counters {
		clock[device] = counter
	}
	return clock, nil
}

func (s *MemoryStore) PutRelationship(ctx context.Context, rel model.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rels[rel.ID] = rel
	return nil
}

func (s *MemoryStore) RelationshipsForVersion(ctx context.Context, id, version string) ([]model.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Relationship
	for _, rel := range s.rels {
		if (rel.FromEntityID == id && rel.FromEntityVersion == version) ||
			(rel.ToEntityID == id && rel.ToEntityVersion == version) {
			out = append(out, rel)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
