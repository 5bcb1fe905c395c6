package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	_ "github.com/lib/pq"

	"github.com/adrianco/the-goodies/pkg/model"
	"github.com/adrianco/the-goodies/pkg/vectorclock"
)

// PostgresConfig holds connection parameters for the server-side store.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// MaxClockSkew bounds how far ahead of the server's wall clock an
	// incoming version's embedded timestamp may be before it is
	// rejected with ErrFutureTimestamp.
	MaxClockSkew time.Duration
}

// DefaultPostgresConfig returns sane defaults for local development.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:            "localhost",
		Port:            5432,
		Database:        "goodies",
		Username:        "goodies",
		Password:        "goodies",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		MaxClockSkew:    5 * time.Minute,
	}
}

// PostgresStore is the server-side Store implementation.
type PostgresStore struct {
	db     *sql.DB
	config *PostgresConfig
}

// NewPostgresStore opens a connection pool, verifies connectivity, and
// applies Schema.
func NewPostgresStore(ctx context.Context, config *PostgresConfig) (*PostgresStore, error) {
	if config == nil {
		config = DefaultPostgresConfig()
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.Username, config.Password, config.Database, config.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("store: pinging database: %w", err)
	}

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return nil, fmt.Errorf("store: applying schema: %w", err)
	}

	return &PostgresStore{db: db, config: config}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// lockEntity serializes concurrent writers to the same id within a
// transaction via a transaction-scoped advisory lock, so current-leaf
// recomputation always sees a consistent child set.
func (s *PostgresStore) lockEntity(ctx context.Context, tx *sql.Tx, id string) error {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(h.Sum64()))
	return err
}

func (s *PostgresStore) PutVersion(ctx context.Context, ev model.EntityVersion, originDevice string) error {
	if ts, err := model.ParseVersionTimestamp(ev.Version); err == nil {
		if ts.Sub(time.Now().UTC()) > s.config.MaxClockSkew {
			return ErrFutureTimestamp
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := s.lockEntity(ctx, tx, ev.ID); err != nil {
		tx.Rollback()
		return fmt.Errorf("store: locking entity %s: %w", ev.ID, err)
	}

	// Referential closure: every declared parent must already exist.
	for _, parent := range ev.ParentVersions {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM entity_versions WHERE id=$1 AND version=$2)`,
			ev.ID, parent).Scan(&exists)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("store: checking parent %s: %w", parent, err)
		}
		if !exists {
			tx.Rollback()
			return ErrParentMissing
		}
	}

	// Idempotent duplicate check.
	existing, err := s.getVersionTx(ctx, tx, ev.ID, ev.Version)
	if err != nil && err != ErrNotFound {
		tx.Rollback()
		return fmt.Errorf("store: checking duplicate: %w", err)
	}
	if existing != nil {
		if entityVersionsEqual(*existing, ev) {
			tx.Rollback()
			return nil
		}
		tx.Rollback()
		return ErrDuplicateVersion
	}

	var seq int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO device_counters (device_id, counter) VALUES ($1, 1)
		ON CONFLICT (device_id) DO UPDATE SET counter = device_counters.counter + 1
		RETURNING counter`, originDevice).Scan(&seq)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("store: advancing device counter: %w", err)
	}

	contentJSON, err := json.Marshal(ev.Content)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("store: marshaling content: %w", err)
	}
	parentsJSON, err := json.Marshal(ev.ParentVersions)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("store: marshaling parent versions: %w", err)
	}

	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entity_versions
			(id, version, entity_type, name, content_json, source_type, user_id,
			 parent_versions_json, origin_device, device_seq, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		ev.ID, ev.Version, string(ev.EntityType), ev.Name, contentJSON, string(ev.SourceType),
		ev.UserID, parentsJSON, originDevice, seq, createdAt)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("store: inserting version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: committing: %w", err)
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
		string(aJSON) == string(bJSON)
}

func (s *PostgresStore) getVersionTx(ctx context.Context, tx *sql.Tx, id, version string) (*model.EntityVersion, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, version, entity_type, name, content_json, source_type, user_id,
		       parent_versions_json, created_at
		FROM entity_versions WHERE id=$1 AND version=$2`, id, version)
	return scanEntityVersion(row)
}

func scanEntityVersion(row *sql.Row) (*model.EntityVersion, error) {
	var ev model.EntityVersion
	var contentJSON, parentsJSON []byte
	var entityType, sourceType string

	err := row.Scan(&ev.ID, &ev.Version, &entityType, &ev.Name, &contentJSON,
		&sourceType, &ev.UserID, &parentsJSON, &ev.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scanning version: %w", err)
	}

	ev.EntityType = model.EntityType(entityType)
	ev.SourceType = model.SourceType(sourceType)
	if len(contentJSON) > 0 {
		if err := json.Unmarshal(contentJSON, &ev.Content); err != nil {
			return nil, fmt.Errorf("store: unmarshaling content: %w", err)
		}
	}
	if len(parentsJSON) > 0 {
		if err := json.Unmarshal(parentsJSON, &ev.ParentVersions); err != nil {
			return nil, fmt.Errorf("store: unmarshaling parent versions: %w", err)
		}
	}
	return &ev, nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, id, version string) (*model.EntityVersion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, version, entity_type, name, content_json, source_type, user_id,
		       parent_versions_json, created_at
		FROM entity_versions WHERE id=$1 AND version=$2`, id, version)
	return scanEntityVersion(row)
}

// leavesFor returns every version of id that is not named as a parent
// by any other version of id — the current leaf set.
func (s *PostgresStore) leavesFor(ctx context.Context, id string) ([]model.EntityVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version, entity_type, name, content_json, source_type, user_id,
		       parent_versions_json, created_at
		FROM entity_versions WHERE id=$1`, id)
	if err != nil {
		return nil, fmt.Errorf("store: listing versions for %s: %w", id, err)
	}
	defer rows.Close()

	var all []model.EntityVersion
	referenced := make(map[string]bool)
	for rows.Next() {
		var ev model.EntityVersion
		var contentJSON, parentsJSON []byte
		var entityType, sourceType string
		if err := rows.Scan(&ev.ID, &ev.Version, &entityType, &ev.Name, &contentJSON,
			&sourceType, &ev.UserID, &parentsJSON, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scanning version row: %w", err)
		}
		ev.EntityType = model.EntityType(entityType)
		ev.SourceType = model.SourceType(sourceType)
		if len(contentJSON) > 0 {
			json.Unmarshal(contentJSON, &ev.Content)
		}
		if len(parentsJSON) > 0 {
			json.Unmarshal(parentsJSON, &ev.ParentVersions)
		}
		for _, p := range ev.ParentVersions {
			referenced[p] = true
		}
		all = append(all, ev)
	}

	var leaves []model.EntityVersion
	for _, ev := range all {
		if !referenced[ev.Version] {
			leaves = append(leaves, ev)
		}
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].Version < leaves[j].Version })
	return leaves, nil
}

func (s *PostgresStore) GetCurrent(ctx context.Context, id string) (*model.EntityVersion, error) {
	leaves, err := s.leavesFor(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(leaves) == 0 {
		return nil, ErrNotFound
	}
	if len(leaves) > 1 {
		return nil, ErrNotFound // entity is in conflict; no current version
	}
	return &leaves[0], nil
}

func (s *PostgresStore) EntityStatus(ctx context.Context, id string) (EntityStatus, error) {
	leaves, err := s.leavesFor(ctx, id)
	if err != nil {
		return EntityStatus{}, err
	}
	status := EntityStatus{ID: id, Leaves: leaves}
	if len(leaves) == 1 {
		status.Current = &leaves[0]
	} else if len(leaves) > 1 {
		status.Conflict = true
	}
	return status, nil
}

func (s *PostgresStore) GetChildren(ctx context.Context, id, version string) ([]model.EntityVersion, error) {
	marker, err := json.Marshal([]string{version})
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version, entity_type, name, content_json, source_type, user_id,
		       parent_versions_json, created_at
		FROM entity_versions WHERE id=$1 AND parent_versions_json @> $2::jsonb`, id, marker)
	if err != nil {
		return nil, fmt.Errorf("store: querying children: %w", err)
	}
	defer rows.Close()
	return scanEntityVersions(rows)
}

func scanEntityVersions(rows *sql.Rows) ([]model.EntityVersion, error) {
	var out []model.EntityVersion
	for rows.Next() {
		var ev model.EntityVersion
		var contentJSON, parentsJSON []byte
		var entityType, sourceType string
		if err := rows.Scan(&ev.ID, &ev.Version, &entityType, &ev.Name, &contentJSON,
			&sourceType, &ev.UserID, &parentsJSON, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scanning version row: %w", err)
		}
		ev.EntityType = model.EntityType(entityType)
		ev.SourceType = model.SourceType(sourceType)
		if len(contentJSON) > 0 {
			json.Unmarshal(contentJSON, &ev.Content)
		}
		if len(parentsJSON) > 0 {
			json.Unmarshal(parentsJSON, &ev.ParentVersions)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *PostgresStore) AllCurrent(ctx context.Context) ([]model.EntityVersion, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT id FROM entity_versions`)
	if err != nil {
		return nil, fmt.Errorf("store: listing ids: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	var out []model.EntityVersion
	for _, id := range ids {
		current, err := s.GetCurrent(ctx, id)
		if err == ErrNotFound {
			continue // unresolved conflict: no current version to emit
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *current)
	}
	return out, nil
}

// ConflictedEntities scans every known id and returns the ones whose
// leaf set has not collapsed to one, i.e. still awaiting resolution
// (only reachable under the manual strategy, since last_write_wins and
// field_merge both write a superseding merge version).
func (s *PostgresStore) ConflictedEntities(ctx context.Context) ([]EntityStatus, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT id FROM entity_versions`)
	if err != nil {
		return nil, fmt.Errorf("store: listing ids: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	var out []EntityStatus
	for _, id := range ids {
		status, err := s.EntityStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if status.Conflict {
			out = append(out, status)
		}
	}
	return out, nil
}

func (s *PostgresStore) Since(ctx context.Context, deviceClock vectorclock.Clock) ([]model.EntityVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version, entity_type, name, content_json, source_type, user_id,
		       parent_versions_json, created_at, origin_device, device_seq
		FROM entity_versions ORDER BY device_seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: querying since: %w", err)
	}
	defer rows.Close()

	var out []model.EntityVersion
	for rows.Next() {
		var ev model.EntityVersion
		var contentJSON, parentsJSON []byte
		var entityType, sourceType, originDevice string
		var deviceSeq int64
		if err := rows.Scan(&ev.ID, &ev.Version, &entityType, &ev.Name, &contentJSON,
			&sourceType, &ev.UserID, &parentsJSON, &ev.CreatedAt, &originDevice, &deviceSeq); err != nil {
			return nil, fmt.Errorf("store: scanning since row: %w", err)
		}
		if deviceSeq <= deviceClock[originDevice] {
			continue
		}
		ev.EntityType = model.EntityType(entityType)
		ev.SourceType = model.SourceType(sourceType)
		if len(contentJSON) > 0 {
			json.Unmarshal(contentJSON, &ev.Content)
		}
		if len(parentsJSON) > 0 {
			json.Unmarshal(parentsJSON, &ev.ParentVersions)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *PostgresStore) ServerClock(ctx context.Context) (vectorclock.Clock, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT device_id, counter FROM device_counters`)
	if err != nil {
		return nil, fmt.Errorf("store: querying device counters: %w", err)
	}
	defer rows.Close()

	clock := vectorclock.New()
	for rows.Next() {
		var device string
		var counter int64
		if err := rows.Scan(&device, &counter); err != nil {
			return nil, err
		}
		clock[device] = counter
	}
	return clock, nil
}

func (s *PostgresStore) PutRelationship(ctx context.Context, rel model.Relationship) error {
	propsJSON, err := json.Marshal(rel.Properties)
	if err != nil {
		return fmt.Errorf("store: marshaling relationship properties: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO relationships (id, from_id, from_version, to_id, to_version, type, properties_json)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			from_id=$2, from_version=$3, to_id=$4, to_version=$5, type=$6, properties_json=$7`,
		rel.ID, rel.FromEntityID, rel.FromEntityVersion, rel.ToEntityID, rel.ToEntityVersion,
		string(rel.RelationshipType), propsJSON)
	if err != nil {
		return fmt.Errorf("store: upserting relationship: %w", err)
	}
	return nil
}

func (s *PostgresStore) RelationshipsForVersion(ctx context.Context, id, version string) ([]model.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_id, from_version, to_id, to_version, type, properties_json
		FROM relationships WHERE (from_id=$1 AND from_version=$2) OR (to_id=$1 AND to_version=$2)`,
		id, version)
	if err != nil {
		return nil, fmt.Errorf("store: querying relationships: %w", err)
	}
	defer rows.Close()

	var out []model.Relationship
	for rows.Next() {
		var rel model.Relationship
		var relType string
		var propsJSON []byte
		if err := rows.Scan(&rel.ID, &rel.FromEntityID, &rel.FromEntityVersion,
			&rel.ToEntityID, &rel.ToEntityVersion, &relType, &propsJSON); err != nil {
			return nil, fmt.Errorf("store: scanning relationship: %w", err)
		}
		rel.RelationshipType = model.RelationshipType(relType)
		if len(propsJSON) > 0 {
			json.Unmarshal(propsJSON, &rel.Properties)
		}
		out = append(out, rel)
	}
	return out, nil
}
