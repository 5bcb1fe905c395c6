// Package model defines the Inbetweenies data model: versioned entities,
// relationships, and the wire protocol message shapes that carry them
// between a client replica and the server.
package model

import (
	"fmt"
	"strings"
	"time"
)

// EntityType is a closed-set tag identifying the kind of thing an entity
// version describes.
type EntityType string

const (
	EntityTypeHome           EntityType = "home"
	EntityTypeRoom           EntityType = "room"
	EntityTypeDevice         EntityType = "device"
	EntityTypeUser           EntityType = "user"
	EntityTypeCharacteristic EntityType = "characteristic"
	EntityTypeService        EntityType = "service"
	EntityTypeProcedure      EntityType = "procedure"
	EntityTypeManual         EntityType = "manual"
	EntityTypeNote           EntityType = "note"
	EntityTypeSchedule       EntityType = "schedule"
	EntityTypeAutomation     EntityType = "automation"
	EntityTypeZone           EntityType = "zone"
)

var validEntityTypes = map[EntityType]bool{
	EntityTypeHome: true, EntityTypeRoom: true, EntityTypeDevice: true,
	EntityTypeUser: true, EntityTypeCharacteristic: true, EntityTypeService: true,
	EntityTypeProcedure: true, EntityTypeManual: true, EntityTypeNote: true,
	EntityTypeSchedule: true, EntityTypeAutomation: true, EntityTypeZone: true,
}

// Valid reports whether et is one of the closed set of entity types.
func (et EntityType) Valid() bool {
	return validEntityTypes[et]
}

// SourceType records the provenance of an entity version.
type SourceType string

const (
	SourceManual   SourceType = "manual"
	SourceImported SourceType = "imported"
	SourceGenerated SourceType = "generated"
	SourceSynced   SourceType = "synced"
)

// RelationshipType is a tag describing how two entity versions relate.
type RelationshipType string

const (
	RelLocatedIn   RelationshipType = "located_in"
	RelControls    RelationshipType = "controls"
	RelPartOf      RelationshipType = "part_of"
	RelConnectedTo RelationshipType = "connected_to"
	RelMonitors    RelationshipType = "monitors"
	RelDependsOn   RelationshipType = "depends_on"
	RelDocumentedBy RelationshipType = "documented_by"
	RelAutomates   RelationshipType = "automates"
	RelManages     RelationshipType = "manages"
)

// EntityVersion is one immutable row describing an entity at a point in
// its history, keyed by (ID, Version). It is never mutated after
// creation; a later state of the same logical entity is a new
// EntityVersion whose ParentVersions names its predecessor(s).
type EntityVersion struct {
	ID             string         `json:"id" db:"id"`
	Version        string         `json:"version" db:"version"`
	EntityType     EntityType     `json:"entity_type" db:"entity_type"`
	Name           string         `json:"name" db:"name"`
	Content        map[string]any `json:"content" db:"content"`
	SourceType     SourceType     `json:"source_type" db:"source_type"`
	UserID         string         `json:"user_id" db:"user_id"`
	ParentVersions []string       `json:"parent_versions" db:"parent_versions"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// IsCreation reports whether this version has no parents — i.e. it is
// the first version of a new logical entity.
func (e *EntityVersion) IsCreation() bool {
	return len(e.ParentVersions) == 0
}

// IsMerge reports whether this version unifies two or more sibling
// leaves (parent_versions with cardinality >= 2).
func (e *EntityVersion) IsMerge() bool {
	return len(e.ParentVersions) >= 2
}

// Deleted reports whether this version is a tombstone, per the
// hard-deletion-as-tombstone design note: delete is modeled as a
// version whose content carries deleted=true, preserving lineage.
func (e *EntityVersion) Deleted() bool {
	if e.Content == nil {
		return false
	}
	d, _ := e.Content["deleted"].(bool)
	return d
}

// FormatVersion builds the canonical version string
// "<ISO-8601 UTC timestamp>Z-<user_id>".
func FormatVersion(t time.Time, userID string) string {
	return fmt.Sprintf("%sZ-%s", t.UTC().Format("2006-01-02T15:04:05.000000000"), userID)
}

// ParseVersionTimestamp extracts the timestamp component embedded in a
// version string. It is tolerant of the user id containing no further
// "Z-" delimiters beyond the first.
func ParseVersionTimestamp(version string) (time.Time, error) {
	idx := strings.Index(version, "Z-")
	if idx < 0 {
		return time.Time{}, fmt.Errorf("model: malformed version string %q", version)
	}
	ts := version[:idx]
	t, err := time.Parse("2006-01-02T15:04:05.000000000", ts)
	if err != nil {
		// Fall back to second precision ("2025-01-01T00:00:01Z-bob"); FormatVersion
		// itself always emits nanosecond precision.
		t, err = time.Parse("2006-01-02T15:04:05", ts)
		if err != nil {
			return time.Time{}, fmt.Errorf("model: parsing version timestamp %q: %w", version, err)
		}
	}
	return t.UTC(), nil
}

// ParseVersionUserID extracts the writer's user id embedded in a version
// string.
func ParseVersionUserID(version string) (string, error) {
	idx := strings.Index(version, "Z-")
	if idx < 0 || idx+2 >= len(version) {
		return "", fmt.Errorf("model: malformed version string %q", version)
	}
	return version[idx+2:], nil
}
