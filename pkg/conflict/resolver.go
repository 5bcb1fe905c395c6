// Package conflict implements the concurrent-write detector and the
// configurable resolution strategies applied when an entity ends up
// with more than one current leaf version.
package conflict

import (
	"fmt"
	"sort"
	"time"

	"github.com/adrianco/the-goodies/pkg/model"
)

// Strategy names one of the resolution policies below. It is a
// per-deployment configuration choice, not a per-conflict one.
type Strategy string

const (
	// LastWriteWins compares (timestamp, user_id) lexicographically
	// across the version strings and keeps the larger, writing a
	// synthetic merge version whose content is copied from the winner.
	LastWriteWins Strategy = "last_write_wins"
	// Manual leaves both leaves in place and reports the conflict
	// without picking a winner; a client is expected to write an
	// explicit merge version later.
	Manual Strategy = "manual"
	// FieldMerge resolves per-key, keeping each content field's value
	// from whichever leaf last wrote that key.
	FieldMerge Strategy = "field_merge"
)

// Config selects the default resolution strategy for a deployment.
type Config struct {
	DefaultStrategy Strategy
}

// DefaultConfig matches the production default.
func DefaultConfig() Config {
	return Config{DefaultStrategy: LastWriteWins}
}

// Resolver turns a set of sibling leaf versions into either a merge
// version to persist or a manual-review report.
type Resolver struct {
	config Config
}

// New returns a Resolver configured with strategy. An empty Strategy
// falls back to LastWriteWins.
func New(config Config) *Resolver {
	if config.DefaultStrategy == "" {
		config.DefaultStrategy = LastWriteWins
	}
	return &Resolver{config: config}
}

// Outcome is the result of resolving one entity's conflicting leaves.
type Outcome struct {
	// Merge is the synthetic version to persist via Store.PutVersion,
	// nil when the strategy is Manual.
	Merge *model.EntityVersion
	Report model.ConflictReport
}

// Resolve classifies and resolves a concurrent conflict among leaves,
// the current set of un-superseded versions sharing an entity id.
// Resolve assumes len(leaves) >= 2; a single leaf is not a conflict.
func (r *Resolver) Resolve(leaves []model.EntityVersion, mergeUserID string) (Outcome, error) {
	if len(leaves) < 2 {
		return Outcome{}, fmt.Errorf("conflict: Resolve requires at least two leaves, got %d", len(leaves))
	}

	ordered := make([]model.EntityVersion, len(leaves))
	copy(ordered, leaves)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Version < ordered[j].Version })

	report := model.ConflictReport{
		EntityID:      ordered[0].ID,
		Kind:          model.ConflictKindConcurrent,
		LocalVersion:  ordered[0].Version,
		RemoteVersion: ordered[len(ordered)-1].Version,
	}

	switch r.config.DefaultStrategy {
	case Manual:
		report.Resolution = &model.ConflictResolution{Strategy: string(Manual)}
		return Outcome{Merge: nil, Report: report}, nil

	case FieldMerge:
		merge := r.fieldMerge(ordered, mergeUserID)
		report.Resolution = &model.ConflictResolution{
			Strategy:     string(FieldMerge),
			MergeVersion: merge.Version,
		}
		return Outcome{Merge: &merge, Report: report}, nil

	case LastWriteWins:
		fallthrough
	default:
		winner := ordered[len(ordered)-1]
		merge := r.lastWriteWinsMerge(ordered, winner, mergeUserID)
		report.Resolution = &model.ConflictResolution{
			Strategy:      string(LastWriteWins),
			WinnerVersion: winner.Version,
			MergeVersion:  merge.Version,
		}
		return Outcome{Merge: &merge, Report: report}, nil
	}
}

func parentVersionsOf(leaves []model.EntityVersion) []string {
	parents := make([]string, len(leaves))
	for i, l := range leaves {
		parents[i] = l.Version
	}
	return parents
}

func (r *Resolver) lastWriteWinsMerge(ordered []model.EntityVersion, winner model.EntityVersion, mergeUserID string) model.EntityVersion {
	if mergeUserID == "" {
		mergeUserID = winner.UserID
	}
	return model.EntityVersion{
		ID:             winner.ID,
		Version:        model.FormatVersion(time.Now().UTC(), mergeUserID),
		EntityType:     winner.EntityType,
		Name:           winner.Name,
		Content:        winner.Content,
		SourceType:     model.SourceGenerated,
		UserID:         mergeUserID,
		ParentVersions: parentVersionsOf(ordered),
	}
}

// fieldMerge keeps, for each content key, the value from the leaf with
// the lexicographically largest version string that sets it — the
// version's embedded timestamp component orders correctly as a string
// because it is fixed-width ISO-8601.
func (r *Resolver) fieldMerge(ordered []model.EntityVersion, mergeUserID string) model.EntityVersion {
	merged := make(map[string]any)
	for _, leaf := range ordered { // ascending version order: later writers overwrite
		for k, v := range leaf.Content {
			merged[k] = v
		}
	}

	winner := ordered[len(ordered)-1]
	if mergeUserID == "" {
		mergeUserID = winner.UserID
	}
	return model.EntityVersion{
		ID:             winner.ID,
		Version:        model.FormatVersion(time.Now().UTC(), mergeUserID),
		EntityType:     winner.EntityType,
		Name:           winner.Name,
		Content:        merged,
		SourceType:     model.SourceGenerated,
		UserID:         mergeUserID,
		ParentVersions: parentVersionsOf(ordered),
	}
}
