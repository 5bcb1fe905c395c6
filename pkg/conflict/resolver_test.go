package conflict

import (
	"testing"
	"time"

	"github.com/adrianco/the-goodies/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaf(t time.Time, user string, content map[string]any) model.EntityVersion {
	return model.EntityVersion{
		ID:         "room-1",
		Version:    model.FormatVersion(t, user),
		EntityType: model.EntityTypeRoom,
		Name:       "Kitchen",
		Content:    content,
		SourceType: model.SourceManual,
		UserID:     user,
	}
}

func TestResolveRequiresAtLeastTwoLeaves(t *testing.T) {
	r := New(DefaultConfig())
	_, err := r.Resolve([]model.EntityVersion{leaf(time.Now(), "alice", nil)}, "alice")
	assert.Error(t, err)
}

func TestLastWriteWinsPicksLaterVersion(t *testing.T) {
	r := New(Config{DefaultStrategy: LastWriteWins})
	base := time.Now().UTC()
	a := leaf(base, "alice", map[string]any{"color": "blue"})
	b := leaf(base.Add(time.Second), "bob", map[string]any{"color": "red"})

	outcome, err := r.Resolve([]model.EntityVersion{a, b}, "")
	require.NoError(t, err)
	require.NotNil(t, outcome.Merge)
	assert.Equal(t, b.Version, outcome.Report.Resolution.WinnerVersion)
	assert.Equal(t, "red", outcome.Merge.Content["color"])
	assert.ElementsMatch(t, []string{a.Version, b.Version}, outcome.Merge.ParentVersions)
	assert.Equal(t, model.SourceGenerated, outcome.Merge.SourceType)
}

func TestManualStrategyProducesNoMerge(t *testing.T) {
	r := New(Config{DefaultStrategy: Manual})
	base := time.Now().UTC()
	a := leaf(base, "alice", nil)
	b := leaf(base.Add(time.Second), "bob", nil)

	outcome, err := r.Resolve([]model.EntityVersion{a, b}, "")
	require.NoError(t, err)
	assert.Nil(t, outcome.Merge)
	assert.Equal(t, string(Manual), outcome.Report.Resolution.Strategy)
}

func TestFieldMergeKeepsLatestValuePerKey(t *testing.T) {
	r := New(Config{DefaultStrategy: FieldMerge})
	base := time.Now().UTC()
	a := leaf(base, "alice", map[string]any{"color": "blue", "brightness": 5})
	b := leaf(base.Add(time.Second), "bob", map[string]any{"color": "red"})

	outcome, err := r.Resolve([]model.EntityVersion{a, b}, "")
	require.NoError(t, err)
	require.NotNil(t, outcome.Merge)
	assert.Equal(t, "red", outcome.Merge.Content["color"])
	assert.Equal(t, 5, outcome.Merge.Content["brightness"])
}

func TestResolveIsOrderIndependent(t *testing.T) {
	r := New(Config{DefaultStrategy: LastWriteWins})
	base := time.Now().UTC()
	a := leaf(base, "alice", map[string]any{"color": "blue"})
	b := leaf(base.Add(time.Second), "bob", map[string]any{"color": "red"})

	forward, err := r.Resolve([]model.EntityVersion{a, b}, "")
	require.NoError(t, err)
	backward, err := r.Resolve([]model.EntityVersion{b, a}, "")
	require.NoError(t, err)

	assert.Equal(t, forward.Report.Resolution.WinnerVersion, backward.Report.Resolution.WinnerVersion)
}
