package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAndParseVersion(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	v := FormatVersion(ts, "alice")
	assert.Equal(t, "2025-01-01T00:00:00.000000000Z-alice", v)

	parsedTS, err := ParseVersionTimestamp(v)
	require.NoError(t, err)
	assert.True(t, parsedTS.Equal(ts))

	userID, err := ParseVersionUserID(v)
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)
}

func TestParseVersionTimestampSecondPrecision(t *testing.T) {
	ts, err := ParseVersionTimestamp("2025-01-01T00:00:01Z-bob")
	require.NoError(t, err)
	assert.Equal(t, 2025, ts.Year())

	userID, err := ParseVersionUserID("2025-01-01T00:00:01Z-bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", userID)
}

func TestParseVersionMalformed(t *testing.T) {
	_, err := ParseVersionTimestamp("not-a-version")
	assert.Error(t, err)
}

func TestEntityVersionHelpers(t *testing.T) {
	creation := &EntityVersion{ParentVersions: nil}
	assert.True(t, creation.IsCreation())
	assert.False(t, creation.IsMerge())

	update := &EntityVersion{ParentVersions: []string{"v0"}}
	assert.False(t, update.IsCreation())
	assert.False(t, update.IsMerge())

	merge := &EntityVersion{ParentVersions: []string{"va", "vb"}}
	assert.True(t, merge.IsMerge())

	tombstone := &EntityVersion{Content: map[string]any{"deleted": true}}
	assert.True(t, tombstone.Deleted())

	alive := &EntityVersion{Content: map[string]any{"deleted": false}}
	assert.False(t, alive.Deleted())

	assert.True(t, EntityTypeDevice.Valid())
	assert.False(t, EntityType("bogus").Valid())
}
