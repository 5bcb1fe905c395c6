package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/adrianco/the-goodies/internal/config"
)

func TestInitTagsComponent(t *testing.T) {
	logger := Init(config.LoggingConfig{Level: "debug", Format: "json"}, "test-component")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	_ = logger // zerolog doesn't expose attached fields for direct assertion
}

func TestInitFallsBackToInfoOnBadLevel(t *testing.T) {
	Init(config.LoggingConfig{Level: "not-a-level", Format: "console"}, "test-component")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
