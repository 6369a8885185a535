package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/homeproxy/internal/config"
)

func TestNewLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.Config{LogLevel: "info", DNSProvider: "cloudflare"})

	logger.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "homeproxy", entry["service"])
	assert.Equal(t, "cloudflare", entry["dns_provider"])
	assert.NotEmpty(t, entry["run_id"])
	assert.Equal(t, "hello", entry["message"])
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.Config{LogLevel: "warn"})

	logger.Info().Msg("dropped")
	assert.Empty(t, buf.String())

	logger.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestNewLogger_DebugOverridesLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.Config{LogLevel: "error", Debug: true})

	logger.Debug().Msg("verbose")
	assert.Contains(t, buf.String(), "verbose")
}

func TestNewLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.Config{LogLevel: "chatty"})

	logger.Debug().Msg("dropped")
	assert.Empty(t, buf.String())
	logger.Info().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}
