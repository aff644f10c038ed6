// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for logger setup

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_JSONRecordsWithServiceField(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Config{Service: "completion", Output: &buf})
	defer logger.Close()

	slog.Info("test message", "port", 12220)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "test message", record["msg"])
	assert.Equal(t, "completion", record["service"])
	assert.Equal(t, float64(12220), record["port"])
}

func TestSetup_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Config{Service: "completion", Level: "warn", Output: &buf})
	defer logger.Close()

	slog.Info("suppressed")
	slog.Warn("emitted")

	assert.NotContains(t, buf.String(), "suppressed")
	assert.Contains(t, buf.String(), "emitted")
}

func TestSetup_FileLogging(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var buf bytes.Buffer
	logger := Setup(Config{Service: "completion", LogDir: dir, Output: &buf})

	slog.Info("to both destinations")
	require.NoError(t, logger.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both destinations")
	assert.Contains(t, buf.String(), "to both destinations")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
	assert.Equal(t, slog.LevelInfo, parseLevel("unknown"))
	assert.Equal(t, slog.LevelError, parseLevel("ERROR"))
}
