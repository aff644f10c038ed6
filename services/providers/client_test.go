// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for provider configuration and construction

package providers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// LoadConfig Tests
// =============================================================================

func TestLoadConfig_Valid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	data := []byte(`
providers:
  - name: incoder
    type: http
    base_url: http://incoder:8000
    model: incoder-1b
    timeout: 45s
  - name: echo
    type: static
    completion: "pass"
`)
	require.NoError(t, os.WriteFile(path, data, 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Providers, 2)

	assert.Equal(t, "incoder", cfg.Providers[0].Name)
	assert.Equal(t, "http", cfg.Providers[0].Type)
	assert.Equal(t, 45*time.Second, cfg.Providers[0].Timeout)
	assert.Equal(t, "pass", cfg.Providers[1].Completion)
}

func TestLoadConfig_EmptyProviderList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("providers: []"), 0600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no providers")
}

func TestLoadConfig_BadTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	data := []byte("providers:\n  - name: a\n    type: static\n    timeout: soon\n")
	require.NoError(t, os.WriteFile(path, data, 0600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

// =============================================================================
// Build Tests
// =============================================================================

func TestBuild_DuplicateNameRejected(t *testing.T) {
	cfg := Config{Providers: []ProviderConfig{
		{Name: "model-a", Type: "static"},
		{Name: "model-a", Type: "static"},
	}}

	_, err := Build(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate name")
}

func TestBuild_UnknownTypeRejected(t *testing.T) {
	cfg := Config{Providers: []ProviderConfig{{Name: "model-a", Type: "grpc"}}}

	_, err := Build(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestBuild_StaticProvider(t *testing.T) {
	cfg := Config{Providers: []ProviderConfig{
		{Name: "echo", Type: "static", Completion: "return nil"},
	}}

	provs, err := Build(cfg)
	require.NoError(t, err)
	require.Len(t, provs, 1)

	out, err := provs[0].Generate(context.Background(), "func f() error {", "}")
	require.NoError(t, err)
	assert.Equal(t, "return nil", out)
	assert.Equal(t, "echo", provs[0].Name())
}
