// Copyright 2025 Stache Users
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	home := isolateHome(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".stache", "cache"), cfg.CachePath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.History)
	assert.Equal(t, "8080", cfg.DaemonPort)
}

func TestLoadFromFile(t *testing.T) {
	home := isolateHome(t)
	dir := filepath.Join(home, ".stache")
	require.NoError(t, os.MkdirAll(dir, 0755))
	content := `{"template_root":"/srv/templates","log_level":"debug","cache_max_bytes":1024}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/templates", cfg.TemplateRoot)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, int64(1024), cfg.CacheMaxBytes)
}

func TestLoadInvalidFile(t *testing.T) {
	home := isolateHome(t)
	dir := filepath.Join(home, ".stache")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{nope"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	isolateHome(t)
	t.Setenv("STACHE_TEMPLATE_ROOT", "/env/root")
	t.Setenv("STACHE_LOG_LEVEL", "error")
	t.Setenv("STACHE_CACHE_MAX_BYTES", "2048")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/env/root", cfg.TemplateRoot)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, int64(2048), cfg.CacheMaxBytes)
}

func TestSaveRoundTrip(t *testing.T) {
	isolateHome(t)

	cfg := DefaultConfig()
	cfg.TemplateRoot = "/srv/t"
	require.NoError(t, Save(cfg))

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/t", loaded.TemplateRoot)
}
