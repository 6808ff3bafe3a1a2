// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader("", "v0-test").Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultDataDir, cfg.DataDir)
	assert.Equal(t, filepath.Join(DefaultDataDir, "archive.sqlite"), cfg.DBPath)
	assert.Equal(t, filepath.Join(DefaultDataDir, "profiles"), cfg.ProfileDir)
	assert.Equal(t, DefaultFetchTimeout, cfg.FetchTimeout)
	assert.Equal(t, DefaultSnapshotEvery, cfg.SnapshotEvery)
	assert.Equal(t, "memory", cfg.StateBackend)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, "v0-test", cfg.Version)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
dataDir: /tmp/pv
logLevel: debug
fetch:
  timeout: 10s
  retries: 1
  userAgent: test-agent/0.1
crawl:
  maxPages: 25
state:
  backend: badger
api:
  listen: ":9999"
archiveInterval: 12h
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := NewLoader(path, "v0-test").Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/pv", cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 1, cfg.FetchRetries)
	assert.Equal(t, "test-agent/0.1", cfg.UserAgent)
	assert.Equal(t, 25, cfg.MaxPages)
	assert.Equal(t, "badger", cfg.StateBackend)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 12*time.Hour, cfg.ArchiveInterval)
	// Derived from the file-provided data dir.
	assert.Equal(t, filepath.Join("/tmp/pv", "archive.sqlite"), cfg.DBPath)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: debug\n"), 0o600))

	t.Setenv("PV_LOG_LEVEL", "warn")
	t.Setenv("PV_MAX_PAGES", "7")
	t.Setenv("PV_FETCH_TIMEOUT", "3s")

	cfg, err := NewLoader(path, "v0-test").Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 7, cfg.MaxPages)
	assert.Equal(t, 3*time.Second, cfg.FetchTimeout)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bouquet: tv\n"), 0o600))

	_, err := NewLoader(path, "v0-test").Load()
	require.Error(t, err)
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := defaults("v0-test")
	cfg.StateBackend = "bolt"
	cfg.CacheBackend = "redis" // without address
	cfg.MaxPages = 0

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state.backend")
	assert.Contains(t, err.Error(), "cache.redisAddr")
	assert.Contains(t, err.Error(), "crawl.maxPages")
}

func TestHolderReloadSwapsSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: info\n"), 0o600))

	loader := NewLoader(path, "v0-test")
	initial, err := loader.Load()
	require.NoError(t, err)

	holder := NewHolder(initial, loader, path)
	assert.Equal(t, "info", holder.Current().LogLevel)

	require.NoError(t, os.WriteFile(path, []byte("logLevel: error\n"), 0o600))
	require.NoError(t, holder.Reload(context.Background()))
	assert.Equal(t, "error", holder.Current().LogLevel)
}

func TestHolderReloadKeepsOldConfigOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: info\n"), 0o600))

	loader := NewLoader(path, "v0-test")
	initial, err := loader.Load()
	require.NoError(t, err)
	holder := NewHolder(initial, loader, path)

	require.NoError(t, os.WriteFile(path, []byte("crawl:\n  maxPages: -4\n"), 0o600))
	require.Error(t, holder.Reload(context.Background()))
	assert.Equal(t, "info", holder.Current().LogLevel)
	assert.Equal(t, DefaultMaxPages, holder.Current().MaxPages)
}
