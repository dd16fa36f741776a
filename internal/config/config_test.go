package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/akshayaggarwal99/sandboxd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithNoFileOrEnv(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "", cfg.APIKey)
	assert.Equal(t, 8, cfg.WorkerPoolSize)
	assert.Equal(t, "python:3.11-slim", cfg.DefaultImage)
	assert.Equal(t, 2*time.Second, cfg.DefaultTestTimeout)
	assert.Equal(t, "development", cfg.Environment)
}

func TestLoad_YAMLFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sandboxd.yaml"), []byte(`
worker_pool_size: 4
default_image: python:3.12-slim
environment: production
`), 0o644))

	cfg, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.WorkerPoolSize)
	assert.Equal(t, "python:3.12-slim", cfg.DefaultImage)
	assert.Equal(t, "production", cfg.Environment)
}

func TestLoad_EnvironmentVariableOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sandboxd.yaml"), []byte(`
worker_pool_size: 4
`), 0o644))

	t.Setenv("SANDBOXD_WORKER_POOL_SIZE", "16")

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.WorkerPoolSize)
}

func TestLoad_RejectsNonPositiveWorkerPoolSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sandboxd.yaml"), []byte(`
worker_pool_size: 0
`), 0o644))

	_, err := config.Load(dir)
	assert.Error(t, err)
}

func TestLoad_RejectsMalformedTimeout(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sandboxd.yaml"), []byte(`
default_test_timeout: not-a-duration
`), 0o644))

	_, err := config.Load(dir)
	assert.Error(t, err)
}
