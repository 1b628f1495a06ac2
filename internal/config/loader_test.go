package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, ConfigDirName)
	require.NoError(t, os.MkdirAll(configDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, ConfigFileName), []byte(content), 0644))
}

func TestLoadDefaultsWithEnvKey(t *testing.T) {
	t.Setenv("PROBE_AI_API_KEY", "sk-test")

	loader := NewLoader(t.TempDir())
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, "sk-test", cfg.AI.APIKey)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr())
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, "memory", cfg.Sessions.Backend)
	assert.True(t, cfg.Browser.Headless)
}

func TestLoadFromFileFillsUnsetFieldsFromDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
ai:
  provider: mock
server:
  port: 9090
retry:
  max_attempts: 5
`)

	cfg, err := NewLoader(dir).Load()
	require.NoError(t, err)

	assert.Equal(t, "mock", cfg.AI.Provider)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	// Unset fields keep their defaults.
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "python -m pytest -v --tb=short", cfg.Runner.Command)
}

func TestLoadFindsConfigInParentDirectory(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "ai:\n  provider: mock\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	cfg, err := NewLoader(nested).Load()
	require.NoError(t, err)
	assert.Equal(t, "mock", cfg.AI.Provider)
}

func TestEnvOverridesBeatFileValues(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "ai:\n  provider: mock\n  model: gpt-4-turbo\n")
	t.Setenv("PROBE_AI_MODEL", "gpt-4o")
	t.Setenv("PROBE_SERVER_PORT", "9191")
	t.Setenv("PROBE_RUNNER_COMMAND", "pytest -q")
	t.Setenv("PROBE_SESSIONS_BACKEND", "sqlite")

	cfg, err := NewLoader(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.AI.Model)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "pytest -q", cfg.Runner.Command)
	assert.Equal(t, "sqlite", cfg.Sessions.Backend)
}

func TestProviderStandardEnvVarFallback(t *testing.T) {
	t.Setenv("PROBE_AI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg, err := NewLoader(t.TempDir()).Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-openai", cfg.AI.APIKey)
}

func TestInvalidPortEnvIsAnError(t *testing.T) {
	t.Setenv("PROBE_AI_API_KEY", "sk-test")
	t.Setenv("PROBE_SERVER_PORT", "not-a-port")

	_, err := NewLoader(t.TempDir()).Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.AI.Provider = "mock"
		return cfg
	}

	assert.NoError(t, valid().Validate())

	cfg := valid()
	cfg.AI.Provider = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.AI.Provider = "openai" // no api key
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Retry.MaxAttempts = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Sessions.Backend = "redis"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Sessions.Backend = "sqlite"
	cfg.Sessions.Path = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Runner.Command = ""
	assert.Error(t, cfg.Validate())
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(dir)

	cfg := DefaultConfig()
	cfg.AI.Provider = "mock"
	cfg.Server.Port = 9999
	before := cfg.Meta.UpdatedAt

	time.Sleep(time.Millisecond)
	require.NoError(t, loader.Save(cfg, loader.GetConfigPath()))
	assert.True(t, cfg.Meta.UpdatedAt.After(before))
	assert.True(t, loader.IsInitialized())

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, loaded.Server.Port)

	root, err := loader.GetProjectRoot()
	require.NoError(t, err)
	assert.Equal(t, dir, root)
}
