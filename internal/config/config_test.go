package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValidWithKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.GeminiKey = "k"
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "gemini", cfg.API.ActiveProvider())
	assert.Equal(t, DefaultMaxToolCalls, cfg.Review.MaxToolCalls)
}

func TestValidateRejectsMissingKey(t *testing.T) {
	cfg := DefaultConfig()
	assert.ErrorIs(t, cfg.Validate(), ErrMissingAuth)
}

func TestValidateRejectsBadBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.GeminiKey = "k"
	cfg.Review.MaxToolCalls = 0
	assert.Error(t, cfg.Validate())
}

func TestOllamaNeedsNoKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.Provider = "ollama"
	assert.NoError(t, cfg.Validate())
	assert.Empty(t, cfg.API.ActiveKey())
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "crev"), 0o755))
	yaml := `
model:
  name: gemini-2.0-flash
review:
  max_tool_calls: 7
rate_limit:
  tier: tier1
  overrides:
    gemini-2.0-flash: 2500
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "crev", "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("CREV_API_KEY", "env-key")
	t.Setenv("CREV_MODEL", "")
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", cfg.Model.Name)
	assert.Equal(t, 7, cfg.Review.MaxToolCalls)
	assert.Equal(t, DefaultMaxDuration, cfg.Review.MaxDuration)
	assert.Equal(t, 2500, cfg.RateLimit.Overrides["gemini-2.0-flash"])
	assert.Equal(t, "env-key", cfg.API.GeminiKey)
	// Defaults survive a partial file.
	assert.Equal(t, DefaultMaxFilesRead, cfg.Review.MaxFilesRead)
}

func TestEnvModelOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("CREV_MODEL", "gemini-2.5-flash")
	t.Setenv("CREV_API_KEY", "k")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", cfg.Model.Name)
}

func TestSessionDirDefault(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join(dir, "crev", "sessions"), cfg.SessionDir())

	cfg.Session.Dir = "/tmp/explicit"
	assert.Equal(t, "/tmp/explicit", cfg.SessionDir())
}
