// ABOUTME: Tests for config loading, env expansion, durations, and validation
// ABOUTME: Uses temp files so no fixture directory is needed

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "localhost:9090"

gemini:
  api_key: "test-key"
  model: "gemini-1.5-pro"
  temperature: 0.3
  max_output_tokens: 500
  timeout: "10s"

sessions:
  idle_ttl: "5m"
  max_sessions: 100
  max_context_turns: 20
  max_message_chars: 2000

archive:
  enabled: true
  path: "transcripts.db"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost:9090", cfg.Server.HTTPAddr)
	assert.Equal(t, "test-key", cfg.Gemini.APIKey)
	assert.Equal(t, "gemini-1.5-pro", cfg.Gemini.Model)
	require.NotNil(t, cfg.Gemini.Temperature)
	assert.InDelta(t, 0.3, *cfg.Gemini.Temperature, 0.001)
	assert.Equal(t, int32(500), cfg.Gemini.MaxOutputTokens)
	assert.Equal(t, 10*time.Second, cfg.Gemini.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Sessions.IdleTTL)
	assert.Equal(t, 100, cfg.Sessions.MaxSessions)
	assert.Equal(t, 20, cfg.Sessions.MaxContextTurns)
	assert.Equal(t, 2000, cfg.Sessions.MaxMessageChars)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, "transcripts.db", cfg.Archive.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "localhost:8080"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, cfg.Gemini.Model)
	require.NotNil(t, cfg.Gemini.Temperature)
	assert.InDelta(t, DefaultTemperature, *cfg.Gemini.Temperature, 0.001)
	assert.Equal(t, int32(DefaultMaxOutputTokens), cfg.Gemini.MaxOutputTokens)
	assert.Equal(t, DefaultTimeout, cfg.Gemini.Timeout)
	assert.Equal(t, DefaultIdleTTL, cfg.Sessions.IdleTTL)
	assert.Equal(t, DefaultMaxSessions, cfg.Sessions.MaxSessions)
	assert.Equal(t, DefaultMaxContextTurns, cfg.Sessions.MaxContextTurns)
	assert.Equal(t, DefaultMaxMessageChars, cfg.Sessions.MaxMessageChars)
	assert.False(t, cfg.Archive.Enabled)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "secret-from-env")

	path := writeConfig(t, `
server:
  http_addr: "localhost:8080"
gemini:
  api_key: "${TEST_GEMINI_KEY}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-from-env", cfg.Gemini.APIKey)
}

func TestLoad_UnsetEnvExpandsEmpty(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "localhost:8080"
gemini:
  api_key: "${DEFINITELY_NOT_SET_ANYWHERE_XYZ}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Gemini.APIKey)
}

func TestLoad_ExplicitZeroTemperature(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "localhost:8080"
gemini:
  temperature: 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Gemini.Temperature)
	assert.Zero(t, *cfg.Gemini.Temperature, "an explicit zero must not be replaced by the default")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "localhost:8080"
sessions:
  idle_ttl: "banana"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "idle_ttl")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing http addr",
			mutate:  func(c *Config) { c.Server.HTTPAddr = "" },
			wantErr: "http_addr",
		},
		{
			name: "archive enabled without path",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.Archive.Path = ""
			},
			wantErr: "archive.path",
		},
		{
			name:    "context window too small",
			mutate:  func(c *Config) { c.Sessions.MaxContextTurns = 1 },
			wantErr: "max_context_turns",
		},
		{
			name: "temperature out of range",
			mutate: func(c *Config) {
				temp := float32(3.5)
				c.Gemini.Temperature = &temp
			},
			wantErr: "temperature",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Server.HTTPAddr = "localhost:8080"
			cfg.applyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
