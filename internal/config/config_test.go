package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// TestLoadDefaults verifies that a missing file falls back to defaults.
func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := NewLoader("", WithEnvFile("")).Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 90*time.Second, cfg.Game.DefaultTimeLimit)
	assert.Equal(t, 3, cfg.Game.MaxConsecutiveTimeouts)
	assert.Equal(t, ":50051", cfg.Server.GRPC.Address)
	assert.Equal(t, "/ws", cfg.Server.WebSocket.Path)
	assert.Equal(t, 1024, cfg.Cache.Size)
	assert.False(t, cfg.Replay.Enabled)
}

// TestLoadFileAndEnv verifies that the environment overrides the file.
func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: memory
game:
  default_time_limit: 2m
  max_consecutive_timeouts: 4
logging:
  level: debug
  format: console
`)
	t.Setenv("VOIDECHO_GAME_MAX_CONSECUTIVE_TIMEOUTS", "5")

	cfg, err := NewLoader(path, WithEnvFile("")).Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 2*time.Minute, cfg.Game.DefaultTimeLimit)
	assert.Equal(t, 5, cfg.Game.MaxConsecutiveTimeouts)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

// TestLoadDotEnv verifies that values from the dotenv file reach the config.
func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("VOIDECHO_CACHE_SIZE=77\n"), 0o600))
	t.Setenv("VOIDECHO_CACHE_SIZE", "")
	require.NoError(t, os.Unsetenv("VOIDECHO_CACHE_SIZE"))

	cfg, err := NewLoader(writeConfig(t, "cache:\n  ttl: 5m\n"), WithEnvFile(envFile)).Load()
	require.NoError(t, err)
	assert.Equal(t, 77, cfg.Cache.Size)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
}

// TestLoadRejectsInvalid verifies tag and cross-field validation.
func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown driver":      "database:\n  driver: oracle\n",
		"sqlite without path": "database:\n  driver: sqlite\n  path: \"\"\n",
		"bad log level":       "logging:\n  level: chatty\n",
		"default above max":   "game:\n  default_time_limit: 20m\n",
		"postgres no host":    "database:\n  driver: postgres\n",
		"replay without dir":  "replay:\n  enabled: true\n  dir: \"\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewLoader(writeConfig(t, body), WithEnvFile("")).Load()
			require.Error(t, err)
		})
	}
}

// TestDSN verifies postgres connection strings.
func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "void", Password: "p@ss", Name: "voidecho", SSLMode: "disable"}
	assert.Equal(t, "postgres://void:p%40ss@db:5432/voidecho?sslmode=disable", d.DSN())

	d.URL = "postgres://override"
	assert.Equal(t, "postgres://override", d.DSN())
}
