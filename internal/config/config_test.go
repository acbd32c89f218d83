package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Sweep.Interval.Duration)
	assert.False(t, cfg.S3.Enabled)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "daemon"
	cfg.LogLevel = "verbose"
	cfg.Redis.Addr = ""
	cfg.Sweep.BatchSize = 0
	cfg.Notify.TelegramToken = "tok"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "unknown log_level")
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "batch_size")
	assert.Contains(t, err.Error(), "telegram_token and telegram_chat_id")
}

func TestValidateRateWindowRequired(t *testing.T) {
	cfg := Defaults()
	cfg.Server.RateLimit = 50
	cfg.Server.RateWindow.Duration = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_window")
}

func TestLoadTOMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "sweep"
log_level = "debug"

[postgres]
host = "db.internal"
database = "markets"

[server]
port = 9100

[sweep]
interval = "45s"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("MARKETD_SERVER_PORT", "9200")
	t.Setenv("MARKETD_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("MARKETD_SWEEP_BROADCAST_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sweep", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, "markets", cfg.Postgres.Database)
	assert.Equal(t, 45*time.Second, cfg.Sweep.Interval.Duration)

	// Environment wins over the file.
	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.False(t, cfg.Sweep.BroadcastEnabled)
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Server.Port, cfg.Server.Port)
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.Server.APIKey = "hunter2"
	cfg.Notify.TelegramToken = "hunter2"

	red := RedactedConfig(&cfg)
	assert.NotContains(t, red.Postgres.Password, "hunter2")
	assert.NotContains(t, red.Redis.Password, "hunter2")
	assert.NotContains(t, red.Server.APIKey, "hunter2")
	assert.NotContains(t, red.Notify.TelegramToken, "hunter2")
}
