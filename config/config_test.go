package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mainspring.db", cfg.Database.Path)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, 1, cfg.Scheduler.TickerIntervalSeconds)
	assert.Equal(t, 2, cfg.Scheduler.NotificationLeadDays)
	assert.Equal(t, 10, cfg.Scheduler.StalenessWindow)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mainspring.toml")
	content := `
[database]
path = "/var/lib/mainspring/data.db"

[scheduler]
notification_lead_days = 5
ticker_interval_seconds = 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/mainspring/data.db", cfg.Database.Path)
	assert.Equal(t, 5, cfg.Scheduler.NotificationLeadDays)
	assert.Equal(t, 3, cfg.Scheduler.TickerIntervalSeconds)
	// Unset values keep defaults
	assert.Equal(t, 10, cfg.Scheduler.StalenessWindow)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Setenv("MAINSPRING_SCHEDULER_NOTIFICATION_LEAD_DAYS", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Scheduler.NotificationLeadDays)
}
