package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherMissingFile(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestWatcherReloadCallback(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	dir := t.TempDir()
	path := filepath.Join(dir, "mainspring.toml")
	require.NoError(t, os.WriteFile(path, []byte("[scheduler]\nnotification_lead_days = 2\n"), 0o644))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	t.Cleanup(func() { w.Stop() })

	// Shorten the debounce so the test does not sit out the editor grace
	w.debouncePeriod = 10 * time.Millisecond

	reloaded := make(chan *Config, 1)
	w.OnReload(func(cfg *Config) error {
		select {
		case reloaded <- cfg:
		default:
		}
		return nil
	})
	w.Start()

	require.NoError(t, os.WriteFile(path, []byte("[scheduler]\nnotification_lead_days = 4\n"), 0o644))

	select {
	case cfg := <-reloaded:
		require.NotNil(t, cfg)
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}
}
