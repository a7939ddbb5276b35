package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsZeroValue(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(filepath.Join(dir, "missing.yml"))
	require.NoError(t, err)
	assert.Zero(t, s.Watchdog)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.yml")

	s := &State{
		Watchdog: WatchdogState{Device: 7, Inode: 42, Offset: 1024},
		Extra:    map[string]any{"some_other_key": "preserved"},
	}
	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s.Watchdog, loaded.Watchdog)
	assert.Equal(t, "preserved", loaded.Extra["some_other_key"])
	assert.NotContains(t, loaded.Extra, watchdogKey)
}

func TestLoad_UnrecognizedKeysPreserved(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.yml")
	content := []byte("future_feature:\n  enabled: true\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Contains(t, s.Extra, "future_feature")
}
