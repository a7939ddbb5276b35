package watchdog

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/il2fb-go/airbridge/internal/state"
)

func collector() (func(string), func() []string) {
	var mu sync.Mutex
	var lines []string
	return func(l string) {
			mu.Lock()
			defer mu.Unlock()
			lines = append(lines, l)
		}, func() []string {
			mu.Lock()
			defer mu.Unlock()
			return append([]string(nil), lines...)
		}
}

func TestWatchdog_TailsAppendedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.log")
	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0o644))

	w := New(path, state.WatchdogState{})
	w.PollPeriod = 10 * time.Millisecond
	add, get := collector()
	w.Subscribe(add)

	go w.Run()
	defer func() {
		w.Stop()
		w.WaitStopped()
	}()

	require.Eventually(t, func() bool {
		return len(get()) >= 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"first"}, get())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("second\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		return len(get()) >= 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, get())
}

func TestWatchdog_ResumesFromPersistedOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.log")
	require.NoError(t, os.WriteFile(path, []byte("already-seen\nnew-line\n"), 0o644))

	info, err := os.Stat(path)
	require.NoError(t, err)
	dev, ino := deviceInode(info)

	w := New(path, state.WatchdogState{Device: dev, Inode: ino, Offset: int64(len("already-seen\n"))})
	w.PollPeriod = 10 * time.Millisecond
	add, get := collector()
	w.Subscribe(add)

	go w.Run()
	defer func() {
		w.Stop()
		w.WaitStopped()
	}()

	require.Eventually(t, func() bool {
		return len(get()) >= 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"new-line"}, get())
}

func TestWatchdog_SurvivesRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.log")
	require.NoError(t, os.WriteFile(path, []byte("before-rotate\n"), 0o644))

	w := New(path, state.WatchdogState{})
	w.PollPeriod = 10 * time.Millisecond
	add, get := collector()
	w.Subscribe(add)

	go w.Run()
	defer func() {
		w.Stop()
		w.WaitStopped()
	}()

	require.Eventually(t, func() bool { return len(get()) >= 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(path))
	require.NoError(t, os.WriteFile(path, []byte("after-rotate\n"), 0o644))

	require.Eventually(t, func() bool {
		return len(get()) >= 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"before-rotate", "after-rotate"}, get())
}

func TestWatchdog_StopIsIdempotent(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing.log"), state.WatchdogState{})
	w.PollPeriod = 5 * time.Millisecond
	go w.Run()
	w.Stop()
	w.Stop()
	w.WaitStopped()
}
