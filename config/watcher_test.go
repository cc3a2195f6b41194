package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type eventLog struct {
	mu     sync.Mutex
	events []FileEvent
}

func (l *eventLog) add(e FileEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) ops() []FileOp {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]FileOp, len(l.events))
	for i, e := range l.events {
		out[i] = e.Op
	}
	return out
}

func TestNewFileWatcher_ResolvesAndDedupes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")

	w, err := NewFileWatcher([]string{path, path}, WithWatcherLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	assert.Equal(t, []string{path}, w.Paths())
	assert.False(t, w.IsRunning())
}

func TestFileWatcher_PollAndFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	w, err := NewFileWatcher([]string{path}, WithDebounceDelay(50*time.Millisecond))
	require.NoError(t, err)

	var log eventLog
	w.OnChange(log.add)

	t0 := time.Now()
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o600))
	w.poll(t0)
	w.flush(t0)
	assert.Empty(t, log.ops(), "debounce holds the event")

	w.flush(t0.Add(60 * time.Millisecond))
	assert.Equal(t, []FileOp{FileOpCreate}, log.ops())

	// Bump mtime explicitly; filesystems may have coarse timestamps.
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))
	w.poll(t0.Add(time.Second))
	require.NoError(t, os.Chtimes(path, later.Add(time.Second), later.Add(time.Second)))
	w.poll(t0.Add(1100 * time.Millisecond))
	w.flush(t0.Add(1200 * time.Millisecond))
	assert.Equal(t, []FileOp{FileOpCreate, FileOpWrite}, log.ops(), "two writes coalesce")

	require.NoError(t, os.Remove(path))
	w.poll(t0.Add(2 * time.Second))
	w.flush(t0.Add(3 * time.Second))
	assert.Equal(t, []FileOp{FileOpCreate, FileOpWrite, FileOpRemove}, log.ops())

	w.poll(t0.Add(4 * time.Second))
	w.flush(t0.Add(5 * time.Second))
	assert.Len(t, log.ops(), 3, "missing untracked file is quiet")
}

func TestFileWatcher_Run(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o600))

	w, err := NewFileWatcher([]string{path}, WithPollInterval(10*time.Millisecond), WithDebounceDelay(0))
	require.NoError(t, err)

	changed := make(chan FileEvent, 4)
	w.OnChange(func(e FileEvent) { changed <- e })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, w.IsRunning, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, w.Run(ctx), ErrWatcherRunning)

	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	select {
	case e := <-changed:
		assert.Equal(t, FileOpWrite, e.Op)
		assert.Equal(t, path, e.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("no change event")
	}

	cancel()
	require.NoError(t, <-done)
	assert.False(t, w.IsRunning())
}

func TestFileOp_String(t *testing.T) {
	assert.Equal(t, "CREATE", FileOpCreate.String())
	assert.Equal(t, "WRITE", FileOpWrite.String())
	assert.Equal(t, "REMOVE", FileOpRemove.String())
	assert.Equal(t, "UNKNOWN", FileOp(42).String())
}
