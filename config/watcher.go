// 配置文件变更监听器。
//
// 以轮询方式检测文件修改时间变化，并对同一文件的连续变更做防抖合并。
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrWatcherRunning is returned when Run is called twice.
var ErrWatcherRunning = errors.New("watcher already running")

// FileOp represents file operation types
type FileOp int

const (
	// FileOpCreate 表示文件已创建
	FileOpCreate FileOp = iota
	// FileOpWrite 表示文件已被修改
	FileOpWrite
	// FileOpRemove 表示文件已被删除
	FileOpRemove
)

// String returns the string representation of FileOp
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a file change event
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// WatcherOption configures the FileWatcher
type WatcherOption func(*FileWatcher)

// WithPollInterval sets how often files are checked.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithDebounceDelay sets how long a file must stay unchanged before its
// event is dispatched.
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

type pendingEvent struct {
	event    FileEvent
	lastSeen time.Time
}

// FileWatcher polls files for changes. Callbacks run on the watcher's
// goroutine, one event at a time.
type FileWatcher struct {
	paths    []string
	interval time.Duration
	debounce time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	callbacks []func(FileEvent)

	running  atomic.Bool
	modTimes map[string]time.Time
	pending  map[string]pendingEvent
}

// NewFileWatcher creates a watcher for paths. Missing files are watched for
// creation.
func NewFileWatcher(paths []string, opts ...WatcherOption) (*FileWatcher, error) {
	w := &FileWatcher{
		interval: time.Second,
		debounce: 100 * time.Millisecond,
		logger:   zap.NewNop(),
		modTimes: make(map[string]time.Time),
		pending:  make(map[string]pendingEvent),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "config_watcher"))

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		if slices.Contains(w.paths, abs) {
			continue
		}
		if _, err := os.Stat(abs); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("stat %s: %w", abs, err)
			}
			w.logger.Warn("watched file does not exist, waiting for creation", zap.String("path", abs))
		}
		w.paths = append(w.paths, abs)
	}
	return w, nil
}

// Paths returns the watched absolute paths.
func (w *FileWatcher) Paths() []string {
	return slices.Clone(w.paths)
}

// OnChange registers a callback for file change events
func (w *FileWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// IsRunning reports whether Run is active.
func (w *FileWatcher) IsRunning() bool {
	return w.running.Load()
}

// Run polls until ctx is done.
func (w *FileWatcher) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrWatcherRunning
	}
	defer w.running.Store(false)

	for _, p := range w.paths {
		if info, err := os.Stat(p); err == nil {
			w.modTimes[p] = info.ModTime()
		}
	}

	w.logger.Info("file watcher started",
		zap.Strings("paths", w.paths),
		zap.Duration("interval", w.interval),
		zap.Duration("debounce", w.debounce),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("file watcher stopped")
			return nil
		case now := <-ticker.C:
			w.poll(now)
			w.flush(now)
		}
	}
}

// poll records changed files as pending events.
func (w *FileWatcher) poll(now time.Time) {
	for _, p := range w.paths {
		info, err := os.Stat(p)
		last, tracked := w.modTimes[p]

		var op FileOp
		switch {
		case err != nil:
			if !os.IsNotExist(err) || !tracked {
				continue
			}
			delete(w.modTimes, p)
			op = FileOpRemove
		case !tracked:
			w.modTimes[p] = info.ModTime()
			op = FileOpCreate
		case info.ModTime().After(last):
			w.modTimes[p] = info.ModTime()
			op = FileOpWrite
		default:
			continue
		}
		w.pending[p] = pendingEvent{
			event:    FileEvent{Path: p, Op: op, Timestamp: now},
			lastSeen: now,
		}
	}
}

// flush dispatches pending events that have settled.
func (w *FileWatcher) flush(now time.Time) {
	if len(w.pending) == 0 {
		return
	}
	w.mu.Lock()
	callbacks := slices.Clone(w.callbacks)
	w.mu.Unlock()

	for p, pe := range w.pending {
		if now.Sub(pe.lastSeen) < w.debounce {
			continue
		}
		delete(w.pending, p)
		w.logger.Debug("dispatching file event",
			zap.String("path", p),
			zap.String("op", pe.event.Op.String()),
		)
		for _, cb := range callbacks {
			cb(pe.event)
		}
	}
}
