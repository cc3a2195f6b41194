package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/voiceflow/internal/metrics"
	"github.com/BaSui01/voiceflow/internal/pool"
)

// Persistence modes reported in logs and metrics.
const (
	ModeSync  = "sync"
	ModeAsync = "async"
)

// WriterOptions configures a Writer.
type WriterOptions struct {
	// Pool runs background writes. Nil makes SaveAsync run inline.
	Pool *pool.Pool
	// Timeout bounds each store call; zero means no extra bound.
	Timeout time.Duration
	// KeyPrefix is prepended to every key.
	KeyPrefix string
	Metrics   *metrics.Collector
	Logger    *zap.Logger
}

// Writer adds key prefixing, timeouts, metrics and the background write
// mode on top of a Store. Background writes of one session are coalesced:
// at most one pool task writes a given session at a time and it always
// writes the newest queued snapshot, so the store converges on the latest
// state.
type Writer struct {
	store   Store
	pool    *pool.Pool
	timeout time.Duration
	prefix  string
	metrics *metrics.Collector
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]*pendingSave
}

// pendingSave is the newest unwritten snapshot of one session. idle is
// closed when the task draining it exits.
type pendingSave struct {
	data  []byte
	ttl   time.Duration
	dirty bool
	idle  chan struct{}
}

// NewWriter wraps store.
func NewWriter(store Store, opts WriterOptions) *Writer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		store:   store,
		pool:    opts.Pool,
		timeout: opts.Timeout,
		prefix:  opts.KeyPrefix,
		metrics: opts.Metrics,
		logger:  logger.With(zap.String("component", "session_persistence")),
		pending: make(map[string]*pendingSave),
	}
}

// Store returns the wrapped store.
func (w *Writer) Store() Store {
	return w.store
}

// Key returns the store key used for id.
func (w *Writer) Key(id string) string {
	return w.prefix + id
}

func (w *Writer) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.timeout > 0 {
		return context.WithTimeout(ctx, w.timeout)
	}
	return context.WithCancel(ctx)
}

// Save writes data and waits for the result. A queued background snapshot
// of id is discarded and an in-flight one is waited for, so data is not
// overwritten by an older snapshot.
func (w *Writer) Save(ctx context.Context, id string, data []byte, ttl time.Duration) error {
	if err := w.supersede(ctx, id); err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return w.write(ctx, id, data, ttl, ModeSync)
}

func (w *Writer) write(ctx context.Context, id string, data []byte, ttl time.Duration, mode string) error {
	ctx, cancel := w.bounded(ctx)
	defer cancel()

	start := time.Now()
	err := w.store.Set(ctx, w.Key(id), data, ttl)
	w.metrics.RecordPersistence("save", mode, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return nil
}

// SaveAsync queues data as the newest snapshot of id and returns
// immediately. Failures are logged and counted; they are never returned or
// retried.
func (w *Writer) SaveAsync(ctx context.Context, id string, data []byte, ttl time.Duration) {
	if w.pool == nil {
		w.writeLogged(context.WithoutCancel(ctx), id, data, ttl)
		return
	}

	w.mu.Lock()
	p, draining := w.pending[id]
	if !draining {
		p = &pendingSave{idle: make(chan struct{})}
		w.pending[id] = p
	}
	p.data, p.ttl, p.dirty = data, ttl, true
	w.mu.Unlock()
	if draining {
		return
	}

	err := w.pool.Submit(ctx, "session-save:"+id, func(taskCtx context.Context) error {
		w.drain(taskCtx, id, p)
		return nil
	})
	if err != nil {
		w.release(id, p)
		w.metrics.RecordPersistence("save", ModeAsync, err, 0)
		w.logger.Warn("background session save dropped",
			zap.String("session_id", id),
			zap.Error(err),
		)
	}
}

// drain writes p until no newer snapshot is queued.
func (w *Writer) drain(ctx context.Context, id string, p *pendingSave) {
	for {
		w.mu.Lock()
		if !p.dirty {
			w.mu.Unlock()
			w.release(id, p)
			return
		}
		data, ttl := p.data, p.ttl
		p.data, p.dirty = nil, false
		w.mu.Unlock()

		w.writeLogged(ctx, id, data, ttl)
	}
}

func (w *Writer) release(id string, p *pendingSave) {
	w.mu.Lock()
	if w.pending[id] == p {
		delete(w.pending, id)
	}
	w.mu.Unlock()
	close(p.idle)
}

func (w *Writer) writeLogged(ctx context.Context, id string, data []byte, ttl time.Duration) {
	if err := w.write(ctx, id, data, ttl, ModeAsync); err != nil {
		w.logger.Warn("background session save failed",
			zap.String("session_id", id),
			zap.Error(err),
		)
	}
}

// supersede discards the queued snapshot of id and waits for an in-flight
// background write of id to finish.
func (w *Writer) supersede(ctx context.Context, id string) error {
	w.mu.Lock()
	p, ok := w.pending[id]
	if ok {
		p.data, p.dirty = nil, false
	}
	w.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-p.idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load reads the snapshot for id. Returns ErrNotFound when absent.
func (w *Writer) Load(ctx context.Context, id string) ([]byte, error) {
	ctx, cancel := w.bounded(ctx)
	defer cancel()

	start := time.Now()
	data, err := w.store.Get(ctx, w.Key(id))
	if errors.Is(err, ErrNotFound) {
		w.metrics.RecordPersistence("load", ModeSync, nil, time.Since(start))
		return nil, err
	}
	w.metrics.RecordPersistence("load", ModeSync, err, time.Since(start))
	return data, err
}

// Delete removes the snapshot for id. Queued background snapshots are
// discarded first so they cannot write the key back.
func (w *Writer) Delete(ctx context.Context, id string) error {
	if err := w.supersede(ctx, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	ctx, cancel := w.bounded(ctx)
	defer cancel()

	start := time.Now()
	err := w.store.Delete(ctx, w.Key(id))
	w.metrics.RecordPersistence("delete", ModeSync, err, time.Since(start))
	return err
}

// PurgeExpired calls the store's purge when it supports one.
func (w *Writer) PurgeExpired(ctx context.Context) (int64, error) {
	p, ok := w.store.(Purger)
	if !ok {
		return 0, nil
	}
	ctx, cancel := w.bounded(ctx)
	defer cancel()

	start := time.Now()
	n, err := p.PurgeExpired(ctx)
	w.metrics.RecordPersistence("purge", ModeSync, err, time.Since(start))
	return n, err
}
