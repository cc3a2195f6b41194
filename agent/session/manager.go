package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/voiceflow/agent/definition"
	"github.com/BaSui01/voiceflow/agent/persistence"
	"github.com/BaSui01/voiceflow/internal/metrics"
)

// ManagerConfig configures session lifetime and persistence.
type ManagerConfig struct {
	// TTL is the expiry applied to persisted snapshots; zero keeps them forever.
	TTL time.Duration
	// IdleTimeout evicts in-memory sessions untouched for this long; zero disables eviction.
	IdleTimeout time.Duration
	// SweepInterval is how often Run checks for idle sessions.
	SweepInterval time.Duration
	// EagerRecords creates empty override records for every base agent.
	EagerRecords bool
	// CheckpointConcurrency bounds CheckpointAll.
	CheckpointConcurrency int
}

// DefaultManagerConfig returns production defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		TTL:                   24 * time.Hour,
		IdleTimeout:           30 * time.Minute,
		SweepInterval:         time.Minute,
		CheckpointConcurrency: 8,
	}
}

type entry struct {
	mu       sync.Mutex
	reg      *Registry
	lastUsed atomic.Int64
	// ended is set under mu once the session is evicted or ended; the
	// entry is then removed from the map and must not be written again.
	ended bool
}

func (e *entry) touch(now time.Time) {
	e.lastUsed.Store(now.UnixNano())
}

// Manager owns the live sessions of one process. Each session has its own
// mutex; With serializes callers so the Registry sees a single writer.
type Manager struct {
	base    *definition.Registry
	writer  *persistence.Writer
	cfg     ManagerConfig
	logger  *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*entry
	loads    singleflight.Group
}

// NewManager creates a session manager. writer may be nil for a purely
// in-memory deployment.
func NewManager(base *definition.Registry, writer *persistence.Writer, cfg ManagerConfig, logger *zap.Logger, collector *metrics.Collector) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CheckpointConcurrency <= 0 {
		cfg.CheckpointConcurrency = 8
	}
	return &Manager{
		base:     base,
		writer:   writer,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "session_manager")),
		metrics:  collector,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Base returns the shared agent registry.
func (m *Manager) Base() *definition.Registry { return m.base }

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IDs returns the live session ids.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// With runs fn with exclusive access to the session, loading or creating
// it on first use.
func (m *Manager) With(ctx context.Context, sessionID string, fn func(*Registry) error) error {
	for {
		e, err := m.entry(ctx, sessionID)
		if err != nil {
			return err
		}
		e.mu.Lock()
		if e.ended {
			// Ended while we waited; it is gone from the map by now.
			e.mu.Unlock()
			continue
		}
		defer e.mu.Unlock()
		e.touch(m.now())
		return fn(e.reg)
	}
}

func (m *Manager) entry(ctx context.Context, sessionID string) (*entry, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidOverride)
	}

	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		e.touch(m.now())
		return e, nil
	}

	v, err, _ := m.loads.Do(sessionID, func() (any, error) {
		m.mu.RLock()
		if e, ok := m.sessions[sessionID]; ok {
			m.mu.RUnlock()
			return e, nil
		}
		m.mu.RUnlock()

		e := &entry{reg: m.load(ctx, sessionID)}
		e.touch(m.now())
		if m.writer != nil {
			// Mutations run under e.mu, so ended is stable inside the hook.
			e.reg.hook = func(r *Registry) {
				if !e.ended {
					m.persistAsync(r)
				}
			}
		}

		m.mu.Lock()
		m.sessions[sessionID] = e
		n := len(m.sessions)
		m.mu.Unlock()
		m.metrics.SetActiveSessions(n)
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*entry), nil
}

// load builds a registry, restoring the persisted snapshot when present.
// Store failures are logged and the session starts fresh in memory.
func (m *Manager) load(ctx context.Context, sessionID string) *Registry {
	opts := []Option{
		WithLogger(m.logger),
		WithMetrics(m.metrics),
		WithClock(m.now),
	}
	if m.cfg.EagerRecords {
		opts = append(opts, WithEagerRecords())
	}
	reg := New(sessionID, m.base, opts...)

	if m.writer != nil {
		data, err := m.writer.Load(ctx, sessionID)
		switch {
		case err == nil:
			if err := reg.RestoreSnapshot(data); err != nil {
				m.logger.Warn("discarding unreadable session snapshot",
					zap.String("session_id", sessionID),
					zap.Error(err),
				)
				reg = New(sessionID, m.base, opts...)
			} else {
				m.logger.Debug("session restored", zap.String("session_id", sessionID))
			}
		case errors.Is(err, persistence.ErrNotFound):
		default:
			m.logger.Warn("session load failed, continuing in memory",
				zap.String("session_id", sessionID),
				zap.Error(fmt.Errorf("%w: %v", ErrPersistence, err)),
			)
		}
	}
	return reg
}

// persistAsync encodes on the caller's goroutine and hands the bytes to the
// background writer.
func (m *Manager) persistAsync(r *Registry) {
	data, err := r.MarshalSnapshot()
	if err != nil {
		m.logger.Error("snapshot encode failed", zap.String("session_id", r.sessionID), zap.Error(err))
		return
	}
	m.writer.SaveAsync(context.Background(), r.sessionID, data, m.cfg.TTL)
}

// Checkpoint saves the session and waits for the store.
func (m *Manager) Checkpoint(ctx context.Context, sessionID string) error {
	if m.writer == nil {
		return nil
	}
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return m.checkpoint(ctx, e)
}

func (m *Manager) checkpoint(ctx context.Context, e *entry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		return nil
	}
	return m.checkpointLocked(ctx, e)
}

// checkpointLocked saves e while the caller holds e.mu, so no newer
// background snapshot can be queued behind it.
func (m *Manager) checkpointLocked(ctx context.Context, e *entry) error {
	data, err := e.reg.MarshalSnapshot()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := m.writer.Save(ctx, e.reg.sessionID, data, m.cfg.TTL); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// CheckpointAll saves every live session concurrently.
func (m *Manager) CheckpointAll(ctx context.Context) error {
	if m.writer == nil {
		return nil
	}
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.CheckpointConcurrency)
	for _, e := range entries {
		g.Go(func() error {
			return m.checkpoint(gctx, e)
		})
	}
	return g.Wait()
}

// End drops the session from memory and deletes its snapshot. The snapshot
// is deleted even when the session is not live in this process.
func (m *Manager) End(ctx context.Context, sessionID string) error {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()

	if ok {
		// Held until the entry leaves the map: callers blocked on e.mu
		// reload only after the snapshot is gone.
		e.mu.Lock()
		defer e.mu.Unlock()
		e.ended = true
		defer m.remove(sessionID, e)
		m.logger.Info("session ended", zap.String("session_id", sessionID))
	}

	if m.writer == nil {
		return nil
	}
	if err := m.writer.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// remove drops e from the map if it is still the live entry for id.
func (m *Manager) remove(id string, e *entry) {
	m.mu.Lock()
	if m.sessions[id] == e {
		delete(m.sessions, id)
	}
	n := len(m.sessions)
	m.mu.Unlock()
	m.metrics.SetActiveSessions(n)
}

// Sweep checkpoints and evicts sessions idle longer than IdleTimeout, then
// purges expired snapshots from stores that need it. Returns the number of
// evicted sessions.
func (m *Manager) Sweep(ctx context.Context) int {
	if m.cfg.IdleTimeout <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.cfg.IdleTimeout).UnixNano()

	m.mu.RLock()
	var idle []*entry
	for _, e := range m.sessions {
		if e.lastUsed.Load() < cutoff {
			idle = append(idle, e)
		}
	}
	m.mu.RUnlock()

	evicted := 0
	for _, e := range idle {
		if m.evict(ctx, e, cutoff) {
			evicted++
		}
	}

	if evicted > 0 {
		m.logger.Info("idle sessions evicted", zap.Int("count", evicted))
	}

	if m.writer != nil {
		if n, err := m.writer.PurgeExpired(ctx); err != nil {
			m.logger.Warn("purge expired snapshots failed", zap.Error(err))
		} else if n > 0 {
			m.logger.Debug("expired snapshots purged", zap.Int64("count", n))
		}
	}
	return evicted
}

// evict checkpoints e and removes it while holding e.mu, so a concurrent
// With either runs before the checkpoint or reloads after it.
func (m *Manager) evict(ctx context.Context, e *entry, cutoff int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended || e.lastUsed.Load() >= cutoff {
		return false
	}
	id := e.reg.sessionID
	if m.writer != nil {
		if err := m.checkpointLocked(ctx, e); err != nil {
			m.logger.Warn("checkpoint before eviction failed", zap.String("session_id", id), zap.Error(err))
		}
	}
	e.ended = true
	m.remove(id, e)
	return true
}

// Run sweeps on SweepInterval until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	interval := m.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Close checkpoints every live session.
func (m *Manager) Close(ctx context.Context) error {
	err := m.CheckpointAll(ctx)
	m.logger.Info("session manager closed", zap.Int("sessions", m.Len()))
	return err
}
