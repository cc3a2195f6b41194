// =============================================================================
// 🎭 Mock 持久化 Store
// =============================================================================
// 基于内存 Store，支持注入读写故障并记录调用次数
// =============================================================================
package mocks

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/voiceflow/agent/persistence"
)

// ErrInjected is returned by MockStore when a failure is injected.
var ErrInjected = errors.New("injected store failure")

// MockStore wraps an in-memory store with failure injection.
type MockStore struct {
	*persistence.MemoryStore

	mu       sync.Mutex
	failGets bool
	failSets bool
	gate     chan struct{}
	marker   []byte

	Gets atomic.Int32
	Sets atomic.Int32
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{MemoryStore: persistence.NewMemoryStore()}
}

// FailGets makes every Get fail until reset.
func (s *MockStore) FailGets(fail bool) *MockStore {
	s.mu.Lock()
	s.failGets = fail
	s.mu.Unlock()
	return s
}

// FailSets makes every Set fail until reset.
func (s *MockStore) FailSets(fail bool) *MockStore {
	s.mu.Lock()
	s.failSets = fail
	s.mu.Unlock()
	return s
}

// BlockSetsContaining makes every Set whose value contains marker wait until
// release is called or its context ends.
func (s *MockStore) BlockSetsContaining(marker string) (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate, s.marker = gate, []byte(marker)
	s.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Get implements persistence.Store.
func (s *MockStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.Gets.Add(1)
	s.mu.Lock()
	fail := s.failGets
	s.mu.Unlock()
	if fail {
		return nil, ErrInjected
	}
	return s.MemoryStore.Get(ctx, key)
}

// Set implements persistence.Store.
func (s *MockStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.Sets.Add(1)
	s.mu.Lock()
	fail := s.failSets
	gate, marker := s.gate, s.marker
	s.mu.Unlock()
	if fail {
		return ErrInjected
	}
	if gate != nil && bytes.Contains(value, marker) {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.MemoryStore.Set(ctx, key, value, ttl)
}
