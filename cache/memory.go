package cache

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/caseflow"
	"github.com/xraph/caseflow/state"
)

var _ Cache = (*Memory)(nil)

type memoryEntry struct {
	st        *state.WorkflowState
	expiresAt time.Time
}

// Memory is an in-process Cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory returns an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: time.Now}
}

// Get implements Cache. Expired entries are dropped lazily.
func (m *Memory) Get(_ context.Context, caseID string) (*state.WorkflowState, error) {
	m.mu.RLock()
	e, ok := m.entries[caseID]
	m.mu.RUnlock()
	if !ok {
		return nil, caseflow.ErrCaseNotFound
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		if cur, ok := m.entries[caseID]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(m.entries, caseID)
		}
		m.mu.Unlock()
		return nil, caseflow.ErrCaseNotFound
	}
	return e.st.Clone(), nil
}

// Put implements Cache.
func (m *Memory) Put(_ context.Context, st *state.WorkflowState, ttl time.Duration) error {
	e := memoryEntry{st: st.Clone()}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[st.CaseID] = e
	m.mu.Unlock()
	return nil
}
