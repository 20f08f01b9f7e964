package memory

import (
	"context"
	"sync"

	"github.com/xraph/caseflow"
	"github.com/xraph/caseflow/checkpoint"
	"github.com/xraph/caseflow/id"
	"github.com/xraph/caseflow/state"
	"github.com/xraph/caseflow/store"
)

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	seqs        map[string]uint64
	checkpoints map[string][]*checkpoint.Checkpoint // key: case ID, ascending seq
}

// New returns an empty memory store.
func New() *Store {
	return &Store{
		seqs:        make(map[string]uint64),
		checkpoints: make(map[string][]*checkpoint.Checkpoint),
	}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Checkpoint Store
// ──────────────────────────────────────────────────

// Save appends an immutable snapshot of st.
func (m *Store) Save(_ context.Context, caseID string, st *state.WorkflowState) (id.CheckpointID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seqs[caseID]++
	cp := checkpoint.New(m.seqs[caseID], st)
	cp.CaseID = caseID
	m.checkpoints[caseID] = append(m.checkpoints[caseID], cp)
	return cp.ID, nil
}

// Latest returns a copy of the newest snapshot for caseID.
func (m *Store) Latest(_ context.Context, caseID string) (*checkpoint.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cps := m.checkpoints[caseID]
	if len(cps) == 0 {
		return nil, caseflow.ErrCheckpointNotFound
	}
	return copyCheckpoint(cps[len(cps)-1]), nil
}

// List returns copies of every snapshot for caseID in ascending order.
func (m *Store) List(_ context.Context, caseID string) ([]*checkpoint.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cps := m.checkpoints[caseID]
	out := make([]*checkpoint.Checkpoint, len(cps))
	for i, cp := range cps {
		out[i] = copyCheckpoint(cp)
	}
	return out, nil
}

// Clear drops every snapshot for caseID. The sequence counter is kept so
// numbers are never reused.
func (m *Store) Clear(_ context.Context, caseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.checkpoints, caseID)
	return nil
}

func copyCheckpoint(cp *checkpoint.Checkpoint) *checkpoint.Checkpoint {
	c := *cp
	c.State = cp.State.Clone()
	return &c
}
