// Package checkpoint defines durable, immutable snapshots of a case's
// WorkflowState and the persistence contract every backend implements.
//
// Snapshots are written after each graph node resolves. Per case they
// carry a strictly increasing sequence number assigned by the store, so
// the latest snapshot is always the one with the highest Seq.
package checkpoint

import (
	"context"
	"time"

	"github.com/xraph/caseflow/id"
	"github.com/xraph/caseflow/state"
)

// Checkpoint is an immutable snapshot of a WorkflowState.
type Checkpoint struct {
	ID        id.CheckpointID      `json:"id"`
	CaseID    string               `json:"case_id"`
	Seq       uint64               `json:"seq"`
	Stage     string               `json:"stage"`
	Status    state.Status         `json:"status"`
	State     *state.WorkflowState `json:"state"`
	CreatedAt time.Time            `json:"created_at"`
}

// New builds a checkpoint for st with the given sequence number. The
// state is deep-copied so later mutation of st cannot leak into it.
func New(seq uint64, st *state.WorkflowState) *Checkpoint {
	return &Checkpoint{
		ID:        id.NewCheckpointID(),
		CaseID:    st.CaseID,
		Seq:       seq,
		Stage:     st.CurrentStage,
		Status:    st.Status,
		State:     st.Clone(),
		CreatedAt: time.Now().UTC(),
	}
}

// Store defines the persistence contract for checkpoints.
type Store interface {
	// Save persists an immutable snapshot of st under caseID and returns
	// its ID. Sequence numbers are assigned by the store.
	Save(ctx context.Context, caseID string, st *state.WorkflowState) (id.CheckpointID, error)

	// Latest returns the most recent snapshot for caseID, or
	// caseflow.ErrCheckpointNotFound.
	Latest(ctx context.Context, caseID string) (*Checkpoint, error)

	// List returns every snapshot for caseID in ascending Seq order.
	List(ctx context.Context, caseID string) ([]*Checkpoint, error)

	// Clear removes every snapshot for caseID.
	Clear(ctx context.Context, caseID string) error
}
