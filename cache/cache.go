// Package cache holds the terminal state of completed case runs so front
// ends can serve GET /cases/{case_id} without touching the checkpoint
// store. Entries expire after the TTL given to Put.
package cache

import (
	"context"
	"time"

	"github.com/xraph/caseflow/state"
)

// Cache stores the last completed state per case.
type Cache interface {
	// Get returns the cached state for caseID, or caseflow.ErrCaseNotFound.
	Get(ctx context.Context, caseID string) (*state.WorkflowState, error)

	// Put stores a copy of st keyed by its case ID. A non-positive ttl
	// keeps the entry until it is overwritten.
	Put(ctx context.Context, st *state.WorkflowState, ttl time.Duration) error
}
