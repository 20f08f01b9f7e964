package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/caseflow/state"
)

// NextPending returns the node a resumed run would start with, taken from
// the latest snapshot. It is empty for terminal states.
func NextPending(ctx context.Context, s Store, caseID string) (string, error) {
	cp, err := s.Latest(ctx, caseID)
	if err != nil {
		return "", err
	}
	if cp.State.Status.IsTerminal() {
		return "", nil
	}
	if cp.State.NextStage != "" {
		return cp.State.NextStage, nil
	}
	return cp.State.CurrentStage, nil
}

// TimelineEntry represents a single snapshot in a case's history.
type TimelineEntry struct {
	Seq       uint64       `json:"seq"`
	Stage     string       `json:"stage"`
	Status    state.Status `json:"status"`
	Errors    int          `json:"errors"`
	CreatedAt time.Time    `json:"created_at"`
}

// Timeline returns an ordered view of every snapshot written for caseID.
func Timeline(ctx context.Context, s Store, caseID string) ([]TimelineEntry, error) {
	cps, err := s.List(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints for case %s: %w", caseID, err)
	}

	entries := make([]TimelineEntry, len(cps))
	for i, cp := range cps {
		entries[i] = TimelineEntry{
			Seq:       cp.Seq,
			Stage:     cp.Stage,
			Status:    cp.Status,
			Errors:    len(cp.State.Errors),
			CreatedAt: cp.CreatedAt,
		}
	}
	return entries, nil
}
