package caseflow

import "github.com/xraph/caseflow/id"

// ID is the primary identifier type for runs and checkpoints.
type ID = id.ID
