package redis

import "strconv"

// Redis key naming conventions for caseflow data.
// All keys are prefixed with "caseflow:" to avoid collisions.

const keyPrefix = "caseflow:"

// ── Checkpoint keys ──

// seqKey returns the counter key for a case: caseflow:seq:{caseID}
func seqKey(caseID string) string { return keyPrefix + "seq:" + caseID }

// checkpointKey returns the Hash key for one snapshot: caseflow:checkpoint:{caseID}:{seq}
func checkpointKey(caseID string, seq uint64) string {
	return keyPrefix + "checkpoint:" + caseID + ":" + strconv.FormatUint(seq, 10)
}

// checkpointIndexKey returns the Sorted Set tracking a case's snapshots by seq.
func checkpointIndexKey(caseID string) string {
	return keyPrefix + "checkpoint_idx:" + caseID
}
