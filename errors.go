package caseflow

import "errors"

var (
	// Store errors.
	ErrNoStore            = errors.New("caseflow: no checkpoint store configured")
	ErrStoreClosed        = errors.New("caseflow: store closed")
	ErrCheckpointNotFound = errors.New("caseflow: checkpoint not found")

	// Not found errors.
	ErrCaseNotFound  = errors.New("caseflow: case not found")
	ErrStageNotFound = errors.New("caseflow: stage not found")
	ErrRunNotFound   = errors.New("caseflow: run not found")

	// Conflict errors.
	ErrDuplicateStage = errors.New("caseflow: stage already registered")
	ErrRunActive      = errors.New("caseflow: case already has an active run")

	// State errors.
	ErrInvalidState       = errors.New("caseflow: invalid state transition")
	ErrRunNotActive       = errors.New("caseflow: case has no active run")
	ErrMaxRetriesExceeded = errors.New("caseflow: max retries exceeded")
	ErrCancelled          = errors.New("caseflow: run cancelled")

	// Routing and graph errors.
	ErrRoutingAmbiguous = errors.New("caseflow: routing decision ambiguous")
	ErrInvalidGraph     = errors.New("caseflow: invalid stage graph")
)
