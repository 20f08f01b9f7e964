package caseflow

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure for retry and routing decisions.
type Kind string

const (
	KindTransient        Kind = "transient"
	KindTimeout          Kind = "timeout"
	KindPermanentInput   Kind = "permanent_input"
	KindFatalStage       Kind = "fatal_stage"
	KindToleratedStage   Kind = "tolerated_stage"
	KindRoutingAmbiguous Kind = "routing_ambiguous"
	KindUnknown          Kind = "unknown"
)

// Error attaches a Kind (and optionally the stage name) to an underlying error.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("stage %s: %s: %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with the given kind. A nil err yields nil.
func NewError(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Transient marks err as a retryable, transient failure (network, rate limit, 5xx).
func Transient(err error) error { return NewError(KindTransient, err) }

// Timeout marks err as an attempt deadline overrun.
func Timeout(err error) error { return NewError(KindTimeout, err) }

// PermanentInput marks err as caused by malformed or missing input. Never retried.
func PermanentInput(err error) error { return NewError(KindPermanentInput, err) }

// KindOf reports the classification of err. Deadline overruns map to
// KindTimeout; anything unclassified is KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, ErrRoutingAmbiguous) {
		return KindRoutingAmbiguous
	}
	return KindUnknown
}
