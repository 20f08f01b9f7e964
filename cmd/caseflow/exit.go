package main

import (
	"errors"
	"fmt"

	"github.com/xraph/caseflow/state"
)

// Process exit codes.
const (
	exitOK        = 0
	exitFailed    = 1
	exitPaused    = 2
	exitConfig    = 3
	exitTransport = 4
)

// exitError carries a process exit code through cobra's error return.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func configError(err error) error    { return &exitError{code: exitConfig, err: err} }
func transportError(err error) error { return &exitError{code: exitTransport, err: err} }

// statusError reports a non-completed run through its exit code. The
// summary has already been printed, so no message is attached.
func statusError(s state.Status) error {
	switch s {
	case state.StatusCompleted:
		return nil
	case state.StatusPaused:
		return &exitError{code: exitPaused}
	default:
		return &exitError{code: exitFailed}
	}
}

// exitCode maps an error returned by a command to a process exit code.
// Errors without an explicit code come from flag parsing.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitConfig
}
