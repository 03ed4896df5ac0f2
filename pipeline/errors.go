package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrStageFailed marks a chain stopped by a failed stage. The session
	// returned with it is still usable.
	ErrStageFailed = errors.New("stage failed")

	// ErrCancelled marks a chain stopped by context cancellation.
	ErrCancelled = errors.New("pipeline cancelled")

	// ErrSessionUsed is returned when Run is given a session that already
	// holds stage results.
	ErrSessionUsed = errors.New("session already executed")
)

// StageError describes the stage that stopped the chain.
type StageError struct {
	// Index is the 0-based position of the failed stage.
	Index int

	// Technique is the id of the failed technique.
	Technique string

	// Diagnostic is the engine's message, as recorded in the StageResult.
	Diagnostic string

	// Err is the adapter error.
	Err error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s) failed: %v", e.Index+1, e.Technique, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Is reports ErrStageFailed as a match so callers can test the category
// without a type assertion.
func (e *StageError) Is(target error) bool {
	return target == ErrStageFailed
}
