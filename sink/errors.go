package sink

import (
	"errors"
	"fmt"
)

// ErrWrite marks a failed output target. Writes are not retried.
var ErrWrite = errors.New("write failed")

// TargetError identifies the output target that failed.
type TargetError struct {
	Target string
	Path   string
	Err    error
}

func (e *TargetError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s target: %v", e.Target, e.Err)
	}
	return fmt.Sprintf("%s target %s: %v", e.Target, e.Path, e.Err)
}

func (e *TargetError) Unwrap() error {
	return e.Err
}

// Is reports ErrWrite as a match.
func (e *TargetError) Is(target error) bool {
	return target == ErrWrite
}
