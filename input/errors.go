package input

import (
	"errors"
	"fmt"
)

// ErrInputResolution is the category for every failure to produce the
// initial script. These errors are fatal: no pipeline runs.
var ErrInputResolution = errors.New("input resolution failed")

var (
	ErrNotFound             = fmt.Errorf("%w: script not found", ErrInputResolution)
	ErrUnsupportedExtension = fmt.Errorf("%w: unsupported script extension", ErrInputResolution)
	ErrInvalidTarget        = fmt.Errorf("%w: invalid reverse-shell target", ErrInputResolution)
	ErrEmptyClipboard       = fmt.Errorf("%w: clipboard is empty", ErrInputResolution)
)
