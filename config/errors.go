package config

import (
	"errors"
	"fmt"
)

// ErrConfiguration is the category for every error detected before the
// pipeline runs: input mode selection, unknown or mismatched techniques.
var ErrConfiguration = errors.New("configuration error")

var (
	ErrAmbiguousInput = fmt.Errorf("%w: more than one input source selected", ErrConfiguration)
	ErrNoInput        = fmt.Errorf("%w: no input source selected", ErrConfiguration)
)
