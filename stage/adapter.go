// Package stage adapts external obfuscation engines to the single contract
// the pipeline executes: text in, text out, or an error with a diagnostic.
//
// Adapters are stateless. They receive only the content of one stage and
// never see the session that drives them.
package stage

import (
	"context"
	"errors"
)

// Output is the normalized result of one engine call. Diagnostic carries the
// engine's own messages (stderr) and may be set on success.
type Output struct {
	Content    string
	Diagnostic string
}

// Adapter runs one technique against one artifact.
type Adapter interface {
	Apply(ctx context.Context, content string) (Output, error)
}

// Func adapts a plain function to Adapter.
type Func func(ctx context.Context, content string) (Output, error)

func (f Func) Apply(ctx context.Context, content string) (Output, error) {
	return f(ctx, content)
}

// Sentinel errors for engine invocation.
var (
	ErrEngineMissing = errors.New("engine not found")
	ErrEngineFailed  = errors.New("engine failed")
	ErrEmptyResult   = errors.New("engine produced no output")
	ErrNoAdapter     = errors.New("no adapter for technique")
)

// Diagnostic extracts the diagnostic attached to err by an adapter, if any.
func Diagnostic(err error) string {
	var de *DiagnosticError
	if errors.As(err, &de) {
		return de.Diagnostic
	}
	return ""
}

// DiagnosticError pairs an engine failure with the engine's own output.
type DiagnosticError struct {
	Diagnostic string
	Err        error
}

func (e *DiagnosticError) Error() string {
	if e.Diagnostic == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Diagnostic
}

func (e *DiagnosticError) Unwrap() error {
	return e.Err
}
