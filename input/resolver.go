// Package input produces the initial script of a run from exactly one of
// three sources: a script file, a generated reverse-shell stub, or the
// clipboard.
package input

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailored-agentic-units/obfusengine/clipboard"
	"github.com/tailored-agentic-units/obfusengine/config"
	"github.com/tailored-agentic-units/obfusengine/observability"
	"github.com/tailored-agentic-units/obfusengine/technique"
)

// Source names the input mode that produced a script.
type Source string

const (
	SourceFile         Source = "file"
	SourceReverseShell Source = "reverse-shell"
	SourceClipboard    Source = "clipboard"
)

// EventResolved is emitted after a script has been resolved.
const EventResolved observability.EventType = "input.resolved"

// Script is the resolved input of a run.
type Script struct {
	Content string
	Domain  technique.Domain
	Source  Source

	// Origin is the file path, the host:port target, or "clipboard".
	Origin string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClipboard overrides the system clipboard.
func WithClipboard(c clipboard.Clipboard) Option {
	return func(r *Resolver) { r.clipboard = c }
}

// WithObserver sets the observer notified of resolved scripts.
func WithObserver(o observability.Observer) Option {
	return func(r *Resolver) { r.observer = o }
}

// Resolver resolves an InputConfig into a Script.
type Resolver struct {
	clipboard clipboard.Clipboard
	observer  observability.Observer
}

// NewResolver creates a Resolver using the system clipboard.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		clipboard: clipboard.System{},
		observer:  observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve produces the script selected by cfg. Selecting no source or more
// than one fails with a configuration error before anything is read.
func (r *Resolver) Resolve(ctx context.Context, cfg config.InputConfig) (Script, error) {
	switch modes := cfg.Modes(); len(modes) {
	case 0:
		return Script{}, config.ErrNoInput
	case 1:
	default:
		return Script{}, fmt.Errorf("%w: %s", config.ErrAmbiguousInput, strings.Join(modes, ", "))
	}

	var (
		script Script
		err    error
	)
	switch {
	case cfg.Path != "":
		script, err = r.fromFile(cfg.Path)
	case cfg.Clipboard:
		script, err = r.fromClipboard()
	default:
		script, err = r.fromTarget(cfg.IP, cfg.Port)
	}
	if err != nil {
		return Script{}, err
	}

	observability.Emit(ctx, r.observer, observability.Event{
		Type:   EventResolved,
		Level:  observability.LevelInfo,
		Source: "input.Resolve",
		Data: map[string]any{
			"source": string(script.Source),
			"origin": script.Origin,
			"domain": string(script.Domain),
			"length": len(script.Content),
		},
	})
	return script, nil
}

func (r *Resolver) fromFile(path string) (Script, error) {
	domain, ok := technique.DomainFromPath(path)
	if !ok {
		return Script{}, fmt.Errorf("%w: %s (want .ps1 or .py)", ErrUnsupportedExtension, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Script{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Script{}, fmt.Errorf("%w: %s: %v", ErrInputResolution, path, err)
	}

	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return Script{
		Content: string(data),
		Domain:  domain,
		Source:  SourceFile,
		Origin:  path,
	}, nil
}

func (r *Resolver) fromTarget(host string, port int) (Script, error) {
	if err := ValidateTarget(host, port); err != nil {
		return Script{}, err
	}
	return Script{
		Content: ReverseShell(host, port),
		Domain:  technique.PowerShell,
		Source:  SourceReverseShell,
		Origin:  fmt.Sprintf("%s:%d", host, port),
	}, nil
}

func (r *Resolver) fromClipboard() (Script, error) {
	text, err := r.clipboard.Read()
	if err != nil {
		return Script{}, fmt.Errorf("%w: %v", ErrEmptyClipboard, err)
	}
	if strings.TrimSpace(text) == "" {
		return Script{}, ErrEmptyClipboard
	}
	return Script{
		Content: text,
		Domain:  technique.PowerShell,
		Source:  SourceClipboard,
		Origin:  "clipboard",
	}, nil
}

// Materialize writes generated and clipboard scripts into dir as
// reverse_shell.ps1 or clipboard_script.ps1 and returns the path. File
// inputs already exist on disk and return their own path.
func Materialize(dir string, s Script) (string, error) {
	var name string
	switch s.Source {
	case SourceReverseShell:
		name = "reverse_shell" + s.Domain.Extension()
	case SourceClipboard:
		name = "clipboard_script" + s.Domain.Extension()
	default:
		return s.Origin, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(s.Content), 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path, nil
}
