// Package sink delivers a session's deliverable to the configured targets
// and renders the run summary and comparison view.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"

	"github.com/tailored-agentic-units/obfusengine/clipboard"
	"github.com/tailored-agentic-units/obfusengine/config"
	"github.com/tailored-agentic-units/obfusengine/observability"
	"github.com/tailored-agentic-units/obfusengine/pipeline"
	"github.com/tailored-agentic-units/obfusengine/report"
)

const (
	EventWrite     observability.EventType = "sink.write"
	EventClipboard observability.EventType = "sink.clipboard"
)

// Outcome describes what Emit delivered.
type Outcome struct {
	Path       string
	ReportPath string
	Copied     bool

	// Warnings holds best-effort failures that did not fail the emit.
	Warnings []string
}

// Option configures a Sink.
type Option func(*Sink)

// WithClipboard overrides the system clipboard.
func WithClipboard(c clipboard.Clipboard) Option {
	return func(s *Sink) { s.clipboard = c }
}

// WithWriter sets the destination of the summary and comparison view.
func WithWriter(w io.Writer) Option {
	return func(s *Sink) { s.out = w }
}

// WithObserver sets the observer notified of writes.
func WithObserver(o observability.Observer) Option {
	return func(s *Sink) { s.observer = o }
}

// WithPreviewLimit sets the character limit of each comparison column.
func WithPreviewLimit(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.previewLimit = n
		}
	}
}

// WithColor forces ANSI color on or off. By default color is used only when
// the writer is a terminal.
func WithColor(enabled bool) Option {
	return func(s *Sink) { s.color = &enabled }
}

// Sink writes deliverables. It holds no per-run state.
type Sink struct {
	clipboard    clipboard.Clipboard
	out          io.Writer
	observer     observability.Observer
	previewLimit int
	color        *bool
}

// New creates a Sink writing its summary to stdout.
func New(opts ...Option) *Sink {
	s := &Sink{
		clipboard:    clipboard.System{},
		out:          os.Stdout,
		observer:     observability.NoOpObserver{},
		previewLimit: config.DefaultPreviewLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.color == nil {
		color := isTerminal(s.out)
		s.color = &color
	}
	return s
}

// Emit delivers the session deliverable to t, then prints the run summary
// and, when view is set, the comparison view. File and report failures are
// returned as *TargetError values joined together; a clipboard failure is
// only recorded in Outcome.Warnings.
func (s *Sink) Emit(ctx context.Context, sess *pipeline.Session, t Targets, view bool) (Outcome, error) {
	var (
		out  Outcome
		errs []error
	)

	if t.Path != "" {
		data := []byte(sess.Deliverable())
		if err := writeAtomic(t.Path, data); err != nil {
			errs = append(errs, &TargetError{Target: TargetFile, Path: t.Path, Err: err})
		} else {
			out.Path = t.Path
			s.emitWrite(ctx, sess, TargetFile, t.Path, len(data))
		}

		if t.Report {
			path := ReportPath(t.Path)
			if err := s.writeReport(sess, path); err != nil {
				errs = append(errs, &TargetError{Target: TargetReport, Path: path, Err: err})
			} else {
				out.ReportPath = path
				s.emitWrite(ctx, sess, TargetReport, path, 0)
			}
		}
	}

	if t.Clipboard {
		if err := s.clipboard.Write(sess.Deliverable()); err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("clipboard copy failed: %v", err))
			observability.Emit(ctx, s.observer, observability.Event{
				Type:   EventClipboard,
				Level:  observability.LevelWarning,
				Source: "sink.Emit",
				Data:   map[string]any{"session": sess.ID(), "error": err.Error()},
			})
		} else {
			out.Copied = true
			observability.Emit(ctx, s.observer, observability.Event{
				Type:   EventClipboard,
				Level:  observability.LevelVerbose,
				Source: "sink.Emit",
				Data:   map[string]any{"session": sess.ID(), "bytes": len(sess.Deliverable())},
			})
		}
	}

	if s.out != nil {
		WriteSummary(s.out, sess, out)
		if view {
			WriteComparison(s.out, sess, s.previewLimit, *s.color)
		}
	}

	return out, errors.Join(errs...)
}

func (s *Sink) writeReport(sess *pipeline.Session, path string) error {
	data, err := report.Marshal(sess)
	if err != nil {
		return err
	}
	return writeAtomic(path, append(data, '\n'))
}

func (s *Sink) emitWrite(ctx context.Context, sess *pipeline.Session, target, path string, size int) {
	data := map[string]any{
		"session": sess.ID(),
		"target":  target,
		"path":    path,
	}
	if size > 0 {
		data["bytes"] = size
	}
	observability.Emit(ctx, s.observer, observability.Event{
		Type:   EventWrite,
		Level:  observability.LevelInfo,
		Source: "sink.Emit",
		Data:   data,
	})
}

// writeAtomic writes data to a temp file in the destination directory and
// renames it over path, so a failed write never leaves a partial file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
