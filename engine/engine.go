// Package engine wires input resolution, technique resolution, the stage
// pipeline, encoding and output delivery into a single run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/tailored-agentic-units/obfusengine/clipboard"
	"github.com/tailored-agentic-units/obfusengine/config"
	"github.com/tailored-agentic-units/obfusengine/encoder"
	"github.com/tailored-agentic-units/obfusengine/input"
	"github.com/tailored-agentic-units/obfusengine/observability"
	"github.com/tailored-agentic-units/obfusengine/pipeline"
	"github.com/tailored-agentic-units/obfusengine/sink"
	"github.com/tailored-agentic-units/obfusengine/stage"
	"github.com/tailored-agentic-units/obfusengine/technique"
)

const (
	EventEngineCheck  observability.EventType = "engine.check"
	EventMaterialized observability.EventType = "engine.materialized"
)

// Engine runs obfuscation sessions from a resolved configuration. It holds
// no per-run state; every run owns a fresh Session.
type Engine struct {
	cfg       config.Config
	baseDir   string
	registry  *technique.Registry
	adapters  pipeline.Adapters
	clipboard clipboard.Clipboard
	observer  observability.Observer
	extra     []observability.Observer
	out       io.Writer
	progress  pipeline.ProgressFunc
	custom    bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry replaces the builtin technique catalog.
func WithRegistry(r *technique.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithAdapters replaces the engine subprocess adapters.
func WithAdapters(a pipeline.Adapters) Option {
	return func(e *Engine) {
		e.adapters = a
		e.custom = true
	}
}

// WithClipboard replaces the system clipboard for input and output.
func WithClipboard(c clipboard.Clipboard) Option {
	return func(e *Engine) { e.clipboard = c }
}

// WithObserver adds an observer that receives events alongside the one
// named in configuration.
func WithObserver(o observability.Observer) Option {
	return func(e *Engine) { e.extra = append(e.extra, o) }
}

// WithWriter sets where the summary and comparison view are printed.
func WithWriter(w io.Writer) Option {
	return func(e *Engine) { e.out = w }
}

// WithBaseDir sets the directory a relative engines directory is resolved
// against. Defaults to the output directory.
func WithBaseDir(dir string) Option {
	return func(e *Engine) { e.baseDir = dir }
}

// WithProgress registers a per-stage progress callback.
func WithProgress(fn pipeline.ProgressFunc) Option {
	return func(e *Engine) { e.progress = fn }
}

// New creates an Engine. A nil cfg uses config.DefaultConfig.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	c := config.DefaultConfig()
	if cfg != nil {
		c = *cfg
	}

	e := &Engine{
		cfg:       c,
		baseDir:   c.Output.Directory,
		clipboard: clipboard.System{},
		out:       os.Stdout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.baseDir == "" {
		e.baseDir = "."
	}

	name := c.Pipeline.Observer
	if name == "" {
		name = "noop"
	}
	obs, err := observability.GetObserver(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}
	e.observer = observability.NewMultiObserver(append([]observability.Observer{obs}, e.extra...)...)
	if e.registry == nil {
		e.registry = technique.Default()
	}
	if e.adapters == nil {
		e.adapters = stage.FromRegistry(e.registry, e.EnginesDir(), c.Engines)
	}
	return e, nil
}

// EnginesDir returns the absolute directory holding the engine scripts.
func (e *Engine) EnginesDir() string {
	dir := e.cfg.Engines.ResolvedDir(e.baseDir)
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

// Registry returns the technique catalog in use.
func (e *Engine) Registry() *technique.Registry {
	return e.registry
}

// Check reports engine availability for every registered technique.
func (e *Engine) Check() []stage.Availability {
	return stage.Check(e.registry, e.EnginesDir(), e.cfg.Engines)
}

// Run is the result of a completed run. A run that reaches the pipeline
// always produces a Session, even when a stage failed.
type Run struct {
	Script  input.Script
	Session *pipeline.Session
	Outcome sink.Outcome

	// Warning is the stage failure or cancellation that cut the chain short.
	Warning error

	// SinkErr joins the *sink.TargetError values of failed output targets.
	SinkErr error
}

// Partial reports whether the chain stopped before every planned stage ran.
func (r *Run) Partial() bool {
	return r.Warning != nil
}

// Run resolves the configured input and techniques, executes the chain,
// encodes the result and delivers it. Input and configuration errors are
// returned before any file is written. Stage failures and cancellation are
// reported on the returned Run.
func (e *Engine) Run(ctx context.Context) (*Run, error) {
	resolver := input.NewResolver(input.WithClipboard(e.clipboard), input.WithObserver(e.observer))
	script, err := resolver.Resolve(ctx, e.cfg.Input)
	if err != nil {
		return nil, err
	}

	requested := splitTechniques(e.cfg.Techniques)
	specs, err := e.registry.Resolve(requested, script.Domain)
	if err != nil {
		return nil, err
	}

	targets, err := sink.ResolveTargets(e.cfg.Output, script.Domain)
	if err != nil {
		return nil, err
	}

	if script.Source != input.SourceFile {
		path, err := input.Materialize(filepath.Dir(targets.Path), script)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", input.ErrInputResolution, err)
		}
		observability.Emit(ctx, e.observer, observability.Event{
			Type:   EventMaterialized,
			Level:  observability.LevelInfo,
			Source: "engine.Run",
			Data:   map[string]any{"source": string(script.Source), "path": path},
		})
	}

	if !e.custom {
		e.checkEngines(ctx, specs)
	}

	s, runErr := e.execute(ctx, script, requested, specs, e.cfg.Encode)
	if s == nil {
		return nil, runErr
	}

	run := &Run{Script: script, Session: s, Warning: runErr}

	k := sink.New(
		sink.WithClipboard(e.clipboard),
		sink.WithWriter(e.out),
		sink.WithObserver(e.observer),
		sink.WithPreviewLimit(e.cfg.Output.PreviewLimit),
	)
	run.Outcome, run.SinkErr = k.Emit(context.WithoutCancel(ctx), s, targets, e.cfg.View)
	return run, nil
}

// Request is a single obfuscation of an in-memory script.
type Request struct {
	Script     input.Script
	Techniques []string
	Encode     bool
}

// Obfuscate runs the chain for req without touching any output target.
// Configuration errors return a nil Session; a stage failure or
// cancellation returns the Session together with the error.
func (e *Engine) Obfuscate(ctx context.Context, req Request) (*pipeline.Session, error) {
	requested := splitTechniques(req.Techniques)
	specs, err := e.registry.Resolve(requested, req.Script.Domain)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, req.Script, requested, specs, req.Encode)
}

// splitTechniques accepts both list entries and comma-separated entries.
func splitTechniques(values []string) []string {
	var ids []string
	for _, v := range values {
		ids = append(ids, technique.ParseList(v)...)
	}
	return ids
}

func (e *Engine) execute(ctx context.Context, script input.Script, requested []string, specs []technique.Spec, encode bool) (*pipeline.Session, error) {
	ex, err := pipeline.NewExecutor(e.adapters, e.cfg.Pipeline,
		pipeline.WithObserver(e.observer),
		pipeline.WithProgress(e.progress),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}

	s := pipeline.NewSession(pipeline.Seed{
		Content:   script.Content,
		Domain:    script.Domain,
		Source:    string(script.Source),
		Origin:    script.Origin,
		Requested: requested,
	})

	s, err = ex.Run(ctx, s, specs)
	if err != nil && errors.Is(err, config.ErrConfiguration) {
		return nil, err
	}

	encoder.Apply(s, encode)
	return s, err
}

func (e *Engine) checkEngines(ctx context.Context, specs []technique.Spec) {
	planned := technique.IDs(specs)
	for _, a := range e.Check() {
		if !slices.Contains(planned, a.ID) {
			continue
		}
		level := observability.LevelVerbose
		if !a.Available {
			level = observability.LevelWarning
		}
		observability.Emit(ctx, e.observer, observability.Event{
			Type:   EventEngineCheck,
			Level:  level,
			Source: "engine.Run",
			Data: map[string]any{
				"technique": a.ID,
				"engine":    a.Engine,
				"available": a.Available,
			},
		})
	}
}
