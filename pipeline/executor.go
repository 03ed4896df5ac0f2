package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tailored-agentic-units/obfusengine/config"
	"github.com/tailored-agentic-units/obfusengine/observability"
	"github.com/tailored-agentic-units/obfusengine/stage"
	"github.com/tailored-agentic-units/obfusengine/technique"
)

// Adapters looks up the stage adapter for a technique id. stage.Set
// implements it.
type Adapters interface {
	Get(id string) (stage.Adapter, error)
}

// ProgressFunc is called after each successful stage.
type ProgressFunc func(completed, total int, result StageResult)

// Option configures an Executor.
type Option func(*Executor)

// WithObserver overrides the observer resolved from configuration.
func WithObserver(o observability.Observer) Option {
	return func(e *Executor) { e.observer = o }
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Executor) { e.progress = fn }
}

// Executor runs technique chains. It holds no per-run state and may be
// shared by runs that each own their Session.
type Executor struct {
	adapters Adapters
	timeout  time.Duration
	observer observability.Observer
	progress ProgressFunc
}

// NewExecutor creates an Executor from configuration. The observer named in
// cfg is resolved through the observability registry.
func NewExecutor(adapters Adapters, cfg config.PipelineConfig, opts ...Option) (*Executor, error) {
	name := cfg.Observer
	if name == "" {
		name = "noop"
	}
	observer, err := observability.GetObserver(name)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve observer: %w", err)
	}

	e := &Executor{
		adapters: adapters,
		timeout:  cfg.StageTimeout.Std(),
		observer: observer,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run executes specs against s in order and returns s.
//
// Before any stage runs, every spec is checked against the session domain
// and its adapter is looked up; a problem there is a configuration error
// and leaves the session untouched. A failed stage stops the chain and
// returns a *StageError. Cancellation returns an error wrapping
// ErrCancelled. In both cases s reflects all completed stages.
func (e *Executor) Run(ctx context.Context, s *Session, specs []technique.Spec) (*Session, error) {
	if len(s.results) > 0 || len(s.planned) > 0 {
		return s, ErrSessionUsed
	}

	adapters := make([]stage.Adapter, len(specs))
	for i, spec := range specs {
		if spec.Domain != s.Domain() {
			return s, fmt.Errorf("%w: %s targets %s scripts, input is %s",
				technique.ErrDomainMismatch, spec.ID, spec.Domain, s.Domain())
		}
		a, err := e.adapters.Get(spec.ID)
		if err != nil {
			return s, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
		}
		adapters[i] = a
	}
	s.planned = technique.IDs(specs)

	e.emit(ctx, EventPipelineStart, observability.LevelInfo, map[string]any{
		"session":    s.ID(),
		"domain":     string(s.Domain()),
		"techniques": strings.Join(s.planned, ","),
		"timeout":    e.timeout.String(),
	})

	current := s.Original()
	for i, spec := range specs {
		if err := ctx.Err(); err != nil {
			return s, e.interrupt(ctx, s, err)
		}

		e.emit(ctx, EventStageStart, observability.LevelVerbose, map[string]any{
			"session":     s.ID(),
			"stage":       i + 1,
			"total":       len(specs),
			"technique":   spec.ID,
			"input_bytes": len(current),
		})

		result, err := e.runStage(ctx, adapters[i], spec, current)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return s, e.interrupt(ctx, s, ctxErr)
		}
		result.Index = i

		s.append(result)
		e.emitStage(ctx, s, result, len(specs))

		if err != nil {
			stageErr := &StageError{
				Index:      i,
				Technique:  spec.ID,
				Diagnostic: result.Diagnostic,
				Err:        err,
			}
			e.emit(ctx, EventPipelineComplete, observability.LevelWarning, map[string]any{
				"session":         s.ID(),
				"stages_complete": i,
				"failed":          spec.ID,
				"error":           true,
			})
			return s, stageErr
		}

		current = result.Output
		if e.progress != nil {
			e.progress(i+1, len(specs), result)
		}
	}

	e.emit(ctx, EventPipelineComplete, observability.LevelInfo, map[string]any{
		"session":         s.ID(),
		"stages_complete": len(specs),
		"final_bytes":     len(s.Final()),
		"error":           false,
	})
	return s, nil
}

func (e *Executor) runStage(ctx context.Context, a stage.Adapter, spec technique.Spec, input string) (StageResult, error) {
	stageCtx := ctx
	cancel := context.CancelFunc(func() {})
	if e.timeout > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	defer cancel()

	result := StageResult{
		Technique: spec.ID,
		Input:     input,
		StartedAt: time.Now(),
	}

	out, err := a.Apply(stageCtx, input)
	result.Duration = time.Since(result.StartedAt)

	if err == nil && strings.TrimSpace(out.Content) == "" {
		err = fmt.Errorf("%w: %s", stage.ErrEmptyResult, spec.ID)
	}
	if err != nil {
		if errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", e.timeout, err)
		}
		result.Status = StatusFailed
		result.Diagnostic = err.Error()
		return result, err
	}

	result.Status = StatusOK
	result.Output = out.Content
	result.Diagnostic = out.Diagnostic
	return result, nil
}

func (e *Executor) interrupt(ctx context.Context, s *Session, cause error) error {
	s.interrupted = true
	e.emit(ctx, EventPipelineComplete, observability.LevelWarning, map[string]any{
		"session":         s.ID(),
		"stages_complete": len(s.results),
		"error":           true,
		"error_type":      "cancellation",
	})
	return fmt.Errorf("%w after %d of %d stages: %w", ErrCancelled, len(s.results), len(s.planned), cause)
}

func (e *Executor) emitStage(ctx context.Context, s *Session, r StageResult, total int) {
	level := observability.LevelInfo
	if r.Status != StatusOK {
		level = observability.LevelWarning
	}
	data := map[string]any{
		"session":      s.ID(),
		"stage":        r.Index + 1,
		"total":        total,
		"technique":    r.Technique,
		"status":       string(r.Status),
		"duration":     r.Duration.Round(time.Millisecond).String(),
		"output_bytes": len(r.Output),
	}
	if r.Diagnostic != "" {
		data["diagnostic"] = r.Diagnostic
	}
	e.emit(ctx, EventStageComplete, level, data)
}

func (e *Executor) emit(ctx context.Context, t observability.EventType, level observability.Level, data map[string]any) {
	observability.Emit(ctx, e.observer, observability.Event{
		Type:   t,
		Level:  level,
		Source: "pipeline.Run",
		Data:   data,
	})
}
