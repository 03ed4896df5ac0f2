// Package pipeline executes a resolved chain of obfuscation techniques
// against one script and records every stage.
//
// # Chain semantics
//
// Stages run strictly in order. Each stage receives the previous stage's
// output, or the original content for the first stage:
//
//	Results[0].Input == Original
//	Results[i].Output == Results[i+1].Input
//
// The first failed stage stops the chain. Its StageResult is recorded with an
// empty output, no later stage runs, and Final keeps the last successful
// output (or Original). Run then returns a *StageError alongside the session:
// the partial artifact is valid and callers report the failure as a warning.
//
// # Timeouts and cancellation
//
// Every adapter call runs under a per-stage timeout; a timeout fails the
// stage like any other engine error. Cancellation of the caller's context is
// checked between stages. If it arrives while a stage runs, that stage's
// result is discarded, so the session only ever holds completed stages.
//
// # Observer events
//
//   - EventPipelineStart, EventPipelineComplete
//   - EventStageStart, EventStageComplete
package pipeline
