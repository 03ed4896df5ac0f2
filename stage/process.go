package stage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tailored-agentic-units/obfusengine/config"
	"github.com/tailored-agentic-units/obfusengine/technique"
)

const (
	maxDiagnostic = 2048
	waitDelay     = 5 * time.Second
)

// Process runs an engine script through an interpreter in a private
// temporary directory. The input artifact is written to a file, the engine
// writes its result to another, and the stage succeeds when the engine exits
// zero and the result file is non-empty.
type Process struct {
	ID          string
	Interpreter string
	Engine      string
	Args        []string
	ResultPath  string
	Extension   string
	Env         map[string]string
}

// NewProcess builds the adapter for spec with engine scripts under dir,
// applying override where its fields are set.
func NewProcess(spec technique.Spec, dir string, override config.EngineConfig) *Process {
	inv := spec.Invocation
	if override.Interpreter != "" {
		inv.Interpreter = override.Interpreter
	}
	if override.Script != "" {
		inv.Script = override.Script
	}
	if len(override.Args) > 0 {
		inv.Args = override.Args
	}

	engine := inv.Script
	if !filepath.IsAbs(engine) {
		engine = filepath.Join(dir, filepath.FromSlash(engine))
	}

	p := &Process{
		ID:          spec.ID,
		Interpreter: inv.Interpreter,
		Engine:      engine,
		Args:        append([]string(nil), inv.Args...),
		Extension:   spec.Domain.Extension(),
	}
	if inv.ResultPath != "" {
		p.ResultPath = filepath.Join(filepath.Dir(engine), filepath.FromSlash(inv.ResultPath))
	}
	return p
}

func (p *Process) Apply(ctx context.Context, content string) (Output, error) {
	if _, err := os.Stat(p.Engine); err != nil {
		return Output{}, fmt.Errorf("%w: %s: %s", ErrEngineMissing, p.ID, p.Engine)
	}

	tmpDir, err := os.MkdirTemp("", "obfusengine-"+p.ID+"-")
	if err != nil {
		return Output{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	inPath := filepath.Join(tmpDir, "input"+p.Extension)
	outPath := filepath.Join(tmpDir, "output"+p.Extension)
	if err := os.WriteFile(inPath, []byte(content), 0o600); err != nil {
		return Output{}, fmt.Errorf("write stage input: %w", err)
	}

	resultPath := outPath
	if p.ResultPath != "" {
		unlock, err := lockResult(ctx, p.ResultPath)
		if err != nil {
			return Output{}, fmt.Errorf("%s: %w", p.ID, err)
		}
		defer unlock()

		resultPath = p.ResultPath
		os.RemoveAll(filepath.Dir(p.ResultPath))
		defer os.RemoveAll(filepath.Dir(p.ResultPath))
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Interpreter, p.expand(inPath, outPath)...) // #nosec G204 -- invocation comes from the technique catalog.
	cmd.Dir = tmpDir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = buildEnv(tmpDir, p.Env)
	cmd.WaitDelay = waitDelay
	configureSysProc(cmd)

	runErr := cmd.Run()
	diag := diagnostic(stderr.String(), stdout.String())

	if ctxErr := ctx.Err(); ctxErr != nil {
		return Output{}, &DiagnosticError{Diagnostic: diag, Err: fmt.Errorf("%s: %w", p.ID, ctxErr)}
	}
	if runErr != nil {
		return Output{}, &DiagnosticError{Diagnostic: diag, Err: fmt.Errorf("%w: %s: %v", ErrEngineFailed, p.ID, runErr)}
	}

	data, err := os.ReadFile(resultPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Output{}, &DiagnosticError{Diagnostic: diag, Err: fmt.Errorf("%w: %s", ErrEmptyResult, p.ID)}
		}
		return Output{}, fmt.Errorf("read stage result: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return Output{}, &DiagnosticError{Diagnostic: diag, Err: fmt.Errorf("%w: %s", ErrEmptyResult, p.ID)}
	}

	return Output{Content: string(data), Diagnostic: diag}, nil
}

func (p *Process) expand(in, out string) []string {
	values := map[string]string{
		technique.PlaceholderInput:  in,
		technique.PlaceholderOutput: out,
		technique.PlaceholderEngine: p.Engine,
	}

	args := make([]string, len(p.Args))
	for i, arg := range p.Args {
		if v, ok := values[arg]; ok {
			args[i] = v
			continue
		}
		for ph, v := range values {
			arg = strings.ReplaceAll(arg, ph, strings.ReplaceAll(v, "'", "''"))
		}
		args[i] = arg
	}
	return args
}

func buildEnv(workDir string, overrides map[string]string) []string {
	base := map[string]string{
		"PATH":   os.Getenv("PATH"),
		"HOME":   os.Getenv("HOME"),
		"TMPDIR": workDir,
	}
	if base["HOME"] == "" {
		base["HOME"] = workDir
	}
	for k, v := range overrides {
		base[k] = v
	}

	env := make([]string, 0, len(base))
	for k, v := range base {
		if strings.TrimSpace(k) == "" {
			continue
		}
		env = append(env, k+"="+v)
	}
	return env
}

func diagnostic(stderr, stdout string) string {
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		msg = strings.TrimSpace(stdout)
	}
	if len(msg) > maxDiagnostic {
		msg = msg[:maxDiagnostic] + "..."
	}
	return msg
}

// Engines with a fixed ResultPath write into their own install directory, so
// runs sharing that path are serialized from cleanup to read-back. Locks are
// keyed by path and shared by every Process pointing at the same engine.
var resultLocks sync.Map

func lockResult(ctx context.Context, path string) (func(), error) {
	v, _ := resultLocks.LoadOrStore(filepath.Clean(path), make(chan struct{}, 1))
	sem := v.(chan struct{})

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
