package stage_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tailored-agentic-units/obfusengine/config"
	"github.com/tailored-agentic-units/obfusengine/stage"
	"github.com/tailored-agentic-units/obfusengine/technique"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("engine scripts are POSIX shell")
	}
}

func writeEngine(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
}

func shellSpec(id, script string) technique.Spec {
	return technique.Spec{
		ID:     id,
		Domain: technique.PowerShell,
		Invocation: technique.Invocation{
			Interpreter: "sh",
			Script:      script,
			Args:        []string{"{engine}", "{input}", "{output}"},
		},
	}
}

func TestProcess_Apply(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	writeEngine(t, dir, "upper.sh", `tr 'a-z' 'A-Z' < "$1" > "$2"; echo "renamed 1 token" >&2`)

	p := stage.NewProcess(shellSpec("upper", "upper.sh"), dir, config.EngineConfig{})
	out, err := p.Apply(context.Background(), "get-process")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if out.Content != "GET-PROCESS" {
		t.Errorf("Content = %q, want %q", out.Content, "GET-PROCESS")
	}
	if out.Diagnostic != "renamed 1 token" {
		t.Errorf("Diagnostic = %q", out.Diagnostic)
	}
}

func TestProcess_Apply_Failures(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	writeEngine(t, dir, "fail.sh", `echo "parse error at line 1" >&2; exit 3`)
	writeEngine(t, dir, "silent.sh", `: > "$2"`)

	tests := []struct {
		name     string
		script   string
		wantErr  error
		wantDiag string
	}{
		{name: "non-zero exit", script: "fail.sh", wantErr: stage.ErrEngineFailed, wantDiag: "parse error at line 1"},
		{name: "empty result", script: "silent.sh", wantErr: stage.ErrEmptyResult},
		{name: "missing engine", script: "absent.sh", wantErr: stage.ErrEngineMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := stage.NewProcess(shellSpec("x", tt.script), dir, config.EngineConfig{})
			out, err := p.Apply(context.Background(), "Get-Process")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Apply() error = %v, want %v", err, tt.wantErr)
			}
			if out.Content != "" {
				t.Errorf("Content = %q on failure, want empty", out.Content)
			}
			if got := stage.Diagnostic(err); got != tt.wantDiag {
				t.Errorf("Diagnostic(err) = %q, want %q", got, tt.wantDiag)
			}
		})
	}
}

func TestProcess_Apply_Timeout(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	writeEngine(t, dir, "slow.sh", `sleep 10; cp "$1" "$2"`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	p := stage.NewProcess(shellSpec("slow", "slow.sh"), dir, config.EngineConfig{})
	_, err := p.Apply(ctx, "Get-Process")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Apply() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 8*time.Second {
		t.Errorf("Apply() returned after %v, engine was not stopped", elapsed)
	}
}

func TestProcess_Apply_ResultPath(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	writeEngine(t, dir, "Py/engine.sh", `mkdir -p "$(dirname "$0")/tmp"; sed 's/Get-Process/gps/' "$1" > "$(dirname "$0")/tmp/script.ps1"`)

	spec := technique.Spec{
		ID:     "py",
		Domain: technique.Python,
		Invocation: technique.Invocation{
			Interpreter: "sh",
			Script:      "Py/engine.sh",
			Args:        []string{"{engine}", "{input}"},
			ResultPath:  "tmp/script.ps1",
		},
	}

	out, err := stage.NewProcess(spec, dir, config.EngineConfig{}).Apply(context.Background(), "Get-Process\n")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if strings.TrimSpace(out.Content) != "gps" {
		t.Errorf("Content = %q, want gps", out.Content)
	}
	if _, err := os.Stat(filepath.Join(dir, "Py", "tmp")); !os.IsNotExist(err) {
		t.Errorf("engine tmp directory not removed: %v", err)
	}
}

func TestProcess_Apply_ResultPathConcurrent(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	writeEngine(t, dir, "Py/engine.sh", `out="$(dirname "$0")/tmp"; mkdir -p "$out"; cp "$1" "$out/script.ps1"; sleep 0.2`)

	spec := technique.Spec{
		ID:     "py",
		Domain: technique.Python,
		Invocation: technique.Invocation{
			Interpreter: "sh",
			Script:      "Py/engine.sh",
			Args:        []string{"{engine}", "{input}"},
			ResultPath:  "tmp/script.ps1",
		},
	}
	shared := stage.NewProcess(spec, dir, config.EngineConfig{})
	other := stage.NewProcess(spec, dir, config.EngineConfig{})

	const runs = 6
	var wg sync.WaitGroup
	got := make([]string, runs)
	errs := make([]error, runs)
	for i := range runs {
		p := shared
		if i%2 == 1 {
			p = other
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := p.Apply(context.Background(), fmt.Sprintf("session-%d", i))
			got[i], errs[i] = out.Content, err
		}()
	}
	wg.Wait()

	for i := range runs {
		if errs[i] != nil {
			t.Errorf("run %d: Apply() error = %v", i, errs[i])
			continue
		}
		if want := fmt.Sprintf("session-%d", i); got[i] != want {
			t.Errorf("run %d received %q, want %q", i, got[i], want)
		}
	}
}

func TestProcess_Apply_ResultPathWaitHonorsContext(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	writeEngine(t, dir, "Py/engine.sh", `out="$(dirname "$0")/tmp"; mkdir -p "$out"; sleep 1; cp "$1" "$out/script.ps1"`)

	spec := technique.Spec{
		ID:     "py",
		Domain: technique.Python,
		Invocation: technique.Invocation{
			Interpreter: "sh",
			Script:      "Py/engine.sh",
			Args:        []string{"{engine}", "{input}"},
			ResultPath:  "tmp/script.ps1",
		},
	}
	p := stage.NewProcess(spec, dir, config.EngineConfig{})

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := p.Apply(context.Background(), "first")
		done <- err
	}()
	<-started
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := p.Apply(ctx, "second"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("waiting Apply() error = %v, want deadline exceeded", err)
	}
	if err := <-done; err != nil {
		t.Errorf("first Apply() error = %v", err)
	}
}

func TestNewProcess_Override(t *testing.T) {
	spec, _ := technique.Default().Lookup("chameleon")
	p := stage.NewProcess(spec, "/opt/engines", config.EngineConfig{Interpreter: "python3.12"})

	if p.Interpreter != "python3.12" {
		t.Errorf("Interpreter = %q, want python3.12", p.Interpreter)
	}
	if want := filepath.Join("/opt/engines", "Chameleon", "chameleon.py"); p.Engine != want {
		t.Errorf("Engine = %q, want %q", p.Engine, want)
	}
	if p.Extension != ".ps1" {
		t.Errorf("Extension = %q, want .ps1", p.Extension)
	}
}

func TestProcess_Apply_QuotesEmbeddedPaths(t *testing.T) {
	requireShell(t)
	dir := filepath.Join(t.TempDir(), "it's here")
	writeEngine(t, dir, "echo.sh", `printf '%s' "$1" > "$2"`)

	spec := technique.Spec{
		ID:     "quote",
		Domain: technique.PowerShell,
		Invocation: technique.Invocation{
			Interpreter: "sh",
			Script:      "echo.sh",
			Args:        []string{"{engine}", "Import-Module '{engine}'", "{output}"},
		},
	}

	out, err := stage.NewProcess(spec, dir, config.EngineConfig{}).Apply(context.Background(), "x")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !strings.Contains(out.Content, "it''s here") {
		t.Errorf("embedded path not escaped: %q", out.Content)
	}
}

func TestSet_Get(t *testing.T) {
	set := stage.Set{"invoke": stage.Func(func(_ context.Context, c string) (stage.Output, error) {
		return stage.Output{Content: c}, nil
	})}

	if _, err := set.Get("invoke"); err != nil {
		t.Errorf("Get(invoke) error = %v", err)
	}
	if _, err := set.Get("chameleon"); !errors.Is(err, stage.ErrNoAdapter) {
		t.Errorf("Get(chameleon) error = %v, want %v", err, stage.ErrNoAdapter)
	}
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	writeEngine(t, dir, "Invoke-PSObfuscation.ps1", "# module")

	report := stage.Check(technique.Default(), dir, config.EnginesConfig{})
	if len(report) != 4 {
		t.Fatalf("Check() returned %d entries, want 4", len(report))
	}
	for _, a := range report {
		if want := a.ID == "invoke"; a.Available != want {
			t.Errorf("%s Available = %v, want %v", a.ID, a.Available, want)
		}
	}
}

func TestFromRegistry(t *testing.T) {
	set := stage.FromRegistry(technique.Default(), "/engines", config.EnginesConfig{})
	for _, id := range []string{"invoke", "xencrypt", "chameleon", "pyfuscation"} {
		if _, err := set.Get(id); err != nil {
			t.Errorf("Get(%s) error = %v", id, err)
		}
	}
}
