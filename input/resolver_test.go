package input_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tailored-agentic-units/obfusengine/clipboard"
	"github.com/tailored-agentic-units/obfusengine/config"
	"github.com/tailored-agentic-units/obfusengine/input"
	"github.com/tailored-agentic-units/obfusengine/technique"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolve_File(t *testing.T) {
	dir := t.TempDir()
	ps := writeFile(t, dir, "a.ps1", "Get-Process")
	py := writeFile(t, dir, "tool.PY", "print('hi')")
	txt := writeFile(t, dir, "notes.txt", "hello")

	tests := []struct {
		name       string
		path       string
		wantDomain technique.Domain
		wantErr    error
	}{
		{name: "powershell", path: ps, wantDomain: technique.PowerShell},
		{name: "python upper-case extension", path: py, wantDomain: technique.Python},
		{name: "unsupported extension", path: txt, wantErr: input.ErrUnsupportedExtension},
		{name: "missing file", path: filepath.Join(dir, "missing.ps1"), wantErr: input.ErrNotFound},
	}

	r := input.NewResolver(input.WithClipboard(clipboard.NewMemory("")))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script, err := r.Resolve(context.Background(), config.InputConfig{Path: tt.path})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				if !errors.Is(err, input.ErrInputResolution) {
					t.Errorf("Resolve() error = %v is not an input resolution error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if script.Domain != tt.wantDomain {
				t.Errorf("Domain = %q, want %q", script.Domain, tt.wantDomain)
			}
			if script.Source != input.SourceFile {
				t.Errorf("Source = %q, want file", script.Source)
			}
		})
	}
}

func TestResolve_ReverseShell(t *testing.T) {
	r := input.NewResolver()

	script, err := r.Resolve(context.Background(), config.InputConfig{IP: "10.0.0.5", Port: 4444})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if script.Domain != technique.PowerShell {
		t.Errorf("Domain = %q, want powershell", script.Domain)
	}
	for _, want := range []string{"10.0.0.5", "4444"} {
		if !strings.Contains(script.Content, want) {
			t.Errorf("stub does not contain %q", want)
		}
	}
	if script.Origin != "10.0.0.5:4444" {
		t.Errorf("Origin = %q", script.Origin)
	}
}

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		port    int
		wantErr bool
	}{
		{name: "ipv4", host: "10.0.0.5", port: 4444},
		{name: "hostname", host: "c2.example.com", port: 443},
		{name: "single label", host: "attacker", port: 1},
		{name: "upper-case hostname", host: "Lab.Example.COM", port: 65535},
		{name: "port too large", host: "10.0.0.5", port: 99999, wantErr: true},
		{name: "port zero", host: "10.0.0.5", port: 0, wantErr: true},
		{name: "octet out of range", host: "10.0.0.256", port: 4444, wantErr: true},
		{name: "ipv6", host: "::1", port: 4444, wantErr: true},
		{name: "underscore", host: "bad_host", port: 4444, wantErr: true},
		{name: "leading hyphen", host: "-lab.example.com", port: 4444, wantErr: true},
		{name: "empty", host: "", port: 4444, wantErr: true},
		{name: "spaces", host: "10.0.0.5; rm", port: 4444, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := input.ValidateTarget(tt.host, tt.port)
			if tt.wantErr {
				if !errors.Is(err, input.ErrInvalidTarget) {
					t.Errorf("ValidateTarget(%q, %d) error = %v, want %v", tt.host, tt.port, err, input.ErrInvalidTarget)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateTarget(%q, %d) error = %v", tt.host, tt.port, err)
			}
		})
	}
}

func TestResolve_InvalidTargetGeneratesNothing(t *testing.T) {
	script, err := input.NewResolver().Resolve(context.Background(), config.InputConfig{IP: "10.0.0.5", Port: 99999})
	if !errors.Is(err, input.ErrInvalidTarget) {
		t.Fatalf("Resolve() error = %v, want %v", err, input.ErrInvalidTarget)
	}
	if script.Content != "" {
		t.Errorf("Content = %q, want empty", script.Content)
	}
}

func TestResolve_Clipboard(t *testing.T) {
	failing := clipboard.NewMemory("")
	failing.ReadErr = clipboard.ErrUnavailable

	tests := []struct {
		name    string
		clip    clipboard.Clipboard
		wantErr error
	}{
		{name: "payload", clip: clipboard.NewMemory("powershell -nop -c iex(...)")},
		{name: "empty", clip: clipboard.NewMemory(""), wantErr: input.ErrEmptyClipboard},
		{name: "whitespace", clip: clipboard.NewMemory(" \n\t"), wantErr: input.ErrEmptyClipboard},
		{name: "unreadable", clip: failing, wantErr: input.ErrEmptyClipboard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := input.NewResolver(input.WithClipboard(tt.clip))
			script, err := r.Resolve(context.Background(), config.InputConfig{Clipboard: true})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if script.Domain != technique.PowerShell || script.Source != input.SourceClipboard {
				t.Errorf("Script = %+v", script)
			}
		})
	}
}

func TestResolve_ModeSelection(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.InputConfig
		wantErr error
	}{
		{name: "none", wantErr: config.ErrNoInput},
		{name: "file and target", cfg: config.InputConfig{Path: "a.ps1", IP: "10.0.0.5", Port: 4444}, wantErr: config.ErrAmbiguousInput},
		{name: "target and clipboard", cfg: config.InputConfig{IP: "10.0.0.5", Port: 4444, Clipboard: true}, wantErr: config.ErrAmbiguousInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := input.NewResolver().Resolve(context.Background(), tt.cfg)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Resolve() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMaterialize(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ObfusWorkspace")

	path, err := input.Materialize(dir, input.Script{
		Content: "Get-Process",
		Domain:  technique.PowerShell,
		Source:  input.SourceClipboard,
	})
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	if filepath.Base(path) != "clipboard_script.ps1" {
		t.Errorf("path = %q", path)
	}
	if data, _ := os.ReadFile(path); string(data) != "Get-Process" {
		t.Errorf("materialized content = %q", data)
	}

	same, err := input.Materialize(dir, input.Script{Source: input.SourceFile, Origin: "/tmp/a.ps1"})
	if err != nil || same != "/tmp/a.ps1" {
		t.Errorf("Materialize(file) = %q, %v", same, err)
	}
}
