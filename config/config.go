package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultWorkspace    = "ObfusWorkspace"
	DefaultEnginesDir   = "Obfuscation_Technique"
	DefaultStageTimeout = 2 * time.Minute
	DefaultPreviewLimit = 500
)

// Config is the resolved configuration for one run.
type Config struct {
	Input      InputConfig    `json:"input" yaml:"input"`
	Techniques []string       `json:"techniques,omitempty" yaml:"techniques,omitempty"`
	Output     OutputConfig   `json:"output" yaml:"output"`
	Encode     bool           `json:"encode,omitempty" yaml:"encode,omitempty"`
	View       bool           `json:"view,omitempty" yaml:"view,omitempty"`
	Pipeline   PipelineConfig `json:"pipeline" yaml:"pipeline"`
	Engines    EnginesConfig  `json:"engines" yaml:"engines"`
}

// InputConfig selects exactly one input source: a script file, a
// reverse-shell target, or the clipboard.
type InputConfig struct {
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	IP        string `json:"ip,omitempty" yaml:"ip,omitempty"`
	Port      int    `json:"port,omitempty" yaml:"port,omitempty"`
	Clipboard bool   `json:"clipboard,omitempty" yaml:"clipboard,omitempty"`
}

// Modes returns the names of the selected input sources.
func (c *InputConfig) Modes() []string {
	var modes []string
	if c.Path != "" {
		modes = append(modes, "file")
	}
	if c.IP != "" || c.Port != 0 {
		modes = append(modes, "reverse-shell")
	}
	if c.Clipboard {
		modes = append(modes, "clipboard")
	}
	return modes
}

func (c *InputConfig) Merge(source *InputConfig) {
	if source.Path != "" {
		c.Path = source.Path
	}
	if source.IP != "" {
		c.IP = source.IP
	}
	if source.Port != 0 {
		c.Port = source.Port
	}
	if source.Clipboard {
		c.Clipboard = source.Clipboard
	}
}

// OutputConfig controls where and how the deliverable is written.
type OutputConfig struct {
	// Directory is the base directory; the workspace is created beneath it.
	Directory string `json:"directory,omitempty" yaml:"directory,omitempty"`

	// Workspace is the sub-directory holding generated inputs and outputs.
	Workspace string `json:"workspace,omitempty" yaml:"workspace,omitempty"`

	// Name is the output file name. Empty selects obfuscated.ps1 or
	// obfuscated.py from the script domain.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// ClipboardNil controls the clipboard copy. Use Clipboard() to read it.
	ClipboardNil *bool `json:"clipboard,omitempty" yaml:"clipboard,omitempty"`

	// Report writes <stem>_report.json next to the output.
	Report bool `json:"report,omitempty" yaml:"report,omitempty"`

	// PreviewLimit truncates each side of the comparison view.
	PreviewLimit int `json:"preview_limit,omitempty" yaml:"preview_limit,omitempty"`
}

// Clipboard reports whether the deliverable is copied to the clipboard.
// Defaults to true.
func (c *OutputConfig) Clipboard() bool {
	if c.ClipboardNil == nil {
		return true
	}
	return *c.ClipboardNil
}

// WorkspaceDir returns Directory joined with Workspace.
func (c *OutputConfig) WorkspaceDir() string {
	return filepath.Join(c.Directory, c.Workspace)
}

func (c *OutputConfig) Merge(source *OutputConfig) {
	if source.Directory != "" {
		c.Directory = source.Directory
	}
	if source.Workspace != "" {
		c.Workspace = source.Workspace
	}
	if source.Name != "" {
		c.Name = source.Name
	}
	if source.ClipboardNil != nil {
		c.ClipboardNil = source.ClipboardNil
	}
	if source.Report {
		c.Report = source.Report
	}
	if source.PreviewLimit > 0 {
		c.PreviewLimit = source.PreviewLimit
	}
}

// PipelineConfig controls stage execution.
type PipelineConfig struct {
	// StageTimeout bounds a single engine invocation. A timeout fails the stage.
	StageTimeout Duration `json:"stage_timeout,omitempty" yaml:"stage_timeout,omitempty"`

	// Observer names the observability observer ("slog", "noop", ...).
	Observer string `json:"observer,omitempty" yaml:"observer,omitempty"`
}

func (c *PipelineConfig) Merge(source *PipelineConfig) {
	if source.StageTimeout > 0 {
		c.StageTimeout = source.StageTimeout
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// EnginesConfig locates the external obfuscation engines.
type EnginesConfig struct {
	// Dir holds the engine scripts. Relative paths resolve against
	// OutputConfig.Directory.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`

	// Overrides replaces parts of a technique's invocation, keyed by id.
	Overrides map[string]EngineConfig `json:"overrides,omitempty" yaml:"overrides,omitempty"`
}

// EngineConfig overrides a technique invocation. Empty fields keep the
// builtin value.
type EngineConfig struct {
	Interpreter string   `json:"interpreter,omitempty" yaml:"interpreter,omitempty"`
	Script      string   `json:"script,omitempty" yaml:"script,omitempty"`
	Args        []string `json:"args,omitempty" yaml:"args,omitempty"`
}

func (c *EnginesConfig) Merge(source *EnginesConfig) {
	if source.Dir != "" {
		c.Dir = source.Dir
	}
	if len(source.Overrides) > 0 {
		if c.Overrides == nil {
			c.Overrides = make(map[string]EngineConfig, len(source.Overrides))
		}
		for id, o := range source.Overrides {
			c.Overrides[strings.ToLower(id)] = o
		}
	}
}

// ResolvedDir returns Dir, joined with base when relative.
func (c *EnginesConfig) ResolvedDir(base string) string {
	if filepath.IsAbs(c.Dir) {
		return c.Dir
	}
	return filepath.Join(base, c.Dir)
}

// DefaultConfig returns a Config with defaults for every section. No input
// source and no techniques are selected.
func DefaultConfig() Config {
	return Config{
		Output: OutputConfig{
			Directory:    ".",
			Workspace:    DefaultWorkspace,
			PreviewLimit: DefaultPreviewLimit,
		},
		Pipeline: PipelineConfig{
			StageTimeout: Duration(DefaultStageTimeout),
			Observer:     "slog",
		},
		Engines: EnginesConfig{
			Dir: DefaultEnginesDir,
		},
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	c.Input.Merge(&source.Input)
	c.Output.Merge(&source.Output)
	c.Pipeline.Merge(&source.Pipeline)
	c.Engines.Merge(&source.Engines)

	if len(source.Techniques) > 0 {
		c.Techniques = append([]string(nil), source.Techniques...)
	}
	if source.Encode {
		c.Encode = source.Encode
	}
	if source.View {
		c.View = source.View
	}
}

// Validate checks that exactly one input source is selected.
func (c *Config) Validate() error {
	switch modes := c.Input.Modes(); len(modes) {
	case 0:
		return ErrNoInput
	case 1:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrAmbiguousInput, strings.Join(modes, ", "))
	}
}

// LoadConfig reads a JSON or YAML config file, merges it over the defaults
// and returns the result.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &loaded)
	default:
		err = json.Unmarshal(data, &loaded)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
