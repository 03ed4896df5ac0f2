package sink

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tailored-agentic-units/obfusengine/config"
	"github.com/tailored-agentic-units/obfusengine/technique"
)

// Target names used in TargetError and events.
const (
	TargetFile      = "file"
	TargetReport    = "report"
	TargetClipboard = "clipboard"
)

// Targets selects where a deliverable goes.
type Targets struct {
	// Path is the absolute output file path. Empty disables the file target.
	Path string

	// Clipboard copies the deliverable after the file is written.
	Clipboard bool

	// Report writes the session report next to Path.
	Report bool
}

// DefaultName returns the output file name used when none is configured.
func DefaultName(domain technique.Domain) string {
	return "obfuscated" + domain.Extension()
}

// ResolveTargets builds Targets from output configuration. The output path
// is <directory>/<workspace>/<name>, made absolute.
func ResolveTargets(cfg config.OutputConfig, domain technique.Domain) (Targets, error) {
	name := cfg.Name
	if name == "" {
		name = DefaultName(domain)
	}
	if name != filepath.Base(name) || name == "." || name == ".." {
		return Targets{}, fmt.Errorf("%w: output name %q must be a plain file name", config.ErrConfiguration, name)
	}

	dir, err := filepath.Abs(cfg.WorkspaceDir())
	if err != nil {
		return Targets{}, fmt.Errorf("%w: output directory: %v", config.ErrConfiguration, err)
	}

	return Targets{
		Path:      filepath.Join(dir, name),
		Clipboard: cfg.Clipboard(),
		Report:    cfg.Report,
	}, nil
}

// ReportPath returns <stem>_report.json beside path.
func ReportPath(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(path), stem+"_report.json")
}
