package sink

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"github.com/tailored-agentic-units/obfusengine/pipeline"
)

const diagnosticWidth = 60

// WriteSummary prints sizes, output locations and the per-stage status
// table. Stages that never ran are listed as skipped.
func WriteSummary(w io.Writer, s *pipeline.Session, out Outcome) {
	original := len(s.Original())
	final := len(s.Deliverable())

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Results Summary")
	row(w, "Original Size", sizeText(original))
	row(w, "Obfuscated Size", sizeText(final))
	row(w, "Size Ratio", fmt.Sprintf("%.2fx", float64(final)/float64(max(original, 1))))
	if out.Path != "" {
		row(w, "Output File", out.Path)
	}
	if out.ReportPath != "" {
		row(w, "Report File", out.ReportPath)
	}
	if s.Encoded() {
		row(w, "Encoding", "base64")
	}
	if out.Copied {
		row(w, "Clipboard", "copied")
	}
	for _, warning := range out.Warnings {
		row(w, "Warning", warning)
	}

	rows := s.Summary()
	if len(rows) == 0 {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s %s %s %s\n",
		runewidth.FillRight("#", 3),
		runewidth.FillRight("Technique", 12),
		runewidth.FillRight("Status", 8),
		runewidth.FillRight("Duration", 10),
		"Diagnostic")
	for i, r := range rows {
		duration := "-"
		if r.Status != pipeline.StatusSkipped {
			duration = r.Duration.Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s %s %s %s %s\n",
			runewidth.FillRight(fmt.Sprint(i+1), 3),
			runewidth.FillRight(r.Technique, 12),
			runewidth.FillRight(string(r.Status), 8),
			runewidth.FillRight(duration, 10),
			firstLine(r.Diagnostic))
	}
}

func row(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %s %s\n", runewidth.FillRight(label, 16), value)
}

func sizeText(n int) string {
	return fmt.Sprintf("%s (%s bytes)", humanize.Bytes(uint64(n)), humanize.Comma(int64(n)))
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return runewidth.Truncate(text, diagnosticWidth, "…")
}
