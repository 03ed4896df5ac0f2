package sink

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/tailored-agentic-units/obfusengine/pipeline"
)

const (
	columnWidth   = 56
	encodedLimit  = 200
	columnDivider = " │ "

	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiGreen  = "\x1b[32m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
)

// WriteComparison prints the original script beside the final artifact,
// each truncated to limit characters. After a mid-chain failure the right
// column shows the last successful stage output. The session is not
// modified.
func WriteComparison(w io.Writer, s *pipeline.Session, limit int, color bool) {
	right := "Obfuscated Script"
	if last, ok := s.LastSuccessful(); ok && !s.Complete() {
		right = fmt.Sprintf("Obfuscated Script (through %s)", last.Technique)
	} else if !ok {
		right = "Obfuscated Script (no stage succeeded)"
	}

	left := wrap(Truncate(s.Original(), limit), columnWidth)
	rightLines := wrap(Truncate(s.Final(), limit), columnWidth)

	fmt.Fprintln(w)
	fmt.Fprintln(w, paint(color, ansiBold, "Script Comparison"))
	fmt.Fprintf(w, "%s%s%s\n",
		paint(color, ansiGreen, fit("Original Script")),
		columnDivider,
		paint(color, ansiRed, fit(right)))
	fmt.Fprintf(w, "%s%s%s\n", strings.Repeat("─", columnWidth), "─┼─", strings.Repeat("─", columnWidth))

	rows := max(len(left), len(rightLines))
	for i := range rows {
		var l, r string
		if i < len(left) {
			l = left[i]
		}
		if i < len(rightLines) {
			r = rightLines[i]
		}
		fmt.Fprintf(w, "%s%s%s\n", runewidth.FillRight(l, columnWidth), columnDivider, r)
	}

	if s.Encoded() {
		fmt.Fprintln(w)
		fmt.Fprintln(w, paint(color, ansiYellow, "Base64 Encoded"))
		for _, line := range wrap(Truncate(s.Deliverable(), encodedLimit), columnWidth*2+len(columnDivider)) {
			fmt.Fprintln(w, line)
		}
	}
}

// Truncate shortens text to limit characters and appends "..." when
// anything was cut. A limit of zero or less disables truncation.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

func fit(text string) string {
	return runewidth.FillRight(runewidth.Truncate(text, columnWidth, "…"), columnWidth)
}

// wrap splits text into display lines no wider than width cells.
func wrap(text string, width int) []string {
	text = strings.ReplaceAll(text, "\r", "")
	text = strings.ReplaceAll(text, "\t", "    ")

	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		if raw == "" {
			lines = append(lines, "")
			continue
		}
		var (
			b strings.Builder
			w int
		)
		for _, r := range raw {
			rw := runewidth.RuneWidth(r)
			if w+rw > width {
				lines = append(lines, b.String())
				b.Reset()
				w = 0
			}
			b.WriteRune(r)
			w += rw
		}
		lines = append(lines, b.String())
	}
	return lines
}

func paint(enabled bool, code, text string) string {
	if !enabled {
		return text
	}
	return code + text + ansiReset
}
