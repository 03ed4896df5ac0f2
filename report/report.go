// Package report renders a session's audit trail as a protobuf Struct so
// the same document serves the JSON report file and the rpc response.
package report

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/obfusengine/pipeline"
)

// FromSession builds the report document for s. Every planned stage is
// listed, including stages skipped after a failure.
func FromSession(s *pipeline.Session) (*structpb.Struct, error) {
	results := s.Results()
	rows := s.Summary()

	stages := make([]any, 0, len(rows))
	for i, row := range rows {
		entry := map[string]any{
			"technique":   row.Technique,
			"status":      string(row.Status),
			"duration_ms": row.Duration.Milliseconds(),
		}
		if row.Diagnostic != "" {
			entry["diagnostic"] = row.Diagnostic
		}
		if i < len(results) {
			entry["input_length"] = len(results[i].Input)
			entry["output_length"] = len(results[i].Output)
		}
		stages = append(stages, entry)
	}

	fields := map[string]any{
		"id":              s.ID(),
		"domain":          string(s.Domain()),
		"source":          s.Source(),
		"requested":       list(s.Requested()),
		"planned":         list(s.Planned()),
		"encoded":         s.Encoded(),
		"complete":        s.Complete(),
		"interrupted":     s.Interrupted(),
		"original_length": len(s.Original()),
		"final_length":    len(s.Final()),
		"stages":          stages,
	}
	if origin := s.Origin(); origin != "" {
		fields["origin"] = origin
	}
	if failed, ok := s.Failure(); ok {
		fields["failed_technique"] = failed.Technique
	}

	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build report: %w", err)
	}
	return st, nil
}

// Marshal renders the report for s as indented JSON.
func Marshal(s *pipeline.Session) ([]byte, error) {
	st, err := FromSession(s)
	if err != nil {
		return nil, err
	}
	return protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(st)
}

func list(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
