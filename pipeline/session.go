package pipeline

import (
	"time"

	"github.com/google/uuid"
	"github.com/tailored-agentic-units/obfusengine/technique"
)

// Status is the outcome of one stage.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// StageResult records one technique execution. Results are never modified
// once appended to a session.
type StageResult struct {
	Index      int
	Technique  string
	Input      string
	Output     string
	Status     Status
	Diagnostic string
	StartedAt  time.Time
	Duration   time.Duration
}

// Seed is the resolved input a session starts from.
type Seed struct {
	Content   string
	Domain    technique.Domain
	Source    string
	Origin    string
	Requested []string
}

// Session is one obfuscation run. It owns its stage results exclusively and
// is not safe for concurrent use; concurrent runs use separate sessions.
type Session struct {
	id          string
	seed        Seed
	planned     []string
	results     []StageResult
	final       string
	deliverable string
	encoded     bool
	interrupted bool
}

// NewSession creates a session identified by a UUIDv7.
func NewSession(seed Seed) *Session {
	seed.Requested = append([]string(nil), seed.Requested...)
	return &Session{
		id:          uuid.Must(uuid.NewV7()).String(),
		seed:        seed,
		final:       seed.Content,
		deliverable: seed.Content,
	}
}

func (s *Session) ID() string               { return s.id }
func (s *Session) Original() string         { return s.seed.Content }
func (s *Session) Domain() technique.Domain { return s.seed.Domain }
func (s *Session) Source() string           { return s.seed.Source }
func (s *Session) Origin() string           { return s.seed.Origin }

// Requested returns the technique ids as the caller asked for them.
func (s *Session) Requested() []string {
	return append([]string(nil), s.seed.Requested...)
}

// Planned returns the resolved technique ids in execution order.
func (s *Session) Planned() []string {
	return append([]string(nil), s.planned...)
}

// Results returns a copy of the stage results.
func (s *Session) Results() []StageResult {
	return append([]StageResult(nil), s.results...)
}

// Final is the chain output before encoding: the last successful stage
// output, or Original when no stage succeeded.
func (s *Session) Final() string { return s.final }

// Deliverable is Final after the optional encoding step.
func (s *Session) Deliverable() string { return s.deliverable }

// Encoded reports whether Deliverable is Base64 encoded.
func (s *Session) Encoded() bool { return s.encoded }

// Interrupted reports whether cancellation stopped the chain.
func (s *Session) Interrupted() bool { return s.interrupted }

// SetDeliverable records the encoded form of Final.
func (s *Session) SetDeliverable(text string, encoded bool) {
	s.deliverable = text
	s.encoded = encoded
}

// Failure returns the failed stage, if the chain stopped on one.
func (s *Session) Failure() (StageResult, bool) {
	if n := len(s.results); n > 0 && s.results[n-1].Status == StatusFailed {
		return s.results[n-1], true
	}
	return StageResult{}, false
}

// LastSuccessful returns the last stage that completed with StatusOK.
func (s *Session) LastSuccessful() (StageResult, bool) {
	for i := len(s.results) - 1; i >= 0; i-- {
		if s.results[i].Status == StatusOK {
			return s.results[i], true
		}
	}
	return StageResult{}, false
}

// Complete reports whether every planned stage ran successfully.
func (s *Session) Complete() bool {
	if s.interrupted || len(s.results) != len(s.planned) {
		return false
	}
	_, failed := s.Failure()
	return !failed
}

// SummaryRow is one planned stage in a run summary.
type SummaryRow struct {
	Technique  string
	Status     Status
	Diagnostic string
	Duration   time.Duration
}

// Summary lists every planned stage. Stages that never ran after a failure
// or cancellation are reported as skipped.
func (s *Session) Summary() []SummaryRow {
	rows := make([]SummaryRow, 0, len(s.planned))
	for i, id := range s.planned {
		if i < len(s.results) {
			r := s.results[i]
			rows = append(rows, SummaryRow{
				Technique:  r.Technique,
				Status:     r.Status,
				Diagnostic: r.Diagnostic,
				Duration:   r.Duration,
			})
			continue
		}
		rows = append(rows, SummaryRow{Technique: id, Status: StatusSkipped})
	}
	return rows
}

func (s *Session) append(r StageResult) {
	r.Index = len(s.results)
	s.results = append(s.results, r)
	if r.Status == StatusOK {
		s.final = r.Output
	}
	s.deliverable = s.final
	s.encoded = false
}
