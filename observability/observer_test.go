package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/tailored-agentic-units/obfusengine/observability"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		name  string
		level observability.Level
		want  string
	}{
		{name: "trace range", level: 1, want: "TRACE"},
		{name: "verbose maps to DEBUG", level: observability.LevelVerbose, want: "DEBUG"},
		{name: "info maps to INFO", level: observability.LevelInfo, want: "INFO"},
		{name: "warning maps to WARN", level: observability.LevelWarning, want: "WARN"},
		{name: "error maps to ERROR", level: observability.LevelError, want: "ERROR"},
		{name: "fatal range", level: 21, want: "FATAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
			}
		})
	}
}

func TestLevel_SlogLevel(t *testing.T) {
	tests := []struct {
		name  string
		level observability.Level
		want  slog.Level
	}{
		{name: "verbose maps to Debug", level: observability.LevelVerbose, want: slog.LevelDebug},
		{name: "info maps to Info", level: observability.LevelInfo, want: slog.LevelInfo},
		{name: "warning maps to Warn", level: observability.LevelWarning, want: slog.LevelWarn},
		{name: "error maps to Error", level: observability.LevelError, want: slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.level.SlogLevel(); got != tt.want {
				t.Errorf("Level(%d).SlogLevel() = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestEmit_StampsTimestamp(t *testing.T) {
	var events []observability.Event
	obs := &captureObserver{events: &events}

	observability.Emit(context.Background(), obs, observability.Event{
		Type:  "pipeline.start",
		Level: observability.LevelInfo,
	})

	if len(events) != 1 {
		t.Fatalf("received %d events, want 1", len(events))
	}
	if events[0].Timestamp.IsZero() {
		t.Error("Emit() left Timestamp zero")
	}
}

func TestEmit_NilObserver(t *testing.T) {
	observability.Emit(context.Background(), nil, observability.Event{Type: "dropped"})
}

func TestMultiObserver_NilFiltering(t *testing.T) {
	var events1, events2 []observability.Event
	multi := observability.NewMultiObserver(
		nil,
		&captureObserver{events: &events1},
		nil,
		&captureObserver{events: &events2},
	)

	multi.OnEvent(context.Background(), observability.Event{Type: "stage.complete"})

	if len(events1) != 1 || len(events2) != 1 {
		t.Errorf("observers received %d and %d events, want 1 each", len(events1), len(events2))
	}
}

func TestMultiObserver_Collapses(t *testing.T) {
	var events []observability.Event
	capture := &captureObserver{events: &events}

	if _, ok := observability.NewMultiObserver().(observability.NoOpObserver); !ok {
		t.Error("empty list should collapse to NoOpObserver")
	}
	if _, ok := observability.NewMultiObserver(nil, observability.NoOpObserver{}).(observability.NoOpObserver); !ok {
		t.Error("nil and noop entries should collapse to NoOpObserver")
	}
	if got := observability.NewMultiObserver(observability.NoOpObserver{}, capture, nil); got != observability.Observer(capture) {
		t.Errorf("single observer should be returned as is, got %T", got)
	}
	if _, ok := observability.NewMultiObserver(capture, capture).(*observability.MultiObserver); !ok {
		t.Error("two observers should fan out through MultiObserver")
	}
}

func TestSlogObserver_LevelFiltering(t *testing.T) {
	tests := []struct {
		name      string
		level     observability.Level
		minLevel  slog.Level
		expectLog bool
	}{
		{name: "verbose at debug handler", level: observability.LevelVerbose, minLevel: slog.LevelDebug, expectLog: true},
		{name: "verbose at info handler", level: observability.LevelVerbose, minLevel: slog.LevelInfo, expectLog: false},
		{name: "warning at info handler", level: observability.LevelWarning, minLevel: slog.LevelInfo, expectLog: true},
		{name: "info at warn handler", level: observability.LevelInfo, minLevel: slog.LevelWarn, expectLog: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: tt.minLevel}))

			observability.NewSlogObserver(logger).OnEvent(context.Background(), observability.Event{
				Type:      "stage.start",
				Level:     tt.level,
				Timestamp: time.Now(),
				Source:    "test",
			})

			if got := buf.Len() > 0; got != tt.expectLog {
				t.Errorf("log output = %v, want %v (buf: %q)", got, tt.expectLog, buf.String())
			}
		})
	}
}

func TestSlogObserver_SortedAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	observability.NewSlogObserver(logger).OnEvent(context.Background(), observability.Event{
		Type:   "pipeline.stage.complete",
		Level:  observability.LevelInfo,
		Source: "pipeline.Run",
		Data: map[string]any{
			"technique": "invoke",
			"duration":  "1s",
			"status":    "ok",
		},
	})

	out := buf.String()
	if !strings.Contains(out, "pipeline.stage.complete") {
		t.Errorf("expected event type as message, got: %s", out)
	}
	if !strings.Contains(out, "source=pipeline.Run") {
		t.Errorf("expected source attribute, got: %s", out)
	}

	d := strings.Index(out, "duration=")
	s := strings.Index(out, "status=")
	tq := strings.Index(out, "technique=")
	if d < 0 || s < 0 || tq < 0 || !(d < s && s < tq) {
		t.Errorf("attributes not sorted: %s", out)
	}
}

func TestRegistry(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "noop exists", key: "noop"},
		{name: "slog exists", key: "slog"},
		{name: "unknown fails", key: "nonexistent", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, err := observability.GetObserver(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("GetObserver(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if !tt.wantErr && obs == nil {
				t.Errorf("GetObserver(%q) returned nil observer", tt.key)
			}
		})
	}
}

func TestRegistry_UnknownListsNames(t *testing.T) {
	_, err := observability.GetObserver("jsonl")
	if !errors.Is(err, observability.ErrUnknownObserver) {
		t.Fatalf("error = %v, want ErrUnknownObserver", err)
	}
	for _, name := range []string{`"jsonl"`, "noop", "slog"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q missing %s", err, name)
		}
	}
}

func TestRegistry_Names(t *testing.T) {
	names := observability.Names()
	if !slices.IsSorted(names) {
		t.Errorf("Names() = %v, want sorted", names)
	}
	for _, want := range []string{"noop", "slog"} {
		if !slices.Contains(names, want) {
			t.Errorf("Names() = %v, missing %q", names, want)
		}
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	var events []observability.Event
	observability.RegisterObserver("test-capture", &captureObserver{events: &events})

	obs, err := observability.GetObserver("test-capture")
	if err != nil {
		t.Fatalf("GetObserver failed: %v", err)
	}
	obs.OnEvent(context.Background(), observability.Event{Type: "sink.write"})

	if len(events) != 1 {
		t.Errorf("received %d events, want 1", len(events))
	}
}

type captureObserver struct {
	events *[]observability.Event
}

func (c *captureObserver) OnEvent(_ context.Context, event observability.Event) {
	*c.events = append(*c.events, event)
}
