package logger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
)

func TestToEvent(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	now := func() time.Time { return fixed }

	tests := []struct {
		name    string
		line    string
		forward bool
		message string
	}{
		{"info", `{"level":"info","message":"compiled document"}`, true, "compiled document"},
		{"debug dropped", `{"level":"debug","message":"rendered thumbnail"}`, false, ""},
		{"not json", "plain text line", true, "plain text line"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := toEvent([]byte(tt.line), now)
			if ok != tt.forward {
				t.Fatalf("forward = %v, want %v", ok, tt.forward)
			}
			if !ok {
				return
			}
			if ev["message"] != tt.message || ev["service"] != Service {
				t.Errorf("event = %v", ev)
			}
			if ev[ingest.TimestampField] != fixed {
				t.Errorf("timestamp = %v, want %v", ev[ingest.TimestampField], fixed)
			}
		})
	}
}

func TestAxiomWriterForwards(t *testing.T) {
	var got []axiom.Event
	w := &axiomWriter{send: func(ev axiom.Event) { got = append(got, ev) }}
	l := zerolog.New(w)
	l.Info().Str("session_id", "s1").Msg("hello")
	l.Debug().Msg("hidden")
	if len(got) != 1 || got[0]["session_id"] != "s1" {
		t.Errorf("forwarded %v", got)
	}
}

func TestInitWritesFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "pageset.log")
	if err := Init(Options{Level: "warn", File: file, MaxSizeMB: 1}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()
	if global.GetLevel() != zerolog.WarnLevel {
		t.Errorf("level = %v, want warn", global.GetLevel())
	}
}
