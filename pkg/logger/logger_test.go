package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestInit_FirstCallWins(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	var first, second bytes.Buffer
	Init(Options{Level: "debug", Output: &first, Service: "gatekeeper"})
	Init(Options{Level: "error", Output: &second})

	log := Get()
	log.Debug().Msg("hello")

	if second.Len() != 0 {
		t.Fatal("second Init must not replace the logger")
	}
	var entry map[string]any
	if err := json.Unmarshal(first.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json %q: %v", first.String(), err)
	}
	if entry["service"] != "gatekeeper" || entry["message"] != "hello" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestComponent(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	var buf bytes.Buffer
	Init(Options{Level: "info", Output: &buf})
	log := Component("mailer")
	log.Info().Msg("sent")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if entry["component"] != "mailer" {
		t.Fatalf("component = %v", entry["component"])
	}
}

func TestGet_PanicsBeforeInit(t *testing.T) {
	Reset()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	Get()
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"DEBUG":   zerolog.DebugLevel,
		" warn ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
