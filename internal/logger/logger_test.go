package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWithComponentAddsField(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "debug", false)
	defer Init("info", false)

	WithComponent("capture").Info().Msg("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "capture" {
		t.Fatalf("expected component=capture, got %v", entry["component"])
	}
	if entry["message"] != "hello" {
		t.Fatalf("expected message=hello, got %v", entry["message"])
	}
}

func TestCallerOnlyAtDebug(t *testing.T) {
	defer Init("info", false)

	var buf bytes.Buffer
	InitWithWriter(&buf, "info", false)
	WithComponent("mirror").Info().Msg("quiet")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if _, ok := entry["caller"]; ok {
		t.Fatalf("expected no caller at info level, got %v", entry)
	}

	buf.Reset()
	InitWithWriter(&buf, "debug", false)
	WithComponent("mirror").Debug().Msg("loud")
	entry = nil
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if _, ok := entry["caller"]; !ok {
		t.Fatalf("expected caller at debug level, got %v", entry)
	}
}
