package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	original := Level()
	defer SetLevel(original)

	SetLevel(slog.LevelDebug)
	if got := Level(); got != slog.LevelDebug {
		t.Errorf("Level() = %v, want %v", got, slog.LevelDebug)
	}
}

func TestComponentAttribute(t *testing.T) {
	original := Logger()
	defer SetLogger(original)

	var buf bytes.Buffer
	SetLogger(New(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	Debug(ComponentEngine, "erase sector", "addr", 4096)
	out := buf.String()
	if !strings.Contains(out, "erase sector") {
		t.Errorf("missing message: %s", out)
	}
	if !strings.Contains(out, "component=engine") {
		t.Errorf("missing component: %s", out)
	}
	if !strings.Contains(out, "addr=4096") {
		t.Errorf("missing attribute: %s", out)
	}
}

func TestSetFormatJSON(t *testing.T) {
	original := Logger()
	defer SetLogger(original)
	origLevel := Level()
	defer SetLevel(origLevel)

	var buf bytes.Buffer
	SetLevel(slog.LevelInfo)
	SetFormat(&buf, FormatJSON)

	Warn(ComponentDispatch, "aborted")
	out := buf.String()
	if !strings.Contains(out, `"msg":"aborted"`) {
		t.Errorf("JSON output missing message: %s", out)
	}
	if !strings.Contains(out, `"component":"dispatch"`) {
		t.Errorf("JSON output missing component: %s", out)
	}
}
