package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
		ok       bool
	}{
		{"debug", LevelDebug, true},
		{"info", LevelInfo, true},
		{"warn", LevelWarn, true},
		{"warning", LevelWarn, true},
		{"error", LevelError, true},
		{"DEBUG", LevelDebug, true},
		{"  info ", LevelInfo, true},
		{"", LevelInfo, false},
		{"verbose", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseLevel(tt.input)
			if got != tt.expected || ok != tt.ok {
				t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.input, got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestLogLevelConstants(t *testing.T) {
	if LevelDebug >= LevelInfo {
		t.Error("LevelDebug should be less than LevelInfo")
	}
	if LevelInfo >= LevelWarn {
		t.Error("LevelInfo should be less than LevelWarn")
	}
	if LevelWarn >= LevelError {
		t.Error("LevelWarn should be less than LevelError")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	previous := GetLevel()
	defer func() {
		SetLevel(previous)
		SetOutput(nil)
	}()

	SetLevel(LevelWarn)
	Debug("debug line")
	Info("info line")
	Warn("warn line")
	Error("error line")

	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Errorf("messages below warn should be filtered, got %q", out)
	}
	if !strings.Contains(out, "[WARN] warn line") {
		t.Errorf("expected warn line, got %q", out)
	}
	if !strings.Contains(out, "[ERROR] error line") {
		t.Errorf("expected error line, got %q", out)
	}
}

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	previous := GetLevel()
	defer func() {
		SetLevel(previous)
		SetOutput(nil)
	}()

	SetLevel(LevelDebug)
	For("scanner").Debug("found %d files", 3)

	if !strings.Contains(buf.String(), "[DEBUG] scanner: found 3 files") {
		t.Errorf("expected prefixed debug line, got %q", buf.String())
	}
}

func TestLogLevelString(t *testing.T) {
	if LevelWarn.String() != "warn" {
		t.Errorf("expected warn, got %s", LevelWarn.String())
	}
	if LogLevel(42).String() != "unknown(42)" {
		t.Errorf("unexpected string for unknown level: %s", LogLevel(42).String())
	}
}
