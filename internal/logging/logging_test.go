package logging

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"testing"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut := log.Writer()
	prevFlags := log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	return &buf
}

func withLevel(t *testing.T, level LogLevel) {
	t.Helper()
	prev := GetLevel()
	SetLevel(level)
	t.Cleanup(func() { SetLevel(prev) })
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
		{"  error  ", LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
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

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{LogLevel(42), "unknown(42)"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("LogLevel(%d).String() = %q, want %q", tt.level, got, tt.expected)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := captureLog(t)
	withLevel(t, LevelWarn)

	Debug("debug message")
	Info("info message")
	Warn("warn message %d", 1)
	Error("error message %s", "x")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("messages below warn should be filtered, got %q", out)
	}
	if !strings.Contains(out, "[WARN] warn message 1") {
		t.Errorf("expected warn line, got %q", out)
	}
	if !strings.Contains(out, "[ERROR] error message x") {
		t.Errorf("expected error line, got %q", out)
	}
}

func TestIsDebugEnabled(t *testing.T) {
	withLevel(t, LevelDebug)
	if !IsDebugEnabled() {
		t.Error("expected debug enabled at LevelDebug")
	}

	SetLevel(LevelInfo)
	if IsDebugEnabled() {
		t.Error("expected debug disabled at LevelInfo")
	}
}

func TestLineWriter(t *testing.T) {
	buf := captureLog(t)
	withLevel(t, LevelDebug)

	lw := NewLineWriter("ffmpeg s1/720p")
	fmt.Fprint(lw, "frame=1\nframe=2\n\n")
	fmt.Fprint(lw, "partial")
	if err := lw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"[DEBUG] [ffmpeg s1/720p] frame=1", "[ffmpeg s1/720p] frame=2", "partial"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in log output %q", want, out)
		}
	}

	if got := lw.Tail(); got != "frame=1 | frame=2 | partial" {
		t.Errorf("Tail() = %q", got)
	}
}

func TestLineWriterTailBounded(t *testing.T) {
	captureLog(t)
	withLevel(t, LevelError)

	lw := NewLineWriter("x")
	for i := 0; i < maxTailLines+5; i++ {
		fmt.Fprintf(lw, "line %d\n", i)
	}
	_ = lw.Close()

	parts := strings.Split(lw.Tail(), " | ")
	if len(parts) != maxTailLines {
		t.Fatalf("expected %d tail lines, got %d", maxTailLines, len(parts))
	}
	if parts[len(parts)-1] != fmt.Sprintf("line %d", maxTailLines+4) {
		t.Errorf("unexpected last tail line %q", parts[len(parts)-1])
	}
}
