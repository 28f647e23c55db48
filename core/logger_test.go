package core

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/phuslu/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{"trace", log.TraceLevel},
		{"DEBUG", log.DebugLevel},
		{"info", log.InfoLevel},
		{"warning", log.WarnLevel},
		{"Error", log.ErrorLevel},
		{"nonsense", log.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// TestLeveledLogger_FiltersBelowLevel verifies lines under the level are dropped
// Given: A logger at warn level writing to a buffer
// When: Debug, Info and Warn lines are written
// Then: Only the warn line appears, with its fields
func TestLeveledLogger_FiltersBelowLevel(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	logger := NewLeveledLogger(&buf, "warn")

	// Act
	logger.Debug("debug line")
	logger.Info("info line")
	logger.Warn("warn line", F("kind", "pooled"), F("error", errors.New("stalled")))

	// Assert
	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Errorf("output = %q, want lines below warn filtered", out)
	}
	if !strings.Contains(out, "warn line") || !strings.Contains(out, "pooled") || !strings.Contains(out, "stalled") {
		t.Errorf("output = %q, want warn line with fields", out)
	}
}

// TestNoOpLogger verifies the no-op logger accepts calls silently
func TestNoOpLogger(t *testing.T) {
	var logger Logger = NewNoOpLogger()
	logger.Debug("x")
	logger.Info("x")
	logger.Warn("x")
	logger.Error("x", F("k", 1))
}

// TestNewLogWriter_ChecksItsOwnStream verifies the color decision follows the stream written to
func TestNewLogWriter_ChecksItsOwnStream(t *testing.T) {
	for _, f := range []*os.File{os.Stdout, os.Stderr} {
		cw, ok := newLogWriter(f).(*log.ConsoleWriter)
		if !ok {
			t.Fatalf("newLogWriter(%s) is not a console writer", f.Name())
		}
		if want := log.IsTerminal(f.Fd()); cw.ColorOutput != want {
			t.Errorf("newLogWriter(%s).ColorOutput = %v, want %v", f.Name(), cw.ColorOutput, want)
		}
	}

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe() error = %v", err)
	}
	defer r.Close()
	defer w.Close()
	if _, ok := newLogWriter(w).(*log.IOWriter); !ok {
		t.Error("newLogWriter(pipe) is not an IO writer")
	}
	if _, ok := newLogWriter(&bytes.Buffer{}).(*log.IOWriter); !ok {
		t.Error("newLogWriter(buffer) is not an IO writer")
	}
}
