package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/khalid729/grp-stiffness-test-machine/internal/config"
)

func TestConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Baseline().Log
	cfg.Level = "warn"

	l, err := NewWithWriter(cfg, &buf)
	if err != nil {
		t.Fatalf("NewWithWriter() failed: %v", err)
	}
	defer l.Close()

	l.Info("hidden")
	l.Warn("shown", "phase", "testing")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "phase=testing") {
		t.Errorf("warn record missing: %s", out)
	}
}

func TestFileSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	cfg := config.Baseline().Log
	cfg.Dir = dir

	var buf bytes.Buffer
	l, err := NewWithWriter(cfg, &buf)
	if err != nil {
		t.Fatalf("NewWithWriter() failed: %v", err)
	}
	l.Info("connected", "session", "abc")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "session=abc") {
		t.Errorf("log file missing record: %s", data)
	}
	if !strings.Contains(buf.String(), "session=abc") {
		t.Errorf("console missing record: %s", buf.String())
	}
}

func TestUnknownLevel(t *testing.T) {
	cfg := config.Baseline().Log
	cfg.Level = "loud"
	if _, err := New(cfg); err == nil {
		t.Fatal("Expected error for unknown level")
	}
}
