package obslog

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel, "WARN": zapcore.WarnLevel, "warning": zapcore.WarnLevel,
		"error": zapcore.ErrorLevel, "": zapcore.InfoLevel, "bogus": zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJSONConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Options{Level: "info", Format: "json", Console: true}, &buf)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer closer.Close()
	logger.Debug("hidden")
	logger.Info("relay_pair", zap.String("game", "g1"))
	_ = logger.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %q", lines)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if rec["msg"] != "relay_pair" || rec["game"] != "g1" || rec["level"] != "info" {
		t.Fatalf("record = %v", rec)
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "netchess.log")
	logger, closer, err := New(Options{Level: "info", File: path}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Warn("archive_save_failed")
	_ = logger.Sync()
	_ = closer.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(raw), "archive_save_failed") || !strings.Contains(string(raw), " | ") {
		t.Fatalf("file = %q", raw)
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("LOG_TO_FILE", "false")
	t.Setenv("LOG_FORMAT", "JSON")
	o := OptionsFromEnv("logs/x.log")
	if o.File != "" || o.Format != "json" {
		t.Fatalf("options = %+v", o)
	}
}
