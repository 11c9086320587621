package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "lasstat.log")

	log, err := New(false, path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("batch finished")
	log.Debug("hidden at info level")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"batch finished"`) {
		t.Errorf("log file missing info entry: %s", data)
	}
	if strings.Contains(string(data), "hidden") {
		t.Errorf("debug entry written at info level")
	}
}

func TestNewConsoleOnly(t *testing.T) {
	log, err := New(true, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !log.Core().Enabled(-1) {
		t.Errorf("debug level not enabled")
	}
}
