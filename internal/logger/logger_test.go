package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestL_NeverNil(t *testing.T) {
	if L() == nil {
		t.Fatal("expected a usable logger before Init")
	}
	// Must not panic through the no-op logger.
	Debug("debug", zap.String("k", "v"))
	Info("info")
	Warn("warn")
	Error("error")
}

func TestInit_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cairn.log")
	defer func() {
		if err := Init(Config{Level: "info"}); err != nil {
			t.Fatalf("restore logger: %v", err)
		}
	}()

	if err := Init(Config{Level: "debug", Format: "json", OutputPath: path}); err != nil {
		t.Fatalf("init: %v", err)
	}

	Info("ingest run complete", zap.String("collection", "runbooks"), zap.Int("ingested", 3))
	_ = Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "ingest run complete") {
		t.Errorf("log file missing message, got: %s", data)
	}
	if !strings.Contains(string(data), `"collection":"runbooks"`) {
		t.Errorf("log file missing field, got: %s", data)
	}
}

func TestInit_LevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cairn.log")
	defer func() {
		if err := Init(Config{Level: "info"}); err != nil {
			t.Fatalf("restore logger: %v", err)
		}
	}()

	if err := Init(Config{Level: "warn", Format: "json", OutputPath: path}); err != nil {
		t.Fatalf("init: %v", err)
	}

	Debug("too quiet")
	Info("still too quiet")
	Warn("loud enough")
	_ = Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "too quiet") {
		t.Errorf("below-level messages leaked: %s", out)
	}
	if !strings.Contains(out, "loud enough") {
		t.Errorf("warn message missing: %s", out)
	}
}

func TestInit_UnknownLevelFallsBack(t *testing.T) {
	defer func() {
		if err := Init(Config{Level: "info"}); err != nil {
			t.Fatalf("restore logger: %v", err)
		}
	}()

	if err := Init(Config{Level: "shouty", OutputPath: filepath.Join(t.TempDir(), "l.log")}); err != nil {
		t.Fatalf("init with unknown level should fall back, got: %v", err)
	}
}
