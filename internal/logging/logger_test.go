package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gridflow/internal/config"
	"gridflow/internal/logging"
)

func TestNewWritesJSONToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "out.log")

	logger, err := logging.New(logging.Options{
		Format:      "json",
		Level:       "debug",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Debug("json message", logging.String("k", "v"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &record); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, content)
	}
	if record["msg"] != "json message" || record["k"] != "v" {
		t.Fatalf("unexpected record: %v", record)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNewInvalidLevelDefaultsToInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "out.log")

	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "invalid",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Debug("suppressed")
	logger.Info("visible")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), "suppressed") {
		t.Fatalf("debug output should be suppressed at info level: %s", content)
	}
	if !strings.Contains(string(content), "visible") {
		t.Fatalf("info output missing: %s", content)
	}
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}

	logger.Info("daemon started")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "gridflow.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "daemon started") {
		t.Fatalf("log file missing entry: %s", content)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = logging.WithJobID(ctx, "job-1")
	ctx = logging.WithTaskName(ctx, "subset_2020")
	ctx = logging.WithRunID(ctx, "run-xyz")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logging.WithContext(ctx, logger).Info("contextual log")

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record); err != nil {
		t.Fatalf("parse log line: %v", err)
	}
	if record[logging.FieldJobID] != "job-1" {
		t.Fatalf("job id field = %v", record[logging.FieldJobID])
	}
	if record[logging.FieldTask] != "subset_2020" {
		t.Fatalf("task field = %v", record[logging.FieldTask])
	}
	if record[logging.FieldRunID] != "run-xyz" {
		t.Fatalf("run id field = %v", record[logging.FieldRunID])
	}
}

func TestNopLoggerDiscardsEverything(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("nop logger should not be enabled at any level")
	}
}
