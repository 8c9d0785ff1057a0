package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"gridflow/internal/config"
)

func TestLoadDefaultsExpandPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantOutput := filepath.Join(tempHome, ".local", "share", "gridflow", "output")
	if cfg.Paths.OutputDir != wantOutput {
		t.Fatalf("unexpected output dir: got %q want %q", cfg.Paths.OutputDir, wantOutput)
	}
	if !filepath.IsAbs(cfg.Paths.LogDir) {
		t.Fatalf("expected absolute log dir, got %q", cfg.Paths.LogDir)
	}
	if cfg.Daemon.Workers != 2 {
		t.Fatalf("unexpected default workers: %d", cfg.Daemon.Workers)
	}
	if cfg.Daemon.MaxRetries != 2 {
		t.Fatalf("unexpected default max retries: %d", cfg.Daemon.MaxRetries)
	}
	if cfg.Daemon.TaskTimeout != 0 {
		t.Fatalf("expected no task timeout by default, got %d", cfg.Daemon.TaskTimeout)
	}
	if cfg.Runner.SubsetScript != "run_subset.sh" || cfg.Runner.RegridScript != "run_regrid.sh" {
		t.Fatalf("unexpected script defaults: %q %q", cfg.Runner.SubsetScript, cfg.Runner.RegridScript)
	}
	if !cfg.Runner.EchoOutput {
		t.Fatal("expected echo_output enabled by default")
	}
	if cfg.Notifications.NtfyTopic != "" {
		t.Fatalf("expected notifications disabled by default, got topic %q", cfg.Notifications.NtfyTopic)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %q %q", cfg.Logging.Format, cfg.Logging.Level)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.OutputDir, cfg.Paths.ScratchDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "gridflow.toml")

	type payload struct {
		Paths struct {
			OutputDir string `toml:"output_dir"`
		} `toml:"paths"`
		Daemon struct {
			Workers    int `toml:"workers"`
			MaxRetries int `toml:"max_retries"`
		} `toml:"daemon"`
		Runner struct {
			ScriptDir string `toml:"script_dir"`
		} `toml:"runner"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Paths.OutputDir = filepath.Join(tempDir, "out")
	custom.Daemon.Workers = 4
	custom.Daemon.MaxRetries = 5
	custom.Runner.ScriptDir = "~/scripts"
	custom.Logging.Format = "JSON"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Paths.OutputDir != custom.Paths.OutputDir {
		t.Fatalf("expected output dir override, got %q", cfg.Paths.OutputDir)
	}
	if cfg.Daemon.Workers != 4 || cfg.Daemon.MaxRetries != 5 {
		t.Fatalf("expected daemon overrides, got %+v", cfg.Daemon)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("UserHomeDir: %v", err)
	}
	if cfg.Runner.ScriptDir != filepath.Join(home, "scripts") {
		t.Fatalf("expected tilde expansion in script dir, got %q", cfg.Runner.ScriptDir)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected lowercase logging format, got %q", cfg.Logging.Format)
	}
	// Untouched sections fall back to defaults.
	if cfg.Daemon.QueuePollInterval != 2 {
		t.Fatalf("expected default poll interval, got %d", cfg.Daemon.QueuePollInterval)
	}
}

func TestLoadMissingExplicitPathUsesDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "absent.toml")

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected exists to be false for missing file")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Daemon.Workers != config.Default().Daemon.Workers {
		t.Fatalf("expected default workers, got %d", cfg.Daemon.Workers)
	}
}

func TestSampleConfigDecodes(t *testing.T) {
	contents := config.SampleConfig()
	if !strings.Contains(contents, "script_dir") {
		t.Fatalf("sample config missing script_dir section: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal([]byte(contents), &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Daemon.Workers = 65
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for worker count above maximum")
	}

	cfg = config.Default()
	cfg.Daemon.MaxRetries = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative max retries")
	}

	cfg = config.Default()
	cfg.Daemon.TaskTimeout = -5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative task timeout")
	}

	cfg = config.Default()
	cfg.Paths.OutputDir = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty output dir")
	}

	cfg = config.Default()
	cfg.Logging.Format = "yaml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown logging format")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("UserHomeDir: %v", err)
	}

	got, err := config.ExpandPath("~/data")
	if err != nil {
		t.Fatalf("ExpandPath: %v", err)
	}
	if got != filepath.Join(home, "data") {
		t.Fatalf("unexpected expansion: %q", got)
	}

	got, err = config.ExpandPath("")
	if err != nil {
		t.Fatalf("ExpandPath(empty): %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty result for empty input, got %q", got)
	}
}
