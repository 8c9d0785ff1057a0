package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"gridflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.ScratchDir = filepath.Join(base, "scratch")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Daemon.Workers = 1
	cfgVal.Daemon.QueuePollInterval = 1
	cfgVal.Daemon.ErrorRetryInterval = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithWorkers sets the daemon worker count on the test config.
func WithWorkers(count int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Daemon.Workers = count
	}
}

// WithMaxRetries sets the retry budget on the test config.
func WithMaxRetries(count int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Daemon.MaxRetries = count
	}
}

// WithStubbedScripts writes payload scripts that exit with the given code and
// points the runner's script directory at them.
func WithStubbedScripts(exitCode int) ConfigOption {
	return func(b *configBuilder) {
		scriptDir := filepath.Join(b.baseDir, "scripts")
		if err := os.MkdirAll(scriptDir, 0o755); err != nil {
			b.t.Fatalf("mkdir script dir: %v", err)
		}
		script := []byte(fmt.Sprintf("#!/bin/sh\nexit %d\n", exitCode))
		for _, name := range []string{b.cfg.Runner.SubsetScript, b.cfg.Runner.RegridScript} {
			target := filepath.Join(scriptDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.cfg.Runner.ScriptDir = scriptDir
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
