package main

import (
	"path/filepath"
	"testing"

	"gridflow/internal/config"
)

func TestBuildSocketPath(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = "/var/log/gridflow"

	got := buildSocketPath(&cfg)
	want := filepath.Join("/var/log/gridflow", "gridflow.sock")
	if got != want {
		t.Fatalf("buildSocketPath = %q, want %q", got, want)
	}

	if got := buildSocketPath(nil); got != "gridflow.sock" {
		t.Fatalf("buildSocketPath(nil) = %q", got)
	}
}
