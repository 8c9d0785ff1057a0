package main

import (
	"path/filepath"

	"gridflow/internal/config"
)

func buildSocketPath(cfg *config.Config) string {
	if cfg == nil {
		return filepath.Join("", "gridflow.sock")
	}
	return filepath.Join(cfg.Paths.LogDir, "gridflow.sock")
}
