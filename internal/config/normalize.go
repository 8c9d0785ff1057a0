package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeRunner(); err != nil {
		return err
	}
	c.normalizeDaemon()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.ScratchDir, err = expandPath(c.Paths.ScratchDir); err != nil {
		return fmt.Errorf("paths.scratch_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeRunner() error {
	var err error
	if strings.TrimSpace(c.Runner.ScriptDir) != "" {
		if c.Runner.ScriptDir, err = expandPath(c.Runner.ScriptDir); err != nil {
			return fmt.Errorf("runner.script_dir: %w", err)
		}
	}
	if strings.TrimSpace(c.Runner.SubsetScript) == "" {
		c.Runner.SubsetScript = defaultSubsetScript
	}
	if strings.TrimSpace(c.Runner.RegridScript) == "" {
		c.Runner.RegridScript = defaultRegridScript
	}
	return nil
}

func (c *Config) normalizeDaemon() {
	if c.Daemon.Workers <= 0 {
		c.Daemon.Workers = defaultWorkers
	}
	if c.Daemon.QueuePollInterval <= 0 {
		c.Daemon.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Daemon.ErrorRetryInterval <= 0 {
		c.Daemon.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Daemon.KillGracePeriod <= 0 {
		c.Daemon.KillGracePeriod = defaultKillGracePeriod
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
