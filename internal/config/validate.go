package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDaemon(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateDaemon() error {
	if c.Daemon.MaxRetries < 0 {
		return errors.New("daemon.max_retries must not be negative")
	}
	if c.Daemon.TaskTimeout < 0 {
		return errors.New("daemon.task_timeout must not be negative")
	}
	if c.Daemon.Workers > 64 {
		return fmt.Errorf("daemon.workers = %d exceeds the supported maximum of 64", c.Daemon.Workers)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
