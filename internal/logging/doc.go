// Package logging provides the slog construction and attribute helpers used
// across gridflow. Loggers write to stdout and, when a log directory is
// configured, to a shared gridflow.log file.
package logging
