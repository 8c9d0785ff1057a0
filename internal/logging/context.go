package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldJobID is the standardized structured logging key for job identifiers.
	FieldJobID = "job_id"
	// FieldTask is the standardized structured logging key for task names.
	FieldTask = "task"
	// FieldRunID is the standardized structured logging key for per-attempt run identifiers.
	FieldRunID = "run_id"
	// FieldWorker is the standardized structured logging key for daemon worker identifiers.
	FieldWorker = "worker"
	// FieldEventType is the standardized structured logging key for machine-readable event tags.
	FieldEventType = "event_type"
	// FieldErrorHint suggests an operator action when an error is logged.
	FieldErrorHint = "error_hint"
)

type contextKey string

const (
	jobIDKey    contextKey = "job_id"
	taskNameKey contextKey = "task"
	runIDKey    contextKey = "run_id"
)

// WithJobID annotates context with the owning job identifier.
func WithJobID(ctx context.Context, jobID string) context.Context {
	if jobID == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, jobID)
}

// JobIDFromContext extracts the job identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(jobIDKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithTaskName annotates context with the task name.
func WithTaskName(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, taskNameKey, name)
}

// TaskNameFromContext extracts the task name if present.
func TaskNameFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(taskNameKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRunID annotates context with the per-attempt run identifier.
func WithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(runIDKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := JobIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldJobID, id))
	}
	if name, ok := TaskNameFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldTask, name))
	}
	if rid, ok := RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
