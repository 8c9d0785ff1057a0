// Package taskrunner maps a queued task onto a concrete subprocess
// invocation: payload script selection by task type plus an
// environment-variable-only parameter convention.
package taskrunner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gridflow/internal/config"
	"gridflow/internal/logging"
	"gridflow/internal/queue"
	"gridflow/internal/runner"
)

// runFunc executes a prepared runner; injectable for tests.
type runFunc func(*runner.Runner) (runner.Result, error)

// Option configures the task runner.
type Option func(*TaskRunner)

// WithRunFunc injects a custom subprocess executor (primarily for tests).
func WithRunFunc(run runFunc) Option {
	return func(t *TaskRunner) {
		if run != nil {
			t.run = run
		}
	}
}

// TaskRunner turns tasks into payload-script subprocesses.
type TaskRunner struct {
	cfg    *config.Config
	logger *slog.Logger
	run    runFunc
}

// New constructs a TaskRunner.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *TaskRunner {
	if logger == nil {
		logger = logging.NewNop()
	}
	t := &TaskRunner{
		cfg:    cfg,
		logger: logger,
		run:    func(r *runner.Runner) (runner.Result, error) { return r.Run() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run executes one task attempt and reports success: exit code zero and no
// timeout. The task's LogPath is updated to the attempt's log file before
// launch. Errors cover mapping and launch failures; both fail the task.
func (t *TaskRunner) Run(ctx context.Context, task *queue.Task) (bool, error) {
	script, err := t.scriptFor(task.Type)
	if err != nil {
		return false, err
	}

	task.LogPath = t.taskLogPath(task)
	if err := os.MkdirAll(filepath.Dir(task.LogPath), 0o755); err != nil {
		return false, fmt.Errorf("ensure task log directory: %w", err)
	}

	proc := &runner.Runner{
		Command:     script,
		Env:         t.buildEnv(task),
		Name:        task.JobID + "/" + task.Name,
		Timeout:     time.Duration(t.cfg.Daemon.TaskTimeout) * time.Second,
		GracePeriod: time.Duration(t.cfg.Daemon.KillGracePeriod) * time.Second,
		EchoOutput:  t.cfg.Runner.EchoOutput,
		LogPath:     task.LogPath,
		Logger:      logging.WithContext(ctx, t.logger),
	}

	result, err := t.run(proc)
	if err != nil {
		return false, err
	}

	logging.WithContext(ctx, t.logger).Info("task subprocess finished",
		logging.String(logging.FieldEventType, "task_subprocess_exit"),
		logging.Int("exit_code", result.ExitCode),
		logging.Bool("timed_out", result.TimedOut),
		logging.Duration("duration", result.Duration),
	)
	return result.Success(), nil
}

// scriptFor selects the payload script for a task type. Unknown types are an
// error so misconfigured tasks fail instead of silently running the default
// pipeline.
func (t *TaskRunner) scriptFor(taskType queue.TaskType) (string, error) {
	var script string
	switch taskType {
	case queue.TaskTypeRegrid:
		script = t.cfg.Runner.RegridScript
	case queue.TaskTypeSubset:
		script = t.cfg.Runner.SubsetScript
	default:
		return "", fmt.Errorf("unsupported task type %q", taskType)
	}
	if t.cfg.Runner.ScriptDir != "" {
		return filepath.Join(t.cfg.Runner.ScriptDir, script), nil
	}
	return script, nil
}

// buildEnv assembles the subprocess environment: a fixed base of paths the
// payload scripts need, overlaid with one variable per spec parameter.
// Spec entries win collisions with the base.
func (t *TaskRunner) buildEnv(task *queue.Task) map[string]string {
	env := map[string]string{
		"PATH":         os.Getenv("PATH"),
		"DATA_PATH":    t.cfg.Paths.DataDir,
		"OUT_PATH":     t.cfg.Paths.OutputDir,
		"SCRATCH_PATH": t.cfg.Paths.ScratchDir,
	}
	task.Spec.ApplyEnv(env)
	return env
}

func (t *TaskRunner) taskLogPath(task *queue.Task) string {
	name := fmt.Sprintf("%s_%s_attempt%d.log", task.JobID, task.Name, task.RetryCount)
	return filepath.Join(t.cfg.Paths.LogDir, "tasks", name)
}
