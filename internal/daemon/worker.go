package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gridflow/internal/config"
	"gridflow/internal/logging"
	"gridflow/internal/notifications"
	"gridflow/internal/queue"
)

// taskSource is the slice of the queue store a worker needs.
type taskSource interface {
	ClaimNextTask(ctx context.Context) (*queue.Task, error)
	UpdateTask(ctx context.Context, task *queue.Task) error
}

// taskExecutor runs one claimed task to completion and reports whether the
// subprocess succeeded. A non-nil error means the attempt could not be
// launched or observed; both outcomes count as a failed attempt.
type taskExecutor interface {
	Run(ctx context.Context, task *queue.Task) (bool, error)
}

// progressReporter recomputes aggregate job state after a task transition.
type progressReporter interface {
	JobProgress(ctx context.Context, jobID string) error
}

type worker struct {
	id       int
	cfg      *config.Config
	source   taskSource
	executor taskExecutor
	progress progressReporter
	notifier notifications.Service
	logger   *slog.Logger
}

func newWorker(id int, cfg *config.Config, source taskSource, executor taskExecutor, progress progressReporter, notifier notifications.Service, logger *slog.Logger) *worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &worker{
		id:       id,
		cfg:      cfg,
		source:   source,
		executor: executor,
		progress: progress,
		notifier: notifier,
		logger:   logger.With(logging.Int(logging.FieldWorker, id)),
	}
}

// run polls the queue until the context is cancelled. Claim errors back off
// rather than terminate; no task outcome ever escapes the loop.
func (w *worker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := w.source.ClaimNextTask(ctx)
		if err != nil {
			w.handleClaimError(ctx, err)
			continue
		}
		if task == nil {
			w.waitForTaskOrShutdown(ctx)
			continue
		}

		w.process(ctx, task)
	}
}

func (w *worker) handleClaimError(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	w.logger.Error("failed to claim next task",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_claim_failed"),
		logging.String(logging.FieldErrorHint, "check queue database access"))
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(w.cfg.Daemon.ErrorRetryInterval) * time.Second):
	}
}

func (w *worker) waitForTaskOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(w.cfg.Daemon.QueuePollInterval) * time.Second):
	}
}

func (w *worker) process(ctx context.Context, task *queue.Task) {
	task.RunID = uuid.NewString()

	runCtx := logging.WithJobID(ctx, task.JobID)
	runCtx = logging.WithTaskName(runCtx, task.Name)
	runCtx = logging.WithRunID(runCtx, task.RunID)
	logger := logging.WithContext(runCtx, w.logger)

	logger.Info("task claimed",
		logging.String("type", string(task.Type)),
		logging.Int("attempt", task.RetryCount+1))

	succeeded, err := w.executeAttempt(runCtx, task)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("task attempt errored", logging.Error(err))
	}

	if succeeded {
		task.MarkCompleted()
		if uerr := w.source.UpdateTask(runCtx, task); uerr != nil {
			logger.Error("failed to record task completion", logging.Error(uerr))
			return
		}
		logger.Info("task completed")
		w.reportProgress(runCtx, logger, task.JobID)
		return
	}

	if task.RetryCount < w.cfg.Daemon.MaxRetries {
		w.requeueForRetry(runCtx, logger, task)
		return
	}

	task.MarkFailed(queue.ExhaustedRetriesReason)
	if uerr := w.source.UpdateTask(runCtx, task); uerr != nil {
		logger.Error("failed to record task failure", logging.Error(uerr))
		return
	}
	logger.Error("task failed permanently",
		logging.Int("retry_count", task.RetryCount),
		logging.String(logging.FieldErrorHint, "inspect the task log for the subprocess output"))
	if nerr := w.notifier.NotifyTaskExhausted(runCtx, task.JobID, task.Name, task.RetryCount); nerr != nil {
		logger.Warn("task failure notification failed", logging.Error(nerr))
	}
	w.reportProgress(runCtx, logger, task.JobID)
}

// requeueForRetry returns a failed task to the queue with its retry counter
// bumped. The worker goes through UpdateTask here, not Store.RequeueTask:
// that one resets run state for operator-driven requeues and would lose the
// attempt count.
func (w *worker) requeueForRetry(ctx context.Context, logger *slog.Logger, task *queue.Task) {
	task.MarkRetry()
	task.StartedAt = nil
	task.RunID = ""
	if err := w.source.UpdateTask(ctx, task); err != nil {
		logger.Error("failed to requeue task for retry", logging.Error(err))
		return
	}
	logger.Warn("task failed, requeued for retry",
		logging.Int("retry_count", task.RetryCount),
		logging.Int("max_retries", w.cfg.Daemon.MaxRetries))
}

// executeAttempt shields the poll loop from panics in the executor path.
func (w *worker) executeAttempt(ctx context.Context, task *queue.Task) (succeeded bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			succeeded = false
			err = fmt.Errorf("task execution panicked: %v", r)
		}
	}()
	return w.executor.Run(ctx, task)
}

func (w *worker) reportProgress(ctx context.Context, logger *slog.Logger, jobID string) {
	if w.progress == nil {
		return
	}
	if err := w.progress.JobProgress(ctx, jobID); err != nil {
		logger.Warn("job progress update failed", logging.Error(err))
	}
}
