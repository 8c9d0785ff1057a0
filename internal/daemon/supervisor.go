package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"gridflow/internal/config"
	"gridflow/internal/jobs"
	"gridflow/internal/logging"
	"gridflow/internal/notifications"
	"gridflow/internal/queue"

	"log/slog"
)

// Supervisor coordinates the worker pool and enforces single-instance
// execution via a file lock. It is also the surface the IPC server exposes to
// the CLI.
type Supervisor struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	pool     *Pool
	manager  *jobs.Manager
	notifier notifications.Service
	logPath  string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workers      int
	Queue        queue.HealthSummary
	QueueDBPath  string
	LockFilePath string
}

// NewSupervisor constructs a supervisor with initialized dependencies.
func NewSupervisor(cfg *config.Config, store *queue.Store, pool *Pool, manager *jobs.Manager, notifier notifications.Service, logger *slog.Logger) (*Supervisor, error) {
	if cfg == nil || store == nil || pool == nil || manager == nil || logger == nil {
		return nil, errors.New("supervisor requires config, store, pool, manager, and logger")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "gridflowd.lock")
	return &Supervisor{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		pool:     pool,
		manager:  manager,
		notifier: notifier,
		logPath:  filepath.Join(cfg.Paths.LogDir, "gridflow.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the worker pool.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another gridflow daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	if err := s.pool.Start(runCtx); err != nil {
		_ = s.lock.Unlock()
		cancel()
		s.cancel = nil
		return fmt.Errorf("start worker pool: %w", err)
	}

	s.running.Store(true)
	s.logger.Info("gridflow daemon started",
		logging.String("lock", s.lockPath),
		logging.Int("workers", s.pool.Workers()))
	return nil
}

// Stop stops the worker pool and releases the daemon lock.
func (s *Supervisor) Stop() {
	if !s.running.Load() {
		return
	}

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.pool.Stop()
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	s.running.Store(false)
	s.logger.Info("gridflow daemon stopped")
}

// Close releases resources held by the supervisor.
func (s *Supervisor) Close() error {
	s.Stop()
	return s.store.Close()
}

// Status reports daemon runtime information.
func (s *Supervisor) Status(ctx context.Context) Status {
	st := Status{
		Running:      s.running.Load(),
		Workers:      s.pool.Workers(),
		QueueDBPath:  s.store.Path(),
		LockFilePath: s.lockPath,
	}
	if health, err := s.store.Health(ctx); err == nil {
		st.Queue = health
	} else {
		s.logger.Warn("queue health lookup failed", logging.Error(err))
	}
	return st
}

// LogPath returns the daemon log file location.
func (s *Supervisor) LogPath() string {
	return s.logPath
}

// ListTasks returns queue tasks filtered by optional statuses.
func (s *Supervisor) ListTasks(ctx context.Context, statuses []queue.Status) ([]*queue.Task, error) {
	return s.store.ListTasks(ctx, statuses...)
}

// QueueStats returns per-status task counts.
func (s *Supervisor) QueueStats(ctx context.Context) (map[queue.Status]int, error) {
	return s.store.Stats(ctx)
}

// RetryFailed re-queues failed tasks, optionally scoped to one job.
func (s *Supervisor) RetryFailed(ctx context.Context, jobID string) (int64, error) {
	return s.store.RetryFailed(ctx, jobID)
}

// ClearCompleted removes completed tasks from the queue.
func (s *Supervisor) ClearCompleted(ctx context.Context) (int64, error) {
	return s.store.ClearCompleted(ctx)
}

// ResetStuck returns tasks stuck in the running state to queued.
func (s *Supervisor) ResetStuck(ctx context.Context) (int64, error) {
	return s.store.ResetStuckRunning(ctx)
}

// RequeueTask re-admits a single task for another attempt.
func (s *Supervisor) RequeueTask(ctx context.Context, jobID, name string) error {
	return s.store.RequeueTask(ctx, jobID, name)
}

// ShowJob returns a job and its tasks.
func (s *Supervisor) ShowJob(ctx context.Context, jobID string) (*queue.Job, []*queue.Task, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	if job == nil {
		return nil, nil, fmt.Errorf("job %s not found", jobID)
	}
	tasks, err := s.store.TasksForJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	return job, tasks, nil
}

// ListJobs returns all jobs ordered by creation time.
func (s *Supervisor) ListJobs(ctx context.Context) ([]*queue.Job, error) {
	return s.store.ListJobs(ctx)
}

// Submit stores a job definition and its tasks.
func (s *Supervisor) Submit(ctx context.Context, def jobs.Definition) (*queue.Job, error) {
	return s.manager.Submit(ctx, def)
}

// TestNotification sends a test notification through the configured service.
func (s *Supervisor) TestNotification(ctx context.Context) (bool, string, error) {
	if s.notifier == nil {
		return false, "notifications not configured", nil
	}
	if err := s.notifier.TestNotification(ctx); err != nil {
		return false, "", err
	}
	return true, "test notification sent", nil
}
