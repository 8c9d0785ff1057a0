package daemon

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"gridflow/internal/config"
	"gridflow/internal/logging"
	"gridflow/internal/notifications"
)

// Pool owns a fixed set of workers sharing one queue store.
type Pool struct {
	cfg      *config.Config
	source   taskSource
	executor taskExecutor
	progress progressReporter
	notifier notifications.Service
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool builds a worker pool. The worker count comes from the daemon
// configuration and is fixed for the lifetime of the pool.
func NewPool(cfg *config.Config, source taskSource, executor taskExecutor, progress progressReporter, notifier notifications.Service, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pool{
		cfg:      cfg,
		source:   source,
		executor: executor,
		progress: progress,
		notifier: notifier,
		logger:   logger,
	}
}

// Start launches the configured number of workers.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("worker pool already running")
	}

	count := p.cfg.Daemon.Workers
	if count <= 0 {
		return errors.New("worker pool requires at least one worker")
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(count)
	for i := range count {
		w := newWorker(i+1, p.cfg, p.source, p.executor, p.progress, p.notifier, p.logger)
		go func() {
			defer p.wg.Done()
			w.run(runCtx)
		}()
	}

	p.logger.Info("worker pool started", logging.Int("workers", count))
	return nil
}

// Stop cancels the workers and waits for in-flight tasks to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Workers reports the configured worker count.
func (p *Pool) Workers() int {
	return p.cfg.Daemon.Workers
}
