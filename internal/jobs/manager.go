package jobs

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gridflow/internal/config"
	"gridflow/internal/logging"
	"gridflow/internal/notifications"
	"gridflow/internal/queue"
)

// Manager recomputes aggregate job state from task counts and handles the
// side effects of a job reaching a terminal status.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	notifier notifications.Service
	logger   *slog.Logger
}

// NewManager wires a job manager against the queue store and notifier.
func NewManager(cfg *config.Config, store *queue.Store, notifier notifications.Service, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		logger:   logger.With(logging.String(logging.FieldComponent, "jobs")),
	}
}

// JobProgress recomputes the aggregate status of the job from its task counts
// and persists it when it changed. When the job crosses into a terminal status
// the outputs are packaged and a notification is sent; both are best effort
// and never fail the calling task transition.
func (m *Manager) JobProgress(ctx context.Context, jobID string) error {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job == nil {
		return fmt.Errorf("job %s not found", jobID)
	}

	counts, err := m.store.TaskCountsForJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("count tasks for job %s: %w", jobID, err)
	}

	next := counts.AggregateStatus()
	if next == job.Status {
		return nil
	}

	wasTerminal := job.Status.IsTerminal()
	job.Status = next
	if next.IsTerminal() {
		now := time.Now().UTC()
		job.CompletedAt = &now
		if counts.Failed > 0 {
			job.ErrorMessage = fmt.Sprintf("%d of %d tasks failed", counts.Failed, counts.Total)
		}
	}

	if err := m.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}

	m.logger.Info("job status updated",
		logging.String(logging.FieldJobID, jobID),
		logging.String("status", string(next)),
		logging.Int("completed", counts.Completed),
		logging.Int("failed", counts.Failed))

	if next.IsTerminal() && !wasTerminal {
		m.finishJob(ctx, job, counts)
	}
	return nil
}

func (m *Manager) finishJob(ctx context.Context, job *queue.Job, counts queue.TaskCounts) {
	archive, err := m.packageOutputs(job.ID)
	switch {
	case err != nil:
		m.logger.Warn("packaging job outputs failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err))
	case archive != "":
		m.logger.Info("job outputs packaged",
			logging.String(logging.FieldJobID, job.ID),
			logging.String("archive", archive))
	}

	var nerr error
	if job.Status == queue.JobStatusCompleted {
		nerr = m.notifier.NotifyJobCompleted(ctx, job.ID, counts.Completed, counts.Failed)
	} else {
		nerr = m.notifier.NotifyJobFailed(ctx, job.ID, counts.Completed, counts.Failed)
	}
	if nerr != nil {
		m.logger.Warn("job notification failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(nerr))
	}
}

// packageOutputs zips the job's output directory next to itself. It returns
// the archive path, or "" when the job produced no output directory.
func (m *Manager) packageOutputs(jobID string) (string, error) {
	dir := filepath.Join(m.cfg.Paths.OutputDir, jobID)
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("output path %s is not a directory", dir)
	}

	archive := dir + ".zip"
	tmp := archive + ".partial"
	if err := writeZip(tmp, dir, jobID); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, archive); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return archive, nil
}

func writeZip(dest, root, prefix string) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := prefix + "/" + filepath.ToSlash(rel)
		w, err := zw.Create(name)
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(w, in)
		in.Close()
		return err
	})
	if err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return out.Close()
}

// Definition describes a job submission: the job record plus the tasks that
// make it up. Submissions come from the CLI as TOML files.
type Definition struct {
	ID    string           `toml:"id"`
	Label string           `toml:"label"`
	Spec  queue.Spec       `toml:"-"`
	Tasks []TaskDefinition `toml:"-"`
}

// TaskDefinition describes a single task within a job submission.
type TaskDefinition struct {
	Name string
	Type queue.TaskType
	Spec queue.Spec
}

// Submit stores a job and its tasks in the queue. Task names must be unique
// within the job.
func (m *Manager) Submit(ctx context.Context, def Definition) (*queue.Job, error) {
	if strings.TrimSpace(def.ID) == "" {
		return nil, fmt.Errorf("job id is required")
	}
	if len(def.Tasks) == 0 {
		return nil, fmt.Errorf("job %s defines no tasks", def.ID)
	}
	seen := make(map[string]struct{}, len(def.Tasks))
	for _, td := range def.Tasks {
		if strings.TrimSpace(td.Name) == "" {
			return nil, fmt.Errorf("job %s contains a task without a name", def.ID)
		}
		if _, dup := seen[td.Name]; dup {
			return nil, fmt.Errorf("job %s defines task %q twice", def.ID, td.Name)
		}
		seen[td.Name] = struct{}{}
		if td.Type != queue.TaskTypeSubset && td.Type != queue.TaskTypeRegrid {
			return nil, fmt.Errorf("task %s has unsupported type %q", td.Name, td.Type)
		}
	}

	job := &queue.Job{
		ID:     def.ID,
		Label:  def.Label,
		Spec:   def.Spec,
		Status: queue.JobStatusNew,
	}
	if err := m.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job %s: %w", def.ID, err)
	}
	for _, td := range def.Tasks {
		task := &queue.Task{
			JobID:  def.ID,
			Name:   td.Name,
			Type:   td.Type,
			Spec:   mergeSpecs(def.Spec, td.Spec),
			Status: queue.StatusQueued,
		}
		if err := m.store.CreateTask(ctx, task); err != nil {
			return nil, fmt.Errorf("create task %s/%s: %w", def.ID, td.Name, err)
		}
	}
	m.logger.Info("job submitted",
		logging.String(logging.FieldJobID, def.ID),
		logging.Int("tasks", len(def.Tasks)))
	return job, nil
}

// mergeSpecs overlays task parameters on the job-wide parameters. Job entries
// act as shared defaults; a task entry with the same name replaces the job one.
func mergeSpecs(jobSpec, taskSpec queue.Spec) queue.Spec {
	if len(jobSpec) == 0 {
		return taskSpec
	}
	merged := make(queue.Spec, 0, len(jobSpec)+len(taskSpec))
	for _, p := range jobSpec {
		if _, overridden := taskSpec.Get(p.Name); overridden {
			continue
		}
		merged = append(merged, p)
	}
	return append(merged, taskSpec...)
}
