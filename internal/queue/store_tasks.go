package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateTask inserts a queued task for an existing job.
func (s *Store) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task is nil")
	}
	if task.JobID == "" || task.Name == "" {
		return errors.New("task identity (job id, task name) is required")
	}
	if task.Type == "" {
		return errors.New("task type is required")
	}
	specJSON, err := EncodeSpec(task.Spec)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	task.Status = StatusQueued
	task.CreatedAt = now
	task.UpdatedAt = now

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO tasks (job_id, task_name, task_type, spec_json, status, retry_count, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.JobID,
		task.Name,
		string(task.Type),
		nullableString(specJSON),
		task.Status,
		task.RetryCount,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask fetches one task by identity, or nil when absent.
func (s *Store) GetTask(ctx context.Context, jobID, name string) (*Task, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE job_id = ? AND task_name = ?`,
		jobID, name,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ClaimNextTask atomically selects the oldest queued task and marks it
// running. Selection and transition happen in one UPDATE so concurrent
// claimers never observe the same queued row; a loser simply updates
// nothing and sees an empty queue. Returns nil when nothing is queued.
func (s *Store) ClaimNextTask(ctx context.Context) (*Task, error) {
	now := time.Now().UTC()
	row := s.db.QueryRowContext(
		ctx,
		`UPDATE tasks SET status = ?, started_at = ?, updated_at = ?
         WHERE (job_id, task_name) IN (
             SELECT job_id, task_name FROM tasks
             WHERE status = ?
             ORDER BY created_at, task_name
             LIMIT 1
         )
         RETURNING `+taskColumns,
		StatusRunning,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		StatusQueued,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next task: %w", err)
	}
	return task, nil
}

// UpdateTask durably writes a task's current state and retry counter.
func (s *Store) UpdateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task is nil")
	}
	task.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks
         SET status = ?, retry_count = ?, error_message = ?, log_path = ?, run_id = ?,
             updated_at = ?, started_at = ?
         WHERE job_id = ? AND task_name = ?`,
		task.Status,
		task.RetryCount,
		nullableString(task.ErrorMessage),
		nullableString(task.LogPath),
		nullableString(task.RunID),
		task.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(task.StartedAt),
		task.JobID,
		task.Name,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// RequeueTask re-admits a task to the queue for another attempt.
func (s *Store) RequeueTask(ctx context.Context, jobID, name string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks SET status = ?, started_at = NULL, run_id = NULL, updated_at = ?
         WHERE job_id = ? AND task_name = ?`,
		StatusQueued,
		now.Format(time.RFC3339Nano),
		jobID,
		name,
	)
	if err != nil {
		return fmt.Errorf("requeue task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("requeue task: no task %s/%s", jobID, name)
	}
	return nil
}

// TasksForJob returns a job's tasks ordered by creation time.
func (s *Store) TasksForJob(ctx context.Context, jobID string) ([]*Task, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE job_id = ? ORDER BY created_at, task_name`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("tasks for job: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListTasks returns tasks filtered by status set (or all tasks when no status is provided).
func (s *Store) ListTasks(ctx context.Context, statuses ...Status) ([]*Task, error) {
	baseQuery := `SELECT ` + taskColumns + ` FROM tasks`
	orderClause := ` ORDER BY created_at, task_name`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// TaskCountsForJob aggregates a job's task statuses.
func (s *Store) TaskCountsForJob(ctx context.Context, jobID string) (TaskCounts, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT status, COUNT(1) FROM tasks WHERE job_id = ? GROUP BY status`,
		jobID,
	)
	if err != nil {
		return TaskCounts{}, fmt.Errorf("task counts: %w", err)
	}
	defer rows.Close()

	var counts TaskCounts
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return TaskCounts{}, err
		}
		counts.Total += count
		switch status {
		case StatusQueued:
			counts.Queued += count
		case StatusRunning:
			counts.Running += count
		case StatusCompleted:
			counts.Completed += count
		case StatusFailed:
			counts.Failed += count
		}
	}
	return counts, rows.Err()
}

// Stats returns a count of tasks grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusQueued:
			health.Queued += count
		case StatusRunning:
			health.Running += count
		case StatusCompleted:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}

// RetryFailed moves failed tasks back to queued, clearing their retry budget.
func (s *Store) RetryFailed(ctx context.Context, jobID string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var (
		res sql.Result
		err error
	)
	if jobID == "" {
		res, err = s.db.ExecContext(
			ctx,
			`UPDATE tasks SET status = ?, retry_count = 0, error_message = NULL, started_at = NULL, updated_at = ?
             WHERE status = ?`,
			StatusQueued, now, StatusFailed,
		)
	} else {
		res, err = s.db.ExecContext(
			ctx,
			`UPDATE tasks SET status = ?, retry_count = 0, error_message = NULL, started_at = NULL, updated_at = ?
             WHERE status = ? AND job_id = ?`,
			StatusQueued, now, StatusFailed, jobID,
		)
	}
	if err != nil {
		return 0, fmt.Errorf("retry failed tasks: %w", err)
	}
	return res.RowsAffected()
}

// ClearCompleted removes completed tasks from the queue.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ResetStuckRunning returns tasks stuck in the running state to queued.
// Crash recovery is an operator action; the daemon never calls this on its own.
func (s *Store) ResetStuckRunning(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks SET status = ?, started_at = NULL, run_id = NULL, updated_at = ?
         WHERE status = ?`,
		StatusQueued,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck tasks: %w", err)
	}
	return res.RowsAffected()
}

const taskColumns = "job_id, task_name, task_type, spec_json, status, retry_count, error_message, log_path, run_id, created_at, updated_at, started_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		jobID        string
		name         string
		taskType     string
		specJSON     sql.NullString
		statusStr    string
		retryCount   int
		errorMessage sql.NullString
		logPath      sql.NullString
		runID        sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		startedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&jobID,
		&name,
		&taskType,
		&specJSON,
		&statusStr,
		&retryCount,
		&errorMessage,
		&logPath,
		&runID,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
	); err != nil {
		return nil, err
	}

	spec, err := ParseSpec(specJSON.String)
	if err != nil {
		return nil, err
	}

	task := &Task{
		JobID:        jobID,
		Name:         name,
		Type:         TaskType(taskType),
		Spec:         spec,
		Status:       Status(statusStr),
		RetryCount:   retryCount,
		ErrorMessage: errorMessage.String,
		LogPath:      logPath.String,
		RunID:        runID.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		task.UpdatedAt = updated
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			task.StartedAt = &started
		}
	}
	return task, nil
}

func collectTasks(rows *sql.Rows) ([]*Task, error) {
	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
