package ipc

import (
	"time"

	"gridflow/internal/queue"
)

// TaskSummary is the wire representation of a queue task.
type TaskSummary struct {
	JobID        string     `json:"job_id"`
	Name         string     `json:"name"`
	Type         string     `json:"type"`
	Status       string     `json:"status"`
	RetryCount   int        `json:"retry_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	LogPath      string     `json:"log_path,omitempty"`
	RunID        string     `json:"run_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
}

// FromTask converts a queue task into its wire representation.
func FromTask(task *queue.Task) TaskSummary {
	return TaskSummary{
		JobID:        task.JobID,
		Name:         task.Name,
		Type:         string(task.Type),
		Status:       string(task.Status),
		RetryCount:   task.RetryCount,
		ErrorMessage: task.ErrorMessage,
		LogPath:      task.LogPath,
		RunID:        task.RunID,
		CreatedAt:    task.CreatedAt,
		UpdatedAt:    task.UpdatedAt,
		StartedAt:    task.StartedAt,
	}
}

// JobSummary is the wire representation of a job.
type JobSummary struct {
	ID           string     `json:"id"`
	Label        string     `json:"label,omitempty"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// FromJob converts a queue job into its wire representation.
func FromJob(job *queue.Job) JobSummary {
	return JobSummary{
		ID:           job.ID,
		Label:        job.Label,
		Status:       string(job.Status),
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
		CompletedAt:  job.CompletedAt,
	}
}

// TaskSpec carries one task of a job submission.
type TaskSpec struct {
	Name string     `json:"name"`
	Type string     `json:"type"`
	Spec queue.Spec `json:"spec"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon/queue status information.
type StatusResponse struct {
	Running     bool           `json:"running"`
	Workers     int            `json:"workers"`
	QueueStats  map[string]int `json:"queue_stats"`
	LockPath    string         `json:"lock_path"`
	QueueDBPath string         `json:"queue_db_path"`
	PID         int            `json:"pid"`
}

// QueueListRequest filters queue listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Tasks []TaskSummary `json:"tasks"`
}

// QueueRetryRequest retries failed tasks. An empty job id means all jobs.
type QueueRetryRequest struct {
	JobID string `json:"job_id"`
}

// QueueRetryResponse reports number of retried tasks.
type QueueRetryResponse struct {
	Updated int64 `json:"updated"`
}

// QueueClearCompletedRequest removes completed tasks.
type QueueClearCompletedRequest struct{}

// QueueClearCompletedResponse reports number of removed entries.
type QueueClearCompletedResponse struct {
	Removed int64 `json:"removed"`
}

// QueueResetRequest resets tasks stuck in the running state.
type QueueResetRequest struct{}

// QueueResetResponse reports number of tasks reset.
type QueueResetResponse struct {
	Updated int64 `json:"updated"`
}

// QueueRequeueRequest re-admits one task for another attempt.
type QueueRequeueRequest struct {
	JobID string `json:"job_id"`
	Task  string `json:"task"`
}

// QueueRequeueResponse acknowledges the requeue.
type QueueRequeueResponse struct {
	Requeued bool `json:"requeued"`
}

// JobShowRequest fetches a job and its tasks.
type JobShowRequest struct {
	JobID string `json:"job_id"`
}

// JobShowResponse contains a job and its tasks.
type JobShowResponse struct {
	Job   JobSummary    `json:"job"`
	Tasks []TaskSummary `json:"tasks"`
}

// JobListRequest fetches all jobs.
type JobListRequest struct{}

// JobListResponse contains all jobs.
type JobListResponse struct {
	Jobs []JobSummary `json:"jobs"`
}

// SubmitRequest stores a new job and its tasks.
type SubmitRequest struct {
	ID    string     `json:"id"`
	Label string     `json:"label"`
	Spec  queue.Spec `json:"spec"`
	Tasks []TaskSpec `json:"tasks"`
}

// SubmitResponse reports the stored job.
type SubmitResponse struct {
	Job JobSummary `json:"job"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
