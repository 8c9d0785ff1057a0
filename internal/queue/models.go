package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var allStatuses = []Status{
	StatusQueued,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known task statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// JobStatus represents the aggregate lifecycle of a job.
type JobStatus string

const (
	JobStatusNew             JobStatus = "new"
	JobStatusRunning         JobStatus = "running"
	JobStatusCompleted       JobStatus = "completed"
	JobStatusPartiallyFailed JobStatus = "partially_failed"
	JobStatusFailed          JobStatus = "failed"
)

// IsTerminal reports whether every task of the job has reached a terminal state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusPartiallyFailed, JobStatusFailed:
		return true
	default:
		return false
	}
}

// TaskType selects which payload script a task runs.
type TaskType string

const (
	TaskTypeSubset TaskType = "subset"
	TaskTypeRegrid TaskType = "regrid"
)

// ExhaustedRetriesReason is the error message persisted when a task fails
// with no retries remaining. The subprocess is opaque, so no finer-grained
// cause is recorded.
const ExhaustedRetriesReason = "process execution failed"

// Task is one unit of scheduled work: a single payload-script invocation.
type Task struct {
	JobID        string
	Name         string
	Type         TaskType
	Spec         Spec
	Status       Status
	RetryCount   int
	ErrorMessage string
	LogPath      string
	RunID        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
}

// MarkCompleted transitions the task to its successful terminal state.
func (t *Task) MarkCompleted() {
	t.Status = StatusCompleted
	t.ErrorMessage = ""
}

// MarkRetry increments the retry counter and returns the task to the queue.
// The counter is never decremented.
func (t *Task) MarkRetry() {
	t.RetryCount++
	t.Status = StatusQueued
}

// MarkFailed transitions the task to its failed terminal state.
func (t *Task) MarkFailed(reason string) {
	t.Status = StatusFailed
	t.ErrorMessage = reason
}

// Job is a named collection of tasks with an aggregate completion status.
type Job struct {
	ID           string
	Label        string
	Spec         Spec
	Status       JobStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// TaskCounts aggregates task statuses for one job.
type TaskCounts struct {
	Total     int
	Queued    int
	Running   int
	Completed int
	Failed    int
}

// Terminal reports whether no task of the job can still make progress.
func (c TaskCounts) Terminal() bool {
	return c.Total > 0 && c.Queued == 0 && c.Running == 0
}

// AggregateStatus derives the job status implied by the task counts.
func (c TaskCounts) AggregateStatus() JobStatus {
	switch {
	case c.Total == 0:
		return JobStatusNew
	case !c.Terminal():
		if c.Running == 0 && c.Completed == 0 && c.Failed == 0 {
			return JobStatusNew
		}
		return JobStatusRunning
	case c.Failed == 0:
		return JobStatusCompleted
	case c.Completed == 0:
		return JobStatusFailed
	default:
		return JobStatusPartiallyFailed
	}
}

// HealthSummary describes aggregated queue counts per lifecycle state.
type HealthSummary struct {
	Total     int
	Queued    int
	Running   int
	Completed int
	Failed    int
}
