package testsupport

import (
	"context"
	"testing"

	"gridflow/internal/config"
	"gridflow/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates a job for tests using the provided store.
func NewJob(t testing.TB, store *queue.Store, id string) *queue.Job {
	t.Helper()

	job := &queue.Job{ID: id, Label: "test " + id}
	if err := store.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("store.CreateJob: %v", err)
	}
	return job
}

// NewTask enqueues a task for tests using the provided store.
func NewTask(t testing.TB, store *queue.Store, jobID, name string, taskType queue.TaskType, spec queue.Spec) *queue.Task {
	t.Helper()

	task := &queue.Task{
		JobID: jobID,
		Name:  name,
		Type:  taskType,
		Spec:  spec,
	}
	if err := store.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("store.CreateTask: %v", err)
	}
	return task
}
