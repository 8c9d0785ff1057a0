package queue_test

import (
	"context"
	"sync"
	"testing"

	"gridflow/internal/queue"
	"gridflow/internal/testsupport"
)

func TestClaimNextTaskMarksRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewJob(t, store, "job-1")
	testsupport.NewTask(t, store, "job-1", "subset_2020", queue.TaskTypeSubset, nil)

	task, err := store.ClaimNextTask(ctx)
	if err != nil {
		t.Fatalf("ClaimNextTask: %v", err)
	}
	if task == nil {
		t.Fatal("expected a claimed task")
	}
	if task.Status != queue.StatusRunning {
		t.Fatalf("claimed task status = %q, want running", task.Status)
	}
	if task.StartedAt == nil {
		t.Fatal("claimed task should record a start time")
	}

	stored, err := store.GetTask(ctx, "job-1", "subset_2020")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if stored.Status != queue.StatusRunning {
		t.Fatalf("persisted status = %q, want running", stored.Status)
	}

	again, err := store.ClaimNextTask(ctx)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if again != nil {
		t.Fatalf("empty queue should return nil, got %s/%s", again.JobID, again.Name)
	}
}

func TestClaimNextTaskOldestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewJob(t, store, "job-1")
	testsupport.NewTask(t, store, "job-1", "a_first", queue.TaskTypeSubset, nil)
	testsupport.NewTask(t, store, "job-1", "b_second", queue.TaskTypeRegrid, nil)

	task, err := store.ClaimNextTask(ctx)
	if err != nil {
		t.Fatalf("ClaimNextTask: %v", err)
	}
	if task == nil || task.Name != "a_first" {
		t.Fatalf("expected oldest task first, got %+v", task)
	}
}

func TestClaimNextTaskConcurrentClaimsAreExclusive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewJob(t, store, "job-1")
	testsupport.NewTask(t, store, "job-1", "only", queue.TaskTypeSubset, nil)

	const claimers = 8
	var wg sync.WaitGroup
	claims := make(chan *queue.Task, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, err := store.ClaimNextTask(ctx)
			if err != nil {
				t.Errorf("ClaimNextTask: %v", err)
				return
			}
			if task != nil {
				claims <- task
			}
		}()
	}
	wg.Wait()
	close(claims)

	won := 0
	for range claims {
		won++
	}
	if won != 1 {
		t.Fatalf("expected exactly one successful claim, got %d", won)
	}
}

func TestClaimNextTaskContendersDrainQueue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewJob(t, store, "job-1")
	names := []string{"t_a", "t_b", "t_c", "t_d"}
	for _, name := range names {
		testsupport.NewTask(t, store, "job-1", name, queue.TaskTypeSubset, nil)
	}

	// More claimers than tasks; every claimer keeps claiming until the
	// queue is empty. Losers must see nil, never a busy error, and each
	// task must be handed out exactly once.
	const claimers = 8
	var wg sync.WaitGroup
	claims := make(chan *queue.Task, claimers*len(names))
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := store.ClaimNextTask(ctx)
				if err != nil {
					t.Errorf("ClaimNextTask: %v", err)
					return
				}
				if task == nil {
					return
				}
				claims <- task
			}
		}()
	}
	wg.Wait()
	close(claims)

	seen := make(map[string]int)
	for task := range claims {
		seen[task.Name]++
	}
	if len(seen) != len(names) {
		t.Fatalf("claimed %d distinct tasks, want %d", len(seen), len(names))
	}
	for name, count := range seen {
		if count != 1 {
			t.Fatalf("task %s claimed %d times", name, count)
		}
	}
}

func TestTaskRetryFlow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewJob(t, store, "job-1")
	testsupport.NewTask(t, store, "job-1", "subset_2020", queue.TaskTypeSubset, nil)

	task, err := store.ClaimNextTask(ctx)
	if err != nil || task == nil {
		t.Fatalf("claim: task=%v err=%v", task, err)
	}

	task.MarkRetry()
	task.StartedAt = nil
	task.RunID = ""
	if err := store.UpdateTask(ctx, task); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	stored, err := store.GetTask(ctx, "job-1", "subset_2020")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if stored.Status != queue.StatusQueued {
		t.Fatalf("retried task status = %q, want queued", stored.Status)
	}
	if stored.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", stored.RetryCount)
	}
	if stored.StartedAt != nil {
		t.Fatal("retried task should clear its start time")
	}

	// The retried task is claimable again.
	task, err = store.ClaimNextTask(ctx)
	if err != nil || task == nil {
		t.Fatalf("reclaim: task=%v err=%v", task, err)
	}
	if task.RetryCount != 1 {
		t.Fatalf("reclaimed retry count = %d, want 1", task.RetryCount)
	}
}

func TestTaskFailureAndRetryFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewJob(t, store, "job-1")
	testsupport.NewJob(t, store, "job-2")
	testsupport.NewTask(t, store, "job-1", "t1", queue.TaskTypeSubset, nil)
	testsupport.NewTask(t, store, "job-2", "t2", queue.TaskTypeSubset, nil)

	for _, key := range []struct{ job, name string }{{"job-1", "t1"}, {"job-2", "t2"}} {
		task, err := store.ClaimNextTask(ctx)
		if err != nil || task == nil {
			t.Fatalf("claim %s/%s: task=%v err=%v", key.job, key.name, task, err)
		}
		task.MarkFailed(queue.ExhaustedRetriesReason)
		if err := store.UpdateTask(ctx, task); err != nil {
			t.Fatalf("UpdateTask: %v", err)
		}
	}

	updated, err := store.RetryFailed(ctx, "job-1")
	if err != nil {
		t.Fatalf("RetryFailed(job-1): %v", err)
	}
	if updated != 1 {
		t.Fatalf("scoped retry updated %d tasks, want 1", updated)
	}

	stored, _ := store.GetTask(ctx, "job-1", "t1")
	if stored.Status != queue.StatusQueued || stored.RetryCount != 0 {
		t.Fatalf("retried task = %q retries=%d, want queued/0", stored.Status, stored.RetryCount)
	}
	other, _ := store.GetTask(ctx, "job-2", "t2")
	if other.Status != queue.StatusFailed {
		t.Fatalf("unscoped task changed: %q", other.Status)
	}

	updated, err = store.RetryFailed(ctx, "")
	if err != nil {
		t.Fatalf("RetryFailed(all): %v", err)
	}
	if updated != 1 {
		t.Fatalf("global retry updated %d tasks, want 1", updated)
	}
}

func TestRequeueTask(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewJob(t, store, "job-1")
	testsupport.NewTask(t, store, "job-1", "t1", queue.TaskTypeSubset, nil)

	task, err := store.ClaimNextTask(ctx)
	if err != nil || task == nil {
		t.Fatalf("claim: task=%v err=%v", task, err)
	}

	if err := store.RequeueTask(ctx, "job-1", "t1"); err != nil {
		t.Fatalf("RequeueTask: %v", err)
	}
	stored, _ := store.GetTask(ctx, "job-1", "t1")
	if stored.Status != queue.StatusQueued {
		t.Fatalf("requeued task status = %q, want queued", stored.Status)
	}
	if stored.StartedAt != nil || stored.RunID != "" {
		t.Fatal("requeue should clear start time and run id")
	}

	if err := store.RequeueTask(ctx, "job-1", "missing"); err == nil {
		t.Fatal("requeue of unknown task should error")
	}
}

func TestStatsAndMaintenance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewJob(t, store, "job-1")
	testsupport.NewTask(t, store, "job-1", "done", queue.TaskTypeSubset, nil)
	testsupport.NewTask(t, store, "job-1", "stuck", queue.TaskTypeSubset, nil)
	testsupport.NewTask(t, store, "job-1", "waiting", queue.TaskTypeSubset, nil)

	task, _ := store.ClaimNextTask(ctx) // "done"
	task.MarkCompleted()
	if err := store.UpdateTask(ctx, task); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if _, err := store.ClaimNextTask(ctx); err != nil { // "stuck" stays running
		t.Fatalf("claim stuck: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[queue.StatusCompleted] != 1 || stats[queue.StatusRunning] != 1 || stats[queue.StatusQueued] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 3 || health.Completed != 1 || health.Running != 1 || health.Queued != 1 {
		t.Fatalf("unexpected health: %+v", health)
	}

	reset, err := store.ResetStuckRunning(ctx)
	if err != nil {
		t.Fatalf("ResetStuckRunning: %v", err)
	}
	if reset != 1 {
		t.Fatalf("reset %d tasks, want 1", reset)
	}

	removed, err := store.ClearCompleted(ctx)
	if err != nil {
		t.Fatalf("ClearCompleted: %v", err)
	}
	if removed != 1 {
		t.Fatalf("cleared %d tasks, want 1", removed)
	}

	counts, err := store.TaskCountsForJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("TaskCountsForJob: %v", err)
	}
	if counts.Total != 2 || counts.Queued != 2 {
		t.Fatalf("unexpected counts after maintenance: %+v", counts)
	}
}

func TestJobLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "job-1")
	if job.Status != queue.JobStatusNew {
		t.Fatalf("new job status = %q, want new", job.Status)
	}

	job.Status = queue.JobStatusRunning
	if err := store.UpdateJob(ctx, job); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	stored, err := store.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.Status != queue.JobStatusRunning {
		t.Fatalf("persisted job status = %q", stored.Status)
	}

	missing, err := store.GetJob(ctx, "nope")
	if err != nil {
		t.Fatalf("GetJob(missing): %v", err)
	}
	if missing != nil {
		t.Fatal("missing job should be nil")
	}

	list, err := store.ListJobs(ctx)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListJobs returned %d jobs, want 1", len(list))
	}

	removed, err := store.RemoveJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("RemoveJob: %v", err)
	}
	if !removed {
		t.Fatal("expected job removal")
	}
}

func TestRemoveJobCascadesOnEveryConnection(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewJob(t, store, "job-1")
	testsupport.NewTask(t, store, "job-1", "t1", queue.TaskTypeSubset, nil)
	testsupport.NewTask(t, store, "job-1", "t2", queue.TaskTypeRegrid, nil)

	// Run parallel reads first so the pool opens extra connections. The
	// delete below must still cascade to tasks no matter which pooled
	// connection the driver hands it.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ListJobs(ctx); err != nil {
				t.Errorf("ListJobs: %v", err)
			}
		}()
	}
	wg.Wait()

	removed, err := store.RemoveJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("RemoveJob: %v", err)
	}
	if !removed {
		t.Fatal("expected job removal")
	}

	orphans, err := store.TasksForJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("TasksForJob: %v", err)
	}
	if len(orphans) != 0 {
		t.Fatalf("tasks survived job removal: %d left", len(orphans))
	}
}

func TestAggregateStatusMatrix(t *testing.T) {
	tests := []struct {
		name   string
		counts queue.TaskCounts
		want   queue.JobStatus
	}{
		{"no tasks", queue.TaskCounts{}, queue.JobStatusNew},
		{"all queued", queue.TaskCounts{Total: 2, Queued: 2}, queue.JobStatusNew},
		{"one running", queue.TaskCounts{Total: 2, Queued: 1, Running: 1}, queue.JobStatusRunning},
		{"partially done still running", queue.TaskCounts{Total: 3, Queued: 1, Completed: 1, Failed: 1}, queue.JobStatusRunning},
		{"all completed", queue.TaskCounts{Total: 2, Completed: 2}, queue.JobStatusCompleted},
		{"all failed", queue.TaskCounts{Total: 2, Failed: 2}, queue.JobStatusFailed},
		{"mixed terminal", queue.TaskCounts{Total: 2, Completed: 1, Failed: 1}, queue.JobStatusPartiallyFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.counts.AggregateStatus(); got != tc.want {
				t.Fatalf("AggregateStatus(%+v) = %q, want %q", tc.counts, got, tc.want)
			}
		})
	}
}
