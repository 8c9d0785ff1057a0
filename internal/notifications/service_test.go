package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"gridflow/internal/config"
	"gridflow/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyJobCompleted(context.Background(), "job-1", 3, 0); err != nil {
		t.Fatalf("noop notifier should return nil, got %v", err)
	}
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("noop test notification: %v", err)
	}
}

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func ntfyCapture(t *testing.T) (*httptest.Server, *[]captured) {
	t.Helper()
	var requests []captured
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func TestNtfyServiceFormatsMessages(t *testing.T) {
	server, requests := ntfyCapture(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	ctx := context.Background()

	if err := svc.NotifyJobCompleted(ctx, "job-1", 4, 0); err != nil {
		t.Fatalf("NotifyJobCompleted: %v", err)
	}
	if err := svc.NotifyJobFailed(ctx, "job-1", 2, 2); err != nil {
		t.Fatalf("NotifyJobFailed: %v", err)
	}
	if err := svc.NotifyTaskExhausted(ctx, "job-1", "subset_2020", 2); err != nil {
		t.Fatalf("NotifyTaskExhausted: %v", err)
	}

	got := *requests
	if len(got) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(got))
	}

	if got[0].title != "Gridflow - Job Completed" {
		t.Fatalf("completion title = %q", got[0].title)
	}
	if got[0].body != "Job job-1 finished: 4 tasks completed, 0 failed" {
		t.Fatalf("completion body = %q", got[0].body)
	}
	if got[0].priority != "" {
		t.Fatalf("completion priority = %q, want default", got[0].priority)
	}

	if got[1].title != "Gridflow - Job Failed" || got[1].priority != "high" {
		t.Fatalf("failure request = %+v", got[1])
	}
	if got[2].tags != "gridflow,task,failed" {
		t.Fatalf("exhaustion tags = %q", got[2].tags)
	}
	if got[2].body != "Task subset_2020 in job job-1 failed after 2 retries" {
		t.Fatalf("exhaustion body = %q", got[2].body)
	}
}

func TestNtfyServiceReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic rejected", http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
