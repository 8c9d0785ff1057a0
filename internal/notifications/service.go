package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gridflow/internal/config"
)

const userAgent = "Gridflow/0.1.0"

// Service defines the notification surface exposed to the daemon and job manager.
type Service interface {
	NotifyJobCompleted(ctx context.Context, jobID string, completed, failed int) error
	NotifyJobFailed(ctx context.Context, jobID string, completed, failed int) error
	NotifyTaskExhausted(ctx context.Context, jobID, taskName string, retries int) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, jobID string, completed, failed int) error {
	data := payload{
		title:   "Gridflow - Job Completed",
		message: fmt.Sprintf("Job %s finished: %d tasks completed, %d failed", jobID, completed, failed),
		tags:    []string{"gridflow", "job", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, jobID string, completed, failed int) error {
	data := payload{
		title:    "Gridflow - Job Failed",
		message:  fmt.Sprintf("Job %s failed: %d tasks completed, %d failed", jobID, completed, failed),
		tags:     []string{"gridflow", "job", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTaskExhausted(ctx context.Context, jobID, taskName string, retries int) error {
	data := payload{
		title:    "Gridflow - Task Exhausted Retries",
		message:  fmt.Sprintf("Task %s in job %s failed after %d retries", taskName, jobID, retries),
		tags:     []string{"gridflow", "task", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Gridflow - Test",
		message:  "Notification system test",
		tags:     []string{"gridflow", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobCompleted(context.Context, string, int, int) error     { return nil }
func (noopService) NotifyJobFailed(context.Context, string, int, int) error        { return nil }
func (noopService) NotifyTaskExhausted(context.Context, string, string, int) error { return nil }
func (noopService) TestNotification(context.Context) error                         { return nil }
