package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelsight/internal/config"
)

const userAgent = "reelsight/0.1.0"

// Job is the notification view of a finished job.
type Job struct {
	ID          string
	Filename    string
	Owner       string
	FailedStage string
	Error       string
	ResultKey   string
	Elapsed     time.Duration
}

// Service defines the notification surface used by the workflow manager.
type Service interface {
	NotifyJobCompleted(ctx context.Context, job Job) error
	NotifyJobFailed(ctx context.Context, job Job) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Notifications.Completed,
		failed:    cfg.Notifications.Failed,
	}
}

// NewNoop returns a service that drops every notification.
func NewNoop() Service { return noopService{} }

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	completed bool
	failed    bool
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, job Job) error {
	if !n.completed {
		return nil
	}
	message := fmt.Sprintf("✅ Report ready: %s", displayName(job))
	if job.Elapsed > 0 {
		message = fmt.Sprintf("%s (%s)", message, job.Elapsed.Round(time.Second))
	}
	data := payload{
		title:   "reelsight - Report Ready",
		message: message,
		tags:    []string{"reelsight", "job", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, job Job) error {
	if !n.failed {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Analysis failed: ")
	builder.WriteString(displayName(job))
	if stage := strings.TrimSpace(job.FailedStage); stage != "" {
		builder.WriteString(" at ")
		builder.WriteString(stage)
	}
	if msg := strings.TrimSpace(job.Error); msg != "" {
		builder.WriteString("\n")
		builder.WriteString(msg)
	}
	data := payload{
		title:    "reelsight - Job Failed",
		message:  builder.String(),
		tags:     []string{"reelsight", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "reelsight - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"reelsight", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func displayName(job Job) string {
	if name := strings.TrimSpace(job.Filename); name != "" {
		return name
	}
	return job.ID
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

func (noopService) NotifyJobCompleted(context.Context, Job) error { return nil }
func (noopService) NotifyJobFailed(context.Context, Job) error    { return nil }
func (noopService) TestNotification(context.Context) error        { return nil }
