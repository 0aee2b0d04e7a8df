package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"avatarmig/internal/config"
	"avatarmig/internal/migrate"
)

const userAgent = "avatarmig/0.1.0"

// Service defines the notification surface exposed to the CLI.
type Service interface {
	NotifyRunCompleted(ctx context.Context, report migrate.Report) error
	NotifyRunAborted(ctx context.Context, report migrate.Report) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: cfg.NotificationTimeout()},
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

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, report migrate.Report) error {
	var builder strings.Builder
	label := "Migration complete"
	tags := []string{"avatarmig", "migrate", "completed"}
	if report.DryRun {
		label = "Dry run complete"
		tags = append(tags, "dry-run")
	}
	fmt.Fprintf(&builder, "%s: %d processed, %d skipped, %d incomplete", label, report.Processed, report.Skipped, report.Incomplete)
	if !report.DryRun {
		fmt.Fprintf(&builder, "\nSynced %d, failed %d", report.Synced, report.Failed)
	}
	if d := report.Duration(); d > 0 {
		fmt.Fprintf(&builder, "\nDuration: %s", d.Round(time.Second))
	}

	priority := ""
	if report.Failed > 0 {
		priority = "high"
		tags = append(tags, "warning")
	}
	data := payload{
		title:    "avatarmig - " + label,
		message:  builder.String(),
		tags:     tags,
		priority: priority,
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunAborted(ctx context.Context, report migrate.Report) error {
	var builder strings.Builder
	builder.WriteString("Migration aborted")
	if id := strings.TrimSpace(report.RunID); id != "" {
		builder.WriteString(" (run ")
		builder.WriteString(id)
		builder.WriteString(")")
	}
	builder.WriteString(": ")
	if report.Err != nil {
		builder.WriteString(strings.TrimSpace(report.Err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	fmt.Fprintf(&builder, "\nScanned %d profile(s) on %d page(s) before stopping", report.Scanned, report.Pages)

	data := payload{
		title:    "avatarmig - Aborted",
		message:  builder.String(),
		tags:     []string{"avatarmig", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "avatarmig - Test",
		message:  "Notification system test",
		tags:     []string{"avatarmig", "test"},
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

func (noopService) NotifyRunCompleted(context.Context, migrate.Report) error { return nil }
func (noopService) NotifyRunAborted(context.Context, migrate.Report) error   { return nil }
func (noopService) TestNotification(context.Context) error                   { return nil }
