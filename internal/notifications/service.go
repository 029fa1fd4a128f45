package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloudsub/internal/config"
)

const userAgent = "cloudsub/0.1.0"

// Service defines the notification surface exposed to the sync engine.
type Service interface {
	NotifySyncStarted(ctx context.Context, subscriptions int) error
	NotifySyncCompleted(ctx context.Context, transferred, failed int, duration time.Duration) error
	NotifySubscriptionCompleted(ctx context.Context, title string) error
	NotifyError(ctx context.Context, err error, context string) error
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

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint:   topic,
		client:     client,
		runSummary: cfg.Notifications.RunSummary,
		errors:     cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	runSummary bool
	errors     bool
}

func (n *ntfyService) NotifySyncStarted(ctx context.Context, subscriptions int) error {
	if !n.runSummary {
		return nil
	}
	data := payload{
		title:   "Cloudsub - Sync Started",
		message: fmt.Sprintf("Started sync for %d subscriptions", subscriptions),
		tags:    []string{"cloudsub", "sync", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySyncCompleted(ctx context.Context, transferred, failed int, duration time.Duration) error {
	if !n.runSummary {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	var title string
	var message string
	if failed == 0 {
		title = "Cloudsub - Sync Complete"
		message = fmt.Sprintf("Sync complete: %d files transferred in %s", transferred, durationText)
	} else {
		title = "Cloudsub - Sync Complete (with errors)"
		message = fmt.Sprintf("Sync complete: %d transferred, %d failed in %s", transferred, failed, durationText)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"cloudsub", "sync", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySubscriptionCompleted(ctx context.Context, title string) error {
	title = strings.TrimSpace(title)
	data := payload{
		title:    "Cloudsub - Subscription Complete",
		message:  fmt.Sprintf("Nothing left to fetch: %s", title),
		tags:     []string{"cloudsub", "subscription", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Cloudsub - Error",
		message:  builder.String(),
		tags:     []string{"cloudsub", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Cloudsub - Test",
		message:  "Notification system test",
		tags:     []string{"cloudsub", "test"},
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

func (noopService) NotifySyncStarted(context.Context, int) error                      { return nil }
func (noopService) NotifySyncCompleted(context.Context, int, int, time.Duration) error { return nil }
func (noopService) NotifySubscriptionCompleted(context.Context, string) error         { return nil }
func (noopService) NotifyError(context.Context, error, string) error                  { return nil }
func (noopService) TestNotification(context.Context) error                            { return nil }
