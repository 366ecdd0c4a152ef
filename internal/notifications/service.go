package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pagesync/internal/config"
	"pagesync/internal/reconcile"
)

const userAgent = "pagesync/0.1.0"

// Service defines the notification surface exposed to run components.
type Service interface {
	NotifyRunCompleted(ctx context.Context, summary *reconcile.Summary) error
	NotifyRunFailed(ctx context.Context, summary *reconcile.Summary) error
	NotifyError(ctx context.Context, err error, operation string) error
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
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
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

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, summary *reconcile.Summary) error {
	if !n.runSummary || summary == nil {
		return nil
	}
	data := payload{
		title: "Pagesync - Run Complete",
		message: fmt.Sprintf("Reconciled %d pages in %s: %d created, %d merged, %d skipped",
			summary.PagesProcessed, summary.Duration().Round(time.Second),
			summary.Created, summary.Merged, summary.Skipped),
		tags: []string{"pagesync", "run", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunFailed(ctx context.Context, summary *reconcile.Summary) error {
	if !n.errors || summary == nil {
		return nil
	}
	pages := make([]string, 0, len(summary.Failures))
	seen := make(map[string]struct{})
	for _, failure := range summary.Failures {
		if _, ok := seen[failure.PageKey]; ok {
			continue
		}
		seen[failure.PageKey] = struct{}{}
		pages = append(pages, failure.PageKey)
	}
	data := payload{
		title: "Pagesync - Run Failed",
		message: fmt.Sprintf("%d failures across pages: %s",
			len(summary.Failures), strings.Join(pages, ", ")),
		tags:     []string{"pagesync", "run", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, operation string) error {
	if !n.errors || err == nil {
		return nil
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		operation = "unknown operation"
	}
	data := payload{
		title:    "Pagesync - Error",
		message:  fmt.Sprintf("%s: %v", operation, err),
		tags:     []string{"pagesync", "error"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:   "Pagesync - Test",
		message: "Test notification from pagesync",
		tags:    []string{"pagesync", "test"},
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

func (noopService) NotifyRunCompleted(context.Context, *reconcile.Summary) error { return nil }
func (noopService) NotifyRunFailed(context.Context, *reconcile.Summary) error    { return nil }
func (noopService) NotifyError(context.Context, error, string) error             { return nil }
func (noopService) TestNotification(context.Context) error                       { return nil }
