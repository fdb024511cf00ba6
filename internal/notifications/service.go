// Package notifications pushes pipeline milestones to an ntfy topic.
// Without a configured topic every call is a no-op.
package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storycut/internal/config"
	"storycut/internal/media"
)

const userAgent = "storycut/0.1"

// Service is the notification surface exposed to the supervisor and CLI.
type Service interface {
	NotifyMediaReady(ctx context.Context, title, mediaID string) error
	NotifyPlanReady(ctx context.Context, planID string, totalKeep float64) error
	NotifyRenderCompleted(ctx context.Context, planID, aspect, outputURI string) error
	NotifyJobFailed(ctx context.Context, kind media.JobKind, jobErr media.JobError) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service when a topic is configured,
// otherwise a noop implementation.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notify.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.Notify.NtfyURL), "/")
	if base == "" {
		base = "https://ntfy.sh"
	}
	timeout := time.Duration(cfg.Notify.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: base + "/" + topic,
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

func (n *ntfyService) NotifyMediaReady(ctx context.Context, title, mediaID string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		title = mediaID
	}
	return n.send(ctx, payload{
		title:   "Storycut - Media Ready",
		message: fmt.Sprintf("Probed and ready to enrich: %s", title),
		tags:    []string{"storycut", "media", "ready"},
	})
}

func (n *ntfyService) NotifyPlanReady(ctx context.Context, planID string, totalKeep float64) error {
	return n.send(ctx, payload{
		title:   "Storycut - Plan Ready",
		message: fmt.Sprintf("Plan %s validated, keeping %.1fs", planID, totalKeep),
		tags:    []string{"storycut", "plan", "validated"},
	})
}

func (n *ntfyService) NotifyRenderCompleted(ctx context.Context, planID, aspect, outputURI string) error {
	message := fmt.Sprintf("Rendered %s for plan %s", aspect, planID)
	if outputURI = strings.TrimSpace(outputURI); outputURI != "" {
		message = fmt.Sprintf("%s\nFile: %s", message, outputURI)
	}
	return n.send(ctx, payload{
		title:    "Storycut - Render Complete",
		message:  message,
		tags:     []string{"storycut", "render", "completed"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, kind media.JobKind, jobErr media.JobError) error {
	return n.send(ctx, payload{
		title:    "Storycut - Job Failed",
		message:  fmt.Sprintf("%s failed: %s: %s", kind, jobErr.Code, jobErr.Message),
		tags:     []string{"storycut", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Storycut - Test",
		message:  "Notification test",
		tags:     []string{"storycut", "test"},
		priority: "low",
	})
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
	if data.priority != "" {
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

func (noopService) NotifyMediaReady(context.Context, string, string) error { return nil }

func (noopService) NotifyPlanReady(context.Context, string, float64) error { return nil }

func (noopService) NotifyRenderCompleted(context.Context, string, string, string) error {
	return nil
}

func (noopService) NotifyJobFailed(context.Context, media.JobKind, media.JobError) error {
	return nil
}

func (noopService) TestNotification(context.Context) error { return nil }
