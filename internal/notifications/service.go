package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"syncqueue/internal/config"
)

const userAgent = "syncqueue/0.1.0"

// Service delivers rendered notifications to the user.
type Service interface {
	Send(ctx context.Context, n Notification) error
	Test(ctx context.Context) error
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
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		renderer: NewRenderer(cfg.Notifications.Language),
	}
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	renderer *Renderer
}

func (n *ntfyService) Send(ctx context.Context, note Notification) error {
	return n.send(ctx, note, n.renderer.Render(note))
}

func (n *ntfyService) Test(ctx context.Context) error {
	note := Notification{MessageKey: KeySyncTest, Severity: SeverityInfo, DedupeKey: "sync_test"}
	return n.send(ctx, note, n.renderer.Render(note))
}

func (n *ntfyService) send(ctx context.Context, note Notification, message string) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", titleFor(note.Severity))
	req.Header.Set("Tags", strings.Join(tagsFor(note), ","))
	if priority := priorityFor(note.Severity); priority != "" {
		req.Header.Set("Priority", priority)
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

func titleFor(severity Severity) string {
	switch severity {
	case SeveritySuccess:
		return "syncqueue - Synced"
	case SeverityError:
		return "syncqueue - Error"
	default:
		return "syncqueue"
	}
}

func tagsFor(note Notification) []string {
	tags := []string{"syncqueue"}
	if key := strings.TrimSpace(note.MessageKey); key != "" {
		tags = append(tags, strings.ReplaceAll(key, ".", "-"))
	}
	if note.Severity != "" {
		tags = append(tags, string(note.Severity))
	}
	return tags
}

func priorityFor(severity Severity) string {
	switch severity {
	case SeverityError:
		return "high"
	case SeverityInfo:
		return "low"
	default:
		return ""
	}
}

type noopService struct{}

func (noopService) Send(context.Context, Notification) error { return nil }
func (noopService) Test(context.Context) error               { return nil }
