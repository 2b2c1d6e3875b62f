package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"slowmo/internal/config"
)

const userAgent = "slowmo/1"

// Event names a notification kind.
type Event string

const (
	EventRenderCompleted   Event = "render_completed"
	EventAnomaly           Event = "anomaly"
	EventEffectUnavailable Event = "effect_unavailable"
	EventAttemptsExhausted Event = "attempts_exhausted"
	EventDaemonStarted     Event = "daemon_started"
	EventTest              Event = "test"
)

// Payload carries event fields. Keys used: "file", "output", "elapsed",
// "anomalies", "detail", "attempts", "input_dir".
type Payload map[string]string

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service from cfg, or a no-op when no topic
// is configured.
func NewService(cfg *config.Config) Service {
	if cfg == nil || strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return noopService{}
	}
	timeout := cfg.NotifyTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:      strings.TrimSpace(cfg.Notifications.NtfyTopic),
		client:        &http.Client{Timeout: timeout},
		notifyRenders: cfg.Notifications.NotifyRenders,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint      string
	client        *http.Client
	notifyRenders bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if event == EventRenderCompleted && !n.notifyRenders {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	file := filepath.Base(strings.TrimSpace(payload["file"]))
	switch event {
	case EventRenderCompleted:
		body := fmt.Sprintf("Rendered %s", file)
		if output := strings.TrimSpace(payload["output"]); output != "" {
			body += "\nOutput: " + filepath.Base(output)
		}
		if elapsed := strings.TrimSpace(payload["elapsed"]); elapsed != "" {
			body += "\nTook " + elapsed
		}
		return message{title: "slowmo - Rendered", body: body, tags: []string{"slowmo", "render", "completed"}}, true
	case EventAnomaly:
		return message{
			title:    "slowmo - Needs attention",
			body:     fmt.Sprintf("%s: %s", file, payload["anomalies"]),
			tags:     []string{"slowmo", "anomaly", "alert"},
			priority: "high",
		}, true
	case EventEffectUnavailable:
		body := fmt.Sprintf("Bullet-time effect unavailable; %s left untouched", file)
		if detail := strings.TrimSpace(payload["detail"]); detail != "" {
			body += "\n" + detail
		}
		return message{title: "slowmo - Effect unavailable", body: body, tags: []string{"slowmo", "engine", "alert"}, priority: "high"}, true
	case EventAttemptsExhausted:
		body := fmt.Sprintf("Giving up on %s after %s failed renders", file, payload["attempts"])
		if detail := strings.TrimSpace(payload["detail"]); detail != "" {
			body += "\n" + detail
		}
		return message{title: "slowmo - Render failed", body: body, tags: []string{"slowmo", "render", "alert"}, priority: "high"}, true
	case EventDaemonStarted:
		return message{
			title: "slowmo - Watching",
			body:  fmt.Sprintf("Watching %s", payload["input_dir"]),
			tags:  []string{"slowmo", "daemon", "started"},
		}, true
	case EventTest:
		return message{title: "slowmo - Test", body: "Notification system test", tags: []string{"slowmo", "test"}, priority: "low"}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
