package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"slowmo/internal/config"
	"slowmo/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventAnomaly, notifications.Payload{"file": "a.mp4"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newTopic(t *testing.T, status int) (*httptest.Server, *captured, *atomic.Int32) {
	t.Helper()
	got := &captured{}
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		got.title = r.Header.Get("Title")
		got.tags = r.Header.Get("Tags")
		got.priority = r.Header.Get("Priority")
		body, _ := io.ReadAll(r.Body)
		got.body = string(body)
		w.WriteHeader(status)
		_, _ = w.Write([]byte("nope"))
	}))
	t.Cleanup(server.Close)
	return server, got, &calls
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectBody     string
		expectTags     string
		expectPriority string
	}{
		{
			name:           "anomaly",
			event:          notifications.EventAnomaly,
			payload:        notifications.Payload{"file": "/watch/in/b.mp4", "anomalies": "stuck_marked"},
			expectTitle:    "slowmo - Needs attention",
			expectBody:     "b.mp4: stuck_marked",
			expectTags:     "slowmo,anomaly,alert",
			expectPriority: "high",
		},
		{
			name:           "effect unavailable",
			event:          notifications.EventEffectUnavailable,
			payload:        notifications.Payload{"file": "/watch/in/c.mp4", "detail": "minterpolate missing"},
			expectTitle:    "slowmo - Effect unavailable",
			expectBody:     "Bullet-time effect unavailable; c.mp4 left untouched\nminterpolate missing",
			expectTags:     "slowmo,engine,alert",
			expectPriority: "high",
		},
		{
			name:           "attempts exhausted",
			event:          notifications.EventAttemptsExhausted,
			payload:        notifications.Payload{"file": "d.mov", "attempts": "3"},
			expectTitle:    "slowmo - Render failed",
			expectBody:     "Giving up on d.mov after 3 failed renders",
			expectTags:     "slowmo,render,alert",
			expectPriority: "high",
		},
		{
			name:        "render completed",
			event:       notifications.EventRenderCompleted,
			payload:     notifications.Payload{"file": "/watch/in/a.mp4", "output": "/watch/out/a_processed.mp4", "elapsed": "4s"},
			expectTitle: "slowmo - Rendered",
			expectBody:  "Rendered a.mp4\nOutput: a_processed.mp4\nTook 4s",
			expectTags:  "slowmo,render,completed",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, got, _ := newTopic(t, http.StatusOK)
			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			cfg.Notifications.NotifyRenders = true

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("publish: %v", err)
			}
			if got.title != tc.expectTitle {
				t.Fatalf("title = %q, want %q", got.title, tc.expectTitle)
			}
			if got.body != tc.expectBody {
				t.Fatalf("body = %q, want %q", got.body, tc.expectBody)
			}
			if got.tags != tc.expectTags {
				t.Fatalf("tags = %q, want %q", got.tags, tc.expectTags)
			}
			if got.priority != tc.expectPriority {
				t.Fatalf("priority = %q, want %q", got.priority, tc.expectPriority)
			}
		})
	}
}

func TestRenderAnnouncementsAreOptIn(t *testing.T) {
	server, _, calls := newTopic(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventRenderCompleted, notifications.Payload{"file": "a.mp4"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("render announcement sent without notify_renders")
	}
}

func TestPublishReportsServerErrors(t *testing.T) {
	server, _, _ := newTopic(t, http.StatusForbidden)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	err := notifications.NewService(&cfg).Publish(context.Background(), notifications.EventTest, nil)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}

func TestPublishRejectsUnknownEvent(t *testing.T) {
	server, _, calls := newTopic(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	if err := notifications.NewService(&cfg).Publish(context.Background(), "bogus", nil); err == nil {
		t.Fatal("expected unknown event error")
	}
	if calls.Load() != 0 {
		t.Fatal("unknown event must not be sent")
	}
}
