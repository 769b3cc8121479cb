package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"codeflow/internal/config"
)

const userAgent = "codeflow/0.1.0"

// Event names a pipeline milestone.
type Event string

const (
	EventArtifactProcessed Event = "artifact_processed"
	EventArtifactFailed    Event = "artifact_failed"
	EventQueueStarted      Event = "queue_started"
	EventQueueCompleted    Event = "queue_completed"
	EventTest              Event = "test"
)

// Payload carries event-specific values keyed by name.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
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
		enabled: map[Event]bool{
			EventArtifactProcessed: cfg.Notifications.Processed,
			EventArtifactFailed:    cfg.Notifications.Failed,
			EventQueueStarted:      true,
			EventQueueCompleted:    true,
			EventTest:              true,
		},
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
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, data Payload) (payload, bool) {
	switch event {
	case EventArtifactProcessed:
		return payload{
			title:   "codeflow - Processed",
			message: fmt.Sprintf("Processed: %s", artifactLabel(data)),
			tags:    []string{"codeflow", "artifact", "processed"},
		}, true
	case EventArtifactFailed:
		reason := strings.TrimSpace(stringValue(data, "reason"))
		if reason == "" {
			reason = "unknown"
		}
		return payload{
			title:    "codeflow - Failed",
			message:  fmt.Sprintf("Failed: %s\n%s", artifactLabel(data), firstLine(reason)),
			tags:     []string{"codeflow", "artifact", "failed"},
			priority: "high",
		}, true
	case EventQueueStarted:
		return payload{
			title:   "codeflow - Queue Started",
			message: fmt.Sprintf("Started processing queue with %d items", intValue(data, "count")),
			tags:    []string{"codeflow", "queue", "started"},
		}, true
	case EventQueueCompleted:
		processed := intValue(data, "processed")
		failed := intValue(data, "failed")
		duration, _ := data["duration"].(time.Duration)
		duration = duration.Round(time.Second)
		if duration < 0 {
			duration = 0
		}
		if failed == 0 {
			return payload{
				title:   "codeflow - Queue Complete",
				message: fmt.Sprintf("Queue processing complete: %d artifacts processed in %s", processed, duration),
				tags:    []string{"codeflow", "queue", "completed"},
			}, true
		}
		return payload{
			title:   "codeflow - Queue Complete (with errors)",
			message: fmt.Sprintf("Queue processing complete: %d succeeded, %d failed in %s", processed, failed, duration),
			tags:    []string{"codeflow", "queue", "completed"},
		}, true
	case EventTest:
		return payload{
			title:    "codeflow - Test",
			message:  "Notification system test",
			tags:     []string{"codeflow", "test"},
			priority: "low",
		}, true
	}
	return payload{}, false
}

func artifactLabel(data Payload) string {
	name := strings.TrimSpace(stringValue(data, "name"))
	id := intValue(data, "id")
	switch {
	case name != "" && id > 0:
		return fmt.Sprintf("%s (#%d)", name, id)
	case name != "":
		return name
	case id > 0:
		return fmt.Sprintf("artifact #%d", id)
	}
	return "artifact"
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	const limit = 200
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}

func stringValue(data Payload, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case error:
		return v.Error()
	}
	return ""
}

func intValue(data Payload, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
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

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
