package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"codeflow/internal/logging"
	"codeflow/internal/notifications"
	"codeflow/internal/store"
)

func (m *Manager) notifyOutcome(ctx context.Context, logger *slog.Logger, outcome Outcome) {
	if m.notifier == nil {
		return
	}
	event := notifications.EventArtifactProcessed
	payload := notifications.Payload{"id": outcome.ArtifactID, "name": outcome.Name}
	if outcome.State == store.StateFailed {
		event = notifications.EventArtifactFailed
		payload["reason"] = outcome.FlowError
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not send artifact notification")
		} else {
			logger.Debug("artifact notification failed", logging.Error(err))
		}
	}
}

// onAttemptStarted sends a queue-started notification when the worker
// picks up the first job after being idle.
func (m *Manager) onAttemptStarted(ctx context.Context) {
	if m.notifier == nil {
		return
	}
	m.mu.Lock()
	if m.queueActive {
		m.mu.Unlock()
		return
	}
	m.queueActive = true
	m.queueStart = time.Now()
	m.runCounts = outcomeCounts{}
	count := m.queue.Len() + 1
	m.mu.Unlock()

	if err := m.notifier.Publish(ctx, notifications.EventQueueStarted, notifications.Payload{"count": count}); err != nil {
		m.logger.Debug("queue start notification failed", logging.Error(err))
	}
}

// checkQueueCompletion sends a queue-completed notification once the worker
// drains the queue.
func (m *Manager) checkQueueCompletion(ctx context.Context, logger *slog.Logger) {
	if m.notifier == nil {
		return
	}
	m.mu.Lock()
	if !m.queueActive || m.queue.Len() > 0 {
		m.mu.Unlock()
		return
	}
	start := m.queueStart
	counts := m.runCounts
	m.queueActive = false
	m.queueStart = time.Time{}
	m.mu.Unlock()

	duration := time.Duration(0)
	if !start.IsZero() {
		duration = time.Since(start)
	}
	if err := m.notifier.Publish(ctx, notifications.EventQueueCompleted, notifications.Payload{
		"processed": counts.processed,
		"failed":    counts.failed,
		"duration":  duration,
	}); err != nil {
		logger.Debug("queue completion notification failed", logging.Error(err))
	}
}
