package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"codeflow/internal/events"
	"codeflow/internal/logging"
	"codeflow/internal/queue"
	"codeflow/internal/services"
	"codeflow/internal/store"
)

// Outcome describes the result of one finished attempt.
type Outcome struct {
	ArtifactID  int64
	Name        string
	ContentRef  string
	State       store.State
	FlowError   string
	FailureKind string
	Duration    time.Duration
	FinishedAt  time.Time
}

// record persists the attempt result through the store transitions and
// fans it out to notifications and events. It returns the store error, if
// any, so the loop can back off.
func (m *Manager) record(ctx context.Context, logger *slog.Logger, job queue.Job, result error, elapsed time.Duration) error {
	outcome := Outcome{
		ArtifactID: job.ArtifactID,
		Name:       job.Name,
		ContentRef: job.ContentRef,
		Duration:   elapsed,
		FinishedAt: time.Now().UTC(),
	}

	storeCtx, cancel := context.WithTimeout(ctx, m.statusStoreTimeout())
	defer cancel()

	var storeErr error
	if result == nil {
		outcome.State = store.StateProcessed
		storeErr = m.store.MarkProcessed(storeCtx, job.ArtifactID)
	} else {
		outcome.State = store.StateFailed
		outcome.FlowError = services.FailureReason(result)
		if strings.TrimSpace(outcome.FlowError) == "" {
			outcome.FlowError = "UNEXPECTED: empty failure reason"
		}
		outcome.FailureKind = services.FailureKind(result)
		storeErr = m.store.MarkFailed(storeCtx, job.ArtifactID, outcome.FlowError)
	}

	if storeErr != nil {
		if errors.Is(storeErr, store.ErrNotFound) {
			logging.WarnWithContext(logger, "artifact removed before its outcome was recorded", "artifact_missing",
				logging.String("outcome", string(outcome.State)),
				logging.String(logging.FieldErrorHint, "no action needed if the artifact was deleted"),
				logging.String(logging.FieldImpact, "outcome discarded"),
			)
			return nil
		}
		m.setLastError(storeErr)
		logging.ErrorWithContext(logger, "failed to record artifact outcome", "status_store_failed",
			logging.String("outcome", string(outcome.State)),
			logging.Error(storeErr),
			logging.String(logging.FieldErrorHint, "check database access; the artifact is retried on next start"),
		)
		return storeErr
	}

	if result == nil {
		logger.Info("artifact processed",
			logging.Duration("elapsed", elapsed),
			logging.String(logging.FieldEventType, "artifact_processed"),
		)
	} else {
		attrs := []logging.Attr{
			logging.String("failure_kind", outcome.FailureKind),
			logging.String("flow_error", firstLine(outcome.FlowError)),
			logging.Duration("elapsed", elapsed),
		}
		if services.IsExpectedFailure(result) {
			attrs = append(attrs,
				logging.String(logging.FieldErrorHint, hintFor(outcome.FailureKind)),
				logging.String(logging.FieldImpact, "artifact marked failed"),
			)
			logging.WarnWithContext(logger, "artifact processing failed", "artifact_failed", attrs...)
		} else {
			m.setLastError(result)
			attrs = append(attrs, logging.Error(result), logging.String(logging.FieldErrorHint, "inspect the worker logs"))
			logging.ErrorWithContext(logger, "unexpected worker failure", "worker_unexpected", attrs...)
		}
	}

	m.setLastOutcome(outcome)
	m.notifyOutcome(ctx, logger, outcome)
	m.publishOutcome(ctx, logger, outcome)
	m.checkQueueCompletion(ctx, logger)
	return nil
}

func (m *Manager) statusStoreTimeout() time.Duration {
	if d := m.cfg.StatusStoreTimeout(); d > 0 {
		return d
	}
	return 5 * time.Second
}

func (m *Manager) publishOutcome(ctx context.Context, logger *slog.Logger, outcome Outcome) {
	eventType := events.TypeProcessed
	if outcome.State == store.StateFailed {
		eventType = events.TypeFailed
	}
	err := m.events.Publish(ctx, events.Event{
		Type:        eventType,
		ArtifactID:  outcome.ArtifactID,
		Name:        outcome.Name,
		ContentRef:  outcome.ContentRef,
		FlowError:   outcome.FlowError,
		FailureKind: outcome.FailureKind,
		Duration:    outcome.Duration.Seconds(),
		OccurredAt:  outcome.FinishedAt,
	})
	if err != nil {
		logger.Debug("lifecycle event publish failed", logging.Error(err))
	}
}

func hintFor(kind string) string {
	switch kind {
	case "transport":
		return "check that the sandbox service is running and sandbox.url is correct"
	case "sandbox_protocol":
		return "check the sandbox service version and logs"
	case "sandbox_error":
		return "the command timed out or could not start; check sandbox logs"
	case "application":
		return "the transform command rejected the input; see flow_error"
	case "output_missing":
		return "the transform command exited 0 without writing its output"
	}
	return "check logs for details"
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx] + " ..."
	}
	return s
}
