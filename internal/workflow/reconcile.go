package workflow

import (
	"context"
	"fmt"

	"codeflow/internal/logging"
	"codeflow/internal/store"
)

// reconcile re-queues every artifact the store still considers outstanding.
// With workflow.reconcile_failed disabled only unprocessed artifacts are
// queued and failed ones wait for an explicit retry.
func (m *Manager) reconcile(ctx context.Context) error {
	var (
		artifacts []*store.Artifact
		err       error
	)
	if m.cfg.Workflow.ReconcileFailed {
		artifacts, err = m.store.ListUnprocessedOrFailed(ctx)
	} else {
		artifacts, err = m.store.ListUnprocessed(ctx)
	}
	if err != nil {
		m.setLastError(err)
		return fmt.Errorf("reconcile queue: %w", err)
	}
	for _, artifact := range artifacts {
		m.EnqueueArtifact(artifact)
	}
	m.logger.Info("queue reconciled",
		logging.Int("requeued", len(artifacts)),
		logging.Bool("include_failed", m.cfg.Workflow.ReconcileFailed),
		logging.String(logging.FieldEventType, "queue_reconciled"),
	)
	return nil
}
