package workflow

import (
	"context"

	"codeflow/internal/logging"
	"codeflow/internal/queue"
	"codeflow/internal/store"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	Pending     int
	Current     *queue.Job
	LastError   string
	LastOutcome *Outcome
	Stats       store.Stats
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running: m.running,
		Pending: m.queue.Len(),
	}
	if m.current != nil {
		current := *m.current
		summary.Current = &current
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastOutcome != nil {
		outcome := *m.lastOutcome
		summary.LastOutcome = &outcome
	}
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read artifact stats", logging.Error(err))
	}
	summary.Stats = stats
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastOutcome(outcome Outcome) {
	m.mu.Lock()
	m.lastOutcome = &outcome
	if outcome.State == store.StateProcessed {
		m.runCounts.processed++
	} else {
		m.runCounts.failed++
	}
	m.mu.Unlock()
}

func (m *Manager) setCurrent(job *queue.Job) {
	m.mu.Lock()
	if job != nil {
		current := *job
		m.current = &current
	} else {
		m.current = nil
	}
	m.mu.Unlock()
}
