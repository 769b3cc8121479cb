package workflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"codeflow/internal/logging"
	"codeflow/internal/queue"
	"codeflow/internal/services"
)

// Start reconciles the queue with the store and launches the worker.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.store == nil || m.sandbox == nil {
		m.mu.Unlock()
		return errors.New("workflow requires a store and a sandbox")
	}
	m.running = true
	q := m.queue
	m.mu.Unlock()

	if err := m.reconcile(ctx); err != nil {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(runCtx, q)
	m.logger.Info("workflow started", logging.Int("pending", q.Len()))
	return nil
}

// Stop halts the worker, waits for the in-flight attempt, and discards the
// remaining queue. The manager may be started again afterwards.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	old := m.queue
	m.queue = queue.New()
	m.running = false
	m.cancel = nil
	dropped := old.Close()
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.logger.Info("workflow stopped", logging.Int("discarded_jobs", dropped))
}

// Running reports whether the worker is active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) run(ctx context.Context, q *queue.Queue) {
	defer m.wg.Done()
	for {
		job, err := q.Pop(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrClosed) && !errors.Is(err, context.Canceled) {
				m.logger.Warn("worker stopped unexpectedly",
					logging.Error(err),
					logging.String(logging.FieldEventType, "worker_stopped"),
					logging.String(logging.FieldErrorHint, "restart the daemon"),
				)
			}
			return
		}
		// Attempts run to completion even when Stop is called mid-flight.
		if err := m.attempt(context.WithoutCancel(ctx), job); err != nil {
			m.backoff(ctx)
		}
	}
}

func (m *Manager) attempt(ctx context.Context, job queue.Job) error {
	ctx = services.WithArtifactID(ctx, job.ArtifactID)
	ctx = services.WithStage(ctx, "transform")
	logger := logging.WithContext(ctx, m.logger).With(logging.String(logging.FieldContentRef, job.ContentRef))

	if artifact, err := m.store.GetByID(ctx, job.ArtifactID); err == nil && artifact == nil {
		logger.Info("artifact deleted before processing, skipping",
			logging.String(logging.FieldEventType, "artifact_skipped"),
		)
		m.checkQueueCompletion(ctx, logger)
		return nil
	}

	m.setCurrent(&job)
	defer m.setCurrent(nil)
	m.onAttemptStarted(ctx)

	started := time.Now()
	result := m.safeProcess(ctx, job)
	elapsed := time.Since(started)

	return m.record(ctx, logger, job, result, elapsed)
}

// backoff pauses the loop after a store error so a broken database does not
// turn the queue into a busy loop of failed writes.
func (m *Manager) backoff(ctx context.Context) {
	interval := m.cfg.ErrorRetryInterval()
	if interval <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(interval):
	}
}

func (m *Manager) safeProcess(ctx context.Context, job queue.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic during artifact processing",
				logging.Int64(logging.FieldArtifactID, job.ArtifactID),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldEventType, "worker_panic"),
				logging.String(logging.FieldErrorHint, "report this as a bug"),
			)
			err = services.NewFailure(services.ErrUnexpected, fmt.Sprintf("UNEXPECTED: panic: %v", r), nil)
		}
	}()
	return m.process(ctx, job)
}
