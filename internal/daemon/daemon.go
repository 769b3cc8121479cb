package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"codeflow/internal/config"
	"codeflow/internal/events"
	"codeflow/internal/logging"
	"codeflow/internal/notifications"
	"codeflow/internal/preflight"
	"codeflow/internal/store"
	"codeflow/internal/submission"
	"codeflow/internal/workflow"
)

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       *store.Store
	workflow    *workflow.Manager
	submissions *submission.Service
	events      events.Publisher
	notifier    notifications.Service

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running          bool
	PID              int
	DatabaseEngine   string
	DatabaseLocation string
	LockFilePath     string
	SandboxURL       string
	Workflow         workflow.StatusSummary
	Checks           []preflight.Result
}

// Option customises a Daemon.
type Option func(*Daemon)

// WithEvents hands the event publisher to the daemon so Close releases it.
func WithEvents(p events.Publisher) Option {
	return func(d *Daemon) {
		if p != nil {
			d.events = p
		}
	}
}

// WithNotifier overrides the notifier used for test notifications.
func WithNotifier(n notifications.Service) Option {
	return func(d *Daemon) {
		if n != nil {
			d.notifier = n
		}
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, wf *workflow.Manager, subs *submission.Service, opts ...Option) (*Daemon, error) {
	if cfg == nil || st == nil || logger == nil || wf == nil || subs == nil {
		return nil, errors.New("daemon requires config, store, logger, workflow manager, and submission service")
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:         cfg,
		logger:      logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:       st,
		workflow:    wf,
		submissions: subs,
		events:      events.Noop{},
		notifier:    notifications.NewService(cfg),
		lockPath:    lockPath,
		lock:        flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, runs preflight checks, and launches the
// workflow manager and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another codeflow daemon instance is already running")
	}

	if err := preflight.Failures(preflight.RunAll(ctx, d.cfg)); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.workflow.Stop()
		d.abortStart()
		return err
	}

	d.running.Store(true)
	d.logger.Info("codeflow daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.APIAddr()),
		logging.String("sandbox", d.cfg.Sandbox.URL),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("codeflow daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.events != nil {
		d.events.Close()
	}
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddr reports the address the HTTP API listens on, or "" when disabled
// or not started.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Submissions exposes the submission service backing the API.
func (d *Daemon) Submissions() *submission.Service {
	return d.submissions
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (store.DatabaseHealth, error) {
	if d.store == nil {
		return store.DatabaseHealth{}, errors.New("artifact store unavailable")
	}
	return d.store.CheckHealth(ctx)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:          d.running.Load(),
		PID:              os.Getpid(),
		DatabaseEngine:   d.store.Engine(),
		DatabaseLocation: d.store.Location(),
		LockFilePath:     d.lockPath,
		SandboxURL:       d.cfg.Sandbox.URL,
		Workflow:         d.workflow.Status(ctx),
		Checks:           preflight.RunAll(ctx, d.cfg),
	}
}
