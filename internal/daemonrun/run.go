package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeflow/internal/config"
	"codeflow/internal/daemon"
	"codeflow/internal/deps"
	"codeflow/internal/events"
	"codeflow/internal/logging"
	"codeflow/internal/notifications"
	"codeflow/internal/preflight"
	"codeflow/internal/sandbox"
	"codeflow/internal/store"
	"codeflow/internal/submission"
	"codeflow/internal/workflow"
)

// Options configures process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// PIDPath is where the daemon records its process id.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "codeflowd.pid")
}

// Run starts the codeflow daemon and blocks until ctx is cancelled or the
// process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := newLogger(cfg, opts, cfg.LogPath())
	if err != nil {
		return err
	}

	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open artifact store", logging.Error(err))
		return err
	}

	publisher, err := events.NewPublisher(cfg)
	if err != nil {
		logging.WarnWithContext(logger, "event publisher unavailable", "events_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check events.nats_url"),
			logging.String(logging.FieldImpact, "artifact lifecycle events will not be published"),
		)
		publisher = events.Noop{}
	}

	notifier := notifications.NewService(cfg)
	sandboxClient := sandbox.NewClient(cfg.Sandbox.URL, sandbox.WithGrace(cfg.SandboxGrace()))
	manager := workflow.NewManager(cfg, st, sandboxClient, logger,
		workflow.WithNotifier(notifier),
		workflow.WithEvents(publisher),
	)
	submissions := submission.NewService(cfg, st, manager, logger, submission.WithEvents(publisher))

	d, err := daemon.New(cfg, st, logger, manager, submissions,
		daemon.WithEvents(publisher),
		daemon.WithNotifier(notifier),
	)
	if err != nil {
		_ = st.Close()
		publisher.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration, database access, and sandbox reachability"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("codeflow daemon shutting down")
	return nil
}

// RunSandbox serves the command sandbox until ctx is cancelled or the
// process receives SIGINT/SIGTERM.
func RunSandbox(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := newLogger(cfg, opts, filepath.Join(cfg.Paths.LogDir, "codeflow-sandbox.log"))
	if err != nil {
		return err
	}

	statuses := preflight.CheckSystemDeps(cfg)
	logDependencySnapshot(logger, statuses)
	if missing := deps.MissingRequired(statuses); len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for _, m := range missing {
			names = append(names, m.Command)
		}
		return fmt.Errorf("sandbox host is missing required binaries: %s", strings.Join(names, ", "))
	}

	runner := &sandbox.Runner{
		Dir:            cfg.Sandbox.WorkDir,
		MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
	}
	srv := sandbox.NewServer(runner, logger,
		sandbox.WithMaxTimeout(cfg.SandboxMaxTimeout()),
		sandbox.WithRequiredBinaries(cfg.Sandbox.RequiredBinaries),
	)
	if err := srv.Start(signalCtx, cfg.Sandbox.Bind); err != nil {
		return err
	}
	defer srv.Stop()

	<-signalCtx.Done()
	logger.Info("codeflow sandbox shutting down")
	return nil
}

func newLogger(cfg *config.Config, opts Options, logPath string) (*slog.Logger, error) {
	if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, statuses []deps.Status) {
	attrs := []logging.Attr{logging.String(logging.FieldEventType, "dependency_snapshot")}
	for _, status := range statuses {
		attrs = append(attrs, logging.Bool(status.Command+"_available", status.Available))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
