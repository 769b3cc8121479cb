package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codeflow/internal/config"
	"codeflow/internal/daemon"
	"codeflow/internal/logging"
	"codeflow/internal/sandbox"
	"codeflow/internal/store"
	"codeflow/internal/submission"
	"codeflow/internal/testsupport"
	"codeflow/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *store.Store
	daemon     *daemon.Daemon
	configPath string
	apiURL     string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithTransformCommand("cp", "{input}", "{output}"))
	t.Setenv("HOME", filepath.Join(testsupport.BaseDir(cfg), "home"))
	cfg.Transform.RemoteDir = cfg.Paths.FilesDir

	sb := sandbox.NewServer(&sandbox.Runner{Dir: cfg.Sandbox.WorkDir}, logging.NewNop())
	sandboxServer := httptest.NewServer(sb.Handler())
	t.Cleanup(sandboxServer.Close)
	cfg.Sandbox.URL = sandboxServer.URL

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, st, sandbox.NewClient(cfg.Sandbox.URL), logger)
	subs := submission.NewService(cfg, st, mgr, logger)
	d, err := daemon.New(cfg, st, logger, mgr, subs)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      st,
		daemon:     d,
		configPath: configPath,
		apiURL:     "http://" + d.APIAddr(),
	}
}

func (e *cliTestEnv) run(t *testing.T, user string, args ...string) (string, error) {
	t.Helper()
	flags := []string{"--api", e.apiURL}
	if user != "" {
		flags = append(flags, "--user", user)
	}
	stdout, _, err := runCLI(t, append(flags, args...), e.configPath)
	return stdout, err
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
files_dir = %q
log_dir = %q
api_bind = %q

[database]
engine = "sqlite"
path = %q

[sandbox]
url = %q

[workflow]
preflight_sandbox = false
min_free_space_mib = 0
`,
		cfg.Paths.DataDir,
		cfg.Paths.FilesDir,
		cfg.Paths.LogDir,
		cfg.Paths.APIBind,
		cfg.Database.Path,
		cfg.Sandbox.URL,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
