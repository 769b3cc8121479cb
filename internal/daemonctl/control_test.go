package daemonctl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"codeflow/internal/api"
)

type statusFunc func(ctx context.Context) (api.DaemonStatus, error)

func (f statusFunc) Status(ctx context.Context) (api.DaemonStatus, error) { return f(ctx) }

func TestEnsureStartedWhenAlreadyRunning(t *testing.T) {
	client := statusFunc(func(context.Context) (api.DaemonStatus, error) {
		return api.DaemonStatus{Running: true, PID: 42}, nil
	})
	res, err := EnsureStarted(context.Background(), client, "/nonexistent", LaunchOptions{}, time.Second)
	if err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	if res.State != StartStateAlreadyRunning || res.PID != 42 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestWaitForRunningPolls(t *testing.T) {
	var calls atomic.Int32
	client := statusFunc(func(context.Context) (api.DaemonStatus, error) {
		if calls.Add(1) < 3 {
			return api.DaemonStatus{}, errors.New("connection refused")
		}
		return api.DaemonStatus{Running: true, PID: 7}, nil
	})
	status, err := WaitForRunning(context.Background(), client, 5*time.Second)
	if err != nil {
		t.Fatalf("WaitForRunning: %v", err)
	}
	if status.PID != 7 || calls.Load() != 3 {
		t.Fatalf("unexpected status %+v after %d calls", status, calls.Load())
	}
}

func TestWaitForRunningTimesOut(t *testing.T) {
	client := statusFunc(func(context.Context) (api.DaemonStatus, error) {
		return api.DaemonStatus{}, errors.New("connection refused")
	})
	if _, err := WaitForRunning(context.Background(), client, 300*time.Millisecond); err == nil {
		t.Fatal("expected timeout")
	}
}

func TestStopWhenNotRunning(t *testing.T) {
	client := statusFunc(func(context.Context) (api.DaemonStatus, error) {
		return api.DaemonStatus{}, errors.New("connection refused")
	})
	_, err := StopAndTerminate(context.Background(), client, filepath.Join(t.TempDir(), "pid"), time.Second)
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestStopRefusesCurrentProcess(t *testing.T) {
	client := statusFunc(func(context.Context) (api.DaemonStatus, error) {
		return api.DaemonStatus{Running: true, PID: os.Getpid()}, nil
	})
	if _, err := StopAndTerminate(context.Background(), client, "", time.Second); err == nil {
		t.Fatal("expected refusal to signal self")
	}
}

func TestReadPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codeflowd.pid")
	if err := os.WriteFile(path, []byte("1234\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readPID(path); got != 1234 {
		t.Fatalf("readPID = %d", got)
	}
	if got := readPID(filepath.Join(t.TempDir(), "missing")); got != 0 {
		t.Fatalf("expected 0 for missing file, got %d", got)
	}
}
