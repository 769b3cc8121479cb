package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func setHelperCommand(t *testing.T, mode string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("SANDBOX_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("SANDBOX_HELPER_MODE") {
	case "success":
		fmt.Fprint(os.Stdout, "compiled ok")
		fmt.Fprint(os.Stderr, "warning: unused variable")
		os.Exit(0)
	case "failure":
		fmt.Fprint(os.Stdout, "partial")
		fmt.Fprint(os.Stderr, "boom")
		os.Exit(2)
	case "echo":
		data, _ := io.ReadAll(os.Stdin)
		fmt.Fprint(os.Stdout, strings.ToUpper(string(data)))
		os.Exit(0)
	case "noisy":
		fmt.Fprint(os.Stdout, strings.Repeat("x", 4096))
		os.Exit(0)
	case "sleep":
		time.Sleep(30 * time.Second)
		os.Exit(0)
	default:
		os.Exit(0)
	}
}

func TestRunCapturesOutput(t *testing.T) {
	setHelperCommand(t, "success")
	runner := &Runner{}

	out, err := runner.Run(context.Background(), Request{Cmd: []string{"cc", "a.c"}, Timeout: 10})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if out.ReturnCode != 0 || out.Stdout != "compiled ok" || out.Stderr != "warning: unused variable" {
		t.Fatalf("unexpected output: %#v", out)
	}
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	setHelperCommand(t, "failure")
	runner := &Runner{}

	out, err := runner.Run(context.Background(), Request{Cmd: []string{"cc"}, Timeout: 10})
	if err != nil {
		t.Fatalf("Run returned error for non-zero exit: %v", err)
	}
	if out.ReturnCode != 2 || out.Stderr != "boom" || out.Stdout != "partial" {
		t.Fatalf("unexpected output: %#v", out)
	}
}

func TestRunFeedsStdin(t *testing.T) {
	setHelperCommand(t, "echo")
	runner := &Runner{}
	input := "int main(void) {}"

	out, err := runner.Run(context.Background(), Request{Cmd: []string{"cat"}, Timeout: 10, Stdin: &input})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if out.Stdout != strings.ToUpper(input) {
		t.Fatalf("unexpected stdout: %q", out.Stdout)
	}
}

func TestRunTimeoutReportsDuration(t *testing.T) {
	setHelperCommand(t, "sleep")
	runner := &Runner{}

	started := time.Now()
	_, err := runner.Run(context.Background(), Request{Cmd: []string{"sleep"}, Timeout: 0.2})
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if timeoutErr.Timeout != 200*time.Millisecond {
		t.Fatalf("unexpected timeout value %s", timeoutErr.Timeout)
	}
	if !strings.Contains(err.Error(), "200ms") {
		t.Fatalf("expected duration in message, got %q", err.Error())
	}
	if elapsed := time.Since(started); elapsed > 10*time.Second {
		t.Fatalf("timeout took too long: %s", elapsed)
	}
}

func TestRunTimeoutKillsProcessGroup(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	runner := &Runner{}

	started := time.Now()
	_, err := runner.Run(context.Background(), Request{
		Cmd:     []string{"sh", "-c", "sleep 30; echo done"},
		Timeout: 0.3,
	})
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	// Without the group kill the orphaned sleep would hold the pipes open
	// until WaitDelay.
	if elapsed := time.Since(started); elapsed >= waitDelay {
		t.Fatalf("child process survived the timeout: %s", elapsed)
	}
}

func TestRunSpawnFailure(t *testing.T) {
	runner := &Runner{}
	_, err := runner.Run(context.Background(), Request{Cmd: []string{"/nonexistent/codeflow-tool"}, Timeout: 1})
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected SpawnError, got %v", err)
	}
	if spawnErr.Command != "/nonexistent/codeflow-tool" {
		t.Fatalf("unexpected command %q", spawnErr.Command)
	}
}

func TestRunEmptyCommand(t *testing.T) {
	runner := &Runner{}
	_, err := runner.Run(context.Background(), Request{})
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected SpawnError, got %v", err)
	}
}

func TestRunTruncatesOutput(t *testing.T) {
	setHelperCommand(t, "noisy")
	runner := &Runner{MaxOutputBytes: 16}

	out, err := runner.Run(context.Background(), Request{Cmd: []string{"yes"}, Timeout: 10})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	want := strings.Repeat("x", 16) + truncatedMarker
	if out.Stdout != want {
		t.Fatalf("unexpected stdout %q", out.Stdout)
	}
}

func TestRequestTimeoutDefaults(t *testing.T) {
	if got := (Request{}).TimeoutDuration(); got != DefaultTimeout {
		t.Fatalf("expected default timeout, got %s", got)
	}
	if got := (Request{Timeout: -1}).TimeoutDuration(); got != DefaultTimeout {
		t.Fatalf("expected default timeout for negative, got %s", got)
	}
	if got := (Request{Timeout: 1.5}).TimeoutDuration(); got != 1500*time.Millisecond {
		t.Fatalf("unexpected timeout %s", got)
	}
	if got := (Request{Timeout: 1e11}).TimeoutDuration(); got != time.Duration(math.MaxInt64) {
		t.Fatalf("expected saturated timeout, got %s", got)
	}
}
