package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

var commandContext = exec.CommandContext

const (
	truncatedMarker = "\n[output truncated]"
	// waitDelay bounds how long Wait blocks on inherited pipes after the
	// process group has been killed.
	waitDelay = 2 * time.Second
)

// Runner executes commands on the local host.
type Runner struct {
	// Dir is the working directory for every command. Empty means the
	// service's own working directory.
	Dir string
	// MaxOutputBytes caps each captured stream. Zero disables the cap.
	MaxOutputBytes int
	// Env, when non-nil, replaces the inherited environment.
	Env []string
}

// Run spawns req.Cmd once and waits for it, its timeout, or ctx.
func (r *Runner) Run(ctx context.Context, req Request) (Output, error) {
	if len(req.Cmd) == 0 || strings.TrimSpace(req.Cmd[0]) == "" {
		return Output{}, &SpawnError{Err: errors.New("empty command")}
	}
	timeout := req.TimeoutDuration()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := commandContext(runCtx, req.Cmd[0], req.Cmd[1:]...) //nolint:gosec
	cmd.Dir = r.Dir
	if r.Env != nil {
		cmd.Env = r.Env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return err
	}
	cmd.WaitDelay = waitDelay
	if req.Stdin != nil {
		cmd.Stdin = strings.NewReader(*req.Stdin)
	}

	stdout := &cappedBuffer{limit: r.MaxOutputBytes}
	stderr := &cappedBuffer{limit: r.MaxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return Output{}, &TimeoutError{Timeout: timeout}
		}
		return Output{}, &SpawnError{Command: req.Cmd[0], Err: err}
	}

	waitErr := cmd.Wait()
	if waitErr != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		if ctx.Err() != nil {
			return Output{}, ctx.Err()
		}
		return Output{}, &TimeoutError{Timeout: timeout}
	}
	if waitErr != nil && ctx.Err() != nil {
		return Output{}, ctx.Err()
	}

	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if waitErr == nil {
		return out, nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		out.ReturnCode = exitErr.ExitCode()
		return out, nil
	}
	if errors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		out.ReturnCode = cmd.ProcessState.ExitCode()
		return out, nil
	}
	return Output{}, &SpawnError{Command: req.Cmd[0], Err: waitErr}
}

// cappedBuffer keeps at most limit bytes and silently drops the rest.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.limit <= 0 {
		return b.buf.Write(p)
	}
	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + truncatedMarker
	}
	return b.buf.String()
}
