package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"codeflow/internal/queue"
	"codeflow/internal/sandbox"
	"codeflow/internal/services"
	"codeflow/internal/store"
)

const outputMissingReason = "EXTERNAL: output not generated"

// process runs one transform attempt and classifies its outcome. It returns
// nil on success or a *services.Failure whose Reason is the flow error to
// persist.
func (m *Manager) process(ctx context.Context, job queue.Job) error {
	if !store.ValidRef(job.ContentRef) {
		return services.NewFailure(services.ErrUnexpected,
			fmt.Sprintf("UNEXPECTED: invalid content ref %q", job.ContentRef), nil)
	}
	outputPath := m.layout.OutputPath(job.ContentRef)

	req := sandbox.Request{
		Cmd:     buildCommand(m.cfg.Transform.Command, m.cfg.Transform.RemoteDir, job.ContentRef),
		Timeout: m.cfg.SandboxTimeout().Seconds(),
	}
	resp, err := m.sandbox.Run(ctx, req)
	if err != nil {
		return classifyCallError(err)
	}

	switch {
	case resp == nil:
		return services.NewFailure(services.ErrSandboxProtocol, "empty sandbox response", nil)
	case resp.Error != nil:
		return services.NewFailure(services.ErrSandboxReported, "ERROR: "+*resp.Error, nil)
	case resp.OK == nil:
		return services.NewFailure(services.ErrSandboxProtocol, "sandbox response carried neither ok nor error", nil)
	case resp.OK.ReturnCode != 0:
		return services.NewFailure(services.ErrApplication, combinedOutput(resp.OK), nil)
	}

	if _, err := os.Stat(outputPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.NewFailure(services.ErrOutputMissing, outputMissingReason, nil)
		}
		return services.NewFailure(services.ErrUnexpected, "UNEXPECTED: stat output: "+err.Error(), err)
	}
	return nil
}

func classifyCallError(err error) error {
	var (
		transportErr *sandbox.TransportError
		statusErr    *sandbox.StatusError
		protocolErr  *sandbox.ProtocolError
	)
	switch {
	case errors.As(err, &transportErr):
		return services.NewFailure(services.ErrTransport, "REQUEST: "+transportErr.Error(), err)
	case errors.As(err, &statusErr):
		reason := statusErr.Body
		if strings.TrimSpace(reason) == "" {
			reason = fmt.Sprintf("sandbox returned status %d", statusErr.StatusCode)
		}
		return services.NewFailure(services.ErrSandboxProtocol, reason, err)
	case errors.As(err, &protocolErr):
		return services.NewFailure(services.ErrSandboxProtocol, protocolErr.Error(), err)
	default:
		return services.NewFailure(services.ErrUnexpected, "UNEXPECTED: "+err.Error(), err)
	}
}

// combinedOutput formats a failed command's streams the way flow errors
// have always been stored.
func combinedOutput(out *sandbox.Output) string {
	return strings.Join([]string{"STDERR:", out.Stderr, "STDOUT", out.Stdout}, "\n")
}
