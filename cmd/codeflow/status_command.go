package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"codeflow/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, worker, and preflight status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			var apiErr *api.Error
			if err != nil && errors.As(err, &apiErr) {
				return err
			}
			out := cmd.OutOrStdout()
			if ctx.jsonOutput() {
				if err != nil {
					return writeJSON(cmd, api.DaemonStatus{})
				}
				return writeJSON(cmd, status)
			}
			colorize := shouldColorize(out)
			if err != nil {
				printLines(out, renderSectionHeader("Daemon", colorize))
				fmt.Fprintln(out, renderStatusLine("Daemon", statusError, "not running ("+client.BaseURL()+")", colorize))
				return nil
			}
			printLines(out, renderStatus(status, colorize))
			return nil
		},
	}
}

func renderStatus(status api.DaemonStatus, colorize bool) []string {
	lines := renderSectionHeader("Daemon", colorize)
	if status.Running {
		lines = append(lines, renderStatusLine("Daemon", statusOK, "running (pid "+strconv.Itoa(status.PID)+")", colorize))
	} else {
		lines = append(lines, renderStatusLine("Daemon", statusWarn, "reachable but stopped", colorize))
	}
	lines = append(lines,
		renderStatusLine("Database", statusInfo, status.DatabaseEngine+" "+status.DatabaseLocation, colorize),
		renderStatusLine("Sandbox", statusInfo, status.SandboxURL, colorize),
		renderStatusLine("Lock file", statusInfo, status.LockFilePath, colorize),
		"",
	)

	wf := status.Workflow
	lines = append(lines, renderSectionHeader("Workflow", colorize)...)
	workerKind := statusOK
	if !wf.Running {
		workerKind = statusError
	}
	lines = append(lines,
		renderStatusLine("Worker", workerKind, "running: "+yesNo(wf.Running), colorize),
		renderStatusLine("Queued", statusInfo, strconv.Itoa(wf.Pending), colorize),
	)
	if wf.Current != nil {
		lines = append(lines, renderStatusLine("Current", statusInfo, fmt.Sprintf("artifact %d (%s)", wf.Current.ArtifactID, wf.Current.Name), colorize))
	}
	lines = append(lines, renderStatusLine("Artifacts", statusInfo, fmt.Sprintf("%d pending, %d processed, %d failed",
		wf.Counts["pending"], wf.Counts["processed"], wf.Counts["failed"]), colorize))
	if o := wf.LastOutcome; o != nil {
		lines = append(lines, renderStatusLine("Last outcome", stateKind(o.State),
			fmt.Sprintf("artifact %d %s in %.1fs", o.ArtifactID, o.State, o.Seconds), colorize))
	}
	if wf.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusWarn, wf.LastError, colorize))
	}

	if len(status.Checks) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Checks", colorize)...)
		for _, check := range status.Checks {
			kind := statusOK
			if !check.Passed {
				kind = statusError
			}
			lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
		}
	}
	return lines
}

func printLines(out io.Writer, lines []string) {
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
}
