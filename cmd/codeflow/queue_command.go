package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"codeflow/internal/api"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show the job currently running and the jobs waiting behind it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Queue(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if !resp.Running {
					fmt.Fprintln(out, "Worker is not running")
				}
				if resp.Current != nil {
					fmt.Fprintf(out, "Processing artifact %d (%s)\n", resp.Current.ArtifactID, resp.Current.Name)
				}
				if len(resp.Pending) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprintln(out, renderQueueTable(resp.Pending, shouldColorize(out)))
				return nil
			})
		},
	}
}

func renderQueueTable(jobs []api.QueueJob, colorize bool) string {
	rows := make([][]string, 0, len(jobs))
	for i, job := range jobs {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			strconv.FormatInt(job.ArtifactID, 10),
			job.Name,
			job.EnqueuedAt,
		})
	}
	return renderTable([]tableColumn{
		rightColumn("#"),
		rightColumn("Artifact"),
		leftColumn("Name"),
		leftColumn("Enqueued"),
	}, rows, colorize)
}
