package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"codeflow/internal/api"
)

func newArtifactCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "artifact",
		Aliases: []string{"artifacts", "a"},
		Short:   "Manage submitted artifacts",
	}
	cmd.AddCommand(newArtifactListCommand(ctx))
	cmd.AddCommand(newArtifactShowCommand(ctx))
	cmd.AddCommand(newArtifactSubmitCommand(ctx))
	cmd.AddCommand(newArtifactRenameCommand(ctx))
	cmd.AddCommand(newArtifactVisibilityCommand(ctx))
	cmd.AddCommand(newArtifactRetryCommand(ctx))
	cmd.AddCommand(newArtifactDeleteCommand(ctx))
	cmd.AddCommand(newArtifactDownloadCommand(ctx))
	return cmd
}

func newArtifactListCommand(ctx *commandContext) *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List artifacts visible to the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				items, err := client.ListArtifacts(cmd.Context())
				if err != nil {
					return err
				}
				items = filterByState(items, state)
				if ctx.jsonOutput() {
					return writeJSON(cmd, items)
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No artifacts")
					return nil
				}
				fmt.Fprintln(out, renderArtifactTable(items, shouldColorize(out)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "Only show artifacts in this state (pending, processed, failed)")
	return cmd
}

func filterByState(items []api.Artifact, state string) []api.Artifact {
	state = strings.ToLower(strings.TrimSpace(state))
	if state == "" {
		return items
	}
	filtered := make([]api.Artifact, 0, len(items))
	for _, item := range items {
		if item.State == state {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

func renderArtifactTable(items []api.Artifact, colorize bool) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			item.Name,
			item.OwnerID,
			item.Visibility,
			stateLabel(item.State, colorize),
			strconv.Itoa(item.Attempts),
			item.UpdatedAt,
		})
	}
	return renderTable([]tableColumn{
		rightColumn("ID"),
		leftColumn("Name"),
		leftColumn("Owner"),
		leftColumn("Visibility"),
		leftColumn("State"),
		rightColumn("Attempts"),
		leftColumn("Updated"),
	}, rows, colorize)
}

func newArtifactShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show artifact details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseArtifactID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				artifact, err := client.GetArtifact(cmd.Context(), id)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, artifact)
				}
				printArtifact(cmd.OutOrStdout(), artifact)
				return nil
			})
		},
	}
}

func printArtifact(out io.Writer, a api.Artifact) {
	colorize := shouldColorize(out)
	rows := [][2]string{
		{"ID", strconv.FormatInt(a.ID, 10)},
		{"Name", a.Name},
		{"Owner", a.OwnerID},
		{"Visibility", a.Visibility},
		{"State", stateLabel(a.State, colorize)},
		{"Attempts", strconv.Itoa(a.Attempts)},
		{"Content ref", a.ContentRef},
		{"Input file", a.InputFile},
		{"Output file", a.OutputFile},
		{"Flow file", a.FlowFile},
		{"Created", a.CreatedAt},
		{"Updated", a.UpdatedAt},
	}
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		fmt.Fprintf(out, "%-12s %s\n", row[0]+":", row[1])
	}
	if a.FlowError != "" {
		fmt.Fprintln(out, "Flow error:")
		for _, line := range strings.Split(strings.TrimRight(a.FlowError, "\n"), "\n") {
			fmt.Fprintf(out, "  %s\n", line)
		}
	}
}

func newArtifactSubmitCommand(ctx *commandContext) *cobra.Command {
	var name string
	var public bool
	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Submit a source file for transformation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			if strings.TrimSpace(name) == "" {
				name = filepath.Base(args[0])
			}
			visibility := "private"
			if public {
				visibility = "public"
			}
			return ctx.withClient(func(client *api.Client) error {
				artifact, err := client.Submit(cmd.Context(), api.SubmitRequest{
					Name:       name,
					Visibility: visibility,
					Content:    string(content),
				})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, artifact)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Submitted %s as artifact %d\n", artifact.Name, artifact.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Artifact name (defaults to the file name)")
	cmd.Flags().BoolVar(&public, "public", false, "Make the artifact visible to everyone")
	return cmd
}

func newArtifactRenameCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename an artifact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[1]
			return updateArtifact(cmd, ctx, args[0], api.UpdateRequest{Name: &name})
		},
	}
}

func newArtifactVisibilityCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "visibility <id> <public|private>",
		Short:     "Change who can see an artifact",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"public", "private"},
		RunE: func(cmd *cobra.Command, args []string) error {
			visibility := args[1]
			return updateArtifact(cmd, ctx, args[0], api.UpdateRequest{Visibility: &visibility})
		},
	}
}

func updateArtifact(cmd *cobra.Command, ctx *commandContext, rawID string, req api.UpdateRequest) error {
	id, err := parseArtifactID(rawID)
	if err != nil {
		return err
	}
	return ctx.withClient(func(client *api.Client) error {
		artifact, err := client.UpdateArtifact(cmd.Context(), id, req)
		if err != nil {
			return err
		}
		if ctx.jsonOutput() {
			return writeJSON(cmd, artifact)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated artifact %d (%s, %s)\n", artifact.ID, artifact.Name, artifact.Visibility)
		return nil
	})
}

func newArtifactRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Reset a finished artifact and queue it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseArtifactID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				artifact, err := client.Retry(cmd.Context(), id)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, artifact)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Artifact %d queued for retry\n", artifact.ID)
				return nil
			})
		},
	}
}

func newArtifactDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an artifact and its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseArtifactID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				if err := client.DeleteArtifact(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted artifact %d\n", id)
				return nil
			})
		},
	}
}

func newArtifactDownloadCommand(ctx *commandContext) *cobra.Command {
	var kind string
	var output string
	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Download an artifact's input, output, or flow file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseArtifactID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				return downloadArtifactFile(cmd.Context(), client, id, kind, output, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "output", "File to fetch: input, output, or flow")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this path instead of stdout")
	return cmd
}

func downloadArtifactFile(ctx context.Context, client *api.Client, id int64, kind, output string, stdout io.Writer) error {
	artifact, err := client.GetArtifact(ctx, id)
	if err != nil {
		return err
	}
	var name string
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "input":
		name = artifact.InputFile
	case "output", "":
		name = artifact.OutputFile
	case "flow":
		name = artifact.FlowFile
	default:
		return fmt.Errorf("unknown file kind %q", kind)
	}
	if name == "" {
		return fmt.Errorf("artifact %d has no %s file (state: %s)", id, kind, artifact.State)
	}

	if output == "" {
		return client.Download(ctx, name, stdout)
	}
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create %s: %w", output, err)
	}
	if err := client.Download(ctx, name, f); err != nil {
		_ = f.Close()
		_ = os.Remove(output)
		return err
	}
	return f.Close()
}

func parseArtifactID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid artifact id %q", raw)
	}
	return id, nil
}
