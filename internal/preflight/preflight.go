package preflight

import (
	"context"
	"fmt"
	"strings"

	"codeflow/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Files directory", cfg.Paths.FilesDir),
	}
	if cfg.Workflow.MinFreeSpaceMiB > 0 {
		results = append(results, CheckFreeSpace("Files free space", cfg.Paths.FilesDir, uint64(cfg.Workflow.MinFreeSpaceMiB)))
	}
	if cfg.Workflow.PreflightSandbox {
		results = append(results, CheckSandbox(ctx, cfg.Sandbox.URL, cfg.PreflightTimeout()))
	}
	return results
}

// Failures joins failed results into a single error, or returns nil.
func Failures(results []Result) error {
	var failures []string
	for _, r := range results {
		if !r.Passed {
			failures = append(failures, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return fmt.Errorf("preflight checks failed: %s", strings.Join(failures, "; "))
}
