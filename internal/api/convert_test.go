package api

import (
	"testing"
	"time"

	"codeflow/internal/queue"
	"codeflow/internal/store"
	"codeflow/internal/workflow"
)

func TestFromArtifactDerivesStateAndFiles(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		artifact   store.Artifact
		wantState  string
		wantOutput string
	}{
		{"pending", store.Artifact{ContentRef: "abc"}, "pending", ""},
		{"processed", store.Artifact{ContentRef: "abc", Processed: true}, "processed", "abc_t.c"},
		{"failed", store.Artifact{ContentRef: "abc", Processed: true, FlowError: "ERROR: x"}, "failed", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := tt.artifact
			a.CreatedAt = created
			dto := FromArtifact(&a)
			if dto.State != tt.wantState {
				t.Fatalf("state = %q, want %q", dto.State, tt.wantState)
			}
			if dto.OutputFile != tt.wantOutput {
				t.Fatalf("output = %q, want %q", dto.OutputFile, tt.wantOutput)
			}
			if dto.InputFile != "abc_o.c" {
				t.Fatalf("unexpected input file %q", dto.InputFile)
			}
			if dto.CreatedAt != "2026-03-01T12:00:00.000Z" {
				t.Fatalf("unexpected createdAt %q", dto.CreatedAt)
			}
			if dto.UpdatedAt != "" {
				t.Fatalf("expected zero updatedAt to be omitted, got %q", dto.UpdatedAt)
			}
		})
	}
}

func TestFromStatusSummary(t *testing.T) {
	summary := workflow.StatusSummary{
		Running: true,
		Pending: 2,
		Current: &queue.Job{ArtifactID: 7, Name: "a.c", ContentRef: "r"},
		LastOutcome: &workflow.Outcome{
			ArtifactID:  6,
			State:       store.StateFailed,
			FlowError:   "EXTERNAL: output not generated",
			FailureKind: "output_missing",
			Duration:    1500 * time.Millisecond,
		},
		Stats: store.Stats{Pending: 2, Processed: 3, Failed: 1, Total: 6},
	}

	wf := FromStatusSummary(summary)
	if !wf.Running || wf.Pending != 2 {
		t.Fatalf("unexpected status %+v", wf)
	}
	if wf.Current == nil || wf.Current.ArtifactID != 7 {
		t.Fatalf("unexpected current %+v", wf.Current)
	}
	if wf.LastOutcome == nil || wf.LastOutcome.State != "failed" || wf.LastOutcome.Seconds != 1.5 {
		t.Fatalf("unexpected last outcome %+v", wf.LastOutcome)
	}
	if wf.Counts["processed"] != 3 || wf.Counts["failed"] != 1 || wf.Counts["total"] != 6 {
		t.Fatalf("unexpected counts %v", wf.Counts)
	}
}

func TestFromJobsKeepsOrder(t *testing.T) {
	jobs := FromJobs([]queue.Job{{ArtifactID: 3}, {ArtifactID: 1}, {ArtifactID: 2}})
	if len(jobs) != 3 || jobs[0].ArtifactID != 3 || jobs[2].ArtifactID != 2 {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
}
