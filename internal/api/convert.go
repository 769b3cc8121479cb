package api

import (
	"time"

	"codeflow/internal/preflight"
	"codeflow/internal/queue"
	"codeflow/internal/store"
	"codeflow/internal/workflow"
)

// FromArtifact converts a store record to its API representation. Output
// and flow file names are only reported once the artifact has been
// processed successfully.
func FromArtifact(a *store.Artifact) Artifact {
	if a == nil {
		return Artifact{}
	}
	state := a.State()
	dto := Artifact{
		ID:         a.ID,
		Name:       a.Name,
		ContentRef: a.ContentRef,
		OwnerID:    a.OwnerID,
		Visibility: string(a.Visibility),
		State:      string(state),
		Processed:  a.Processed,
		FlowError:  a.FlowError,
		Attempts:   a.Attempts,
		InputFile:  store.InputName(a.ContentRef),
		CreatedAt:  formatTime(a.CreatedAt),
		UpdatedAt:  formatTime(a.UpdatedAt),
	}
	if state == store.StateProcessed {
		dto.OutputFile = store.OutputName(a.ContentRef)
		dto.FlowFile = store.FlowName(a.ContentRef)
	}
	return dto
}

// FromArtifacts converts a slice of store records into API DTOs.
func FromArtifacts(artifacts []*store.Artifact) []Artifact {
	out := make([]Artifact, 0, len(artifacts))
	for _, a := range artifacts {
		out = append(out, FromArtifact(a))
	}
	return out
}

// FromJob converts a queue job to its API representation.
func FromJob(job queue.Job) QueueJob {
	return QueueJob{
		ArtifactID: job.ArtifactID,
		Name:       job.Name,
		ContentRef: job.ContentRef,
		EnqueuedAt: formatTime(job.EnqueuedAt),
	}
}

// FromJobs converts a queue snapshot, preserving FIFO order.
func FromJobs(jobs []queue.Job) []QueueJob {
	out := make([]QueueJob, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromStatusSummary converts a workflow status summary to API payload.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	wf := WorkflowStatus{
		Running:   summary.Running,
		Pending:   summary.Pending,
		LastError: summary.LastError,
		Counts: map[string]int{
			string(store.StatePending):   summary.Stats.Pending,
			string(store.StateProcessed): summary.Stats.Processed,
			string(store.StateFailed):    summary.Stats.Failed,
			"total":                      summary.Stats.Total,
		},
	}
	if summary.Current != nil {
		current := FromJob(*summary.Current)
		wf.Current = &current
	}
	if o := summary.LastOutcome; o != nil {
		wf.LastOutcome = &Outcome{
			ArtifactID:  o.ArtifactID,
			Name:        o.Name,
			State:       string(o.State),
			FlowError:   o.FlowError,
			FailureKind: o.FailureKind,
			Seconds:     o.Duration.Seconds(),
			FinishedAt:  formatTime(o.FinishedAt),
		}
	}
	return wf
}

// FromCheckResults converts preflight results.
func FromCheckResults(results []preflight.Result) []CheckResult {
	out := make([]CheckResult, 0, len(results))
	for _, r := range results {
		out = append(out, CheckResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
