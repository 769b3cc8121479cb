// Package api defines wire-format types and converters for the daemon's HTTP
// API, plus the HTTP client the CLI uses to call it.
//
// # Key Types
//
// Artifact: transport representation of a stored artifact with its derived
// lifecycle state and file names.
//
// QueueJob/QueueResponse: snapshot of the in-memory job queue and the job
// currently in flight.
//
// WorkflowStatus: coordinator running state, pending count, last error and
// last outcome, plus store counts keyed by state.
//
// DaemonStatus: aggregated runtime information including preflight results.
//
// # Converters
//
// FromArtifact: store.Artifact -> Artifact.
//
// FromJob: queue.Job -> QueueJob.
//
// FromStatusSummary: workflow.StatusSummary -> WorkflowStatus.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// flowError is omitted rather than null when an artifact has no failure.
package api
