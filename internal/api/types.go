package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Artifact describes a stored artifact in a transport-friendly format.
type Artifact struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	ContentRef string `json:"contentRef"`
	OwnerID    string `json:"ownerId"`
	Visibility string `json:"visibility"`
	State      string `json:"state"`
	Processed  bool   `json:"processed"`
	FlowError  string `json:"flowError,omitempty"`
	Attempts   int    `json:"attempts"`
	InputFile  string `json:"inputFile"`
	OutputFile string `json:"outputFile,omitempty"`
	FlowFile   string `json:"flowFile,omitempty"`
	CreatedAt  string `json:"createdAt,omitempty"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

// QueueJob describes a job waiting in or running from the queue.
type QueueJob struct {
	ArtifactID int64  `json:"artifactId"`
	Name       string `json:"name"`
	ContentRef string `json:"contentRef"`
	EnqueuedAt string `json:"enqueuedAt,omitempty"`
}

// Outcome describes the most recent finished attempt.
type Outcome struct {
	ArtifactID  int64   `json:"artifactId"`
	Name        string  `json:"name"`
	State       string  `json:"state"`
	FlowError   string  `json:"flowError,omitempty"`
	FailureKind string  `json:"failureKind,omitempty"`
	Seconds     float64 `json:"durationSeconds"`
	FinishedAt  string  `json:"finishedAt,omitempty"`
}

// WorkflowStatus summarizes coordinator state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	Pending     int            `json:"pending"`
	Current     *QueueJob      `json:"current,omitempty"`
	LastError   string         `json:"lastError,omitempty"`
	LastOutcome *Outcome       `json:"lastOutcome,omitempty"`
	Counts      map[string]int `json:"counts"`
}

// CheckResult mirrors a preflight check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running          bool           `json:"running"`
	PID              int            `json:"pid"`
	DatabaseEngine   string         `json:"databaseEngine"`
	DatabaseLocation string         `json:"databaseLocation"`
	LockFilePath     string         `json:"lockFilePath"`
	SandboxURL       string         `json:"sandboxUrl"`
	Workflow         WorkflowStatus `json:"workflow"`
	Checks           []CheckResult  `json:"checks"`
}

// SubmitRequest is the body of POST /api/artifacts.
type SubmitRequest struct {
	Name       string `json:"name"`
	Visibility string `json:"visibility,omitempty"`
	Content    string `json:"content"`
}

// UpdateRequest is the body of PATCH /api/artifacts/{id}.
type UpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	Visibility *string `json:"visibility,omitempty"`
}

// ArtifactListResponse wraps a collection of artifacts.
type ArtifactListResponse struct {
	Items []Artifact `json:"items"`
}

// ArtifactResponse wraps a single artifact.
type ArtifactResponse struct {
	Artifact Artifact `json:"artifact"`
}

// QueueResponse is the body of GET /api/queue.
type QueueResponse struct {
	Running bool       `json:"running"`
	Current *QueueJob  `json:"current,omitempty"`
	Pending []QueueJob `json:"pending"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NotificationTestResponse is the body of POST /api/notifications/test.
type NotificationTestResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
