package store

import (
	"strings"
	"time"
)

// Visibility controls who may read an artifact.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// ParseVisibility maps user input to a Visibility. Unknown values report false.
func ParseVisibility(value string) (Visibility, bool) {
	switch Visibility(strings.ToLower(strings.TrimSpace(value))) {
	case VisibilityPrivate:
		return VisibilityPrivate, true
	case VisibilityPublic:
		return VisibilityPublic, true
	default:
		return "", false
	}
}

// Artifact is one submitted source file tracked through the pipeline.
type Artifact struct {
	ID         int64
	Name       string
	ContentRef string
	OwnerID    string
	Visibility Visibility
	Processed  bool
	// FlowError is empty when the last attempt succeeded or none finished yet.
	FlowError string
	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// State summarises the processed/flow_error pair.
type State string

const (
	StatePending   State = "pending"
	StateProcessed State = "processed"
	StateFailed    State = "failed"
)

// State derives the lifecycle state from the persisted fields.
func (a Artifact) State() State {
	switch {
	case !a.Processed:
		return StatePending
	case a.FlowError != "":
		return StateFailed
	default:
		return StateProcessed
	}
}

// VisibleTo reports whether viewer may read the artifact.
func (a Artifact) VisibleTo(viewer string) bool {
	return a.Visibility == VisibilityPublic || (viewer != "" && a.OwnerID == viewer)
}

// NewArtifact holds the caller-supplied fields of a new artifact.
type NewArtifact struct {
	Name       string
	ContentRef string
	OwnerID    string
	Visibility Visibility
}

// Stats counts artifacts by lifecycle state.
type Stats struct {
	Pending   int
	Processed int
	Failed    int
	Total     int
}

// DatabaseHealth captures diagnostic information about the backing database.
type DatabaseHealth struct {
	Engine         string
	Location       string
	DatabaseExists bool
	SchemaVersion  int
	IntegrityCheck string
	Artifacts      int
}
