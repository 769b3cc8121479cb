package store

import (
	"database/sql"
	"time"
)

const artifactColumns = "id, name, content_ref, owner_id, visibility, processed, flow_error, attempts, created_at, updated_at"

func scanArtifact(scanner interface{ Scan(dest ...any) error }) (*Artifact, error) {
	var (
		artifact   Artifact
		visibility string
		flowError  sql.NullString
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(
		&artifact.ID,
		&artifact.Name,
		&artifact.ContentRef,
		&artifact.OwnerID,
		&visibility,
		&artifact.Processed,
		&flowError,
		&artifact.Attempts,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	artifact.Visibility = Visibility(visibility)
	artifact.FlowError = flowError.String
	artifact.CreatedAt = parseTime(createdRaw)
	artifact.UpdatedAt = parseTime(updatedRaw)
	return &artifact, nil
}

func parseTime(raw sql.NullString) time.Time {
	if !raw.Valid || raw.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
