package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Create inserts a new artifact with processed=false and no flow error.
// The returned artifact carries the id assigned by the database.
func (s *Store) Create(ctx context.Context, in NewArtifact) (*Artifact, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errors.New("artifact name is required")
	}
	if !ValidRef(in.ContentRef) {
		return nil, fmt.Errorf("invalid content ref %q", in.ContentRef)
	}
	visibility := in.Visibility
	if visibility == "" {
		visibility = VisibilityPrivate
	}

	now := time.Now().UTC()
	stamp := now.Format(time.RFC3339Nano)
	var id int64
	err := s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		return row.Scan(&id)
	},
		`INSERT INTO artifacts (name, content_ref, owner_id, visibility, processed, flow_error, attempts, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, NULL, 0, ?, ?)
         RETURNING id`,
		name, in.ContentRef, in.OwnerID, string(visibility), false, stamp, stamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
		return nil, fmt.Errorf("insert artifact: %w", err)
	}

	return &Artifact{
		ID:         id,
		Name:       name,
		ContentRef: in.ContentRef,
		OwnerID:    in.OwnerID,
		Visibility: visibility,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// GetByID fetches an artifact by id. It returns nil, nil when none exists.
func (s *Store) GetByID(ctx context.Context, id int64) (*Artifact, error) {
	var artifact *Artifact
	err := s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		var scanErr error
		artifact, scanErr = scanArtifact(row)
		return scanErr
	}, "SELECT "+artifactColumns+" FROM artifacts WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact %d: %w", id, err)
	}
	return artifact, nil
}

// GetByOwnerAndName fetches the artifact an owner stored under name. It returns
// nil, nil when none exists.
func (s *Store) GetByOwnerAndName(ctx context.Context, ownerID, name string) (*Artifact, error) {
	var artifact *Artifact
	err := s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		var scanErr error
		artifact, scanErr = scanArtifact(row)
		return scanErr
	}, "SELECT "+artifactColumns+" FROM artifacts WHERE owner_id = ? AND name = ?", ownerID, strings.TrimSpace(name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact by name: %w", err)
	}
	return artifact, nil
}

// GetByContentRef fetches the artifact owning ref. It returns nil, nil when
// none exists.
func (s *Store) GetByContentRef(ctx context.Context, ref string) (*Artifact, error) {
	var artifact *Artifact
	err := s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		var scanErr error
		artifact, scanErr = scanArtifact(row)
		return scanErr
	}, "SELECT "+artifactColumns+" FROM artifacts WHERE content_ref = ?", ref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact by ref: %w", err)
	}
	return artifact, nil
}

// List returns every artifact ordered by id.
func (s *Store) List(ctx context.Context) ([]*Artifact, error) {
	return s.queryArtifacts(ctx, "SELECT "+artifactColumns+" FROM artifacts ORDER BY id")
}

// ListVisible returns public artifacts plus the viewer's own private ones.
func (s *Store) ListVisible(ctx context.Context, viewer string) ([]*Artifact, error) {
	return s.queryArtifacts(ctx,
		"SELECT "+artifactColumns+" FROM artifacts WHERE visibility = ? OR owner_id = ? ORDER BY id",
		string(VisibilityPublic), viewer,
	)
}

// ListUnprocessedOrFailed returns artifacts that were never completed or whose
// last attempt failed, ordered by id.
func (s *Store) ListUnprocessedOrFailed(ctx context.Context) ([]*Artifact, error) {
	return s.queryArtifacts(ctx,
		"SELECT "+artifactColumns+" FROM artifacts WHERE processed = ? OR flow_error IS NOT NULL ORDER BY id",
		false,
	)
}

// ListUnprocessed returns artifacts with processed=false, ordered by id.
func (s *Store) ListUnprocessed(ctx context.Context) ([]*Artifact, error) {
	return s.queryArtifacts(ctx,
		"SELECT "+artifactColumns+" FROM artifacts WHERE processed = ? ORDER BY id",
		false,
	)
}

// UpdateMetadata changes the caller-owned attributes of an artifact. Nil
// arguments are left unchanged. Pipeline state is never touched here.
func (s *Store) UpdateMetadata(ctx context.Context, id int64, name *string, visibility *Visibility) error {
	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return errors.New("artifact name is required")
		}
		sets = append(sets, "name = ?")
		args = append(args, trimmed)
	}
	if visibility != nil {
		sets = append(sets, "visibility = ?")
		args = append(args, string(*visibility))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano), id)

	res, err := s.execWithRetry(ctx, "UPDATE artifacts SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("update artifact %d: %w", id, err)
	}
	return requireRow(res, id)
}

// Delete removes an artifact row. Files are the caller's responsibility.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(ctx, "DELETE FROM artifacts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete artifact %d: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *Store) queryArtifacts(ctx context.Context, query string, args ...any) ([]*Artifact, error) {
	ctx = ensureContext(ctx)
	query = s.rebind(query)
	var artifacts []*Artifact
	err := retryOnBusy(ctx, func() error {
		artifacts = artifacts[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			artifact, err := scanArtifact(rows)
			if err != nil {
				return err
			}
			artifacts = append(artifacts, artifact)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return artifacts, nil
}

func requireRow(res sql.Result, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}
