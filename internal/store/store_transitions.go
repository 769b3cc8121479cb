package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MarkProcessed records a successful attempt: processed=true, flow_error cleared.
func (s *Store) MarkProcessed(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE artifacts
         SET processed = ?, flow_error = NULL, attempts = attempts + 1, updated_at = ?
         WHERE id = ?`,
		true,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark artifact %d processed: %w", id, err)
	}
	return requireRow(res, id)
}

// MarkFailed records a failed attempt: processed=true with reason as the flow error.
func (s *Store) MarkFailed(ctx context.Context, id int64, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return errors.New("failure reason is required")
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE artifacts
         SET processed = ?, flow_error = ?, attempts = attempts + 1, updated_at = ?
         WHERE id = ?`,
		true,
		reason,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark artifact %d failed: %w", id, err)
	}
	return requireRow(res, id)
}

// ResetForRetry returns an artifact to the unprocessed state so it can be
// queued again.
func (s *Store) ResetForRetry(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE artifacts
         SET processed = ?, flow_error = NULL, updated_at = ?
         WHERE id = ?`,
		false,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("reset artifact %d: %w", id, err)
	}
	return requireRow(res, id)
}
