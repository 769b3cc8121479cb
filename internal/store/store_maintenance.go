package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"codeflow/internal/config"
)

// Stats counts artifacts by lifecycle state.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	var stats Stats
	err := retryOnBusy(ctx, func() error {
		stats = Stats{}
		rows, err := s.db.QueryContext(ctx,
			`SELECT processed, flow_error IS NOT NULL, COUNT(1) FROM artifacts GROUP BY processed, flow_error IS NOT NULL`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				processed bool
				failed    bool
				count     int
			)
			if err := rows.Scan(&processed, &failed, &count); err != nil {
				return err
			}
			switch {
			case !processed:
				stats.Pending += count
			case failed:
				stats.Failed += count
			default:
				stats.Processed += count
			}
			stats.Total += count
		}
		return rows.Err()
	})
	if err != nil {
		return Stats{}, fmt.Errorf("artifact stats: %w", err)
	}
	return stats, nil
}

// CheckHealth returns diagnostic information about the artifact database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	ctx = ensureContext(ctx)
	health := DatabaseHealth{Engine: s.engine, Location: s.location}

	if s.engine == config.EngineSQLite {
		info, err := os.Stat(s.location)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return health, nil
			}
			return health, fmt.Errorf("stat database: %w", err)
		}
		if info.IsDir() {
			return health, fmt.Errorf("database path %q is a directory", s.location)
		}
	}
	health.DatabaseExists = true

	version, err := s.readSchemaVersion(ctx)
	if err != nil {
		return health, err
	}
	health.SchemaVersion = version

	if s.engine == config.EngineSQLite {
		if err := s.db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&health.IntegrityCheck); err != nil {
			return health, fmt.Errorf("integrity check: %w", err)
		}
	} else {
		var one int
		if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
			return health, fmt.Errorf("connectivity check: %w", err)
		}
		health.IntegrityCheck = "ok"
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM artifacts").Scan(&health.Artifacts); err != nil {
		return health, fmt.Errorf("count artifacts: %w", err)
	}
	return health, nil
}
