package store

import "errors"

var (
	// ErrNotFound is returned when no artifact matched the requested id.
	ErrNotFound = errors.New("artifact not found")
	// ErrDuplicateName is returned when an owner already has an artifact with the same name.
	ErrDuplicateName = errors.New("artifact name already exists for owner")
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)
