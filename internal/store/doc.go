// Package store persists artifacts and exposes the closed set of state
// transitions the pipeline is allowed to perform on them.
//
// The Store manages database connections (SQLite through modernc.org/sqlite by
// default, PostgreSQL through pgx when configured), schema initialization,
// lookups, stats queries, and the MarkProcessed / MarkFailed / ResetForRetry
// transitions. The store is the durable record of pipeline state: the
// in-memory job queue is rebuilt from it on every start.
//
// Layout derives the on-disk input, output and byproduct paths of an artifact
// from its content reference.
package store
