// Package submission validates and persists new artifacts and hands them to
// the workflow queue.
//
// Submit writes the input file under a fresh content reference, creates the
// store row, and enqueues the artifact with the id the store assigned. When
// the row cannot be created the written files are removed again. The package
// also implements the owner-scoped read, rename, retry and delete operations
// used by the daemon API.
package submission
