// Package sandbox runs transform commands under a timeout and exposes them
// over HTTP.
//
// Runner executes exactly one process per call, captures its streams, and
// kills the whole process group when the timeout expires. A non-zero exit
// status is a normal Output, never an error. Server wraps a Runner in the
// POST /v1/run contract and Client is the worker-side caller of that
// contract; it distinguishes transport, status and protocol failures so the
// coordinator can classify outcomes.
package sandbox
