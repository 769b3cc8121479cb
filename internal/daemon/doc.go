// Package daemon coordinates the long-running codeflow process.
//
// It wires configuration, the artifact store, the workflow manager, and the
// submission service into a single lifecycle with flock-based locking to
// prevent multiple instances. Startup runs preflight checks before the
// reconciler and worker start, and the daemon serves the HTTP API used by the
// CLI for submissions, queue inspection, and file downloads.
//
// Keep orchestration logic here: transform execution lives in workflow and
// artifact rules live in submission.
package daemon
