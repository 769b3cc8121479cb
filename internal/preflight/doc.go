// Package preflight provides readiness checks for the filesystem paths and
// the sandbox service that codeflow depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll before starting the workflow manager and
//     refuses to start when any check fails.
//   - The CLI "codeflow status" command shows the same results.
//
// The sandbox check is gated by workflow.preflight_sandbox.
package preflight
