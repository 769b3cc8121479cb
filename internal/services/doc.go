// Package services defines shared utilities consumed by the pipeline and its
// collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp artifact IDs, stage names, and correlation
//     identifiers for logging.
//   - The failure taxonomy of a transformation attempt (transport, sandbox
//     protocol, sandbox-reported, application, missing output, unexpected)
//     plus the Failure type that carries the exact flow error text.
//   - Structured error markers and the Wrap helper used by the submission
//     path and the HTTP layer.
package services
