// Package events publishes artifact lifecycle events to NATS.
//
// Subjects are <prefix>.artifact.<type>, for example
// codeflow.artifact.failed. Publishing is fire-and-forget: the artifact
// store stays the source of truth and consumers must tolerate gaps. When no
// NATS URL is configured a no-op publisher is used.
package events
