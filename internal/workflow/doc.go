// Package workflow drives artifacts through the transform pipeline.
//
// The Manager owns an in-memory job queue and a single worker goroutine.
// Start reconciles the queue with the artifact store (anything unprocessed
// or failed is queued again) and then launches the worker. The worker pops
// one job at a time, asks the sandbox to run the configured transform
// command, classifies the outcome, and records it through the store's
// MarkProcessed / MarkFailed transitions. Outcomes are classified in a fixed
// order: transport failure, non-200 or malformed response, sandbox-reported
// error, non-zero exit, missing output, success. A panic or unexpected error
// in one attempt is logged and recorded and never stops the loop.
//
// The store is the durable record. Stop waits for the in-flight attempt and
// discards whatever is still queued; the next Start rebuilds it.
package workflow
