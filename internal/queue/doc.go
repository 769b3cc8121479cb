// Package queue holds the in-memory FIFO of processing jobs.
//
// The queue is unbounded and transient: nothing it holds survives a restart.
// The durable record lives in the artifact store, and the workflow manager
// rebuilds the queue from it at startup. Consumers block in Pop until a job
// arrives, the context ends, or the queue is closed.
package queue
