// Package queue runs cancellable operations on a concurrency-bounded pool.
//
// Operations move through Pending → Running → {Succeeded, Failed, Cancelled}.
// Every transition is a compare-and-swap from its expected source state, so
// a late result can never overwrite a cancellation and each operation
// dispatches its completion at most once.
//
// Admission is FIFO by insertion order. Submission never blocks; waiting
// (rate limiting, the work itself) happens inside the operation's own
// goroutine. Completions run either on the worker goroutine that executed
// the operation (CompletionWorker, the default) or on one dedicated
// goroutine in the order operations finish (CompletionSerial).
package queue
