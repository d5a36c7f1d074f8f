// Package executor runs jobs under bounded concurrency. Each submission
// gets its own goroutine that waits for one of N semaphore slots, drives
// the job through its lifecycle (queued → running → terminal), persists
// every mutation to the store, and notifies observers via lifecycle
// hooks, per-job progress callbacks, and an optional completion webhook.
//
// Admission control is a counting semaphore: excess submissions queue
// behind it rather than being rejected, so Submit always succeeds even
// under saturation. Cancellation of a queued job aborts the semaphore
// wait, so a cancelled job never enters running.
//
// Timeout enforcement is best-effort: the work's context is cancelled at
// the deadline and the job is marked failed, but work that ignores its
// context may keep consuming resources after the job is terminal.
package executor
