// Package agentq provides a single-process tracker for agent jobs:
// best-effort, in-memory bookkeeping of submitted prompts or recipes as
// they move through a bounded-concurrency executor.
//
// A job is submitted once, runs at most once, and ends in exactly one
// terminal state (succeeded, failed, or cancelled). There are no retries,
// no persistence guarantees, and no cross-process coordination — restart
// loses everything. Callers observe jobs by polling the store, by
// registering per-job progress callbacks, over the SSE stream, or via an
// optional completion webhook.
//
// # Quick Start
//
//	tr, err := tracker.New(
//	    tracker.WithAgentRunner(runner),
//	)
//	tr.Start(ctx)
//	defer tr.Stop(ctx)
//
//	j := job.New("summarize the attached report",
//	    job.WithTimeout(5*time.Minute),
//	    job.WithWebhook("https://example.com/done"),
//	)
//	tr.Submit(ctx, j)
//
// # Architecture
//
// Each subsystem lives in its own package: job (entity, state machine,
// store contract), store/memory and store/redis (backends), executor
// (admission control, timeout, cancellation, notification), hook
// (lifecycle extensions), stream (pub/sub fanout for SSE), middleware
// (recover/logging/tracing/metrics/timeout around the unit of work),
// api (HTTP adapter), and tracker (the facade wiring them together).
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package agentq
