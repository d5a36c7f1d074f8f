// Package middleware provides composable middleware for job execution.
//
// A [Middleware] is a function that wraps the unit of work executed for
// a job. Middleware are composed into a chain using [Chain] and applied
// right-to-left: the first middleware in the slice is the outermost
// wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] — logs job id, session, duration, and outcome
//   - [Recover] — catches panics in the work and converts them to errors
//   - [Timeout] — cancels the work context at the job's deadline
//   - [Tracing] — wraps execution in an OpenTelemetry span
//   - [Metrics] — records per-job duration and outcome counters
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
