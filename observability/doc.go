// Package observability provides an OpenTelemetry-based metrics
// extension. MetricsExtension implements lifecycle hooks to record
// system-wide counters for job submission, completion, failure, and
// cancellation, plus a duration histogram for finished jobs.
//
// For per-execution tracing and metrics around the unit of work, see
// the middleware package: middleware.Tracing() and middleware.Metrics().
package observability
