package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/corvid-labs/agentq/hook"
	"github.com/corvid-labs/agentq/job"
)

// meterName is the instrumentation scope name for lifecycle metrics.
const meterName = "github.com/corvid-labs/agentq/observability"

// Compile-time interface checks.
var (
	_ hook.Extension    = (*MetricsExtension)(nil)
	_ hook.JobQueued    = (*MetricsExtension)(nil)
	_ hook.JobSucceeded = (*MetricsExtension)(nil)
	_ hook.JobFailed    = (*MetricsExtension)(nil)
	_ hook.JobCancelled = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics. Register it on
// the executor's hook registry to automatically track submission rates,
// terminal-state counts, and job durations.
//
// Instruments:
//   - agentq.jobs.submitted (counter)
//   - agentq.jobs.finished (counter, attribute status=succeeded|failed|cancelled)
//   - agentq.jobs.completed.duration (histogram, seconds; succeeded jobs only)
type MetricsExtension struct {
	submitted metric.Int64Counter
	finished  metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension using the global
// MeterProvider. Without a configured provider the instruments are
// noops and registration is harmless.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. Use an sdk/metric ManualReader meter for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	submitted, sErr := meter.Int64Counter(
		"agentq.jobs.submitted",
		metric.WithDescription("Total jobs accepted for execution"),
		metric.WithUnit("{job}"),
	)
	_ = sErr // noop fallback guaranteed by OTel API contract

	finished, fErr := meter.Int64Counter(
		"agentq.jobs.finished",
		metric.WithDescription("Total jobs that reached a terminal state"),
		metric.WithUnit("{job}"),
	)
	_ = fErr

	duration, dErr := meter.Float64Histogram(
		"agentq.jobs.completed.duration",
		metric.WithDescription("Execution time of succeeded jobs in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr

	return &MetricsExtension{
		submitted: submitted,
		finished:  finished,
		duration:  duration,
	}
}

// Name implements hook.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobQueued implements hook.JobQueued.
func (m *MetricsExtension) OnJobQueued(ctx context.Context, j *job.Job) error {
	m.submitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("recipe", j.Recipe),
	))
	return nil
}

// OnJobSucceeded implements hook.JobSucceeded.
func (m *MetricsExtension) OnJobSucceeded(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	attrs := metric.WithAttributes(
		attribute.String("status", string(job.StatusSucceeded)),
		attribute.String("recipe", j.Recipe),
	)
	m.finished.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
	return nil
}

// OnJobFailed implements hook.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.finished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(job.StatusFailed)),
		attribute.String("recipe", j.Recipe),
	))
	return nil
}

// OnJobCancelled implements hook.JobCancelled.
func (m *MetricsExtension) OnJobCancelled(ctx context.Context, j *job.Job) error {
	m.finished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(job.StatusCancelled)),
		attribute.String("recipe", j.Recipe),
	))
	return nil
}
