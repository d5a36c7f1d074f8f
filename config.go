package agentq

import "time"

// Config holds tunables for the executor and store.
type Config struct {
	// MaxConcurrent is the maximum number of jobs executing at once.
	// Submissions beyond the limit stay queued until a slot frees.
	MaxConcurrent int

	// DefaultTimeout is applied to jobs submitted without an explicit
	// per-job timeout.
	DefaultTimeout time.Duration

	// CleanupInterval is how often the executor sweeps terminal jobs
	// out of the store.
	CleanupInterval time.Duration

	// MaxJobAge is how long a terminal job is kept before the cleanup
	// sweep removes it.
	MaxJobAge time.Duration

	// ShutdownTimeout is the maximum time Stop waits for in-flight
	// jobs before cancelling them.
	ShutdownTimeout time.Duration

	// WebhookTimeout bounds the single completion-webhook POST.
	WebhookTimeout time.Duration

	// MaxJobs bounds the in-memory store. When exceeded, the oldest
	// completed jobs are evicted.
	MaxJobs int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:   10,
		DefaultTimeout:  time.Hour,
		CleanupInterval: 5 * time.Minute,
		MaxJobAge:       24 * time.Hour,
		ShutdownTimeout: 30 * time.Second,
		WebhookTimeout:  30 * time.Second,
		MaxJobs:         1000,
	}
}
