package job

import "time"

// Option configures a Job at creation time.
type Option func(*Job)

// WithRecipe routes the job through the recipe execution path instead of
// an inline agent.
func WithRecipe(name string) Option {
	return func(j *Job) { j.Recipe = name }
}

// WithAgent attaches an inline agent configuration.
func WithAgent(cfg AgentConfig) Option {
	return func(j *Job) { j.Agent = &cfg }
}

// WithTimeout sets the per-job execution deadline.
func WithTimeout(d time.Duration) Option {
	return func(j *Job) {
		if d > 0 {
			j.Timeout = d
		}
	}
}

// WithWebhook sets the URL POSTed once when the job reaches a terminal
// status. Delivery is best-effort, at most one attempt.
func WithWebhook(url string) Option {
	return func(j *Job) { j.WebhookURL = url }
}

// WithSession tags the job with a session for filtering and correlation.
func WithSession(sessionID string) Option {
	return func(j *Job) { j.SessionID = sessionID }
}

// WithIdempotencyKey deduplicates resubmission: a later submit carrying
// the same scope and key returns the original job instead of creating a
// new one.
func WithIdempotencyKey(scope, key string) Option {
	return func(j *Job) {
		j.IdempotencyScope = scope
		j.IdempotencyKey = key
	}
}

// WithStepsTotal declares how many sub-steps the execution will report,
// for progress display.
func WithStepsTotal(n int) Option {
	return func(j *Job) {
		if n > 0 {
			j.StepsTotal = n
		}
	}
}
