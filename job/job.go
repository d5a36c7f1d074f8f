package job

import (
	"time"

	"github.com/corvid-labs/agentq"
	"github.com/corvid-labs/agentq/id"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusQueued means the job is waiting for an execution slot.
	StatusQueued Status = "queued"
	// StatusRunning means the job is currently executing.
	StatusRunning Status = "running"
	// StatusSucceeded means the job finished and produced a result.
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the job finished with an error (including timeout).
	StatusFailed Status = "failed"
	// StatusCancelled means the job was explicitly cancelled.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// AgentConfig is the typed, recognized set of inline agent options a job
// may carry. Unknown keys are rejected at the transport boundary rather
// than silently accepted.
type AgentConfig struct {
	// Name labels the agent for logs and attribution.
	Name string `json:"name,omitempty"`
	// Model selects the underlying provider model.
	Model string `json:"model,omitempty"`
	// Instructions is the system prompt handed to the agent.
	Instructions string `json:"instructions,omitempty"`
	// Tools lists tool names the agent may call.
	Tools []string `json:"tools,omitempty"`
	// Temperature overrides the provider sampling temperature.
	Temperature float64 `json:"temperature,omitempty"`
	// MaxIterations caps the agent's tool-use loop.
	MaxIterations int `json:"max_iterations,omitempty"`
}

// Job represents one submitted unit of work with a tracked lifecycle.
//
// The executor goroutine is the sole lifecycle writer for a job after
// submission; everyone else reads snapshots from the store. Once a job
// reaches a terminal status it is immutable except for store deletion.
type Job struct {
	agentq.Entity

	ID id.JobID `json:"id"`

	// Inputs, fixed at submission.
	Prompt           string        `json:"prompt"`
	Recipe           string        `json:"recipe,omitempty"`
	Agent            *AgentConfig  `json:"agent,omitempty"`
	WebhookURL       string        `json:"webhook_url,omitempty"`
	Timeout          time.Duration `json:"timeout"`
	SessionID        string        `json:"session_id,omitempty"`
	IdempotencyKey   string        `json:"idempotency_key,omitempty"`
	IdempotencyScope string        `json:"idempotency_scope,omitempty"`

	Status Status `json:"status"`

	// Progress.
	Progress       float64 `json:"progress"` // 0–100
	CurrentStep    string  `json:"current_step,omitempty"`
	StepsCompleted int     `json:"steps_completed"`
	StepsTotal     int     `json:"steps_total,omitempty"`

	// Attribution, populated during execution.
	AgentID id.AgentID `json:"agent_id,omitempty"`
	RunID   id.RunID   `json:"run_id,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Outputs.
	Result  any            `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
	Metrics map[string]any `json:"metrics,omitempty"`
}

// New creates a queued job for the given prompt with defaults applied.
func New(prompt string, opts ...Option) *Job {
	j := &Job{
		Entity:  agentq.NewEntity(),
		ID:      id.NewJobID(),
		Prompt:  prompt,
		Status:  StatusQueued,
		Timeout: agentq.DefaultConfig().DefaultTimeout,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Terminal reports whether the job is in a terminal status.
func (j *Job) Terminal() bool { return j.Status.Terminal() }

// Snapshot returns a copy of the job that is safe to read while the
// executor goroutine keeps mutating the original. Transitions install
// fresh pointers (StartedAt, CompletedAt) rather than writing through
// existing ones, so a field-level copy is sufficient.
func (j *Job) Snapshot() *Job {
	cp := *j
	return &cp
}

// IdempotencyIndex returns the composite key used for resubmission
// deduplication, or "" if the job carries no idempotency key. The scope
// namespaces the key so identical keys in different scopes stay distinct.
func (j *Job) IdempotencyIndex() string {
	return IdempotencyIndex(j.IdempotencyScope, j.IdempotencyKey)
}

// IdempotencyIndex builds the composite idempotency index key.
func IdempotencyIndex(scope, key string) string {
	if key == "" {
		return ""
	}
	if scope == "" {
		return key
	}
	return scope + ":" + key
}

// Duration returns how long the job has been (or was) executing: zero
// before it starts, elapsed-so-far while running, and fixed once terminal.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := time.Now().UTC()
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	return end.Sub(*j.StartedAt)
}

// ──────────────────────────────────────────────────
// Lifecycle transitions
// ──────────────────────────────────────────────────

// Start transitions queued → running and stamps StartedAt.
func (j *Job) Start() error {
	if j.Status != StatusQueued {
		return agentq.ErrInvalidTransition
	}
	now := time.Now().UTC()
	j.Status = StatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
	return nil
}

// Succeed transitions running → succeeded and records the result.
func (j *Job) Succeed(result any) error {
	if j.Status != StatusRunning {
		return agentq.ErrInvalidTransition
	}
	now := time.Now().UTC()
	j.Status = StatusSucceeded
	j.Result = result
	j.Progress = 100
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// Fail transitions running → failed and records the error message.
func (j *Job) Fail(msg string) error {
	if j.Status != StatusRunning {
		return agentq.ErrInvalidTransition
	}
	now := time.Now().UTC()
	j.Status = StatusFailed
	j.Error = msg
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// Cancel transitions queued or running → cancelled. Cancelling an
// already-cancelled job is a no-op; any other terminal status is an error.
func (j *Job) Cancel() error {
	if j.Status == StatusCancelled {
		return nil
	}
	if j.Status.Terminal() {
		return agentq.ErrJobTerminal
	}
	now := time.Now().UTC()
	j.Status = StatusCancelled
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// SetProgress records a progress update. The percentage is clamped to
// [0,100]; monotonicity is not enforced. A non-empty step label replaces
// the current one and counts as a completed sub-step.
func (j *Job) SetProgress(pct float64, step string) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	j.Progress = pct
	if step != "" && step != j.CurrentStep {
		j.CurrentStep = step
		j.StepsCompleted++
	}
	j.UpdatedAt = time.Now().UTC()
}
