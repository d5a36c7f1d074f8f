package job

import (
	"context"
	"time"

	"github.com/corvid-labs/agentq/id"
)

// ListOpts controls filtering and pagination for job list queries.
type ListOpts struct {
	// Status filters by job status. Empty means all statuses.
	Status Status
	// SessionID filters by session. Empty means all sessions.
	SessionID string
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// Status filters by job status. Empty means all statuses.
	Status Status
	// SessionID filters by session. Empty means all sessions.
	SessionID string
}

// Store defines the persistence contract for jobs.
//
// Implementations must be safe for concurrent callers. Missing jobs are
// reported with agentq.ErrJobNotFound so transport layers can map them
// to a 404 without special-casing.
type Store interface {
	// Save upserts the job by ID and maintains the idempotency index
	// when the job carries a key.
	Save(ctx context.Context, j *Job) error

	// Get retrieves a job by ID.
	Get(ctx context.Context, jobID id.JobID) (*Job, error)

	// GetByIdempotencyKey returns the job previously saved under the
	// given idempotency scope and key, for submit deduplication.
	GetByIdempotencyKey(ctx context.Context, scope, key string) (*Job, error)

	// List returns jobs matching the filters, newest-created-first,
	// then paginated.
	List(ctx context.Context, opts ListOpts) ([]*Job, error)

	// Count returns the number of jobs matching the filters.
	Count(ctx context.Context, opts CountOpts) (int64, error)

	// Delete removes a job by ID.
	Delete(ctx context.Context, jobID id.JobID) error

	// CleanupOldJobs removes jobs that are terminal and whose
	// CompletedAt is older than maxAge. It returns the count removed.
	CleanupOldJobs(ctx context.Context, maxAge time.Duration) (int, error)
}
