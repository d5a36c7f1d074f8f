// Package memory implements job.Store entirely in memory. It is the
// canonical backend: a single process, a single lock, no persistence.
// Restart loses all job state.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/corvid-labs/agentq"
	"github.com/corvid-labs/agentq/id"
	"github.com/corvid-labs/agentq/job"
)

// Ensure Store implements job.Store at compile time.
var _ job.Store = (*Store)(nil)

// DefaultMaxJobs bounds the store when no explicit limit is configured.
const DefaultMaxJobs = 1000

// evictFraction is the share of terminal jobs removed per eviction pass.
const evictFraction = 0.10

// Store is a bounded in-memory implementation of job.Store.
// Safe for concurrent access.
type Store struct {
	mu sync.RWMutex

	jobs map[string]*job.Job

	// idemIndex maps idempotency index keys to job ID strings for
	// submit deduplication.
	idemIndex map[string]string

	maxJobs int
}

// Option configures a Store.
type Option func(*Store)

// WithMaxJobs bounds the number of stored jobs. When the bound is
// exceeded, the oldest-completed terminal jobs are evicted. Non-terminal
// jobs are never evicted, so the store can transiently exceed the bound
// while many jobs are queued or running.
func WithMaxJobs(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxJobs = n
		}
	}
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		jobs:      make(map[string]*job.Job),
		idemIndex: make(map[string]string),
		maxJobs:   DefaultMaxJobs,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Len returns the number of stored jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Save upserts the job by ID and maintains the idempotency index.
func (s *Store) Save(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := j.ID.String()
	cp := *j
	cp.UpdatedAt = time.Now().UTC()
	s.jobs[key] = &cp

	if idx := j.IdempotencyIndex(); idx != "" {
		s.idemIndex[idx] = key
	}

	if len(s.jobs) > s.maxJobs {
		s.evictLocked()
	}
	return nil
}

// Get retrieves a job by ID.
func (s *Store) Get(_ context.Context, jobID id.JobID) (*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, agentq.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// GetByIdempotencyKey returns the job saved under the given scope and key.
func (s *Store) GetByIdempotencyKey(_ context.Context, scope, key string) (*job.Job, error) {
	idx := job.IdempotencyIndex(scope, key)
	if idx == "" {
		return nil, agentq.ErrJobNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	jobID, ok := s.idemIndex[idx]
	if !ok {
		return nil, agentq.ErrJobNotFound
	}
	j, ok := s.jobs[jobID]
	if !ok {
		// Index entry outlived the job (deleted or evicted).
		return nil, agentq.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// List returns jobs matching the filters, newest-created-first.
func (s *Store) List(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if !matches(j, opts.Status, opts.SessionID) {
			continue
		}
		cp := *j
		result = append(result, &cp)
	}

	// Newest first. TypeIDs are K-sortable, so the ID tie-break keeps
	// equal-timestamp listings in creation order.
	sort.Slice(result, func(i, k int) bool {
		if !result[i].CreatedAt.Equal(result[k].CreatedAt) {
			return result[i].CreatedAt.After(result[k].CreatedAt)
		}
		return result[i].ID.String() > result[k].ID.String()
	})

	// Apply offset / limit.
	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// Count returns the number of jobs matching the filters.
func (s *Store) Count(_ context.Context, opts job.CountOpts) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, j := range s.jobs {
		if matches(j, opts.Status, opts.SessionID) {
			count++
		}
	}
	return count, nil
}

// Delete removes a job by ID.
func (s *Store) Delete(_ context.Context, jobID id.JobID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := jobID.String()
	j, ok := s.jobs[key]
	if !ok {
		return agentq.ErrJobNotFound
	}
	delete(s.jobs, key)
	if idx := j.IdempotencyIndex(); idx != "" {
		delete(s.idemIndex, idx)
	}
	return nil
}

// CleanupOldJobs removes jobs that are terminal and completed before the
// cutoff. Returns the count removed.
func (s *Store) CleanupOldJobs(_ context.Context, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	for key, j := range s.jobs {
		if !j.Terminal() || j.CompletedAt == nil {
			continue
		}
		if j.CompletedAt.Before(cutoff) {
			delete(s.jobs, key)
			if idx := j.IdempotencyIndex(); idx != "" {
				delete(s.idemIndex, idx)
			}
			removed++
		}
	}
	return removed, nil
}

// evictLocked removes the oldest ~10% of terminal jobs, by CompletedAt
// ascending. Soft bound: non-terminal jobs are never evicted, so nothing
// happens when every job is still queued or running. Caller holds mu.
func (s *Store) evictLocked() {
	terminal := make([]*job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if j.Terminal() && j.CompletedAt != nil {
			terminal = append(terminal, j)
		}
	}
	if len(terminal) == 0 {
		return
	}

	sort.Slice(terminal, func(i, k int) bool {
		return terminal[i].CompletedAt.Before(*terminal[k].CompletedAt)
	})

	n := int(float64(s.maxJobs) * evictFraction)
	if n < 1 {
		n = 1
	}
	if n > len(terminal) {
		n = len(terminal)
	}

	for _, j := range terminal[:n] {
		delete(s.jobs, j.ID.String())
		if idx := j.IdempotencyIndex(); idx != "" {
			delete(s.idemIndex, idx)
		}
	}
}

// matches applies the shared status/session filter.
func matches(j *job.Job, status job.Status, sessionID string) bool {
	if status != "" && j.Status != status {
		return false
	}
	if sessionID != "" && j.SessionID != sessionID {
		return false
	}
	return true
}
