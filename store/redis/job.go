package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/corvid-labs/agentq"
	"github.com/corvid-labs/agentq/id"
	"github.com/corvid-labs/agentq/job"
)

// Save upserts the job Hash and maintains the enumeration Set, the
// idempotency index, and the completed-at Sorted Set.
func (s *Store) Save(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	fields, err := jobToMap(j)
	if err != nil {
		return err
	}
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, jobIDsKey, jID)

	if idx := j.IdempotencyIndex(); idx != "" {
		pipe.HSet(ctx, idemIndexKey, idx, jID)
	}

	if j.Terminal() && j.CompletedAt != nil {
		pipe.ZAdd(ctx, completedKey, goredis.Z{
			Score:  float64(j.CompletedAt.UnixMilli()),
			Member: jID,
		})
	} else {
		pipe.ZRem(ctx, completedKey, jID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("agentq/redis: save job: %w", err)
	}
	return nil
}

// Get retrieves a job by ID.
func (s *Store) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.getJobByKey(ctx, jobKey(jobID.String()))
}

// GetByIdempotencyKey resolves the idempotency index and fetches the job.
func (s *Store) GetByIdempotencyKey(ctx context.Context, scope, key string) (*job.Job, error) {
	idx := job.IdempotencyIndex(scope, key)
	if idx == "" {
		return nil, agentq.ErrJobNotFound
	}

	jID, err := s.client.HGet(ctx, idemIndexKey, idx).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, agentq.ErrJobNotFound
		}
		return nil, fmt.Errorf("agentq/redis: idempotency lookup: %w", err)
	}
	return s.getJobByKey(ctx, jobKey(jID))
}

// List returns jobs matching the filters, newest-created-first.
func (s *Store) List(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("agentq/redis: list smembers: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue // skip records deleted mid-scan
		}
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.SessionID != "" && j.SessionID != opts.SessionID {
			continue
		}
		jobs = append(jobs, j)
	}

	sort.Slice(jobs, func(i, k int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
		}
		return jobs[i].ID.String() > jobs[k].ID.String()
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(jobs) {
			return nil, nil
		}
		jobs = jobs[opts.Offset:]
	}
	if opts.Limit > 0 && len(jobs) > opts.Limit {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

// Count returns the number of jobs matching the filters.
func (s *Store) Count(ctx context.Context, opts job.CountOpts) (int64, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("agentq/redis: count smembers: %w", err)
	}

	var count int64
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.SessionID != "" && j.SessionID != opts.SessionID {
			continue
		}
		count++
	}
	return count, nil
}

// Delete removes a job and its index entries.
func (s *Store) Delete(ctx context.Context, jobID id.JobID) error {
	jID := jobID.String()
	key := jobKey(jID)

	j, err := s.getJobByKey(ctx, key)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, jobIDsKey, jID)
	pipe.ZRem(ctx, completedKey, jID)
	if idx := j.IdempotencyIndex(); idx != "" {
		pipe.HDel(ctx, idemIndexKey, idx)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("agentq/redis: delete job: %w", err)
	}
	return nil
}

// CleanupOldJobs removes terminal jobs completed before the cutoff using
// the completed-at Sorted Set. Returns the count removed.
func (s *Store) CleanupOldJobs(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	ids, err := s.client.ZRangeByScore(ctx, completedKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("agentq/redis: cleanup zrangebyscore: %w", err)
	}

	removed := 0
	for _, jID := range ids {
		if delErr := s.Delete(ctx, id.MustParse(jID)); delErr != nil {
			if errors.Is(delErr, agentq.ErrJobNotFound) {
				continue
			}
			s.logger.Warn("cleanup: failed to delete job",
				slog.String("job_id", jID),
				slog.String("error", delErr.Error()),
			)
			continue
		}
		removed++
	}
	return removed, nil
}

// ── serialization helpers ──

func jobToMap(j *job.Job) (map[string]any, error) {
	m := map[string]any{
		"id":                j.ID.String(),
		"prompt":            j.Prompt,
		"recipe":            j.Recipe,
		"webhook_url":       j.WebhookURL,
		"timeout":           strconv.FormatInt(int64(j.Timeout), 10),
		"session_id":        j.SessionID,
		"idempotency_key":   j.IdempotencyKey,
		"idempotency_scope": j.IdempotencyScope,
		"status":            string(j.Status),
		"progress":          strconv.FormatFloat(j.Progress, 'f', -1, 64),
		"current_step":      j.CurrentStep,
		"steps_completed":   strconv.Itoa(j.StepsCompleted),
		"steps_total":       strconv.Itoa(j.StepsTotal),
		"agent_id":          j.AgentID.String(),
		"run_id":            j.RunID.String(),
		"error":             j.Error,
		"created_at":        j.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":        j.UpdatedAt.Format(time.RFC3339Nano),
	}
	if j.StartedAt != nil {
		m["started_at"] = j.StartedAt.Format(time.RFC3339Nano)
	}
	if j.CompletedAt != nil {
		m["completed_at"] = j.CompletedAt.Format(time.RFC3339Nano)
	}
	if j.Agent != nil {
		data, err := json.Marshal(j.Agent)
		if err != nil {
			return nil, fmt.Errorf("agentq/redis: marshal agent config: %w", err)
		}
		m["agent"] = string(data)
	}
	if j.Result != nil {
		data, err := json.Marshal(j.Result)
		if err != nil {
			return nil, fmt.Errorf("agentq/redis: marshal result: %w", err)
		}
		m["result"] = string(data)
	}
	if len(j.Metrics) > 0 {
		data, err := json.Marshal(j.Metrics)
		if err != nil {
			return nil, fmt.Errorf("agentq/redis: marshal metrics: %w", err)
		}
		m["metrics"] = string(data)
	}
	return m, nil
}

func (s *Store) getJobByKey(ctx context.Context, key string) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("agentq/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, agentq.ErrJobNotFound
	}
	return mapToJob(vals)
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("agentq/redis: parse job id: %w", err)
	}

	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64)          //nolint:errcheck // best-effort parse from trusted Redis data
	progress, _ := strconv.ParseFloat(m["progress"], 64)          //nolint:errcheck // best-effort parse from trusted Redis data
	stepsCompleted, _ := strconv.Atoi(m["steps_completed"])       //nolint:errcheck // best-effort parse from trusted Redis data
	stepsTotal, _ := strconv.Atoi(m["steps_total"])               //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		Entity: agentq.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:               jID,
		Prompt:           m["prompt"],
		Recipe:           m["recipe"],
		WebhookURL:       m["webhook_url"],
		Timeout:          time.Duration(timeout),
		SessionID:        m["session_id"],
		IdempotencyKey:   m["idempotency_key"],
		IdempotencyScope: m["idempotency_scope"],
		Status:           job.Status(m["status"]),
		Progress:         progress,
		CurrentStep:      m["current_step"],
		StepsCompleted:   stepsCompleted,
		StepsTotal:       stepsTotal,
		Error:            m["error"],
	}

	if v := m["agent_id"]; v != "" {
		if parsed, parseErr := id.Parse(v); parseErr == nil {
			j.AgentID = parsed
		}
	}
	if v := m["run_id"]; v != "" {
		if parsed, parseErr := id.Parse(v); parseErr == nil {
			j.RunID = parsed
		}
	}
	if v := m["started_at"]; v != "" {
		if ts, parseErr := time.Parse(time.RFC3339Nano, v); parseErr == nil {
			j.StartedAt = &ts
		}
	}
	if v := m["completed_at"]; v != "" {
		if ts, parseErr := time.Parse(time.RFC3339Nano, v); parseErr == nil {
			j.CompletedAt = &ts
		}
	}
	if v := m["agent"]; v != "" {
		var cfg job.AgentConfig
		if unmarshalErr := json.Unmarshal([]byte(v), &cfg); unmarshalErr == nil {
			j.Agent = &cfg
		}
	}
	if v := m["result"]; v != "" {
		var result any
		if unmarshalErr := json.Unmarshal([]byte(v), &result); unmarshalErr == nil {
			j.Result = result
		}
	}
	if v := m["metrics"]; v != "" {
		var metrics map[string]any
		if unmarshalErr := json.Unmarshal([]byte(v), &metrics); unmarshalErr == nil {
			j.Metrics = metrics
		}
	}
	return j, nil
}
