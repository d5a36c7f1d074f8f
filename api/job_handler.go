package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/corvid-labs/agentq/id"
	"github.com/corvid-labs/agentq/job"
)

// SubmitJobRequest is the POST /v1/jobs body. Unknown fields are
// rejected so typos in agent config surface as a 400 instead of being
// silently dropped.
type SubmitJobRequest struct {
	Prompt           string           `json:"prompt"`
	Recipe           string           `json:"recipe,omitempty"`
	Agent            *job.AgentConfig `json:"agent,omitempty"`
	WebhookURL       string           `json:"webhook_url,omitempty"`
	TimeoutSeconds   int              `json:"timeout,omitempty"`
	SessionID        string           `json:"session_id,omitempty"`
	IdempotencyKey   string           `json:"idempotency_key,omitempty"`
	IdempotencyScope string           `json:"idempotency_scope,omitempty"`
	StepsTotal       int              `json:"steps_total,omitempty"`
}

// JobCountsResponse groups job counts by status.
type JobCountsResponse struct {
	Queued    int64 `json:"queued"`
	Running   int64 `json:"running"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}

const defaultListLimit = 50

func (a *API) submitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if req.Prompt == "" {
		a.writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if req.TimeoutSeconds < 0 {
		a.writeError(w, http.StatusBadRequest, "timeout must be positive")
		return
	}

	opts := make([]job.Option, 0, 6)
	if req.Recipe != "" {
		opts = append(opts, job.WithRecipe(req.Recipe))
	}
	if req.Agent != nil {
		opts = append(opts, job.WithAgent(*req.Agent))
	}
	if req.TimeoutSeconds > 0 {
		opts = append(opts, job.WithTimeout(time.Duration(req.TimeoutSeconds)*time.Second))
	}
	if req.WebhookURL != "" {
		opts = append(opts, job.WithWebhook(req.WebhookURL))
	}
	if req.SessionID != "" {
		opts = append(opts, job.WithSession(req.SessionID))
	}
	if req.IdempotencyKey != "" {
		opts = append(opts, job.WithIdempotencyKey(req.IdempotencyScope, req.IdempotencyKey))
	}
	if req.StepsTotal > 0 {
		opts = append(opts, job.WithStepsTotal(req.StepsTotal))
	}

	j := job.New(req.Prompt, opts...)

	accepted, err := a.exec.Submit(r.Context(), j)
	if err != nil {
		a.mapStoreError(w, err)
		return
	}

	// An idempotent resubmission returns the existing job.
	status := http.StatusCreated
	if accepted.ID.String() != j.ID.String() {
		status = http.StatusOK
	}
	a.writeJSON(w, status, accepted)
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := job.ListOpts{
		SessionID: q.Get("session_id"),
		Limit:     defaultListLimit,
	}

	if raw := q.Get("status"); raw != "" {
		status := job.Status(raw)
		if !status.Valid() {
			a.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", raw))
			return
		}
		opts.Status = status
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			a.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		opts.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			a.writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		opts.Offset = offset
	}

	jobs, err := a.exec.Store().List(r.Context(), opts)
	if err != nil {
		a.mapStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, jobs)
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := a.parseJobID(w, r)
	if !ok {
		return
	}

	j, err := a.exec.Store().Get(r.Context(), jobID)
	if err != nil {
		a.mapStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, j)
}

func (a *API) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := a.parseJobID(w, r)
	if !ok {
		return
	}

	// Distinguish unknown from terminal for the response code.
	j, err := a.exec.Store().Get(r.Context(), jobID)
	if err != nil {
		a.mapStoreError(w, err)
		return
	}
	if j.Terminal() {
		a.writeError(w, http.StatusConflict,
			fmt.Sprintf("job already %s", j.Status))
		return
	}

	if _, err := a.exec.Cancel(r.Context(), jobID); err != nil {
		a.mapStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) deleteJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := a.parseJobID(w, r)
	if !ok {
		return
	}

	if err := a.exec.Store().Delete(r.Context(), jobID); err != nil {
		a.mapStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) jobCounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store := a.exec.Store()

	resp := JobCountsResponse{}
	for _, status := range []job.Status{
		job.StatusQueued,
		job.StatusRunning,
		job.StatusSucceeded,
		job.StatusFailed,
		job.StatusCancelled,
	} {
		count, err := store.Count(ctx, job.CountOpts{Status: status})
		if err != nil {
			a.mapStoreError(w, err)
			return
		}
		switch status {
		case job.StatusQueued:
			resp.Queued = count
		case job.StatusRunning:
			resp.Running = count
		case job.StatusSucceeded:
			resp.Succeeded = count
		case job.StatusFailed:
			resp.Failed = count
		case job.StatusCancelled:
			resp.Cancelled = count
		}
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *API) parseJobID(w http.ResponseWriter, r *http.Request) (id.JobID, bool) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid job ID: %v", err))
		return id.Nil, false
	}
	return jobID, true
}
