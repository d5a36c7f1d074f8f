// Package api exposes the job system over HTTP. It is a thin adapter:
// request decoding and validation, sentinel-error mapping to status
// codes, and SSE streaming backed by the stream broker. All job
// semantics live in the executor and store.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/corvid-labs/agentq"
	"github.com/corvid-labs/agentq/executor"
	"github.com/corvid-labs/agentq/stream"
)

// API wires the HTTP handlers for the job system.
type API struct {
	exec   *executor.Executor
	broker *stream.Broker
	logger *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// New creates an API over the given executor and stream broker. The
// broker must be registered on the executor's hook registry for the
// stream endpoint to observe lifecycle events.
func New(exec *executor.Executor, broker *stream.Broker, opts ...Option) *API {
	a := &API{
		exec:   exec,
		broker: broker,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", a.submitJob)
		r.Get("/", a.listJobs)
		r.Get("/counts", a.jobCounts)

		r.Route("/{jobID}", func(r chi.Router) {
			r.Get("/", a.getJob)
			r.Post("/cancel", a.cancelJob)
			r.Delete("/", a.deleteJob)
			r.Get("/stream", a.streamJob)
		})
	})

	return r
}

// ── Response helpers ────────────────────────────────

type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("response encode failed", slog.String("error", err.Error()))
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, errorResponse{Error: msg})
}

// mapStoreError converts sentinel errors to HTTP status responses.
func (a *API) mapStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, agentq.ErrJobNotFound):
		a.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, agentq.ErrExecutorStopped):
		a.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		a.writeError(w, http.StatusInternalServerError, err.Error())
	}
}
