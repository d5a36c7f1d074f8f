// Package tracker wires the agentq subsystems together: the job store,
// the lifecycle-hook registry, the stream broker, the middleware chain,
// and the executor.
//
// This package exists to break the import cycle: the root agentq package
// defines Config and Entity (imported by job, executor, etc.) and so
// cannot import those packages back. The tracker package sits above all
// subsystem packages and below the application layer.
package tracker

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/corvid-labs/agentq"
	"github.com/corvid-labs/agentq/api"
	"github.com/corvid-labs/agentq/executor"
	"github.com/corvid-labs/agentq/hook"
	"github.com/corvid-labs/agentq/id"
	"github.com/corvid-labs/agentq/job"
	mw "github.com/corvid-labs/agentq/middleware"
	"github.com/corvid-labs/agentq/observability"
	"github.com/corvid-labs/agentq/store/memory"
	"github.com/corvid-labs/agentq/stream"
)

// Tracker is the assembled job tracker. Create one with New, call Start,
// submit work through Submit, and tear it down with Stop.
type Tracker struct {
	cfg    agentq.Config
	logger *slog.Logger
	store  job.Store
	hooks  *hook.Registry
	broker *stream.Broker
	exec   *executor.Executor

	mws          []mw.Middleware
	extensions   []hook.Extension
	agentRunner  executor.AgentRunner
	recipeRunner executor.RecipeRunner
	metrics      bool
	tracing      bool
	storeSet     bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithConfig replaces the default configuration.
func WithConfig(cfg agentq.Config) Option {
	return func(t *Tracker) { t.cfg = cfg }
}

// WithLogger sets the structured logger shared by all subsystems.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// WithStore sets the job store. The default is an in-memory store sized
// by Config.MaxJobs.
func WithStore(s job.Store) Option {
	return func(t *Tracker) {
		t.store = s
		t.storeSet = true
	}
}

// WithExtension registers a lifecycle extension with the hook registry.
func WithExtension(e hook.Extension) Option {
	return func(t *Tracker) { t.extensions = append(t.extensions, e) }
}

// WithMiddleware appends middleware to the execution chain. Recover is
// always installed first.
func WithMiddleware(m mw.Middleware) Option {
	return func(t *Tracker) { t.mws = append(t.mws, m) }
}

// WithAgentRunner sets the agent execution backend.
func WithAgentRunner(r executor.AgentRunner) Option {
	return func(t *Tracker) { t.agentRunner = r }
}

// WithRecipeRunner sets the recipe execution backend.
func WithRecipeRunner(r executor.RecipeRunner) Option {
	return func(t *Tracker) { t.recipeRunner = r }
}

// WithMetrics enables the OTel metrics middleware and the metrics hook
// extension, both against the global meter provider.
func WithMetrics() Option {
	return func(t *Tracker) { t.metrics = true }
}

// WithTracing enables the OTel tracing middleware against the global
// tracer provider.
func WithTracing() Option {
	return func(t *Tracker) { t.tracing = true }
}

// New assembles a Tracker. Explicitly passing a nil store via WithStore
// returns agentq.ErrNoStore; omitting WithStore selects the in-memory
// store.
func New(opts ...Option) (*Tracker, error) {
	t := &Tracker{
		cfg:    agentq.DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.storeSet && t.store == nil {
		return nil, agentq.ErrNoStore
	}
	if t.store == nil {
		t.store = memory.New(memory.WithMaxJobs(t.cfg.MaxJobs))
	}

	t.hooks = hook.NewRegistry(t.logger)
	t.broker = stream.NewBroker(t.logger)
	t.hooks.Register(t.broker)
	if t.metrics {
		t.hooks.Register(observability.NewMetricsExtension())
	}
	for _, e := range t.extensions {
		t.hooks.Register(e)
	}

	chain := []mw.Middleware{mw.Recover(t.logger)}
	if t.tracing {
		chain = append(chain, mw.Tracing())
	}
	if t.metrics {
		chain = append(chain, mw.Metrics())
	}
	chain = append(chain, t.mws...)

	execOpts := []executor.Option{
		executor.WithConfig(t.cfg),
		executor.WithLogger(t.logger),
		executor.WithHooks(t.hooks),
		executor.WithMiddleware(chain...),
	}
	if t.agentRunner != nil {
		execOpts = append(execOpts, executor.WithAgentRunner(t.agentRunner))
	}
	if t.recipeRunner != nil {
		execOpts = append(execOpts, executor.WithRecipeRunner(t.recipeRunner))
	}
	t.exec = executor.New(t.store, execOpts...)

	return t, nil
}

// ── Lifecycle ───────────────────────────────────────

// Start begins accepting submissions.
func (t *Tracker) Start(ctx context.Context) error {
	return t.exec.Start(ctx)
}

// Stop drains in-flight jobs within the configured shutdown timeout and
// notifies extensions.
func (t *Tracker) Stop(ctx context.Context) error {
	return t.exec.Stop(ctx)
}

// ── Operations ──────────────────────────────────────

// Submit enqueues a job for execution. See executor.Executor.Submit.
func (t *Tracker) Submit(ctx context.Context, j *job.Job) (*job.Job, error) {
	return t.exec.Submit(ctx, j)
}

// Cancel requests cancellation of a job. It reports whether a
// cancellation was initiated.
func (t *Tracker) Cancel(ctx context.Context, jobID id.JobID) (bool, error) {
	return t.exec.Cancel(ctx, jobID)
}

// Get fetches a job by ID.
func (t *Tracker) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return t.store.Get(ctx, jobID)
}

// List returns jobs matching the filter, newest first.
func (t *Tracker) List(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	return t.store.List(ctx, opts)
}

// Delete removes a job from the store. Running jobs keep executing;
// their terminal write recreates nothing.
func (t *Tracker) Delete(ctx context.Context, jobID id.JobID) error {
	return t.store.Delete(ctx, jobID)
}

// RegisterProgressCallback attaches a per-job progress callback.
func (t *Tracker) RegisterProgressCallback(jobID id.JobID, cb executor.ProgressCallback) {
	t.exec.RegisterProgressCallback(jobID, cb)
}

// UnregisterProgressCallback removes all callbacks for the job.
func (t *Tracker) UnregisterProgressCallback(jobID id.JobID) {
	t.exec.UnregisterProgressCallback(jobID)
}

// ── Accessors ───────────────────────────────────────

// Executor returns the underlying executor.
func (t *Tracker) Executor() *executor.Executor { return t.exec }

// Broker returns the stream broker for SSE subscriptions.
func (t *Tracker) Broker() *stream.Broker { return t.broker }

// Hooks returns the lifecycle extension registry.
func (t *Tracker) Hooks() *hook.Registry { return t.hooks }

// Store returns the job store.
func (t *Tracker) Store() job.Store { return t.store }

// Config returns a copy of the tracker's configuration.
func (t *Tracker) Config() agentq.Config { return t.cfg }

// Handler returns the HTTP API for this tracker.
func (t *Tracker) Handler() http.Handler {
	return api.New(t.exec, t.broker, api.WithLogger(t.logger)).Handler()
}
