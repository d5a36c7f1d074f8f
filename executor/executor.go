package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/corvid-labs/agentq"
	"github.com/corvid-labs/agentq/hook"
	"github.com/corvid-labs/agentq/id"
	"github.com/corvid-labs/agentq/job"
	"github.com/corvid-labs/agentq/middleware"
)

// ProgressCallback is invoked after every persisted state or progress
// mutation of the job it is registered for. Callbacks run synchronously
// on the job's executor goroutine; panics are recovered and logged.
type ProgressCallback func(j *job.Job)

// Executor is the bounded-concurrency job runner.
type Executor struct {
	store        job.Store
	hooks        *hook.Registry
	mw           middleware.Middleware
	agentRunner  AgentRunner
	recipeRunner RecipeRunner
	webhook      *webhookNotifier
	logger       *slog.Logger
	cfg          agentq.Config

	// sem is the admission-control semaphore. Submissions beyond
	// MaxConcurrent queue behind it instead of being rejected.
	sem *semaphore.Weighted

	// baseCtx is the parent of every per-job context. Cancelled on Stop.
	baseCtx    context.Context
	baseCancel context.CancelFunc
	stopCh     chan struct{}

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup

	// inflight maps job id → cancel func for the job's context, from
	// submission until the executor goroutine finishes.
	inflightMu sync.Mutex
	inflight   map[string]context.CancelFunc

	cbMu      sync.RWMutex
	callbacks map[string][]ProgressCallback
}

// Option configures an Executor.
type Option func(*Executor)

// WithConfig replaces the default configuration.
func WithConfig(cfg agentq.Config) Option {
	return func(e *Executor) { e.cfg = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithHooks sets the lifecycle extension registry.
func WithHooks(hooks *hook.Registry) Option {
	return func(e *Executor) { e.hooks = hooks }
}

// WithMiddleware sets the middleware chain the unit of work runs through.
// The default chain is Recover only; panics in runners fail the job
// rather than the process.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(e *Executor) { e.mw = middleware.Chain(mws...) }
}

// WithAgentRunner sets the agent execution path.
func WithAgentRunner(r AgentRunner) Option {
	return func(e *Executor) { e.agentRunner = r }
}

// WithRecipeRunner sets the recipe execution path.
func WithRecipeRunner(r RecipeRunner) Option {
	return func(e *Executor) { e.recipeRunner = r }
}

// New creates an Executor backed by the given store. Call Start before
// submitting jobs.
func New(store job.Store, opts ...Option) *Executor {
	e := &Executor{
		store:     store,
		cfg:       agentq.DefaultConfig(),
		logger:    slog.Default(),
		inflight:  make(map[string]context.CancelFunc),
		callbacks: make(map[string][]ProgressCallback),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.hooks == nil {
		e.hooks = hook.NewRegistry(e.logger)
	}
	if e.mw == nil {
		e.mw = middleware.Chain(middleware.Recover(e.logger))
	}
	e.sem = semaphore.NewWeighted(int64(e.cfg.MaxConcurrent))
	e.webhook = newWebhookNotifier(e.cfg.WebhookTimeout, e.logger)
	e.baseCtx, e.baseCancel = context.WithCancel(context.Background())
	return e
}

// Store returns the backing job store.
func (e *Executor) Store() job.Store { return e.store }

// Hooks returns the lifecycle extension registry.
func (e *Executor) Hooks() *hook.Registry { return e.hooks }

// InFlight returns the number of jobs submitted but not yet finished,
// including jobs still waiting for a concurrency slot.
func (e *Executor) InFlight() int {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()
	return len(e.inflight)
}

// ── Lifecycle ───────────────────────────────────────

// Start begins accepting submissions and launches the periodic cleanup
// loop. It returns immediately.
func (e *Executor) Start(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}
	e.running = true

	e.logger.Info("executor starting",
		slog.Int("max_concurrent", e.cfg.MaxConcurrent),
		slog.Duration("default_timeout", e.cfg.DefaultTimeout),
	)

	if e.cfg.CleanupInterval > 0 {
		e.wg.Add(1)
		go e.cleanupLoop()
	}

	return nil
}

// Stop rejects new submissions and waits for in-flight jobs to finish.
// If the context expires first, remaining jobs are cancelled and Stop
// waits for them to reach a terminal state.
func (e *Executor) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.mu.Unlock()

	e.logger.Info("executor stopping")
	close(e.stopCh)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("executor stopped gracefully")
	case <-ctx.Done():
		e.logger.Warn("executor shutdown timed out, cancelling active jobs")
		e.cancelInFlight()
		e.wg.Wait()
	}

	e.baseCancel()
	e.hooks.EmitShutdown(context.Background())
	return nil
}

// ── Submission and cancellation ─────────────────────

// Submit accepts a job for execution. It never blocks on the concurrency
// limit: the job is persisted as queued and a goroutine waits for a slot.
//
// If the job carries an idempotency key already known to the store, the
// existing job is returned and no new execution starts. Submitting a job
// whose ID is already stored (the same Job value handed over twice)
// returns agentq.ErrJobAlreadyExists.
//
// The returned job is a snapshot taken before execution starts; the
// executor goroutine owns the submitted value from here on.
func (e *Executor) Submit(ctx context.Context, j *job.Job) (*job.Job, error) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil, agentq.ErrExecutorStopped
	}
	e.mu.Unlock()

	if j.IdempotencyIndex() != "" {
		existing, err := e.store.GetByIdempotencyKey(ctx, j.IdempotencyScope, j.IdempotencyKey)
		if err == nil {
			e.logger.Debug("idempotent resubmission",
				slog.String("job_id", existing.ID.String()),
				slog.String("idempotency_key", j.IdempotencyKey),
			)
			return existing, nil
		}
		if !errors.Is(err, agentq.ErrJobNotFound) {
			return nil, err
		}
	}

	if _, err := e.store.Get(ctx, j.ID); err == nil {
		return nil, agentq.ErrJobAlreadyExists
	} else if !errors.Is(err, agentq.ErrJobNotFound) {
		return nil, err
	}

	if j.Timeout <= 0 {
		j.Timeout = e.cfg.DefaultTimeout
	}

	if err := e.store.Save(ctx, j); err != nil {
		return nil, err
	}

	e.hooks.EmitJobQueued(ctx, j)
	e.notifyCallbacks(j)

	accepted := j.Snapshot()

	jobCtx, cancel := context.WithCancel(e.baseCtx)
	e.trackJob(j.ID.String(), cancel)

	e.wg.Add(1)
	go e.execute(jobCtx, j)

	e.logger.Info("job submitted",
		slog.String("job_id", j.ID.String()),
		slog.String("recipe", j.Recipe),
		slog.String("session_id", j.SessionID),
	)

	return accepted, nil
}

// Cancel requests cancellation of a job. It returns true if the request
// was accepted: a queued job will never enter running, a running job's
// context is cancelled cooperatively. Unknown and terminal jobs return
// false with no error.
//
// For an in-flight job the store transition to cancelled is
// asynchronous: only the execute goroutine writes job state, so Cancel
// signals the per-job context and the goroutine records the cancelled
// status when it observes it. Readers may see queued or running for a
// short window after Cancel returns true.
func (e *Executor) Cancel(ctx context.Context, jobID id.JobID) (bool, error) {
	j, err := e.store.Get(ctx, jobID)
	if errors.Is(err, agentq.ErrJobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if j.Terminal() {
		return false, nil
	}

	if cancel, ok := e.lookupJob(jobID.String()); ok {
		cancel()
		return true, nil
	}

	// No live execution goroutine (e.g. job loaded from a durable store
	// after restart): transition directly.
	if cancelErr := j.Cancel(); cancelErr != nil {
		return false, nil
	}
	e.persist(j)
	e.hooks.EmitJobCancelled(ctx, j)
	e.notifyCallbacks(j)
	return true, nil
}

// ── Progress callbacks ──────────────────────────────

// RegisterProgressCallback subscribes a callback to every persisted
// mutation of the given job. Typically used to feed an SSE stream.
func (e *Executor) RegisterProgressCallback(jobID id.JobID, cb ProgressCallback) {
	e.cbMu.Lock()
	key := jobID.String()
	e.callbacks[key] = append(e.callbacks[key], cb)
	e.cbMu.Unlock()
}

// UnregisterProgressCallback removes all callbacks for the given job.
func (e *Executor) UnregisterProgressCallback(jobID id.JobID) {
	e.cbMu.Lock()
	delete(e.callbacks, jobID.String())
	e.cbMu.Unlock()
}

func (e *Executor) notifyCallbacks(j *job.Job) {
	e.cbMu.RLock()
	cbs := append([]ProgressCallback(nil), e.callbacks[j.ID.String()]...)
	e.cbMu.RUnlock()

	for _, cb := range cbs {
		e.invokeCallback(j, cb)
	}
}

// invokeCallback runs one callback with panic isolation. A broken
// observer must never break job execution.
func (e *Executor) invokeCallback(j *job.Job, cb ProgressCallback) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("progress callback panicked",
				slog.String("job_id", j.ID.String()),
				slog.Any("panic", r),
			)
		}
	}()
	cb(j)
}

// ── Execution ───────────────────────────────────────

// execute drives one job through its lifecycle. It is the only writer
// of the job's state after submission.
func (e *Executor) execute(ctx context.Context, j *job.Job) {
	defer e.wg.Done()
	defer e.untrackJob(j.ID.String())

	// Admission control. A cancelled queued job aborts the wait here
	// and never enters running.
	if err := e.sem.Acquire(ctx, 1); err != nil {
		e.finishCancelled(j)
		return
	}
	defer e.sem.Release(1)

	// Cancelled between acquire and start.
	if ctx.Err() != nil {
		e.finishCancelled(j)
		return
	}

	if err := j.Start(); err != nil {
		e.logger.Error("job could not start",
			slog.String("job_id", j.ID.String()),
			slog.String("status", string(j.Status)),
			slog.String("error", err.Error()),
		)
		return
	}
	e.persist(j)
	e.hooks.EmitJobStarted(ctx, j)
	e.notifyCallbacks(j)

	start := time.Now()
	result, err := e.runWork(ctx, j)
	elapsed := time.Since(start)

	switch {
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled):
		e.finishCancelled(j)

	case errors.Is(err, context.DeadlineExceeded):
		e.finishFailed(j, fmt.Sprintf("timed out after %s", j.Timeout))

	case err != nil:
		e.finishFailed(j, err.Error())

	default:
		e.finishSucceeded(ctx, j, result, elapsed)
	}
}

// runWork executes the job's underlying work under its deadline,
// advancing progress milestones as the sub-steps complete.
func (e *Executor) runWork(ctx context.Context, j *job.Job) (any, error) {
	workCtx, cancel := context.WithTimeout(ctx, j.Timeout)
	defer cancel()

	e.progress(workCtx, j, 10, "initializing")

	var terminal middleware.Handler
	if j.Recipe != "" {
		if e.recipeRunner == nil {
			return nil, agentq.ErrNoRecipeRunner
		}
		e.progress(workCtx, j, 20, "resolving recipe")
		e.progress(workCtx, j, 30, "running recipe")
		terminal = func(ctx context.Context) (any, error) {
			return e.recipeRunner.RunRecipe(ctx, j.Recipe, j.Prompt)
		}
	} else {
		if e.agentRunner == nil {
			return nil, agentq.ErrNoRunner
		}
		e.progress(workCtx, j, 20, "creating agent")
		j.AgentID = id.NewAgentID()
		j.RunID = id.NewRunID()
		e.progress(workCtx, j, 30, "running agent")
		terminal = func(ctx context.Context) (any, error) {
			return e.agentRunner.RunAgent(ctx, j.Agent, j.Prompt)
		}
	}

	return e.mw(workCtx, j, terminal)
}

// progress records a milestone, persists it, and notifies observers.
func (e *Executor) progress(ctx context.Context, j *job.Job, pct float64, step string) {
	j.SetProgress(pct, step)
	e.persist(j)
	e.hooks.EmitJobProgress(ctx, j)
	e.notifyCallbacks(j)
}

func (e *Executor) finishSucceeded(ctx context.Context, j *job.Job, result any, elapsed time.Duration) {
	e.progress(ctx, j, 90, "finalizing")

	if err := j.Succeed(result); err != nil {
		e.logger.Error("succeed transition rejected",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	e.persist(j)
	e.hooks.EmitJobSucceeded(ctx, j, elapsed)
	e.notifyCallbacks(j)
	e.webhook.notify(context.Background(), j)

	e.logger.Info("job succeeded",
		slog.String("job_id", j.ID.String()),
		slog.Duration("elapsed", elapsed),
	)
}

func (e *Executor) finishFailed(j *job.Job, msg string) {
	if err := j.Fail(msg); err != nil {
		e.logger.Error("fail transition rejected",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	e.persist(j)
	e.hooks.EmitJobFailed(context.Background(), j, errors.New(msg))
	e.notifyCallbacks(j)
	e.webhook.notify(context.Background(), j)

	e.logger.Warn("job failed",
		slog.String("job_id", j.ID.String()),
		slog.String("error", msg),
	)
}

// finishCancelled marks the job cancelled. Idempotent: a job already
// cancelled through another path is left untouched. No webhook is sent
// for cancellation.
func (e *Executor) finishCancelled(j *job.Job) {
	if j.Status == job.StatusCancelled {
		return
	}
	if err := j.Cancel(); err != nil {
		return
	}
	e.persist(j)
	e.hooks.EmitJobCancelled(context.Background(), j)
	e.notifyCallbacks(j)

	e.logger.Info("job cancelled", slog.String("job_id", j.ID.String()))
}

// persist saves the job, logging store failures. A broken store write
// must not abort the lifecycle; the in-memory state stays authoritative
// for the rest of the run.
func (e *Executor) persist(j *job.Job) {
	if err := e.store.Save(context.Background(), j); err != nil {
		e.logger.Error("failed to persist job",
			slog.String("job_id", j.ID.String()),
			slog.String("status", string(j.Status)),
			slog.String("error", err.Error()),
		)
	}
}

// ── Cleanup ─────────────────────────────────────────

// cleanupLoop periodically removes old terminal jobs from the store.
func (e *Executor) cleanupLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.cleanup()
		}
	}
}

func (e *Executor) cleanup() {
	removed, err := e.store.CleanupOldJobs(context.Background(), e.cfg.MaxJobAge)
	if err != nil {
		e.logger.Error("cleanup error", slog.String("error", err.Error()))
		return
	}
	if removed > 0 {
		e.logger.Info("cleaned up old jobs", slog.Int("removed", removed))
	}
}

// ── Tracking ────────────────────────────────────────

func (e *Executor) trackJob(jobID string, cancel context.CancelFunc) {
	e.inflightMu.Lock()
	e.inflight[jobID] = cancel
	e.inflightMu.Unlock()
}

func (e *Executor) untrackJob(jobID string) {
	e.inflightMu.Lock()
	if cancel, ok := e.inflight[jobID]; ok {
		cancel()
		delete(e.inflight, jobID)
	}
	e.inflightMu.Unlock()
}

func (e *Executor) lookupJob(jobID string) (context.CancelFunc, bool) {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()
	cancel, ok := e.inflight[jobID]
	return cancel, ok
}

func (e *Executor) cancelInFlight() {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()
	for jobID, cancel := range e.inflight {
		e.logger.Warn("cancelling active job", slog.String("job_id", jobID))
		cancel()
	}
}
