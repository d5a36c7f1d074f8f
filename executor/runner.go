package executor

import (
	"context"

	"github.com/corvid-labs/agentq/job"
)

// AgentRunner executes the agent path of a job: construct an agent from
// the job's inline config and invoke it with the prompt. The returned
// value becomes the job's result.
//
// Implementations must respect ctx cancellation where possible; the
// executor cancels it on timeout, job cancellation, and shutdown.
type AgentRunner interface {
	RunAgent(ctx context.Context, cfg *job.AgentConfig, prompt string) (any, error)
}

// AgentRunnerFunc adapts a function to the AgentRunner interface.
type AgentRunnerFunc func(ctx context.Context, cfg *job.AgentConfig, prompt string) (any, error)

func (f AgentRunnerFunc) RunAgent(ctx context.Context, cfg *job.AgentConfig, prompt string) (any, error) {
	return f(ctx, cfg, prompt)
}

// RecipeRunner executes the recipe path of a job: resolve the named
// recipe and run it with the prompt as input.
type RecipeRunner interface {
	RunRecipe(ctx context.Context, recipe, prompt string) (any, error)
}

// RecipeRunnerFunc adapts a function to the RecipeRunner interface.
type RecipeRunnerFunc func(ctx context.Context, recipe, prompt string) (any, error)

func (f RecipeRunnerFunc) RunRecipe(ctx context.Context, recipe, prompt string) (any, error) {
	return f(ctx, recipe, prompt)
}
