package agentq

import "errors"

var (
	// Store errors.
	ErrNoStore = errors.New("agentq: no store configured")

	// Not found errors.
	ErrJobNotFound = errors.New("agentq: job not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("agentq: job already exists")

	// State errors.
	ErrInvalidTransition = errors.New("agentq: invalid state transition")
	ErrJobTerminal       = errors.New("agentq: job already in a terminal state")

	// Executor errors.
	ErrExecutorStopped = errors.New("agentq: executor not running")
	ErrNoRunner        = errors.New("agentq: no agent runner configured")
	ErrNoRecipeRunner  = errors.New("agentq: no recipe runner configured")
)
