// Package job defines the job entity, its status state machine, and the
// store interface.
//
// # Job Entity
//
// A [Job] is one submitted unit of work. It embeds [agentq.Entity] for
// timestamps, carries either a prompt with an optional inline
// [AgentConfig] or a named recipe reference, and progresses through:
//
//	queued → running → succeeded
//	queued → running → failed
//	queued → running → cancelled
//	queued → cancelled
//
// Invariants enforced by the transition methods:
//   - StartedAt is set iff the status has ever left queued
//   - CompletedAt is set iff the status is terminal
//   - Progress is clamped to [0,100] on every update
//
// # Creating a Job
//
// Use [New] with functional options:
//
//	j := job.New("summarize Q3 results",
//	    job.WithAgent(job.AgentConfig{Model: "gpt-4o-mini"}),
//	    job.WithTimeout(10*time.Minute),
//	    job.WithIdempotencyKey("reports", "q3-summary"),
//	)
//
// # Store
//
// [Store] is implemented by store/memory (canonical, bounded, ephemeral)
// and store/redis (optional shared backend). The executor is the sole
// lifecycle writer per job; a store-level lock is the only
// synchronization needed.
package job
