package redis

// Redis key naming conventions. All keys are prefixed with "agentq:" to
// avoid collisions.

const keyPrefix = "agentq:"

// jobKey returns the Hash key for a job entity: agentq:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// jobIDsKey is the Set tracking all job IDs for enumeration.
const jobIDsKey = keyPrefix + "job_ids"

// idemIndexKey is the Hash mapping idempotency index keys to job IDs.
const idemIndexKey = keyPrefix + "idempotency"

// completedKey is the Sorted Set of terminal job IDs scored by
// CompletedAt (unix milliseconds), used for age-based cleanup.
const completedKey = keyPrefix + "completed"
