// Package store groups the job.Store backends: memory (canonical,
// bounded, ephemeral) and redis (optional shared backend for deployments
// that want job records to survive a process restart — still best-effort,
// no delivery guarantees).
package store
