// Package stream provides a real-time event broker for job lifecycle
// events. It bridges the hook extension system to connected clients via
// topic-based pub/sub, and is the backing fan-out for the HTTP SSE
// endpoint.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventJobQueued    EventType = "job.queued"
	EventJobStarted   EventType = "job.started"
	EventJobProgress  EventType = "job.progress"
	EventJobSucceeded EventType = "job.succeeded"
	EventJobFailed    EventType = "job.failed"
	EventJobCancelled EventType = "job.cancelled"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the channel this event was published on.
	Topic string `json:"topic"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// JobEventData is the payload for job lifecycle events.
type JobEventData struct {
	JobID       string  `json:"job_id"`
	Status      string  `json:"status"`
	Recipe      string  `json:"recipe,omitempty"`
	SessionID   string  `json:"session_id,omitempty"`
	Progress    float64 `json:"progress"`
	CurrentStep string  `json:"current_step,omitempty"`
	ElapsedMs   int64   `json:"elapsed_ms,omitempty"`
	Error       string  `json:"error,omitempty"`
}
