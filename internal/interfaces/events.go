package interfaces

import (
	"context"
	"encoding/json"
)

// EventType identifies a job lifecycle event
type EventType string

const (
	EventJobStatusChanged EventType = "status_changed"
	EventJobProgress      EventType = "progress"
	EventJobCompleted     EventType = "completed"
	EventJobFailed        EventType = "failed"
)

// Event is a job lifecycle notification published by the engine
type Event struct {
	Type    EventType
	Payload interface{}
}

// JobStatusPayload is the payload for status_changed events
type JobStatusPayload struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// JobProgressPayload is the payload for progress events
type JobProgressPayload struct {
	JobID    string                 `json:"job_id"`
	Progress int                    `json:"progress"`
	Phase    string                 `json:"phase"`
	Detail   map[string]interface{} `json:"detail,omitempty"`
}

// JobCompletedPayload is the payload for completed events
type JobCompletedPayload struct {
	JobID  string          `json:"job_id"`
	Result json.RawMessage `json:"result"`
}

// JobFailedPayload is the payload for failed events
type JobFailedPayload struct {
	JobID string `json:"job_id"`
	Error string `json:"error"`
}

// EventHandler processes a published event
type EventHandler func(ctx context.Context, event Event) error

// EventService provides in-process pub/sub for job lifecycle events.
// Delivery is fire-and-forget and at-most-once per publish: there is no queue
// or replay buffer, which is why consumers keep a polling fallback.
type EventService interface {
	Subscribe(eventType EventType, handler EventHandler) error
	Publish(ctx context.Context, event Event) error
	PublishSync(ctx context.Context, event Event) error
	Close() error
}
