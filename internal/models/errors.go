package models

import "fmt"

// NotFoundError indicates an unknown job identity. Handlers map it to 404.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("job not found: %s", e.JobID)
}

// InvalidStateError indicates an illegal state transition attempt.
// Handlers map it to 409 Conflict.
type InvalidStateError struct {
	Op   string
	From JobStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s job from %s state", e.Op, e.From)
}
