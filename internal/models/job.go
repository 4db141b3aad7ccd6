// -----------------------------------------------------------------------
// Job - Persisted envelope for one background execution
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job represents one background execution: identity, status, progress and
// outcome. The work payload itself is opaque - only the envelope is stored.
//
// Ownership: after StartJob the single worker goroutine executing the job's
// work function is the only writer of Progress/Phase/terminal fields. Other
// goroutines read persisted snapshots; CancelJob mutates a loaded snapshot
// under the service, never the worker's instance.
type Job struct {
	ID       string    `json:"id" badgerhold:"key"`
	Kind     string    `json:"kind"` // Work-function family, e.g. "screening", "research"
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"` // 0-100, monotonic non-decreasing while running
	Phase    string    `json:"phase"`    // Short label of the current stage

	Result json.RawMessage `json:"result,omitempty"` // Set exactly once, on completion
	Error  string          `json:"error,omitempty"`  // Set exactly once, on failure

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewJob creates a new pending job for the given work-function kind
func NewJob(kind string) *Job {
	return &Job{
		ID:        "job_" + uuid.New().String(),
		Kind:      kind,
		Status:    JobStatusPending,
		Progress:  0,
		CreatedAt: time.Now().UTC(),
	}
}

// Start transitions the job from pending to running
func (j *Job) Start() error {
	if j.Status != JobStatusPending {
		return &InvalidStateError{Op: "start", From: j.Status}
	}
	j.Status = JobStatusRunning
	now := time.Now().UTC()
	j.StartedAt = &now
	return nil
}

// ReportProgress records a progress update. It is a no-op unless the job is
// running, which tolerates races with cancellation and completion. Percent is
// clamped to [0,100] and never allowed to decrease, so observers always see a
// monotonic value.
func (j *Job) ReportProgress(percent int, phase string) {
	if j.Status != JobStatusRunning {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if percent > j.Progress {
		j.Progress = percent
	}
	j.Phase = phase
}

// Complete transitions the job from running to completed with its result
func (j *Job) Complete(result json.RawMessage) error {
	if j.Status != JobStatusRunning {
		return &InvalidStateError{Op: "complete", From: j.Status}
	}
	j.Status = JobStatusCompleted
	j.Progress = 100
	j.Result = result
	now := time.Now().UTC()
	j.CompletedAt = &now
	return nil
}

// Fail transitions the job to failed. Allowed from running and from pending,
// which covers submission failures before the work ever started.
func (j *Job) Fail(errMsg string) error {
	if j.Status != JobStatusRunning && j.Status != JobStatusPending {
		return &InvalidStateError{Op: "fail", From: j.Status}
	}
	j.Status = JobStatusFailed
	j.Error = errMsg
	now := time.Now().UTC()
	j.CompletedAt = &now
	return nil
}

// Cancel transitions a pending or running job to cancelled. Cancellation is
// cooperative: the running work function observes it through its context and
// is expected to return early at its own safe points.
func (j *Job) Cancel() error {
	if j.Status != JobStatusPending && j.Status != JobStatusRunning {
		return &InvalidStateError{Op: "cancel", From: j.Status}
	}
	j.Status = JobStatusCancelled
	now := time.Now().UTC()
	j.CompletedAt = &now
	return nil
}

// IsTerminal returns true if the job is in a terminal state
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted ||
		j.Status == JobStatusFailed ||
		j.Status == JobStatusCancelled
}

// Clone returns a copy of the job safe to hand to another goroutine
func (j *Job) Clone() *Job {
	clone := *j
	if j.Result != nil {
		clone.Result = append(json.RawMessage(nil), j.Result...)
	}
	return &clone
}
