package interfaces

import (
	"context"
	"encoding/json"

	"github.com/ternarybob/indago/internal/models"
)

// ProgressFunc reports incremental progress from inside a work function.
// Percent is on the global 0-100 scale (see jobs.PhaseMap for sub-range
// mapping), phase is a short stage label, detail carries optional structured
// sub-step information forwarded to push-channel subscribers.
type ProgressFunc func(percent int, phase string, detail map[string]interface{})

// WorkFunc is the opaque unit of long-running logic executed by the engine.
// It must honor ctx cancellation at its own safe points: cancellation is
// cooperative, never preemptive. A WorkFunc that ignores ctx runs to
// completion despite CancelJob having been called.
type WorkFunc func(ctx context.Context, report ProgressFunc) (json.RawMessage, error)

// WorkFactory builds a WorkFunc from caller-supplied parameters. Each
// work-function family ("kind") registers one factory.
type WorkFactory func(params json.RawMessage) (WorkFunc, error)

// JobService orchestrates job creation, execution, querying and cancellation
type JobService interface {
	// StartJob creates a pending job, persists it, submits the work function
	// to the executor and returns without waiting for the work to run
	StartJob(ctx context.Context, kind string, fn WorkFunc) (*models.Job, error)

	// GetJob returns the persisted snapshot, or *models.NotFoundError
	GetJob(ctx context.Context, jobID string) (*models.Job, error)

	// ListRecent returns up to limit jobs, newest first
	ListRecent(ctx context.Context, limit int) ([]*models.Job, error)

	// CancelJob flags the job for cooperative cancellation. Returns
	// *models.NotFoundError for unknown IDs and *models.InvalidStateError if
	// the job is already terminal.
	CancelJob(ctx context.Context, jobID string) error
}
