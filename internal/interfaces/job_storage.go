package interfaces

import (
	"context"

	"github.com/ternarybob/indago/internal/models"
)

// JobStorage defines the persistence contract for job envelopes.
// Implementations must be safe for concurrent use: each job's writes are
// single-writer by identity, so per-record atomic upsert is sufficient.
type JobStorage interface {
	// SaveJob persists a job snapshot (insert or update)
	SaveJob(ctx context.Context, job *models.Job) error

	// GetJob returns the job with the given ID, or *models.NotFoundError
	GetJob(ctx context.Context, jobID string) (*models.Job, error)

	// ListRecent returns up to limit jobs, newest first by creation time
	ListRecent(ctx context.Context, limit int) ([]*models.Job, error)

	// ListByStatus returns all jobs in the given status
	ListByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error)

	// CleanupOlderThan deletes all but the keepCount most recently created
	// jobs and returns the number deleted
	CleanupOlderThan(ctx context.Context, keepCount int) (int, error)

	// MarkInterruptedJobsFailed transitions every job left in running state to
	// failed with the given reason. Called once at startup: running state can
	// only be trusted while the owning process is alive.
	MarkInterruptedJobsFailed(ctx context.Context, reason string) (int, error)

	// CountJobs returns the total number of stored jobs
	CountJobs(ctx context.Context) (int, error)
}

// StorageManager provides access to the storage backends
type StorageManager interface {
	JobStorage() JobStorage
	Close() error
}
