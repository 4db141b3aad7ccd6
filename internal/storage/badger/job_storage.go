package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("job ID is required")
	}

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, &models.NotFoundError{JobID: jobID}
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) ListRecent(ctx context.Context, limit int) ([]*models.Job, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) ListByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(status)); err != nil {
		return nil, fmt.Errorf("failed to list jobs by status: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// CleanupOlderThan deletes all but the keepCount most recently created jobs.
// BadgerHold has no bulk delete-with-sort, so the victims are found first and
// deleted by key.
func (s *JobStorage) CleanupOlderThan(ctx context.Context, keepCount int) (int, error) {
	if keepCount < 0 {
		keepCount = 0
	}

	var victims []models.Job
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse().Skip(keepCount)
	if err := s.db.Store().Find(&victims, query); err != nil {
		return 0, fmt.Errorf("failed to find jobs for cleanup: %w", err)
	}

	deleted := 0
	for i := range victims {
		if err := s.db.Store().Delete(victims[i].ID, &models.Job{}); err != nil {
			if err == badgerhold.ErrNotFound {
				continue
			}
			return deleted, fmt.Errorf("failed to delete job %s: %w", victims[i].ID, err)
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Debug().Int("deleted", deleted).Int("keep", keepCount).Msg("Job retention cleanup completed")
	}
	return deleted, nil
}

// MarkInterruptedJobsFailed transitions jobs left in running state to failed.
// Running state can only be trusted while the owning process is alive.
func (s *JobStorage) MarkInterruptedJobsFailed(ctx context.Context, reason string) (int, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(models.JobStatusRunning)); err != nil {
		return 0, fmt.Errorf("failed to find running jobs: %w", err)
	}

	count := 0
	for i := range jobs {
		job := &jobs[i]
		if err := job.Fail(reason); err != nil {
			continue
		}
		if err := s.SaveJob(ctx, job); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to persist interrupted job")
			continue
		}
		count++
	}
	return count, nil
}

func (s *JobStorage) CountJobs(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Job{}, nil)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
