// -----------------------------------------------------------------------
// Service - Orchestrates job lifecycle: create, execute, query, cancel
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/models"
)

// Service implements JobService on top of the executor pool, the job store
// and the event service. Every state transition is persisted before the
// corresponding event is broadcast.
type Service struct {
	storage    interfaces.JobStorage
	events     interfaces.EventService
	executor   *Executor
	logger     arbor.ILogger
	retainJobs int
}

// NewService creates a job service. retainJobs bounds the number of job
// records kept by retention cleanup.
func NewService(storage interfaces.JobStorage, events interfaces.EventService, executor *Executor, logger arbor.ILogger, retainJobs int) *Service {
	return &Service{
		storage:    storage,
		events:     events,
		executor:   executor,
		logger:     logger,
		retainJobs: retainJobs,
	}
}

// StartJob creates a pending job, persists it and hands the work function to
// the executor. It returns as soon as the task is queued; the returned
// snapshot is pending (or failed, when the executor rejected the submission).
func (s *Service) StartJob(ctx context.Context, kind string, fn interfaces.WorkFunc) (*models.Job, error) {
	if fn == nil {
		return nil, fmt.Errorf("work function is required")
	}

	job := models.NewJob(kind)
	if err := s.storage.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist new job: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("kind", kind).
		Msg("Job created")

	if err := s.executor.Submit(job.ID, s.runTask(job, fn)); err != nil {
		s.failJob(ctx, job, fmt.Sprintf("submission rejected: %v", err))
		return job.Clone(), nil
	}

	// New work is the natural moment to shed old records
	go s.cleanupAsync()

	return job.Clone(), nil
}

// GetJob returns the persisted snapshot for the given job ID
func (s *Service) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	return s.storage.GetJob(ctx, jobID)
}

// ListRecent returns up to limit jobs, newest first
func (s *Service) ListRecent(ctx context.Context, limit int) ([]*models.Job, error) {
	return s.storage.ListRecent(ctx, limit)
}

// CancelJob flags a pending or running job for cooperative cancellation. The
// cancelled status is persisted immediately; the work function observes the
// cancelled context at its own safe points and winds down on its own time.
func (s *Service) CancelJob(ctx context.Context, jobID string) error {
	job, err := s.storage.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if err := job.Cancel(); err != nil {
		return err
	}

	if err := s.storage.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to persist cancellation: %w", err)
	}

	s.executor.Cancel(jobID)

	s.logger.Info().Str("job_id", jobID).Msg("Job cancelled")

	s.publishStatus(ctx, job)
	return nil
}

// RecoverInterrupted marks jobs left running by a previous process as failed.
// Called once during startup, before the executor accepts new work.
func (s *Service) RecoverInterrupted(ctx context.Context) (int, error) {
	count, err := s.storage.MarkInterruptedJobsFailed(ctx, "process restarted")
	if err != nil {
		return 0, fmt.Errorf("failed to recover interrupted jobs: %w", err)
	}
	if count > 0 {
		s.logger.Warn().Int("count", count).Msg("Marked interrupted jobs as failed")
	}
	return count, nil
}

// Cleanup enforces the retention limit, deleting the oldest job records
func (s *Service) Cleanup(ctx context.Context) (int, error) {
	return s.storage.CleanupOlderThan(ctx, s.retainJobs)
}

// runTask wraps a work function with the lifecycle bookkeeping: start
// transition, progress reporting, terminal transition, panic containment.
func (s *Service) runTask(job *models.Job, fn interfaces.WorkFunc) Task {
	return func(taskCtx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().
					Str("job_id", job.ID).
					Msgf("Work function panicked: %v", r)
				s.failJob(context.Background(), job, fmt.Sprintf("internal error: %v", r))
			}
		}()

		ctx := context.Background()

		if err := job.Start(); err != nil {
			// Cancelled while queued, or otherwise no longer startable
			s.logger.Debug().
				Str("job_id", job.ID).
				Str("status", string(job.Status)).
				Msg("Skipping job that is no longer pending")
			return
		}
		if err := s.storage.SaveJob(ctx, job); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to persist running state")
		}
		s.publishStatus(ctx, job)

		reporter := &progressReporter{job: job, storage: s.storage, events: s.events, logger: s.logger}
		result, err := fn(taskCtx, reporter.Report(taskCtx))

		// The cancellation path owns the persisted record once the context is
		// cancelled. Persist the cancelled snapshot again here so a progress
		// write that raced the cancellation cannot leave the job running.
		if taskCtx.Err() != nil {
			if cerr := job.Cancel(); cerr == nil {
				if serr := s.storage.SaveJob(ctx, job); serr != nil {
					s.logger.Warn().Err(serr).Str("job_id", job.ID).Msg("Failed to persist cancelled state")
				}
			}
			s.logger.Info().Str("job_id", job.ID).Msg("Work function stopped after cancellation")
			return
		}

		if err != nil {
			s.failJob(ctx, job, err.Error())
			return
		}

		if cerr := job.Complete(result); cerr != nil {
			s.logger.Warn().
				Err(cerr).
				Str("job_id", job.ID).
				Msg("Work function finished but job was no longer running")
			return
		}
		if serr := s.storage.SaveJob(ctx, job); serr != nil {
			s.logger.Error().Err(serr).Str("job_id", job.ID).Msg("Failed to persist completed state")
		}

		s.logger.Info().Str("job_id", job.ID).Msg("Job completed")

		if perr := s.events.Publish(ctx, interfaces.Event{
			Type: interfaces.EventJobCompleted,
			Payload: interfaces.JobCompletedPayload{
				JobID:  job.ID,
				Result: job.Result,
			},
		}); perr != nil {
			s.logger.Warn().Err(perr).Str("job_id", job.ID).Msg("Failed to publish completed event")
		}
	}
}

// failJob transitions a job to failed, persists it and broadcasts the
// failure. Used for work errors, panics and executor rejections alike.
func (s *Service) failJob(ctx context.Context, job *models.Job, errMsg string) {
	if err := job.Fail(errMsg); err != nil {
		s.logger.Debug().
			Str("job_id", job.ID).
			Str("status", string(job.Status)).
			Msg("Job already terminal, not overwriting with failure")
		return
	}

	if err := s.storage.SaveJob(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to persist failed state")
	}

	s.logger.Warn().
		Str("job_id", job.ID).
		Str("error", errMsg).
		Msg("Job failed")

	if err := s.events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventJobFailed,
		Payload: interfaces.JobFailedPayload{
			JobID: job.ID,
			Error: errMsg,
		},
	}); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to publish failed event")
	}
}

func (s *Service) publishStatus(ctx context.Context, job *models.Job) {
	if err := s.events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventJobStatusChanged,
		Payload: interfaces.JobStatusPayload{
			JobID:  job.ID,
			Status: string(job.Status),
		},
	}); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to publish status event")
	}
}

func (s *Service) cleanupAsync() {
	if _, err := s.Cleanup(context.Background()); err != nil {
		s.logger.Warn().Err(err).Msg("Retention cleanup failed")
	}
}
