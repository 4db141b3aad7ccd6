package jobs

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/models"
)

// progressReporter turns in-worker progress calls into a persisted snapshot
// followed by a broadcast event. Persistence always happens before the event
// is published, so a polling reader can never be ahead of storage. Transient
// persist or publish failures are logged and swallowed: a progress update is
// advisory and must not abort the work.
type progressReporter struct {
	job     *models.Job
	storage interfaces.JobStorage
	events  interfaces.EventService
	logger  arbor.ILogger
}

func (r *progressReporter) Report(ctx context.Context) interfaces.ProgressFunc {
	return func(percent int, phase string, detail map[string]interface{}) {
		// A cancelled job's snapshot is owned by the cancellation path from
		// this point on; persisting here would resurrect the running state.
		if ctx.Err() != nil {
			return
		}

		r.job.ReportProgress(percent, phase)

		if err := r.storage.SaveJob(ctx, r.job); err != nil {
			r.logger.Warn().
				Err(err).
				Str("job_id", r.job.ID).
				Msg("Failed to persist progress update")
		}

		if err := r.events.Publish(ctx, interfaces.Event{
			Type: interfaces.EventJobProgress,
			Payload: interfaces.JobProgressPayload{
				JobID:    r.job.ID,
				Progress: r.job.Progress,
				Phase:    r.job.Phase,
				Detail:   detail,
			},
		}); err != nil {
			r.logger.Warn().
				Err(err).
				Str("job_id", r.job.ID).
				Msg("Failed to publish progress event")
		}
	}
}
