package river

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
)

// StageEventWorker processes stage configuration event jobs from the River
// queue. For now it logs the event; future versions will dispatch to
// webhooks or audit sinks.
type StageEventWorker struct {
	river.WorkerDefaults[StageEventJobArgs]
}

// Work processes a single stage event job.
func (w *StageEventWorker) Work(ctx context.Context, job *river.Job[StageEventJobArgs]) error {
	slog.InfoContext(ctx, "processing stage event",
		"event", job.Args.Event,
		"tenant_id", job.Args.TenantID,
		"stage_id", job.Args.StageID,
		"category", job.Args.Category,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return nil
}
