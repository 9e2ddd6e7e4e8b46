package job

import (
	"context"

	"github.com/lwald/semgrade/internal/pkg/timeutil"
	"github.com/lwald/semgrade/internal/repo"
)

// IngestRunCleanupJob drops ingest run audit rows past the retention window.
type IngestRunCleanupJob struct {
	runs          *repo.IngestRunRepo
	retentionDays int
}

func NewIngestRunCleanupJob(runs *repo.IngestRunRepo, retentionDays int) *IngestRunCleanupJob {
	return &IngestRunCleanupJob{runs: runs, retentionDays: retentionDays}
}

func (j *IngestRunCleanupJob) Name() string {
	return "ingest_run_cleanup"
}

func (j *IngestRunCleanupJob) Run(ctx context.Context) error {
	if j.runs == nil {
		return nil
	}
	days := j.retentionDays
	if days <= 0 {
		days = 30
	}
	_, err := j.runs.DeleteBefore(ctx, timeutil.DaysAgoUnix(days))
	return err
}
