package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
)

const deadLetterReportLimit = 50

type deadLetterReader interface {
	ListDead(ctx context.Context, limit int) ([]models.SyncJob, error)
}

type SyncDeadLetterJobParams struct {
	Logger *logger.Logger
	Jobs   deadLetterReader
	Limit  int
}

// NewSyncDeadLetterJob logs accounting sync jobs that exhausted their
// attempts so operators can replay them.
func NewSyncDeadLetterJob(params SyncDeadLetterJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Jobs == nil {
		return nil, fmt.Errorf("sync job reader required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = deadLetterReportLimit
	}
	return &syncDeadLetterJob{logg: params.Logger, jobs: params.Jobs, limit: limit}, nil
}

type syncDeadLetterJob struct {
	logg  *logger.Logger
	jobs  deadLetterReader
	limit int
}

func (j *syncDeadLetterJob) Name() string { return "sync-dead-letters" }

func (j *syncDeadLetterJob) Run(ctx context.Context) error {
	dead, err := j.jobs.ListDead(ctx, j.limit)
	if err != nil {
		return fmt.Errorf("list dead sync jobs: %w", err)
	}
	for _, job := range dead {
		fields := map[string]any{
			"sync_job_id": job.ID.String(),
			"agency_id":   job.AgencyID.String(),
			"entity_type": job.EntityType,
			"entity_id":   job.EntityID.String(),
			"operation":   job.Operation,
			"attempts":    job.AttemptCount,
		}
		if job.LastError != nil {
			fields["last_error"] = *job.LastError
		}
		j.logg.Warn(j.logg.WithFields(ctx, fields), "sync job is dead")
	}
	j.logg.Info(j.logg.WithField(ctx, "dead_jobs", len(dead)), "dead letter scan complete")
	return nil
}
