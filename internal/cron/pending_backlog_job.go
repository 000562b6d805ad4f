package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
	"github.com/angelmondragon/learnbill-backend/pkg/metrics"
)

const (
	defaultBacklogAge  = 72 * time.Hour
	backlogSampleLimit = 20
)

type pendingChargeReader interface {
	CountPendingBacklog(ctx context.Context, olderThan time.Duration) (int64, error)
	ListPendingBacklog(ctx context.Context, agencyID *uuid.UUID, olderThan time.Duration, limit int) ([]models.SessionCharge, error)
}

type PendingBacklogJobParams struct {
	Logger  *logger.Logger
	Charges pendingChargeReader
	Metrics *metrics.BillingMetrics
	Age     time.Duration
}

// NewPendingBacklogJob reports PENDING charges nobody has resolved. Charges
// are left untouched; resolution belongs to the agency.
func NewPendingBacklogJob(params PendingBacklogJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Charges == nil {
		return nil, fmt.Errorf("charge reader required")
	}
	age := params.Age
	if age <= 0 {
		age = defaultBacklogAge
	}
	return &pendingBacklogJob{
		logg:    params.Logger,
		charges: params.Charges,
		metrics: params.Metrics,
		age:     age,
	}, nil
}

type pendingBacklogJob struct {
	logg    *logger.Logger
	charges pendingChargeReader
	metrics *metrics.BillingMetrics
	age     time.Duration
}

func (j *pendingBacklogJob) Name() string { return "pending-charge-backlog" }

func (j *pendingBacklogJob) Run(ctx context.Context) error {
	count, err := j.charges.CountPendingBacklog(ctx, j.age)
	if err != nil {
		return fmt.Errorf("count pending backlog: %w", err)
	}
	j.metrics.SetPendingBacklog(int(count))

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"older_than": j.age.String(),
		"backlog":    count,
	})
	if count == 0 {
		j.logg.Info(logCtx, "no stale pending charges")
		return nil
	}

	sample, err := j.charges.ListPendingBacklog(ctx, nil, j.age, backlogSampleLimit)
	if err != nil {
		return fmt.Errorf("list pending backlog: %w", err)
	}
	for _, charge := range sample {
		j.logg.Warn(j.logg.WithFields(logCtx, map[string]any{
			"agency_id":  charge.AgencyID.String(),
			"charge_id":  charge.ID.String(),
			"session_id": charge.SessionID.String(),
			"created_at": charge.CreatedAt,
		}), "charge still pending")
	}
	j.logg.Warn(logCtx, "stale pending charges need resolution")
	return nil
}
