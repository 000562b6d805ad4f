package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/learnbill-backend/internal/renewals"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
)

type renewalRunner interface {
	RunDueRenewals(ctx context.Context, agencyID *uuid.UUID, actorID *uuid.UUID, limit int) (renewals.RunResult, error)
}

type RenewalsJobParams struct {
	Logger *logger.Logger
	Runner renewalRunner
	Limit  int
}

// NewRenewalsJob renews every due subscription across all agencies.
func NewRenewalsJob(params RenewalsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Runner == nil {
		return nil, fmt.Errorf("renewal runner required")
	}
	return &renewalsJob{logg: params.Logger, runner: params.Runner, limit: params.Limit}, nil
}

type renewalsJob struct {
	logg   *logger.Logger
	runner renewalRunner
	limit  int
}

func (j *renewalsJob) Name() string { return "subscription-renewals" }

func (j *renewalsJob) Run(ctx context.Context) error {
	result, err := j.runner.RunDueRenewals(ctx, nil, nil, j.limit)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":           result.Scanned,
		"renewed":           result.Renewed,
		"skipped":           result.Skipped,
		"failed":            result.Failed,
		"disabled_agencies": result.DisabledAgencies,
	})
	if err != nil {
		return fmt.Errorf("run renewals: %w", err)
	}
	j.logg.Info(logCtx, "renewal pass complete")
	return nil
}
