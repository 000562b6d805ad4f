package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/learnbill-backend/pkg/logger"
	"github.com/angelmondragon/learnbill-backend/pkg/metrics"
)

const defaultInterval = 15 * time.Minute

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// CycleTimeout bounds one cycle. It defaults to the lock TTL so a cycle
	// never keeps running after its lease could have passed to another worker.
	CycleTimeout time.Duration
}

// Service runs the billing jobs (renewals, pending-charge backlog, sync dead
// letters) on a fixed cadence under a cross-worker lock.
type Service struct {
	logg         *logger.Logger
	registry     *Registry
	lock         Lock
	metrics      *metrics.CronJobMetrics
	interval     time.Duration
	cycleTimeout time.Duration
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Lock == nil:
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = &Registry{}
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	cycleTimeout := params.CycleTimeout
	if cycleTimeout <= 0 {
		cycleTimeout = defaultLockTTL
	}
	return &Service{
		logg:         params.Logger,
		registry:     registry,
		lock:         params.Lock,
		metrics:      params.Metrics,
		interval:     interval,
		cycleTimeout: cycleTimeout,
	}, nil
}

// Run executes a cycle immediately and then every interval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs":        s.registry.Names(),
		"interval_ms": s.interval.Milliseconds(),
	}), "learnbill cron worker scheduled")

	if err := s.runCycle(ctx); err != nil {
		s.logg.Error(ctx, "learnbill cron cycle failed", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "learnbill cron worker context canceled")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				s.logg.Error(ctx, "learnbill cron cycle failed", err)
			}
		}
	}
}

// runCycle runs every job once. A failing job does not stop the rest; only
// the cycle deadline does, and that is reported as the cycle's error.
func (s *Service) runCycle(ctx context.Context) error {
	ctx = s.logg.WithField(ctx, "cycle_id", uuid.NewString())

	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		skipCtx := ctx
		if hl, ok := s.lock.(holderLock); ok {
			if holder, herr := hl.Holder(ctx); herr == nil && holder != "" {
				skipCtx = s.logg.WithField(ctx, "lock_holder", holder)
			}
		}
		s.logg.Info(skipCtx, "cron lock held by another worker; skipping learnbill cycle")
		return nil
	}
	defer func() {
		// the cycle context may be past its deadline; release on the parent
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	cycleCtx, cancel := context.WithTimeout(ctx, s.cycleTimeout)
	defer cancel()

	s.logg.Info(cycleCtx, "learnbill cron cycle starting")
	jobs := s.registry.Jobs()
	failed := 0
	for i, job := range jobs {
		if cycleCtx.Err() != nil {
			skipped := make([]string, 0, len(jobs)-i)
			for _, j := range jobs[i:] {
				skipped = append(skipped, j.Name())
				s.recordSkipped(j.Name())
			}
			return fmt.Errorf("cycle stopped before %v: %w", skipped, cycleCtx.Err())
		}
		if !s.runJob(cycleCtx, job) {
			failed++
		}
	}
	s.logg.Info(s.logg.WithFields(cycleCtx, map[string]any{
		"jobs_run":    len(jobs),
		"jobs_failed": failed,
	}), "learnbill cron cycle complete")
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) bool {
	jobCtx := s.logg.WithFields(ctx, map[string]any{
		"job":   job.Name(),
		"event": "cron.job",
	})
	s.logg.Info(jobCtx, "job start")
	start := time.Now()
	err := job.Run(jobCtx)
	duration := time.Since(start)
	s.observeDuration(job.Name(), duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		s.recordFailure(job.Name())
		return false
	}
	s.logg.Info(jobCtx, "job completed")
	s.recordSuccess(job.Name())
	return true
}

func (s *Service) observeDuration(job string, duration time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveDuration(job, duration)
}

func (s *Service) recordSuccess(job string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncSuccess(job)
}

func (s *Service) recordFailure(job string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncFailure(job)
}

func (s *Service) recordSkipped(job string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncSkipped(job)
}
