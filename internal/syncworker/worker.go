// Package syncworker delivers queued accounting sync jobs to the accounting
// connector over Pub/Sub. It only moves job rows; charge and payment state is
// never touched here.
package syncworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnbill-backend/pkg/config"
	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
	"github.com/angelmondragon/learnbill-backend/pkg/metrics"
	"github.com/angelmondragon/learnbill-backend/pkg/outbox"
	"github.com/angelmondragon/learnbill-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 25
	defaultPollInterval   = time.Second
	defaultMaxAttempts    = 8
	defaultBaseBackoff    = 30 * time.Second
	defaultLease          = 5 * time.Minute
	defaultPublishTimeout = 15 * time.Second
	defaultConcurrency    = 4
	maxRetryDelay         = time.Hour
	maxIdleBackoff        = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type pinger interface {
	Ping(context.Context) error
}

type jobStore interface {
	ClaimDue(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]models.SyncJob, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID, attempt int, at time.Time) error
	MarkRetry(ctx context.Context, id uuid.UUID, attempt int, runAfter time.Time, cause error) error
	MarkDead(ctx context.Context, id uuid.UUID, attempt int, cause error) error
}

type attemptLog interface {
	AppendEvent(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, rec outbox.AttemptRecord) error
}

type jobResolver interface {
	Resolve(models.SyncJob) (*registry.ResolvedJob, error)
}

// Publisher sends one message to the accounting connector topic.
type Publisher interface {
	Publish(context.Context, *gcppubsub.Message) PublishResult
}

type PublishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config    config.SyncConfig
	Logger    *logger.Logger
	Metrics   *metrics.BillingMetrics
	DB        pinger
	PubSub    pinger
	Jobs      jobStore
	Attempts  attemptLog
	Registry  jobResolver
	Publisher Publisher
	Lease     time.Duration
	Clock     func() time.Time
}

// Service polls due sync jobs and publishes them.
type Service struct {
	logg         *logger.Logger
	metrics      *metrics.BillingMetrics
	db           pinger
	pubsub       pinger
	jobs         jobStore
	attempts     attemptLog
	registry     jobResolver
	publisher    Publisher
	batchSize    int
	maxAttempts  int
	baseBackoff  time.Duration
	pollInterval time.Duration
	lease        time.Duration
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Jobs == nil:
		return nil, errors.New("job store is required")
	case params.Attempts == nil:
		return nil, errors.New("attempt log is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.Publisher == nil:
		return nil, errors.New("publisher is required")
	}

	cfg := params.Config
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	poll := time.Duration(cfg.PollIntervalMS) * time.Millisecond
	if poll <= 0 {
		poll = defaultPollInterval
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	base := cfg.BaseBackoff
	if base <= 0 {
		base = defaultBaseBackoff
	}
	lease := params.Lease
	if lease <= 0 {
		lease = defaultLease
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		logg:         params.Logger,
		metrics:      params.Metrics,
		db:           params.DB,
		pubsub:       params.PubSub,
		jobs:         params.Jobs,
		attempts:     params.Attempts,
		registry:     params.Registry,
		publisher:    params.Publisher,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		baseBackoff:  base,
		pollInterval: poll,
		lease:        lease,
		now:          clock,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.ping(gctx, "database", s.db) })
	g.Go(func() error { return s.ping(gctx, "pubsub", s.pubsub) })
	return g.Wait()
}

func (s *Service) ping(ctx context.Context, name string, dep pinger) error {
	if err := dep.Ping(ctx); err != nil {
		s.logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run polls until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	backoff := s.pollInterval
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "sync worker context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.ProcessBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "sync worker batch error", err)
			backoff = nextBackoff(backoff, s.pollInterval, maxIdleBackoff)
			if err := sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}
		backoff = s.pollInterval

		if processed > 0 {
			continue
		}
		if err := sleep(ctx, withJitter(s.pollInterval)); err != nil {
			return err
		}
	}
}

// ProcessBatch claims one batch of due jobs and attempts each once. It
// returns how many jobs were claimed. Delivery failures are recorded on the
// job; only bookkeeping failures are returned.
func (s *Service) ProcessBatch(ctx context.Context) (int, error) {
	jobs, err := s.jobs.ClaimDue(ctx, s.batchSize, s.now(), s.lease)
	if err != nil {
		return 0, fmt.Errorf("claim sync jobs: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultConcurrency)
	for i := range jobs {
		job := jobs[i]
		g.Go(func() error { return s.deliver(gctx, job) })
	}
	return len(jobs), g.Wait()
}

func (s *Service) deliver(ctx context.Context, job models.SyncJob) error {
	attempt := job.AttemptCount + 1
	fields := map[string]any{
		"sync_job_id":     job.ID.String(),
		"idempotency_key": job.IdempotencyKey,
		"entity_type":     job.EntityType,
		"entity_id":       job.EntityID.String(),
		"operation":       job.Operation,
		"attempt":         attempt,
	}

	resolved, err := s.registry.Resolve(job)
	if err != nil {
		return s.dead(ctx, job, attempt, nil, err, fields)
	}
	fields["event"] = resolved.Envelope.Event
	fields["event_id"] = resolved.Envelope.EventID

	msg := message(job, resolved, attempt)
	request, _ := json.Marshal(msg.Attributes)

	messageID, err := s.publish(ctx, msg)
	if err != nil {
		var nonRetry registry.NonRetryableError
		if errors.As(err, &nonRetry) || attempt >= s.maxAttempts {
			return s.dead(ctx, job, attempt, request, err, fields)
		}
		runAfter := s.now().Add(withJitter(retryDelay(s.baseBackoff, attempt)))
		if markErr := s.jobs.MarkRetry(ctx, job.ID, attempt, runAfter, err); markErr != nil {
			return fmt.Errorf("mark retry %s: %w", job.ID, markErr)
		}
		if logErr := s.attempts.AppendEvent(ctx, nil, job.ID, outbox.AttemptRecord{Status: enums.SyncJobFailed, Request: request, Err: err}); logErr != nil {
			return fmt.Errorf("append attempt %s: %w", job.ID, logErr)
		}
		s.metrics.IncSyncJob("retry")
		fields["run_after"] = runAfter.Format(time.RFC3339)
		fields["error"] = err.Error()
		s.logg.Warn(s.logg.WithFields(ctx, fields), "sync job publish failed")
		return nil
	}

	if err := s.jobs.MarkSucceeded(ctx, job.ID, attempt, s.now()); err != nil {
		return fmt.Errorf("mark succeeded %s: %w", job.ID, err)
	}
	response, _ := json.Marshal(map[string]string{"message_id": messageID})
	if err := s.attempts.AppendEvent(ctx, nil, job.ID, outbox.AttemptRecord{Status: enums.SyncJobSucceeded, Request: request, Response: response}); err != nil {
		return fmt.Errorf("append attempt %s: %w", job.ID, err)
	}
	s.metrics.IncSyncJob("published")
	fields["message_id"] = messageID
	s.logg.Info(s.logg.WithFields(ctx, fields), "sync job published")
	return nil
}

// dead parks the job for operators. It is not retried.
func (s *Service) dead(ctx context.Context, job models.SyncJob, attempt int, request json.RawMessage, cause error, fields map[string]any) error {
	if err := s.jobs.MarkDead(ctx, job.ID, attempt, cause); err != nil {
		return fmt.Errorf("mark dead %s: %w", job.ID, err)
	}
	if err := s.attempts.AppendEvent(ctx, nil, job.ID, outbox.AttemptRecord{Status: enums.SyncJobDead, Request: request, Err: cause}); err != nil {
		return fmt.Errorf("append attempt %s: %w", job.ID, err)
	}
	s.metrics.IncSyncJob("dead")
	fields["error"] = cause.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "sync job will not be retried")
	return nil
}

func (s *Service) publish(ctx context.Context, msg *gcppubsub.Message) (string, error) {
	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := s.publisher.Publish(publishCtx, msg)
	if result == nil {
		return "", errors.New("publisher returned no result")
	}
	return result.Get(publishCtx)
}

// message carries the stored envelope unchanged; attributes let the
// connector route and deduplicate without decoding the body.
func message(job models.SyncJob, resolved *registry.ResolvedJob, attempt int) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: job.Payload,
		Attributes: map[string]string{
			"sync_job_id":     job.ID.String(),
			"idempotency_key": job.IdempotencyKey,
			"agency_id":       job.AgencyID.String(),
			"entity_type":     string(job.EntityType),
			"entity_id":       job.EntityID.String(),
			"operation":       string(job.Operation),
			"event":           string(resolved.Envelope.Event),
			"event_id":        resolved.Envelope.EventID,
			"attempt":         strconv.Itoa(attempt),
		},
	}
}

// retryDelay doubles base per attempt, capped at maxRetryDelay.
func retryDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(rand.Int63n(int64(jitterWindow)))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
