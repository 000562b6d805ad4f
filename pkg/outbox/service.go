package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
)

const envelopeVersion = 1

// JobRequest describes one accounting propagation to queue.
type JobRequest struct {
	AgencyID   uuid.UUID
	EntityType enums.SyncEntityType
	EntityID   uuid.UUID
	Operation  enums.SyncOperation
	Event      enums.SyncEvent
	Actor      *ActorRef
	Data       any
	RunAfter   time.Time
	// IdempotencyKey overrides the key derived from agency, entity, and event.
	IdempotencyKey string
}

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Key derives the idempotency key for one state transition of one entity.
func Key(agencyID uuid.UUID, entityType enums.SyncEntityType, entityID uuid.UUID, event enums.SyncEvent) string {
	return fmt.Sprintf("%s:%s:%s:%s", agencyID, entityType, entityID, event)
}

// Enqueue stores the job inside tx and returns the id of the job owning the
// idempotency key. A repeated enqueue returns the original job id.
func (s *Service) Enqueue(ctx context.Context, tx *gorm.DB, req JobRequest) (uuid.UUID, error) {
	if tx == nil {
		return uuid.Nil, errors.New("transaction required")
	}
	if req.AgencyID == uuid.Nil || req.EntityID == uuid.Nil {
		return uuid.Nil, errors.New("agency id and entity id are required")
	}
	if !req.EntityType.IsValid() {
		return uuid.Nil, fmt.Errorf("invalid entity type %q", req.EntityType)
	}
	if !req.Operation.IsValid() {
		return uuid.Nil, fmt.Errorf("invalid operation %q", req.Operation)
	}
	if _, err := enums.ParseSyncEvent(string(req.Event)); err != nil {
		return uuid.Nil, err
	}

	data, err := json.Marshal(req.Data)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode sync payload: %w", err)
	}
	now := time.Now().UTC()
	envelope := PayloadEnvelope{
		Version:    envelopeVersion,
		EventID:    uuid.NewString(),
		Event:      req.Event,
		OccurredAt: now,
		Actor:      req.Actor,
		Data:       data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return uuid.Nil, err
	}

	runAfter := req.RunAfter
	if runAfter.IsZero() {
		runAfter = now
	}
	key := req.IdempotencyKey
	if key == "" {
		key = Key(req.AgencyID, req.EntityType, req.EntityID, req.Event)
	}

	job := models.SyncJob{
		AgencyID:       req.AgencyID,
		EntityType:     req.EntityType,
		EntityID:       req.EntityID,
		Operation:      req.Operation,
		IdempotencyKey: key,
		RunAfter:       runAfter.UTC(),
		Payload:        payload,
		Status:         enums.SyncJobPending,
	}
	id, inserted, err := s.repo.Upsert(tx.WithContext(ctx), &job)
	if err != nil {
		return uuid.Nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"sync_job_id":     id.String(),
			"idempotency_key": key,
			"entity_type":     req.EntityType,
			"entity_id":       req.EntityID.String(),
			"event":           req.Event,
		})
		if inserted {
			s.logg.Info(logCtx, "sync job queued")
		} else {
			s.logg.Debug(logCtx, "sync job already queued")
		}
	}
	return id, nil
}

// LockJob locks the job queued under key inside tx. A nil job means nothing
// has been queued yet.
func (s *Service) LockJob(ctx context.Context, tx *gorm.DB, key string) (*models.SyncJob, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	return s.repo.LockByKey(tx.WithContext(ctx), key)
}

// Dispatched reports whether a job has left the queue's rewritable states.
// Re-enqueueing under the same key no longer changes what the connector sees.
func Dispatched(job *models.SyncJob) bool {
	if job == nil {
		return false
	}
	return job.Status != enums.SyncJobPending && job.Status != enums.SyncJobFailed
}

// AttemptRecord is one entry of a job's append-only attempt log.
type AttemptRecord struct {
	Status   enums.SyncJobStatus
	Request  json.RawMessage
	Response json.RawMessage
	Err      error
}

// AppendEvent records an attempt. tx may be nil outside a transaction.
func (s *Service) AppendEvent(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, rec AttemptRecord) error {
	if jobID == uuid.Nil {
		return errors.New("job id is required")
	}
	if !rec.Status.IsValid() {
		return fmt.Errorf("invalid sync job status %q", rec.Status)
	}
	if tx != nil {
		tx = tx.WithContext(ctx)
	} else {
		tx = s.repo.db.WithContext(ctx)
	}
	return s.repo.AppendEvent(tx, &models.SyncEvent{
		JobID:    jobID,
		Status:   rec.Status,
		Request:  rec.Request,
		Response: rec.Response,
		Error:    errString(rec.Err),
	})
}
