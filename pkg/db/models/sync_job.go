package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/learnbill-backend/pkg/enums"
)

// SyncJob is a durable unit of accounting propagation work.
type SyncJob struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	AgencyID       uuid.UUID            `gorm:"column:agency_id;type:uuid;not null"`
	EntityType     enums.SyncEntityType `gorm:"column:entity_type;not null"`
	EntityID       uuid.UUID            `gorm:"column:entity_id;type:uuid;not null"`
	Operation      enums.SyncOperation  `gorm:"column:operation;not null"`
	IdempotencyKey string               `gorm:"column:idempotency_key;not null;uniqueIndex"`
	RunAfter       time.Time            `gorm:"column:run_after;not null"`
	Payload        json.RawMessage      `gorm:"column:payload;type:jsonb;not null"`
	Status         enums.SyncJobStatus  `gorm:"column:status;not null"`
	AttemptCount   int                  `gorm:"column:attempt_count;not null"`
	LastError      *string              `gorm:"column:last_error"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (SyncJob) TableName() string { return "learning_sync_jobs" }

// SyncEvent is one append-only attempt record for a job.
type SyncEvent struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	JobID     uuid.UUID           `gorm:"column:job_id;type:uuid;not null;index"`
	Status    enums.SyncJobStatus `gorm:"column:status;not null"`
	Request   json.RawMessage     `gorm:"column:request;type:jsonb"`
	Response  json.RawMessage     `gorm:"column:response;type:jsonb"`
	Error     *string             `gorm:"column:error"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (SyncEvent) TableName() string { return "learning_sync_events" }
