package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/learnbill-backend/pkg/enums"
)

// ProgramSession is one scheduled, billable occurrence of a learning service.
type ProgramSession struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	AgencyID           uuid.UUID           `gorm:"column:agency_id;type:uuid;not null;index"`
	OrganizationID     *uuid.UUID          `gorm:"column:organization_id;type:uuid"`
	OfficeEventID      *uuid.UUID          `gorm:"column:office_event_id;type:uuid;uniqueIndex"`
	ClientID           uuid.UUID           `gorm:"column:client_id;type:uuid;not null"`
	GuardianUserID     *uuid.UUID          `gorm:"column:guardian_user_id;type:uuid"`
	AssignedProviderID *uuid.UUID          `gorm:"column:assigned_provider_id;type:uuid"`
	LearningServiceID  *uuid.UUID          `gorm:"column:learning_service_id;type:uuid"`
	ServiceCode        *string             `gorm:"column:service_code"`
	CredentialTier     string              `gorm:"column:credential_tier;not null"`
	PaymentMode        enums.PaymentMode   `gorm:"column:payment_mode;not null"`
	Status             enums.SessionStatus `gorm:"column:status;not null"`
	ScheduledStartAt   string              `gorm:"column:scheduled_start_at;not null"`
	ScheduledEndAt     string              `gorm:"column:scheduled_end_at;not null"`
	SourceTimezone     string              `gorm:"column:source_timezone;not null"`
	StartAtUTC         time.Time           `gorm:"column:start_at_utc;not null"`
	EndAtUTC           time.Time           `gorm:"column:end_at_utc;not null"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (ProgramSession) TableName() string { return "learning_program_sessions" }

// DurationMinutes returns the billed length of the session.
func (s ProgramSession) DurationMinutes() int {
	return int(s.EndAtUTC.Sub(s.StartAtUTC) / time.Minute)
}
