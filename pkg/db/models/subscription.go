package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/learnbill-backend/pkg/enums"
)

// SubscriptionPlan defines the tokens granted each period.
type SubscriptionPlan struct {
	ID                       uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	AgencyID                 uuid.UUID `gorm:"column:agency_id;type:uuid;not null"`
	Name                     string    `gorm:"column:name;not null"`
	IncludedIndividualTokens int64     `gorm:"column:included_individual_tokens;not null"`
	IncludedGroupTokens      int64     `gorm:"column:included_group_tokens;not null"`
	PeriodDays               int       `gorm:"column:period_days;not null"`
	PriceCents               int64     `gorm:"column:price_cents;not null"`
	Currency                 string    `gorm:"column:currency;not null"`
	Active                   bool      `gorm:"column:active;not null"`
	CreatedAt                time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (SubscriptionPlan) TableName() string { return "learning_subscription_plans" }

type Subscription struct {
	ID                 uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	AgencyID           uuid.UUID                `gorm:"column:agency_id;type:uuid;not null"`
	PlanID             uuid.UUID                `gorm:"column:plan_id;type:uuid;not null"`
	ClientID           uuid.UUID                `gorm:"column:client_id;type:uuid;not null"`
	GuardianUserID     *uuid.UUID               `gorm:"column:guardian_user_id;type:uuid"`
	Status             enums.SubscriptionStatus `gorm:"column:status;not null"`
	CurrentPeriodStart time.Time                `gorm:"column:current_period_start;not null"`
	CurrentPeriodEnd   time.Time                `gorm:"column:current_period_end;not null"`
	AutoRenew          bool                     `gorm:"column:auto_renew;not null"`
	CancelledAt        *time.Time               `gorm:"column:cancelled_at"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (Subscription) TableName() string { return "learning_subscriptions" }

// RenewalLock claims one renewal of a subscription for one period boundary.
type RenewalLock struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	SubscriptionID uuid.UUID               `gorm:"column:subscription_id;type:uuid;not null"`
	PeriodEndAt    time.Time               `gorm:"column:period_end_at;not null"`
	LockKey        string                  `gorm:"column:lock_key;not null;uniqueIndex"`
	Status         enums.RenewalLockStatus `gorm:"column:status;not null"`
	RunnerID       string                  `gorm:"column:runner_id;not null"`
	Result         json.RawMessage         `gorm:"column:result;type:jsonb"`
	LastError      *string                 `gorm:"column:last_error"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
	FinishedAt     *time.Time              `gorm:"column:finished_at"`
}

func (RenewalLock) TableName() string { return "learning_subscription_renewal_locks" }
