package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/learnbill-backend/pkg/enums"
)

type BillingPolicyProfile struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	AgencyID  uuid.UUID `gorm:"column:agency_id;type:uuid;not null"`
	Name      string    `gorm:"column:name;not null"`
	Active    bool      `gorm:"column:active;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (BillingPolicyProfile) TableName() string { return "billing_policy_profiles" }

// BillingPolicyRule turns session minutes into billable units for a service
// code. An empty CredentialTier applies to every tier without its own rule.
type BillingPolicyRule struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ProfileID      uuid.UUID          `gorm:"column:profile_id;type:uuid;not null"`
	ServiceCode    string             `gorm:"column:service_code;not null"`
	CredentialTier string             `gorm:"column:credential_tier;not null"`
	MinMinutes     *int               `gorm:"column:min_minutes"`
	MaxMinutes     *int               `gorm:"column:max_minutes"`
	UnitMinutes    int                `gorm:"column:unit_minutes;not null"`
	UnitCalcMode   enums.UnitCalcMode `gorm:"column:unit_calc_mode;not null"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (BillingPolicyRule) TableName() string { return "billing_policy_rules" }

type BillingPolicyDailyCap struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProfileID      uuid.UUID `gorm:"column:profile_id;type:uuid;not null"`
	ServiceCode    string    `gorm:"column:service_code;not null"`
	CredentialTier string    `gorm:"column:credential_tier;not null"`
	MaxUnitsPerDay int       `gorm:"column:max_units_per_day;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (BillingPolicyDailyCap) TableName() string { return "billing_policy_daily_caps" }
