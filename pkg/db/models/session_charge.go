package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/angelmondragon/learnbill-backend/pkg/db/types"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
)

// SessionCharge is the financial record for one program session.
type SessionCharge struct {
	ID                     uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	AgencyID               uuid.UUID          `gorm:"column:agency_id;type:uuid;not null"`
	SessionID              uuid.UUID          `gorm:"column:session_id;type:uuid;not null;index"`
	ClientID               uuid.UUID          `gorm:"column:client_id;type:uuid;not null"`
	AmountCents            int64              `gorm:"column:amount_cents;not null"`
	TaxCents               int64              `gorm:"column:tax_cents;not null"`
	DiscountCents          int64              `gorm:"column:discount_cents;not null"`
	TotalCents             int64              `gorm:"column:total_cents;not null"`
	Currency               string             `gorm:"column:currency;not null"`
	ChargeStatus           enums.ChargeStatus `gorm:"column:charge_status;not null"`
	ChargeType             enums.ChargeType   `gorm:"column:charge_type;not null"`
	PaymentMode            enums.PaymentMode  `gorm:"column:payment_mode;not null"`
	IdempotencyKey         string             `gorm:"column:idempotency_key;not null;uniqueIndex"`
	BillingPolicyProfileID *uuid.UUID         `gorm:"column:billing_policy_profile_id;type:uuid"`
	BillingPolicyRuleID    *uuid.UUID         `gorm:"column:billing_policy_rule_id;type:uuid"`
	ServiceCode            *string            `gorm:"column:service_code"`
	Units                  *int               `gorm:"column:units"`
	ServiceDate            *dbtypes.Date      `gorm:"column:service_date;type:date"`
	Metadata               json.RawMessage    `gorm:"column:metadata;type:jsonb"`
	CapturedAt             *time.Time         `gorm:"column:captured_at"`
	CreatedAt              time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (SessionCharge) TableName() string { return "learning_session_charges" }
