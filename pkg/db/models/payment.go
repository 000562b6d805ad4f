package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/learnbill-backend/pkg/enums"
)

// PaymentMethod is a placeholder tokenized card kept for pay-per-event charges.
type PaymentMethod struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	AgencyID     uuid.UUID               `gorm:"column:agency_id;type:uuid;not null"`
	ClientID     uuid.UUID               `gorm:"column:client_id;type:uuid;not null;index"`
	Type         enums.PaymentMethodType `gorm:"column:type;not null"`
	TokenRef     string                  `gorm:"column:token_ref;not null;uniqueIndex"`
	CardBrand    *string                 `gorm:"column:card_brand"`
	CardLast4    *string                 `gorm:"column:card_last4"`
	CardExpMonth *int                    `gorm:"column:card_exp_month"`
	CardExpYear  *int                    `gorm:"column:card_exp_year"`
	IsDefault    bool                    `gorm:"column:is_default;not null"`
	CreatedAt    time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentMethod) TableName() string { return "learning_payment_methods" }

// Payment records a captured placeholder payment intent against a charge.
type Payment struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	AgencyID        uuid.UUID           `gorm:"column:agency_id;type:uuid;not null"`
	ChargeID        uuid.UUID           `gorm:"column:charge_id;type:uuid;not null;uniqueIndex"`
	PaymentMethodID *uuid.UUID          `gorm:"column:payment_method_id;type:uuid"`
	AmountCents     int64               `gorm:"column:amount_cents;not null"`
	Currency        string              `gorm:"column:currency;not null"`
	Status          enums.PaymentStatus `gorm:"column:status;not null"`
	IntentRef       string              `gorm:"column:intent_ref;not null"`
	CapturedAt      *time.Time          `gorm:"column:captured_at"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (Payment) TableName() string { return "learning_payments" }
