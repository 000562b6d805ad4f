package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/learnbill-backend/pkg/enums"
)

// TokenLedgerEntry is an immutable token credit or debit.
type TokenLedgerEntry struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	AgencyID       uuid.UUID             `gorm:"column:agency_id;type:uuid;not null"`
	ClientID       uuid.UUID             `gorm:"column:client_id;type:uuid;not null"`
	TokenType      enums.TokenType       `gorm:"column:token_type;not null"`
	Direction      enums.LedgerDirection `gorm:"column:direction;not null"`
	Quantity       int64                 `gorm:"column:quantity;not null"`
	ReasonCode     enums.LedgerReason    `gorm:"column:reason_code;not null"`
	SubscriptionID *uuid.UUID            `gorm:"column:subscription_id;type:uuid"`
	SessionID      *uuid.UUID            `gorm:"column:session_id;type:uuid"`
	ActorUserID    *uuid.UUID            `gorm:"column:actor_user_id;type:uuid"`
	EffectiveAt    time.Time             `gorm:"column:effective_at;not null"`
	ExpiresAt      *time.Time            `gorm:"column:expires_at"`
	Metadata       json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (TokenLedgerEntry) TableName() string { return "learning_token_ledger" }

// TokenAccount holds no balance. Its row is locked to serialize
// balance-dependent writes for one client.
type TokenAccount struct {
	AgencyID  uuid.UUID `gorm:"column:agency_id;type:uuid;primaryKey"`
	ClientID  uuid.UUID `gorm:"column:client_id;type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (TokenAccount) TableName() string { return "learning_token_accounts" }
