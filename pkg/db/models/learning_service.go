package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LearningService is a billable offering with a configured price.
type LearningService struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	AgencyID        uuid.UUID       `gorm:"column:agency_id;type:uuid;not null;index"`
	Name            string          `gorm:"column:name;not null"`
	ServiceCode     *string         `gorm:"column:service_code"`
	PriceAmount     decimal.Decimal `gorm:"column:price_amount;type:numeric(12,2);not null"`
	Currency        string          `gorm:"column:currency;not null"`
	DurationMinutes int             `gorm:"column:duration_minutes;not null"`
	Active          bool            `gorm:"column:active;not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (LearningService) TableName() string { return "learning_services" }
