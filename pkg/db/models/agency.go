package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Agency is the read-side view of the organization store used by the feature gate.
type Agency struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name             string          `gorm:"column:name;not null"`
	OrganizationType string          `gorm:"column:organization_type;not null"`
	FeatureFlags     json.RawMessage `gorm:"column:feature_flags;type:jsonb"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Agency) TableName() string { return "agencies" }
