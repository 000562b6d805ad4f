package policy

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/learnbill-backend/pkg/db/types"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
)

// Repository reads billing policies and the units already billed against them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateProfile(ctx context.Context, profile *models.BillingPolicyProfile) error
	CreateRule(ctx context.Context, rule *models.BillingPolicyRule) error
	CreateDailyCap(ctx context.Context, dailyCap *models.BillingPolicyDailyCap) error
	FindRule(ctx context.Context, agencyID uuid.UUID, serviceCode, credentialTier string) (*models.BillingPolicyRule, error)
	FindDailyCap(ctx context.Context, agencyID uuid.UUID, serviceCode, credentialTier string) (*models.BillingPolicyDailyCap, error)
	SumUnitsForDay(ctx context.Context, agencyID, clientID uuid.UUID, serviceCode string, day dbtypes.Date) (int, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateProfile(ctx context.Context, profile *models.BillingPolicyProfile) error {
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(profile).Error
}

func (r *repository) CreateRule(ctx context.Context, rule *models.BillingPolicyRule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *repository) CreateDailyCap(ctx context.Context, dailyCap *models.BillingPolicyDailyCap) error {
	if dailyCap.ID == uuid.Nil {
		dailyCap.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(dailyCap).Error
}

// FindRule prefers a tier-specific rule over the tier-agnostic fallback.
func (r *repository) FindRule(ctx context.Context, agencyID uuid.UUID, serviceCode, credentialTier string) (*models.BillingPolicyRule, error) {
	var rule models.BillingPolicyRule
	err := r.db.WithContext(ctx).
		Table("billing_policy_rules AS r").
		Select("r.*").
		Joins("JOIN billing_policy_profiles p ON p.id = r.profile_id").
		Where("p.agency_id = ? AND p.active = ?", agencyID, true).
		Where("r.service_code = ? AND r.credential_tier IN ?", serviceCode, []string{credentialTier, ""}).
		Order("CASE WHEN r.credential_tier = '' THEN 1 ELSE 0 END").
		Order("r.created_at ASC").
		Take(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

func (r *repository) FindDailyCap(ctx context.Context, agencyID uuid.UUID, serviceCode, credentialTier string) (*models.BillingPolicyDailyCap, error) {
	var dailyCap models.BillingPolicyDailyCap
	err := r.db.WithContext(ctx).
		Table("billing_policy_daily_caps AS c").
		Select("c.*").
		Joins("JOIN billing_policy_profiles p ON p.id = c.profile_id").
		Where("p.agency_id = ? AND p.active = ?", agencyID, true).
		Where("c.service_code = ? AND c.credential_tier IN ?", serviceCode, []string{credentialTier, ""}).
		Order("CASE WHEN c.credential_tier = '' THEN 1 ELSE 0 END").
		Order("c.max_units_per_day ASC").
		Take(&dailyCap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dailyCap, nil
}

// SumUnitsForDay totals units of every non-failed charge for the client,
// service code and service date.
func (r *repository) SumUnitsForDay(ctx context.Context, agencyID, clientID uuid.UUID, serviceCode string, day dbtypes.Date) (int, error) {
	var total int
	err := r.db.WithContext(ctx).
		Model(&models.SessionCharge{}).
		Select("COALESCE(SUM(units), 0)").
		Where("agency_id = ? AND client_id = ? AND service_code = ? AND service_date = ?",
			agencyID, clientID, serviceCode, day).
		Where("charge_status <> ?", enums.ChargeStatusFailed).
		Scan(&total).Error
	return total, err
}
