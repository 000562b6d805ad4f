package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreatePlan(ctx context.Context, plan *models.SubscriptionPlan) error
	FindPlan(ctx context.Context, agencyID, planID uuid.UUID) (*models.SubscriptionPlan, error)
	Create(ctx context.Context, sub *models.Subscription) error
	FindByID(ctx context.Context, agencyID, id uuid.UUID) (*models.Subscription, error)
	FindActiveForClientAt(ctx context.Context, agencyID, clientID uuid.UUID, at time.Time) (*models.Subscription, error)
	ListDueForRenewal(ctx context.Context, agencyID *uuid.UUID, now time.Time, limit int) ([]models.Subscription, error)
	ListDueAgencies(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.SubscriptionStatus, updates map[string]any) (bool, error)
	AdvancePeriod(ctx context.Context, id uuid.UUID, expectedEnd, start, end, at time.Time) (bool, error)
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

func (r *repository) CreatePlan(ctx context.Context, plan *models.SubscriptionPlan) error {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(plan).Error
}

func (r *repository) FindPlan(ctx context.Context, agencyID, planID uuid.UUID) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	err := r.db.WithContext(ctx).Where("id = ? AND agency_id = ?", planID, agencyID).Take(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) Create(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *repository) FindByID(ctx context.Context, agencyID, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where("id = ? AND agency_id = ?", id, agencyID).Take(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// FindActiveForClientAt returns the ACTIVE subscription whose current period
// contains at. The most recently started one wins if several overlap.
func (r *repository) FindActiveForClientAt(ctx context.Context, agencyID, clientID uuid.UUID, at time.Time) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("agency_id = ? AND client_id = ? AND status = ?", agencyID, clientID, enums.SubscriptionStatusActive).
		Where("current_period_start <= ? AND current_period_end > ?", at.UTC(), at.UTC()).
		Order("current_period_start DESC").
		Take(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// due selects ACTIVE auto-renewing subscriptions whose period has ended and
// whose current period end has not been claimed by a renewal yet. A claimed
// boundary stays out of later passes whatever the lock's outcome.
func (r *repository) due(ctx context.Context, now time.Time) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("learning_subscriptions.status = ? AND learning_subscriptions.auto_renew = ? AND learning_subscriptions.current_period_end <= ?",
			enums.SubscriptionStatusActive, true, now.UTC()).
		Where(`NOT EXISTS (
			SELECT 1 FROM learning_subscription_renewal_locks l
			WHERE l.subscription_id = learning_subscriptions.id
			AND l.period_end_at = learning_subscriptions.current_period_end)`)
}

func (r *repository) ListDueForRenewal(ctx context.Context, agencyID *uuid.UUID, now time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	query := r.due(ctx, now).Order("learning_subscriptions.current_period_end ASC")
	if agencyID != nil {
		query = query.Where("learning_subscriptions.agency_id = ?", *agencyID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// ListDueAgencies returns the agencies holding at least one due subscription.
func (r *repository) ListDueAgencies(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.due(ctx, now).
		Distinct("learning_subscriptions.agency_id").
		Order("learning_subscriptions.agency_id ASC").
		Pluck("learning_subscriptions.agency_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.SubscriptionStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AdvancePeriod moves the period only if it still ends at expectedEnd.
func (r *repository) AdvancePeriod(ctx context.Context, id uuid.UUID, expectedEnd, start, end, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ? AND current_period_end = ?", id, expectedEnd.UTC()).
		Updates(map[string]any{
			"current_period_start": start.UTC(),
			"current_period_end":   end.UTC(),
			"updated_at":           at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
