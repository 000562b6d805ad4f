package charges

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindLearningService(ctx context.Context, agencyID, id uuid.UUID) (*models.LearningService, error)
	FindLearningServiceByCode(ctx context.Context, agencyID uuid.UUID, serviceCode string) (*models.LearningService, error)
	Insert(ctx context.Context, charge *models.SessionCharge) (bool, error)
	FindByKey(ctx context.Context, key string) (*models.SessionCharge, error)
	FindByID(ctx context.Context, agencyID, id uuid.UUID, forUpdate bool) (*models.SessionCharge, error)
	ListBySession(ctx context.Context, agencyID, sessionID uuid.UUID) ([]models.SessionCharge, error)
	ListPending(ctx context.Context, agencyID *uuid.UUID, createdBefore time.Time, limit int) ([]models.SessionCharge, error)
	CountPending(ctx context.Context, createdBefore time.Time) (int64, error)
	Transition(ctx context.Context, id uuid.UUID, from []enums.ChargeStatus, updates map[string]any) (bool, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	FindPaymentByCharge(ctx context.Context, chargeID uuid.UUID) (*models.Payment, error)
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

func (r *repository) FindLearningService(ctx context.Context, agencyID, id uuid.UUID) (*models.LearningService, error) {
	var svc models.LearningService
	err := r.db.WithContext(ctx).Where("id = ? AND agency_id = ?", id, agencyID).Take(&svc).Error
	return notFoundAsNil(&svc, err)
}

func (r *repository) FindLearningServiceByCode(ctx context.Context, agencyID uuid.UUID, serviceCode string) (*models.LearningService, error) {
	var svc models.LearningService
	err := r.db.WithContext(ctx).
		Where("agency_id = ? AND service_code = ? AND active = ?", agencyID, serviceCode, true).
		Order("created_at ASC").
		Take(&svc).Error
	return notFoundAsNil(&svc, err)
}

// Insert writes the charge unless its idempotency key is taken. It reports
// whether a row was written.
func (r *repository) Insert(ctx context.Context, charge *models.SessionCharge) (bool, error) {
	if charge.ID == uuid.Nil {
		charge.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "idempotency_key"}}, DoNothing: true}).
		Create(charge)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindByKey(ctx context.Context, key string) (*models.SessionCharge, error) {
	var charge models.SessionCharge
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).Take(&charge).Error
	return notFoundAsNil(&charge, err)
}

func (r *repository) FindByID(ctx context.Context, agencyID, id uuid.UUID, forUpdate bool) (*models.SessionCharge, error) {
	var charge models.SessionCharge
	query := r.db.WithContext(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := query.Where("id = ? AND agency_id = ?", id, agencyID).Take(&charge).Error
	return notFoundAsNil(&charge, err)
}

func (r *repository) ListBySession(ctx context.Context, agencyID, sessionID uuid.UUID) ([]models.SessionCharge, error) {
	var charges []models.SessionCharge
	err := r.db.WithContext(ctx).
		Where("agency_id = ? AND session_id = ?", agencyID, sessionID).
		Order("created_at ASC").
		Find(&charges).Error
	return charges, err
}

func (r *repository) ListPending(ctx context.Context, agencyID *uuid.UUID, createdBefore time.Time, limit int) ([]models.SessionCharge, error) {
	var charges []models.SessionCharge
	query := r.db.WithContext(ctx).
		Where("charge_status = ? AND created_at <= ?", enums.ChargeStatusPending, createdBefore).
		Order("created_at ASC")
	if agencyID != nil {
		query = query.Where("agency_id = ?", *agencyID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&charges).Error
	return charges, err
}

func (r *repository) CountPending(ctx context.Context, createdBefore time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SessionCharge{}).
		Where("charge_status = ? AND created_at <= ?", enums.ChargeStatusPending, createdBefore).
		Count(&count).Error
	return count, err
}

// Transition applies updates only while the charge is in one of from.
func (r *repository) Transition(ctx context.Context, id uuid.UUID, from []enums.ChargeStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.SessionCharge{}).
		Where("id = ? AND charge_status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindPaymentByCharge(ctx context.Context, chargeID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("charge_id = ?", chargeID).Take(&payment).Error
	return notFoundAsNil(&payment, err)
}

func notFoundAsNil[T any](row *T, err error) (*T, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return row, nil
}
