package paymentmethods

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnbill-backend/internal/repo"
	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, method *models.PaymentMethod) error
	ListByClient(ctx context.Context, agencyID, clientID uuid.UUID) ([]models.PaymentMethod, error)
	FindByID(ctx context.Context, agencyID, id uuid.UUID) (*models.PaymentMethod, error)
	FindDefault(ctx context.Context, agencyID, clientID uuid.UUID) (*models.PaymentMethod, error)
	ClearDefault(ctx context.Context, agencyID, clientID uuid.UUID) error
	MarkDefault(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) Create(ctx context.Context, method *models.PaymentMethod) error {
	if method.ID == uuid.Nil {
		method.ID = uuid.New()
	}
	return r.DB(ctx).Create(method).Error
}

// ListByClient returns the default method first, then newest first.
func (r *repository) ListByClient(ctx context.Context, agencyID, clientID uuid.UUID) ([]models.PaymentMethod, error) {
	var rows []models.PaymentMethod
	err := r.DB(ctx).
		Where("agency_id = ? AND client_id = ?", agencyID, clientID).
		Order("is_default DESC").
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindByID(ctx context.Context, agencyID, id uuid.UUID) (*models.PaymentMethod, error) {
	return repo.First[models.PaymentMethod](r.DB(ctx).Where("agency_id = ? AND id = ?", agencyID, id))
}

func (r *repository) FindDefault(ctx context.Context, agencyID, clientID uuid.UUID) (*models.PaymentMethod, error) {
	return repo.First[models.PaymentMethod](r.DB(ctx).
		Where("agency_id = ? AND client_id = ? AND is_default = ?", agencyID, clientID, true))
}

func (r *repository) ClearDefault(ctx context.Context, agencyID, clientID uuid.UUID) error {
	return r.DB(ctx).Model(&models.PaymentMethod{}).
		Where("agency_id = ? AND client_id = ? AND is_default = ?", agencyID, clientID, true).
		Update("is_default", false).Error
}

func (r *repository) MarkDefault(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).Model(&models.PaymentMethod{}).
		Where("id = ?", id).
		Update("is_default", true).Error
}
