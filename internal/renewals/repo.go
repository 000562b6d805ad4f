package renewals

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/learnbill-backend/internal/repo"
	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
)

// Repository stores renewal locks.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Acquire(ctx context.Context, lock *models.RenewalLock) (bool, error)
	FindByKey(ctx context.Context, key string) (*models.RenewalLock, error)
	Finish(ctx context.Context, id uuid.UUID, status enums.RenewalLockStatus, result json.RawMessage, lastError *string, at time.Time) error
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

// Acquire inserts the lock and reports whether this caller owns it.
func (r *repository) Acquire(ctx context.Context, lock *models.RenewalLock) (bool, error) {
	if lock.ID == uuid.Nil {
		lock.ID = uuid.New()
	}
	res := r.DB(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "lock_key"}}, DoNothing: true}).
		Create(lock)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindByKey(ctx context.Context, key string) (*models.RenewalLock, error) {
	return repo.First[models.RenewalLock](r.DB(ctx).Where("lock_key = ?", key))
}

// Finish closes a RUNNING lock.
func (r *repository) Finish(ctx context.Context, id uuid.UUID, status enums.RenewalLockStatus, result json.RawMessage, lastError *string, at time.Time) error {
	return r.DB(ctx).
		Model(&models.RenewalLock{}).
		Where("id = ? AND status = ?", id, enums.RenewalLockRunning).
		Updates(map[string]any{
			"status":      status,
			"result":      result,
			"last_error":  lastError,
			"finished_at": at.UTC(),
		}).Error
}
