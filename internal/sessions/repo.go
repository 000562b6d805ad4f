package sessions

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
	Create(ctx context.Context, session *models.ProgramSession) error
	FindByID(ctx context.Context, agencyID, id uuid.UUID) (*models.ProgramSession, error)
	FindByOfficeEvent(ctx context.Context, officeEventID uuid.UUID) (*models.ProgramSession, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.SessionStatus, at time.Time) (bool, error)
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

func (r *repository) Create(ctx context.Context, session *models.ProgramSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *repository) FindByID(ctx context.Context, agencyID, id uuid.UUID) (*models.ProgramSession, error) {
	var session models.ProgramSession
	err := r.db.WithContext(ctx).Where("id = ? AND agency_id = ?", id, agencyID).Take(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *repository) FindByOfficeEvent(ctx context.Context, officeEventID uuid.UUID) (*models.ProgramSession, error) {
	var session models.ProgramSession
	err := r.db.WithContext(ctx).Where("office_event_id = ?", officeEventID).Take(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// TransitionStatus moves a session out of from. It reports false when the row
// was not in from.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.SessionStatus, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ProgramSession{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
