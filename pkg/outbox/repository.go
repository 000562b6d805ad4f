package outbox

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

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Upsert inserts job or, when its idempotency key already exists, refreshes
// run_after and payload on a not-yet-delivered row. It returns the id of the
// row that owns the key and whether this call inserted it.
func (r *Repository) Upsert(tx *gorm.DB, job *models.SyncJob) (uuid.UUID, bool, error) {
	if tx == nil {
		return uuid.Nil, false, errors.New("transaction required")
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"run_after", "payload", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "learning_sync_jobs.status IN (?, ?)", Vars: []any{enums.SyncJobPending, enums.SyncJobFailed}},
		}},
	}).Create(job).Error
	if err != nil {
		return uuid.Nil, false, err
	}

	var existing models.SyncJob
	if err := tx.Select("id").Where("idempotency_key = ?", job.IdempotencyKey).Take(&existing).Error; err != nil {
		return uuid.Nil, false, err
	}
	return existing.ID, existing.ID == job.ID, nil
}

// LockByKey returns the job owning key, locked until tx ends, or nil when no
// job has been queued under it.
func (r *Repository) LockByKey(tx *gorm.DB, key string) (*models.SyncJob, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var job models.SyncJob
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("idempotency_key = ?", key).
		Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *Repository) AppendEvent(tx *gorm.DB, event *models.SyncEvent) error {
	if tx == nil {
		tx = r.db
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return tx.Create(event).Error
}

func (r *Repository) FindByKey(ctx context.Context, key string) (*models.SyncJob, error) {
	var job models.SyncJob
	if err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).Take(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SyncJob, error) {
	var job models.SyncJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *Repository) ListEvents(ctx context.Context, jobID uuid.UUID) ([]models.SyncEvent, error) {
	var rows []models.SyncEvent
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// ClaimDue moves up to limit runnable jobs to PROCESSING and returns them.
// PROCESSING rows untouched for longer than lease are treated as abandoned by
// a crashed worker and claimed again.
func (r *Repository) ClaimDue(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]models.SyncJob, error) {
	var rows []models.SyncJob
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("(status IN (?, ?) AND run_after <= ?) OR (status = ? AND updated_at <= ?)",
				enums.SyncJobPending, enums.SyncJobFailed, now,
				enums.SyncJobProcessing, now.Add(-lease)).
			Order("run_after ASC").
			Order("id ASC").
			Limit(limit).
			Find(&rows).Error
		if err != nil || len(rows) == 0 {
			return err
		}

		ids := make([]uuid.UUID, 0, len(rows))
		for i := range rows {
			ids = append(ids, rows[i].ID)
			rows[i].Status = enums.SyncJobProcessing
		}
		return tx.Model(&models.SyncJob{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":     enums.SyncJobProcessing,
				"updated_at": now,
			}).Error
	})
	return rows, err
}

func (r *Repository) MarkSucceeded(ctx context.Context, id uuid.UUID, attempt int, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        enums.SyncJobSucceeded,
			"attempt_count": attempt,
			"last_error":    nil,
			"updated_at":    at,
		}).Error
}

func (r *Repository) MarkRetry(ctx context.Context, id uuid.UUID, attempt int, runAfter time.Time, cause error) error {
	return r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        enums.SyncJobFailed,
			"attempt_count": attempt,
			"run_after":     runAfter,
			"last_error":    errString(cause),
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (r *Repository) MarkDead(ctx context.Context, id uuid.UUID, attempt int, cause error) error {
	return r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        enums.SyncJobDead,
			"attempt_count": attempt,
			"last_error":    errString(cause),
			"updated_at":    time.Now().UTC(),
		}).Error
}

// ListDead returns the dead-letter backlog for operators.
func (r *Repository) ListDead(ctx context.Context, limit int) ([]models.SyncJob, error) {
	var rows []models.SyncJob
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.SyncJobDead).
		Order("updated_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func errString(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}
