package ledger

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

// Repository persists token ledger entries and the per-client lock anchor.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.TokenLedgerEntry) error
	Balance(ctx context.Context, agencyID, clientID uuid.UUID, at time.Time) (Balance, error)
	FindSessionDebit(ctx context.Context, agencyID, clientID, sessionID uuid.UUID, tokenType enums.TokenType) (*models.TokenLedgerEntry, error)
	List(ctx context.Context, agencyID, clientID uuid.UUID, limit int) ([]models.TokenLedgerEntry, error)
	LockAccount(ctx context.Context, agencyID, clientID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.TokenLedgerEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

const balanceQuery = `
SELECT
	COALESCE(SUM(CASE WHEN token_type = ? THEN
		CASE WHEN direction = ? THEN quantity ELSE -quantity END
	ELSE 0 END), 0) AS individual,
	COALESCE(SUM(CASE WHEN token_type = ? THEN
		CASE WHEN direction = ? THEN quantity ELSE -quantity END
	ELSE 0 END), 0) AS "group"
FROM learning_token_ledger
WHERE agency_id = ? AND client_id = ?
	AND (expires_at IS NULL OR expires_at > ?)`

// Balance sums both token buckets in one statement so the two figures come
// from the same snapshot.
func (r *repository) Balance(ctx context.Context, agencyID, clientID uuid.UUID, at time.Time) (Balance, error) {
	var row struct {
		Individual int64
		Group      int64
	}
	err := r.db.WithContext(ctx).Raw(balanceQuery,
		enums.TokenTypeIndividual, enums.LedgerDirectionCredit,
		enums.TokenTypeGroup, enums.LedgerDirectionCredit,
		agencyID, clientID, at.UTC(),
	).Scan(&row).Error
	if err != nil {
		return Balance{}, err
	}
	return Balance{Individual: row.Individual, Group: row.Group}, nil
}

func (r *repository) FindSessionDebit(ctx context.Context, agencyID, clientID, sessionID uuid.UUID, tokenType enums.TokenType) (*models.TokenLedgerEntry, error) {
	var entry models.TokenLedgerEntry
	err := r.db.WithContext(ctx).
		Where("agency_id = ? AND client_id = ? AND session_id = ? AND token_type = ? AND direction = ?",
			agencyID, clientID, sessionID, tokenType, enums.LedgerDirectionDebit).
		Take(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) List(ctx context.Context, agencyID, clientID uuid.UUID, limit int) ([]models.TokenLedgerEntry, error) {
	var entries []models.TokenLedgerEntry
	query := r.db.WithContext(ctx).
		Where("agency_id = ? AND client_id = ?", agencyID, clientID).
		Order("effective_at DESC").
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// LockAccount creates the client's account row if needed and locks it for the
// rest of the transaction.
func (r *repository) LockAccount(ctx context.Context, agencyID, clientID uuid.UUID) error {
	db := r.db.WithContext(ctx)
	account := models.TokenAccount{AgencyID: agencyID, ClientID: clientID}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&account).Error; err != nil {
		return err
	}
	var locked models.TokenAccount
	return db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("agency_id = ? AND client_id = ?", agencyID, clientID).
		Take(&locked).Error
}
