package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnbill-backend/pkg/db"
	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnbill-backend/pkg/errors"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
)

const sessionDebitIndex = "learning_token_ledger_session_debit_key"

// Balance is the derived token position of one client.
type Balance struct {
	Individual int64 `json:"individual_tokens"`
	Group      int64 `json:"group_tokens"`
}

// For returns the balance of a single token bucket.
func (b Balance) For(tokenType enums.TokenType) int64 {
	if tokenType == enums.TokenTypeGroup {
		return b.Group
	}
	return b.Individual
}

// EntryInput carries the fields of one ledger row.
type EntryInput struct {
	AgencyID       uuid.UUID
	ClientID       uuid.UUID
	TokenType      enums.TokenType
	Direction      enums.LedgerDirection
	Quantity       int64
	Reason         enums.LedgerReason
	SubscriptionID *uuid.UUID
	SessionID      *uuid.UUID
	ActorUserID    *uuid.UUID
	EffectiveAt    time.Time
	ExpiresAt      *time.Time
	Metadata       json.RawMessage
}

// DebitInput describes a token debit for one session.
type DebitInput struct {
	AgencyID    uuid.UUID
	ClientID    uuid.UUID
	SessionID   uuid.UUID
	TokenType   enums.TokenType
	Quantity    int64
	ActorUserID *uuid.UUID
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo   Repository
	TX     txRunner
	Logger *logger.Logger
	Clock  func() time.Time
}

// Service records token movements and derives balances.
type Service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
	now  func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.TX == nil {
		return nil, errors.New("tx runner is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo: params.Repo,
		tx:   params.TX,
		logg: params.Logger,
		now:  clock,
	}, nil
}

// AddEntry inserts one immutable entry. Sufficiency of the balance is not
// checked here. tx may be nil.
func (s *Service) AddEntry(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.TokenLedgerEntry, error) {
	if err := validateEntry(input); err != nil {
		return nil, err
	}
	effective := input.EffectiveAt
	if effective.IsZero() {
		effective = s.now()
	}
	entry := &models.TokenLedgerEntry{
		ID:             uuid.New(),
		AgencyID:       input.AgencyID,
		ClientID:       input.ClientID,
		TokenType:      input.TokenType,
		Direction:      input.Direction,
		Quantity:       input.Quantity,
		ReasonCode:     input.Reason,
		SubscriptionID: input.SubscriptionID,
		SessionID:      input.SessionID,
		ActorUserID:    input.ActorUserID,
		EffectiveAt:    effective.UTC(),
		ExpiresAt:      input.ExpiresAt,
		Metadata:       input.Metadata,
	}
	if err := s.repo.WithTx(tx).Create(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert ledger entry")
	}
	return entry, nil
}

// GetBalance returns Σcredits − Σdebits per token type over unexpired entries.
func (s *Service) GetBalance(ctx context.Context, agencyID, clientID uuid.UUID) (Balance, error) {
	return s.balance(ctx, s.repo, agencyID, clientID)
}

func (s *Service) balance(ctx context.Context, repo Repository, agencyID, clientID uuid.UUID) (Balance, error) {
	if agencyID == uuid.Nil || clientID == uuid.Nil {
		return Balance{}, pkgerrors.New(pkgerrors.CodeValidation, "agency id and client id are required")
	}
	balance, err := repo.Balance(ctx, agencyID, clientID, s.now())
	if err != nil {
		return Balance{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read token balance")
	}
	return balance, nil
}

// HasSessionDebit reports whether the session already consumed a token of the
// given type.
func (s *Service) HasSessionDebit(ctx context.Context, agencyID, clientID, sessionID uuid.UUID, tokenType enums.TokenType) (bool, error) {
	entry, err := s.repo.FindSessionDebit(ctx, agencyID, clientID, sessionID, tokenType)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check session debit")
	}
	return entry != nil, nil
}

// ListEntries returns the client's audit trail, newest first.
func (s *Service) ListEntries(ctx context.Context, agencyID, clientID uuid.UUID, limit int) ([]models.TokenLedgerEntry, error) {
	entries, err := s.repo.List(ctx, agencyID, clientID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
	}
	return entries, nil
}

// LockAccount serializes balance-dependent writes for one client until tx ends.
func (s *Service) LockAccount(ctx context.Context, tx *gorm.DB, agencyID, clientID uuid.UUID) error {
	if tx == nil {
		return errors.New("account lock requires a transaction")
	}
	if err := s.repo.WithTx(tx).LockAccount(ctx, agencyID, clientID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock token account")
	}
	return nil
}

// DebitForSession consumes tokens for a session inside tx. The client's
// account row is locked first so concurrent debits observe each other. It
// returns the debit entry and whether this call wrote it; an existing debit
// for the session is returned with debited=false.
func (s *Service) DebitForSession(ctx context.Context, tx *gorm.DB, input DebitInput) (*models.TokenLedgerEntry, bool, error) {
	if tx == nil {
		return nil, false, errors.New("debit requires a transaction")
	}
	if input.SessionID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	if input.Quantity == 0 {
		input.Quantity = 1
	}
	if !input.TokenType.IsValid() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "invalid token type")
	}

	if err := s.LockAccount(ctx, tx, input.AgencyID, input.ClientID); err != nil {
		return nil, false, err
	}
	repo := s.repo.WithTx(tx)

	existing, err := repo.FindSessionDebit(ctx, input.AgencyID, input.ClientID, input.SessionID, input.TokenType)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check session debit")
	}
	if existing != nil {
		return existing, false, nil
	}

	balance, err := s.balance(ctx, repo, input.AgencyID, input.ClientID)
	if err != nil {
		return nil, false, err
	}
	available := balance.For(input.TokenType)
	if available <= 0 || available < input.Quantity {
		return nil, false, pkgerrors.New(pkgerrors.CodeInsufficientTokens, "insufficient tokens").
			WithDetails(map[string]any{
				"token_type": input.TokenType,
				"available":  available,
				"required":   input.Quantity,
			})
	}

	sessionID := input.SessionID
	entry, err := s.AddEntry(ctx, tx, EntryInput{
		AgencyID:    input.AgencyID,
		ClientID:    input.ClientID,
		TokenType:   input.TokenType,
		Direction:   enums.LedgerDirectionDebit,
		Quantity:    input.Quantity,
		Reason:      enums.LedgerReasonSessionCoverage,
		SessionID:   &sessionID,
		ActorUserID: input.ActorUserID,
	})
	if err != nil {
		if db.IsUniqueViolation(err, sessionDebitIndex) {
			existing, findErr := repo.FindSessionDebit(ctx, input.AgencyID, input.ClientID, input.SessionID, input.TokenType)
			if findErr != nil {
				return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "reload session debit")
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"agency_id":  input.AgencyID.String(),
		"client_id":  input.ClientID.String(),
		"session_id": input.SessionID.String(),
		"token_type": input.TokenType.String(),
	}), "session tokens debited")
	return entry, true, nil
}

// CreditInput describes a manual or scheduled token grant.
type CreditInput struct {
	AgencyID       uuid.UUID
	ClientID       uuid.UUID
	TokenType      enums.TokenType
	Quantity       int64
	Reason         enums.LedgerReason
	SubscriptionID *uuid.UUID
	ActorUserID    *uuid.UUID
	ExpiresAt      *time.Time
	Metadata       json.RawMessage
}

// Credit grants tokens. Manual admin credits default their reason.
func (s *Service) Credit(ctx context.Context, tx *gorm.DB, input CreditInput) (*models.TokenLedgerEntry, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credit quantity must be positive")
	}
	if input.Reason == "" {
		input.Reason = enums.LedgerReasonManualAdminCredit
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expires_at must be in the future")
	}
	entry, err := s.AddEntry(ctx, tx, EntryInput{
		AgencyID:       input.AgencyID,
		ClientID:       input.ClientID,
		TokenType:      input.TokenType,
		Direction:      enums.LedgerDirectionCredit,
		Quantity:       input.Quantity,
		Reason:         input.Reason,
		SubscriptionID: input.SubscriptionID,
		ActorUserID:    input.ActorUserID,
		ExpiresAt:      input.ExpiresAt,
		Metadata:       input.Metadata,
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"agency_id":  input.AgencyID.String(),
		"client_id":  input.ClientID.String(),
		"token_type": input.TokenType.String(),
		"quantity":   input.Quantity,
		"reason":     input.Reason.String(),
	}), "tokens credited")
	return entry, nil
}

// AdminCredit records a manual credit in its own transaction.
func (s *Service) AdminCredit(ctx context.Context, input CreditInput) (*models.TokenLedgerEntry, error) {
	input.Reason = enums.LedgerReasonManualAdminCredit
	var entry *models.TokenLedgerEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.LockAccount(ctx, tx, input.AgencyID, input.ClientID); err != nil {
			return err
		}
		created, err := s.Credit(ctx, tx, input)
		if err != nil {
			return err
		}
		entry = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func validateEntry(input EntryInput) error {
	switch {
	case input.AgencyID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "agency id is required")
	case input.ClientID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "client id is required")
	case !input.TokenType.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid token type")
	case !input.Direction.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid ledger direction")
	case !input.Reason.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid ledger reason")
	case input.Quantity < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be non-negative")
	}
	return nil
}
