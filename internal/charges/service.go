package charges

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnbill-backend/internal/policy"
	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/learnbill-backend/pkg/db/types"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnbill-backend/pkg/errors"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
	"github.com/angelmondragon/learnbill-backend/pkg/outbox"
	"github.com/angelmondragon/learnbill-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/learnbill-backend/pkg/wallclock"
)

const pendingKeyMode = "PENDING"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type policyEvaluator interface {
	Evaluate(ctx context.Context, tx *gorm.DB, check policy.CapCheck, minutes int) (policy.Evaluation, error)
}

type accountLocker interface {
	LockAccount(ctx context.Context, tx *gorm.DB, agencyID, clientID uuid.UUID) error
}

type syncEnqueuer interface {
	Enqueue(ctx context.Context, tx *gorm.DB, req outbox.JobRequest) (uuid.UUID, error)
	LockJob(ctx context.Context, tx *gorm.DB, key string) (*models.SyncJob, error)
}

type ServiceParams struct {
	Repo     Repository
	TX       txRunner
	Policy   policyEvaluator
	Accounts accountLocker
	Outbox   syncEnqueuer
	Logger   *logger.Logger
	Currency string
	Clock    func() time.Time
}

// Service owns the session charge lifecycle.
type Service struct {
	repo     Repository
	tx       txRunner
	policy   policyEvaluator
	accounts accountLocker
	outbox   syncEnqueuer
	logg     *logger.Logger
	currency string
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repo == nil:
		return nil, errors.New("repo is required")
	case params.TX == nil:
		return nil, errors.New("tx runner is required")
	case params.Policy == nil:
		return nil, errors.New("policy evaluator is required")
	case params.Accounts == nil:
		return nil, errors.New("account locker is required")
	case params.Outbox == nil:
		return nil, errors.New("outbox is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = enums.CurrencyUSD.String()
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:     params.Repo,
		tx:       params.TX,
		policy:   params.Policy,
		accounts: params.Accounts,
		outbox:   params.Outbox,
		logg:     params.Logger,
		currency: currency,
		now:      clock,
	}, nil
}

// PendingKey is the idempotency key of a session's pending charge.
func PendingKey(agencyID, sessionID uuid.UUID) string {
	return fmt.Sprintf("charge:%s:%s:%s", agencyID, sessionID, pendingKeyMode)
}

// CreatePending prices the session, applies its billing policy and inserts a
// PENDING charge. The cap check and the insert share one transaction under
// the client's account lock. A second call for the same session returns the
// first charge with created=false.
func (s *Service) CreatePending(ctx context.Context, session *models.ProgramSession) (*models.SessionCharge, bool, error) {
	if session == nil || session.ID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "session is required")
	}
	key := PendingKey(session.AgencyID, session.ID)

	var (
		charge  *models.SessionCharge
		created bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.accounts.LockAccount(ctx, tx, session.AgencyID, session.ClientID); err != nil {
			return err
		}

		existing, err := repo.FindByKey(ctx, key)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup pending charge")
		}
		if existing != nil {
			charge = existing
			return nil
		}

		svc, err := s.learningService(ctx, repo, session)
		if err != nil {
			return err
		}
		amount, err := toCents(svc.PriceAmount)
		if err != nil {
			return err
		}

		serviceCode := lo.FromPtr(session.ServiceCode)
		if serviceCode == "" {
			serviceCode = strings.TrimSpace(lo.FromPtr(svc.ServiceCode))
		}
		serviceDate, err := serviceDateOf(session)
		if err != nil {
			return err
		}

		eval, err := s.policy.Evaluate(ctx, tx, policy.CapCheck{
			AgencyID:       session.AgencyID,
			ClientID:       session.ClientID,
			ServiceCode:    serviceCode,
			CredentialTier: session.CredentialTier,
			ServiceDate:    serviceDate,
		}, session.DurationMinutes())
		if err != nil {
			return err
		}

		currency := strings.ToLower(strings.TrimSpace(svc.Currency))
		if currency == "" {
			currency = s.currency
		}
		row := &models.SessionCharge{
			ID:                     uuid.New(),
			AgencyID:               session.AgencyID,
			SessionID:              session.ID,
			ClientID:               session.ClientID,
			AmountCents:            amount,
			TotalCents:             amount,
			Currency:               currency,
			ChargeStatus:           enums.ChargeStatusPending,
			ChargeType:             enums.ChargeTypeSession,
			PaymentMode:            session.PaymentMode,
			IdempotencyKey:         key,
			BillingPolicyProfileID: eval.ProfileID,
			BillingPolicyRuleID:    eval.RuleID,
			Units:                  eval.Units,
			ServiceDate:            &serviceDate,
		}
		if serviceCode != "" {
			row.ServiceCode = lo.ToPtr(serviceCode)
		}

		inserted, err := repo.Insert(ctx, row)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert pending charge")
		}
		if !inserted {
			winner, err := repo.FindByKey(ctx, key)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload pending charge")
			}
			if winner == nil {
				return pkgerrors.New(pkgerrors.CodeConflict, "pending charge vanished after conflict")
			}
			charge = winner
			return nil
		}
		charge, created = row, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"agency_id":    charge.AgencyID.String(),
			"charge_id":    charge.ID.String(),
			"session_id":   charge.SessionID.String(),
			"amount_cents": charge.AmountCents,
		}), "pending charge created")
	}
	return charge, created, nil
}

func (s *Service) learningService(ctx context.Context, repo Repository, session *models.ProgramSession) (*models.LearningService, error) {
	var (
		svc *models.LearningService
		err error
	)
	switch {
	case session.LearningServiceID != nil:
		svc, err = repo.FindLearningService(ctx, session.AgencyID, *session.LearningServiceID)
	case session.ServiceCode != nil:
		svc, err = repo.FindLearningServiceByCode(ctx, session.AgencyID, *session.ServiceCode)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session has no learning service or service code")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load learning service")
	}
	if svc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "learning service not found")
	}
	return svc, nil
}

// serviceDateOf is the calendar day of the session in the provider's zone.
func serviceDateOf(session *models.ProgramSession) (dbtypes.Date, error) {
	local, err := wallclock.Parse(session.ScheduledStartAt)
	if err != nil {
		return dbtypes.Date{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid scheduled start")
	}
	return dbtypes.DateOf(local), nil
}

// CaptureInput describes a coverage capture.
type CaptureInput struct {
	ChargeID       uuid.UUID
	Mode           enums.PaymentMode
	SubscriptionID *uuid.UUID
	LedgerEntryID  *uuid.UUID
	PolicyRuleID   *uuid.UUID
	At             time.Time
}

// Capture marks a pending charge as covered in full inside tx. It reports
// false when the charge had already left PENDING. The discount absorbs tax as
// well as the amount so total = amount + tax - discount lands on zero.
func (s *Service) Capture(ctx context.Context, tx *gorm.DB, input CaptureInput) (bool, error) {
	if input.Mode != enums.PaymentModeToken && input.Mode != enums.PaymentModeSubscription {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "coverage capture requires TOKEN or SUBSCRIPTION")
	}
	at := input.At
	if at.IsZero() {
		at = s.now()
	}
	meta, err := json.Marshal(CoverageMetadata{
		Version:        metadataVersion,
		CoverageMode:   input.Mode,
		CoveredAt:      at.UTC(),
		PolicyRuleID:   input.PolicyRuleID,
		SubscriptionID: input.SubscriptionID,
		LedgerEntryID:  input.LedgerEntryID,
	})
	if err != nil {
		return false, err
	}
	ok, err := s.repo.WithTx(tx).Transition(ctx, input.ChargeID,
		[]enums.ChargeStatus{enums.ChargeStatusPending},
		map[string]any{
			"charge_status":  enums.ChargeStatusCaptured,
			"payment_mode":   input.Mode,
			"discount_cents": gorm.Expr("amount_cents + tax_cents"),
			"total_cents":    0,
			"metadata":       json.RawMessage(meta),
			"captured_at":    at.UTC(),
			"updated_at":     at.UTC(),
		})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "capture charge")
	}
	return ok, nil
}

// MarkFailed abandons a charge that has not been captured.
func (s *Service) MarkFailed(ctx context.Context, agencyID, chargeID uuid.UUID, reason string) (*models.SessionCharge, error) {
	now := s.now()
	meta, err := json.Marshal(FailureMetadata{Version: metadataVersion, Reason: strings.TrimSpace(reason), FailedAt: now})
	if err != nil {
		return nil, err
	}
	charge, err := s.Get(ctx, nil, agencyID, chargeID)
	if err != nil {
		return nil, err
	}
	if charge.ChargeStatus == enums.ChargeStatusFailed {
		return charge, nil
	}
	ok, err := s.repo.Transition(ctx, chargeID,
		[]enums.ChargeStatus{enums.ChargeStatusPending, enums.ChargeStatusAuthorized},
		map[string]any{
			"charge_status": enums.ChargeStatusFailed,
			"metadata":      json.RawMessage(meta),
			"updated_at":    now,
		})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail charge")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "charge is already captured")
	}
	return s.Get(ctx, nil, agencyID, chargeID)
}

// Get loads a charge scoped to its agency. tx may be nil.
func (s *Service) Get(ctx context.Context, tx *gorm.DB, agencyID, chargeID uuid.UUID) (*models.SessionCharge, error) {
	charge, err := s.repo.WithTx(tx).FindByID(ctx, agencyID, chargeID, false)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load charge")
	}
	if charge == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "charge not found")
	}
	return charge, nil
}

func (s *Service) ListBySession(ctx context.Context, agencyID, sessionID uuid.UUID) ([]models.SessionCharge, error) {
	charges, err := s.repo.ListBySession(ctx, agencyID, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list session charges")
	}
	return charges, nil
}

// ListPendingBacklog returns PENDING charges created at least olderThan ago.
// A nil agencyID spans every agency.
func (s *Service) ListPendingBacklog(ctx context.Context, agencyID *uuid.UUID, olderThan time.Duration, limit int) ([]models.SessionCharge, error) {
	charges, err := s.repo.ListPending(ctx, agencyID, s.now().Add(-olderThan), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending charges")
	}
	return charges, nil
}

// CountPendingBacklog counts PENDING charges created at least olderThan ago.
func (s *Service) CountPendingBacklog(ctx context.Context, olderThan time.Duration) (int64, error) {
	count, err := s.repo.CountPending(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count pending charges")
	}
	return count, nil
}

// InvoiceDispatched locks the charge's CHARGE_CREATED job and reports whether
// the connector has already picked it up. Once it has, the invoice it carries
// can no longer be rewritten to a covered total.
func (s *Service) InvoiceDispatched(ctx context.Context, tx *gorm.DB, charge *models.SessionCharge) (bool, error) {
	key := outbox.Key(charge.AgencyID, enums.SyncEntityCharge, charge.ID, enums.SyncEventChargeCreated)
	job, err := s.outbox.LockJob(ctx, tx, key)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock charge sync job")
	}
	return outbox.Dispatched(job), nil
}

// EnqueueChargeCreated queues the accounting invoice for a charge inside tx.
func (s *Service) EnqueueChargeCreated(ctx context.Context, tx *gorm.DB, charge *models.SessionCharge, mode enums.PaymentMode, actor *outbox.ActorRef) (uuid.UUID, error) {
	event := payloads.ChargeCreatedEvent{
		ChargeID:      charge.ID,
		SessionID:     charge.SessionID,
		ClientID:      charge.ClientID,
		ChargeStatus:  charge.ChargeStatus,
		CoverageMode:  mode,
		AmountCents:   charge.AmountCents,
		TaxCents:      charge.TaxCents,
		DiscountCents: charge.DiscountCents,
		TotalCents:    charge.TotalCents,
		Currency:      charge.Currency,
		ServiceCode:   charge.ServiceCode,
		Units:         charge.Units,
	}
	if charge.ServiceDate != nil {
		event.ServiceDate = lo.ToPtr(charge.ServiceDate.String())
	}
	id, err := s.outbox.Enqueue(ctx, tx, outbox.JobRequest{
		AgencyID:   charge.AgencyID,
		EntityType: enums.SyncEntityCharge,
		EntityID:   charge.ID,
		Operation:  enums.SyncOperationCreateInvoice,
		Event:      enums.SyncEventChargeCreated,
		Actor:      actor,
		Data:       event,
	})
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue charge sync")
	}
	return id, nil
}
