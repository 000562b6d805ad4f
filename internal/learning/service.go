// Package learning is the entry point for learning-services billing. Every
// operation checks that the agency has learning billing enabled before doing
// anything else.
package learning

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnbill-backend/internal/charges"
	"github.com/angelmondragon/learnbill-backend/internal/coverage"
	"github.com/angelmondragon/learnbill-backend/internal/ledger"
	"github.com/angelmondragon/learnbill-backend/internal/paymentmethods"
	"github.com/angelmondragon/learnbill-backend/internal/renewals"
	"github.com/angelmondragon/learnbill-backend/internal/sessions"
	"github.com/angelmondragon/learnbill-backend/internal/subscriptions"
	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnbill-backend/pkg/errors"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
	"github.com/angelmondragon/learnbill-backend/pkg/outbox"
)

const defaultListLimit = 100

type gateChecker interface {
	Require(ctx context.Context, agencyID uuid.UUID) error
}

type sessionService interface {
	CreateFromOfficeEvent(ctx context.Context, tx *gorm.DB, input sessions.LinkInput) (*models.ProgramSession, bool, error)
	Get(ctx context.Context, tx *gorm.DB, agencyID, sessionID uuid.UUID) (*models.ProgramSession, error)
	UpdateStatus(ctx context.Context, agencyID, sessionID uuid.UUID, next enums.SessionStatus) (*models.ProgramSession, error)
}

type chargeService interface {
	CreatePending(ctx context.Context, session *models.ProgramSession) (*models.SessionCharge, bool, error)
	Get(ctx context.Context, tx *gorm.DB, agencyID, chargeID uuid.UUID) (*models.SessionCharge, error)
	ListBySession(ctx context.Context, agencyID, sessionID uuid.UUID) ([]models.SessionCharge, error)
	ListPendingBacklog(ctx context.Context, agencyID *uuid.UUID, olderThan time.Duration, limit int) ([]models.SessionCharge, error)
	MarkFailed(ctx context.Context, agencyID, chargeID uuid.UUID, reason string) (*models.SessionCharge, error)
	CapturePayment(ctx context.Context, input charges.PaymentInput) (*models.Payment, error)
}

type coverageService interface {
	Apply(ctx context.Context, req coverage.Request) (coverage.Result, error)
}

type ledgerService interface {
	GetBalance(ctx context.Context, agencyID, clientID uuid.UUID) (ledger.Balance, error)
	ListEntries(ctx context.Context, agencyID, clientID uuid.UUID, limit int) ([]models.TokenLedgerEntry, error)
	AdminCredit(ctx context.Context, input ledger.CreditInput) (*models.TokenLedgerEntry, error)
}

type subscriptionService interface {
	CreatePlan(ctx context.Context, input subscriptions.PlanInput) (*models.SubscriptionPlan, error)
	Create(ctx context.Context, input subscriptions.CreateInput) (*models.Subscription, error)
	Get(ctx context.Context, agencyID, subscriptionID uuid.UUID) (*models.Subscription, error)
	TransitionStatus(ctx context.Context, input subscriptions.TransitionInput) (*models.Subscription, error)
}

type renewalService interface {
	RunDueRenewals(ctx context.Context, agencyID *uuid.UUID, actorID *uuid.UUID, limit int) (renewals.RunResult, error)
	ReplenishForSubscription(ctx context.Context, agencyID, subscriptionID uuid.UUID, actorID *uuid.UUID) (renewals.Grant, error)
}

type paymentMethodService interface {
	Add(ctx context.Context, input paymentmethods.AddInput) (*models.PaymentMethod, error)
	List(ctx context.Context, agencyID, clientID uuid.UUID) ([]models.PaymentMethod, error)
	Get(ctx context.Context, agencyID, methodID uuid.UUID) (*models.PaymentMethod, error)
	Default(ctx context.Context, agencyID, clientID uuid.UUID) (*models.PaymentMethod, error)
	SetDefault(ctx context.Context, agencyID, methodID uuid.UUID) (*models.PaymentMethod, error)
}

type ServiceParams struct {
	Gate           gateChecker
	Sessions       sessionService
	Charges        chargeService
	Coverage       coverageService
	Ledger         ledgerService
	Subscriptions  subscriptionService
	Renewals       renewalService
	PaymentMethods paymentMethodService
	Logger         *logger.Logger
	RenewalLimit   int
}

type Service struct {
	gate         gateChecker
	sessions     sessionService
	charges      chargeService
	coverage     coverageService
	ledger       ledgerService
	subs         subscriptionService
	renewals     renewalService
	methods      paymentMethodService
	logg         *logger.Logger
	renewalLimit int
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Gate == nil:
		return nil, errors.New("gate is required")
	case params.Sessions == nil:
		return nil, errors.New("sessions are required")
	case params.Charges == nil:
		return nil, errors.New("charges are required")
	case params.Coverage == nil:
		return nil, errors.New("coverage is required")
	case params.Ledger == nil:
		return nil, errors.New("ledger is required")
	case params.Subscriptions == nil:
		return nil, errors.New("subscriptions are required")
	case params.Renewals == nil:
		return nil, errors.New("renewals are required")
	case params.PaymentMethods == nil:
		return nil, errors.New("payment methods are required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{
		gate:         params.Gate,
		sessions:     params.Sessions,
		charges:      params.Charges,
		coverage:     params.Coverage,
		ledger:       params.Ledger,
		subs:         params.Subscriptions,
		renewals:     params.Renewals,
		methods:      params.PaymentMethods,
		logg:         params.Logger,
		renewalLimit: params.RenewalLimit,
	}, nil
}

// LinkRequest links a booked office event and bills it.
type LinkRequest struct {
	sessions.LinkInput
	TokenType enums.TokenType
	// StrictCoverage fails the request when the session's payment mode cannot
	// cover the charge instead of leaving it payable.
	StrictCoverage bool
	Actor          *outbox.ActorRef
}

// LinkResult reports every step of a link. ChargeError is set when the
// charge was rejected while the session was kept.
type LinkResult struct {
	Session        *models.ProgramSession `json:"session"`
	SessionCreated bool                   `json:"session_created"`
	Charge         *models.SessionCharge  `json:"charge,omitempty"`
	ChargeCreated  bool                   `json:"charge_created"`
	Coverage       *coverage.Result       `json:"coverage,omitempty"`
	ChargeError    *pkgerrors.Error       `json:"-"`
}

// LinkOfficeEvent creates the session for a booked event, its pending charge,
// and applies coverage using the session's payment mode. A daily cap
// rejection keeps the session and reports the rejection in the result.
func (s *Service) LinkOfficeEvent(ctx context.Context, req LinkRequest) (*LinkResult, error) {
	if err := s.gate.Require(ctx, req.AgencyID); err != nil {
		return nil, err
	}
	session, created, err := s.sessions.CreateFromOfficeEvent(ctx, nil, req.LinkInput)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"agency_id":       session.AgencyID.String(),
		"session_id":      session.ID.String(),
		"office_event_id": req.Event.ID.String(),
	})
	result := &LinkResult{Session: session, SessionCreated: created}

	charge, chargeCreated, err := s.charges.CreatePending(ctx, session)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeDailyCapExceeded) {
			result.ChargeError = pkgerrors.As(err)
			s.logg.Warn(ctx, "session linked without charge: daily units cap exceeded")
			return result, nil
		}
		return nil, err
	}
	result.Charge = charge
	result.ChargeCreated = chargeCreated

	applied, err := s.coverage.Apply(ctx, coverage.Request{
		Session:   session,
		Charge:    charge,
		TokenType: req.TokenType,
		Strict:    req.StrictCoverage,
		Actor:     req.Actor,
	})
	if err != nil {
		return nil, err
	}
	result.Coverage = &applied
	result.Charge = applied.Charge
	return result, nil
}

// CoverageRequest retries coverage for an existing charge.
type CoverageRequest struct {
	AgencyID  uuid.UUID
	ChargeID  uuid.UUID
	Mode      enums.PaymentMode
	TokenType enums.TokenType
	Strict    bool
	Actor     *outbox.ActorRef
}

func (s *Service) ApplyCoverage(ctx context.Context, req CoverageRequest) (coverage.Result, error) {
	if err := s.gate.Require(ctx, req.AgencyID); err != nil {
		return coverage.Result{}, err
	}
	charge, err := s.charges.Get(ctx, nil, req.AgencyID, req.ChargeID)
	if err != nil {
		return coverage.Result{}, err
	}
	session, err := s.sessions.Get(ctx, nil, req.AgencyID, charge.SessionID)
	if err != nil {
		return coverage.Result{}, err
	}
	return s.coverage.Apply(ctx, coverage.Request{
		Session:   session,
		Charge:    charge,
		Mode:      req.Mode,
		TokenType: req.TokenType,
		Strict:    req.Strict,
		Actor:     req.Actor,
	})
}

// PayCharge captures a payable charge. Without an explicit method the
// client's default method is used when one exists.
func (s *Service) PayCharge(ctx context.Context, input charges.PaymentInput) (*models.Payment, error) {
	if err := s.gate.Require(ctx, input.AgencyID); err != nil {
		return nil, err
	}
	charge, err := s.charges.Get(ctx, nil, input.AgencyID, input.ChargeID)
	if err != nil {
		return nil, err
	}
	if input.PaymentMethodID != nil {
		method, err := s.methods.Get(ctx, input.AgencyID, *input.PaymentMethodID)
		if err != nil {
			return nil, err
		}
		if method.ClientID != charge.ClientID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method belongs to another client")
		}
	} else {
		method, err := s.methods.Default(ctx, input.AgencyID, charge.ClientID)
		if err != nil {
			return nil, err
		}
		if method != nil {
			input.PaymentMethodID = &method.ID
		}
	}
	return s.charges.CapturePayment(ctx, input)
}

func (s *Service) GetCharge(ctx context.Context, agencyID, chargeID uuid.UUID) (*models.SessionCharge, error) {
	if err := s.gate.Require(ctx, agencyID); err != nil {
		return nil, err
	}
	return s.charges.Get(ctx, nil, agencyID, chargeID)
}

func (s *Service) FailCharge(ctx context.Context, agencyID, chargeID uuid.UUID, reason string) (*models.SessionCharge, error) {
	if err := s.gate.Require(ctx, agencyID); err != nil {
		return nil, err
	}
	return s.charges.MarkFailed(ctx, agencyID, chargeID, reason)
}

// PendingCharges lists the agency's unresolved PENDING charges created at
// least olderThan ago.
func (s *Service) PendingCharges(ctx context.Context, agencyID uuid.UUID, olderThan time.Duration, limit int) ([]models.SessionCharge, error) {
	if err := s.gate.Require(ctx, agencyID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.charges.ListPendingBacklog(ctx, &agencyID, olderThan, limit)
}

// SessionDetail is a session with its charges.
type SessionDetail struct {
	Session *models.ProgramSession `json:"session"`
	Charges []models.SessionCharge `json:"charges"`
}

func (s *Service) GetSession(ctx context.Context, agencyID, sessionID uuid.UUID) (*SessionDetail, error) {
	if err := s.gate.Require(ctx, agencyID); err != nil {
		return nil, err
	}
	session, err := s.sessions.Get(ctx, nil, agencyID, sessionID)
	if err != nil {
		return nil, err
	}
	list, err := s.charges.ListBySession(ctx, agencyID, sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionDetail{Session: session, Charges: list}, nil
}

func (s *Service) UpdateSessionStatus(ctx context.Context, agencyID, sessionID uuid.UUID, status enums.SessionStatus) (*models.ProgramSession, error) {
	if err := s.gate.Require(ctx, agencyID); err != nil {
		return nil, err
	}
	return s.sessions.UpdateStatus(ctx, agencyID, sessionID, status)
}

func (s *Service) Balance(ctx context.Context, agencyID, clientID uuid.UUID) (ledger.Balance, error) {
	if err := s.gate.Require(ctx, agencyID); err != nil {
		return ledger.Balance{}, err
	}
	return s.ledger.GetBalance(ctx, agencyID, clientID)
}

func (s *Service) LedgerEntries(ctx context.Context, agencyID, clientID uuid.UUID, limit int) ([]models.TokenLedgerEntry, error) {
	if err := s.gate.Require(ctx, agencyID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.ledger.ListEntries(ctx, agencyID, clientID, limit)
}

func (s *Service) AdminCredit(ctx context.Context, input ledger.CreditInput) (*models.TokenLedgerEntry, error) {
	if err := s.gate.Require(ctx, input.AgencyID); err != nil {
		return nil, err
	}
	return s.ledger.AdminCredit(ctx, input)
}

func (s *Service) CreatePlan(ctx context.Context, input subscriptions.PlanInput) (*models.SubscriptionPlan, error) {
	if err := s.gate.Require(ctx, input.AgencyID); err != nil {
		return nil, err
	}
	return s.subs.CreatePlan(ctx, input)
}

func (s *Service) CreateSubscription(ctx context.Context, input subscriptions.CreateInput) (*models.Subscription, error) {
	if err := s.gate.Require(ctx, input.AgencyID); err != nil {
		return nil, err
	}
	return s.subs.Create(ctx, input)
}

func (s *Service) GetSubscription(ctx context.Context, agencyID, subscriptionID uuid.UUID) (*models.Subscription, error) {
	if err := s.gate.Require(ctx, agencyID); err != nil {
		return nil, err
	}
	return s.subs.Get(ctx, agencyID, subscriptionID)
}

func (s *Service) TransitionSubscription(ctx context.Context, input subscriptions.TransitionInput) (*models.Subscription, error) {
	if err := s.gate.Require(ctx, input.AgencyID); err != nil {
		return nil, err
	}
	return s.subs.TransitionStatus(ctx, input)
}

func (s *Service) ReplenishSubscription(ctx context.Context, agencyID, subscriptionID uuid.UUID, actorID *uuid.UUID) (renewals.Grant, error) {
	if err := s.gate.Require(ctx, agencyID); err != nil {
		return renewals.Grant{}, err
	}
	return s.renewals.ReplenishForSubscription(ctx, agencyID, subscriptionID, actorID)
}

// RunRenewals runs the renewal pass for one agency on demand.
func (s *Service) RunRenewals(ctx context.Context, agencyID uuid.UUID, actorID *uuid.UUID, limit int) (renewals.RunResult, error) {
	if err := s.gate.Require(ctx, agencyID); err != nil {
		return renewals.RunResult{}, err
	}
	if limit <= 0 {
		limit = s.renewalLimit
	}
	return s.renewals.RunDueRenewals(ctx, &agencyID, actorID, limit)
}

func (s *Service) AddPaymentMethod(ctx context.Context, input paymentmethods.AddInput) (*models.PaymentMethod, error) {
	if err := s.gate.Require(ctx, input.AgencyID); err != nil {
		return nil, err
	}
	return s.methods.Add(ctx, input)
}

func (s *Service) ListPaymentMethods(ctx context.Context, agencyID, clientID uuid.UUID) ([]models.PaymentMethod, error) {
	if err := s.gate.Require(ctx, agencyID); err != nil {
		return nil, err
	}
	return s.methods.List(ctx, agencyID, clientID)
}

func (s *Service) SetDefaultPaymentMethod(ctx context.Context, agencyID, methodID uuid.UUID) (*models.PaymentMethod, error) {
	if err := s.gate.Require(ctx, agencyID); err != nil {
		return nil, err
	}
	return s.methods.SetDefault(ctx, agencyID, methodID)
}
