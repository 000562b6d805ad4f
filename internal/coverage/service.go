package coverage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnbill-backend/internal/charges"
	"github.com/angelmondragon/learnbill-backend/internal/ledger"
	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnbill-backend/pkg/errors"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
	"github.com/angelmondragon/learnbill-backend/pkg/metrics"
	"github.com/angelmondragon/learnbill-backend/pkg/outbox"
)

const (
	outcomeCaptured = "captured"
	outcomeCovered  = "already_covered"
	outcomeFallback = "fallback"
	outcomeInvoiced = "invoiced"
	outcomeRejected = "rejected"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type tokenDebitor interface {
	DebitForSession(ctx context.Context, tx *gorm.DB, input ledger.DebitInput) (*models.TokenLedgerEntry, bool, error)
}

type subscriptionFinder interface {
	FindActiveForClientAt(ctx context.Context, tx *gorm.DB, agencyID, clientID uuid.UUID, at time.Time) (*models.Subscription, error)
}

type chargeStore interface {
	Get(ctx context.Context, tx *gorm.DB, agencyID, chargeID uuid.UUID) (*models.SessionCharge, error)
	Capture(ctx context.Context, tx *gorm.DB, input charges.CaptureInput) (bool, error)
	EnqueueChargeCreated(ctx context.Context, tx *gorm.DB, charge *models.SessionCharge, mode enums.PaymentMode, actor *outbox.ActorRef) (uuid.UUID, error)
	InvoiceDispatched(ctx context.Context, tx *gorm.DB, charge *models.SessionCharge) (bool, error)
}

type ServiceParams struct {
	TX            txRunner
	Ledger        tokenDebitor
	Subscriptions subscriptionFinder
	Charges       chargeStore
	Metrics       *metrics.BillingMetrics
	Logger        *logger.Logger
	Clock         func() time.Time
}

// Service decides how a session charge is paid for and applies the decision.
type Service struct {
	tx      txRunner
	ledger  tokenDebitor
	subs    subscriptionFinder
	charges chargeStore
	metrics *metrics.BillingMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.TX == nil:
		return nil, errors.New("tx runner is required")
	case params.Ledger == nil:
		return nil, errors.New("ledger is required")
	case params.Subscriptions == nil:
		return nil, errors.New("subscriptions are required")
	case params.Charges == nil:
		return nil, errors.New("charges are required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		tx:      params.TX,
		ledger:  params.Ledger,
		subs:    params.Subscriptions,
		charges: params.Charges,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     clock,
	}, nil
}

// Request asks for coverage of one charge.
type Request struct {
	Session *models.ProgramSession
	Charge  *models.SessionCharge
	// Mode defaults to the session's payment mode.
	Mode enums.PaymentMode
	// TokenType defaults to INDIVIDUAL.
	TokenType enums.TokenType
	// Strict turns a failed TOKEN or SUBSCRIPTION coverage into an error
	// instead of a pay-per-event fallback.
	Strict bool
	Actor  *outbox.ActorRef
}

// Result reports what coverage did to the charge.
type Result struct {
	Mode      enums.PaymentMode     `json:"mode"`
	Captured  bool                  `json:"captured"`
	Fallback  bool                  `json:"fallback"`
	Reason    pkgerrors.Code        `json:"reason,omitempty"`
	Charge    *models.SessionCharge `json:"charge"`
	SyncJobID uuid.UUID             `json:"sync_job_id"`
}

// Apply covers the charge with a token debit, an active subscription, or
// leaves it PENDING and queued for pay-per-event invoicing. Missing tokens or
// subscription fall back to invoicing unless the request is strict.
func (s *Service) Apply(ctx context.Context, req Request) (Result, error) {
	if req.Session == nil || req.Charge == nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "session and charge are required")
	}
	if req.Charge.SessionID != req.Session.ID || req.Charge.AgencyID != req.Session.AgencyID {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "charge does not belong to session")
	}
	mode := req.Mode
	if mode == "" {
		mode = req.Session.PaymentMode
	}
	if !mode.IsValid() {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid coverage mode")
	}
	if req.TokenType == "" {
		req.TokenType = enums.TokenTypeIndividual
	}

	if req.Charge.ChargeStatus == enums.ChargeStatusCaptured {
		s.metrics.IncCoverage(mode.String(), outcomeCovered)
		covered := mode
		if meta, ok := charges.DecodeCoverage(req.Charge.Metadata); ok {
			covered = meta.CoverageMode
		}
		return Result{Mode: covered, Captured: true, Charge: req.Charge}, nil
	}
	if req.Charge.ChargeStatus != enums.ChargeStatusPending {
		return Result{}, pkgerrors.New(pkgerrors.CodeStateConflict, "charge is not pending").
			WithDetails(map[string]any{"charge_status": req.Charge.ChargeStatus})
	}

	var (
		result Result
		err    error
	)
	switch mode {
	case enums.PaymentModeToken:
		result, err = s.coverWithToken(ctx, req)
	case enums.PaymentModeSubscription:
		result, err = s.coverWithSubscription(ctx, req)
	default:
		result, err = s.invoice(ctx, req, mode, "")
		if err == nil {
			s.metrics.IncCoverage(mode.String(), outcomeInvoiced)
		}
		return result, err
	}

	reason, soft := softFailure(err)
	if !soft {
		if err != nil {
			s.metrics.IncCoverage(mode.String(), outcomeRejected)
			return Result{}, err
		}
		s.metrics.IncCoverage(mode.String(), outcomeCaptured)
		return result, nil
	}
	if req.Strict {
		s.metrics.IncCoverage(mode.String(), outcomeRejected)
		return Result{}, err
	}

	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"agency_id":  req.Charge.AgencyID.String(),
		"charge_id":  req.Charge.ID.String(),
		"session_id": req.Session.ID.String(),
		"mode":       mode.String(),
		"reason":     string(reason),
	}), "coverage unavailable, charge left payable")
	result, err = s.invoice(ctx, req, mode, reason)
	if err != nil {
		return Result{}, err
	}
	s.metrics.IncCoverage(mode.String(), outcomeFallback)
	return result, nil
}

func (s *Service) coverWithToken(ctx context.Context, req Request) (Result, error) {
	var result Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.ensureInvoiceOpen(ctx, tx, req.Charge); err != nil {
			return err
		}
		entry, debited, err := s.ledger.DebitForSession(ctx, tx, ledger.DebitInput{
			AgencyID:  req.Session.AgencyID,
			ClientID:  req.Session.ClientID,
			SessionID: req.Session.ID,
			TokenType: req.TokenType,
		})
		if err != nil {
			return err
		}
		entryID := entry.ID
		return s.capture(ctx, tx, req, enums.PaymentModeToken, charges.CaptureInput{
			ChargeID:      req.Charge.ID,
			Mode:          enums.PaymentModeToken,
			LedgerEntryID: &entryID,
			PolicyRuleID:  req.Charge.BillingPolicyRuleID,
		}, debited, &result)
	})
	return result, err
}

func (s *Service) coverWithSubscription(ctx context.Context, req Request) (Result, error) {
	var result Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.ensureInvoiceOpen(ctx, tx, req.Charge); err != nil {
			return err
		}
		sub, err := s.subs.FindActiveForClientAt(ctx, tx, req.Session.AgencyID, req.Session.ClientID, req.Session.StartAtUTC)
		if err != nil {
			return err
		}
		if sub == nil {
			return pkgerrors.New(pkgerrors.CodeNoActiveSubscription, "no active subscription covers the session")
		}
		subID := sub.ID
		return s.capture(ctx, tx, req, enums.PaymentModeSubscription, charges.CaptureInput{
			ChargeID:       req.Charge.ID,
			Mode:           enums.PaymentModeSubscription,
			SubscriptionID: &subID,
			PolicyRuleID:   req.Charge.BillingPolicyRuleID,
		}, false, &result)
	})
	return result, err
}

// ensureInvoiceOpen refuses coverage once a pay-per-event invoice for the
// charge has been handed to the accounting connector. Covering it then would
// leave the client billed by both the invoice and the coverage.
func (s *Service) ensureInvoiceOpen(ctx context.Context, tx *gorm.DB, charge *models.SessionCharge) error {
	current, err := s.charges.Get(ctx, tx, charge.AgencyID, charge.ID)
	if err != nil {
		return err
	}
	if current.ChargeStatus != enums.ChargeStatusPending {
		// already covered; the capture path replays it
		return nil
	}
	dispatched, err := s.charges.InvoiceDispatched(ctx, tx, current)
	if err != nil {
		return err
	}
	if dispatched {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "charge already invoiced to accounting").
			WithDetails(map[string]any{"charge_id": charge.ID.String()})
	}
	return nil
}

// capture marks the charge covered and queues its reconciliation job. A debit
// written in this transaction must land on a still-pending charge, otherwise
// the transaction rolls back.
func (s *Service) capture(ctx context.Context, tx *gorm.DB, req Request, mode enums.PaymentMode, input charges.CaptureInput, debited bool, out *Result) error {
	input.At = s.now()
	ok, err := s.charges.Capture(ctx, tx, input)
	if err != nil {
		return err
	}
	if !ok && debited {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "charge changed during token coverage")
	}
	charge, err := s.charges.Get(ctx, tx, req.Charge.AgencyID, req.Charge.ID)
	if err != nil {
		return err
	}
	if charge.ChargeStatus != enums.ChargeStatusCaptured {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "charge left pending during coverage")
	}
	jobID, err := s.charges.EnqueueChargeCreated(ctx, tx, charge, mode, req.Actor)
	if err != nil {
		return err
	}
	*out = Result{Mode: mode, Captured: true, Charge: charge, SyncJobID: jobID}
	return nil
}

// invoice leaves the charge PENDING and queues it for pay-per-event invoicing.
func (s *Service) invoice(ctx context.Context, req Request, requested enums.PaymentMode, reason pkgerrors.Code) (Result, error) {
	var result Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		charge, err := s.charges.Get(ctx, tx, req.Charge.AgencyID, req.Charge.ID)
		if err != nil {
			return err
		}
		jobID, err := s.charges.EnqueueChargeCreated(ctx, tx, charge, enums.PaymentModePayPerEvent, req.Actor)
		if err != nil {
			return err
		}
		result = Result{
			Mode:      enums.PaymentModePayPerEvent,
			Captured:  charge.ChargeStatus == enums.ChargeStatusCaptured,
			Fallback:  requested != enums.PaymentModePayPerEvent,
			Reason:    reason,
			Charge:    charge,
			SyncJobID: jobID,
		}
		return nil
	})
	return result, err
}

func softFailure(err error) (pkgerrors.Code, bool) {
	switch {
	case err == nil:
		return "", false
	case pkgerrors.HasCode(err, pkgerrors.CodeInsufficientTokens):
		return pkgerrors.CodeInsufficientTokens, true
	case pkgerrors.HasCode(err, pkgerrors.CodeNoActiveSubscription):
		return pkgerrors.CodeNoActiveSubscription, true
	}
	return "", false
}
