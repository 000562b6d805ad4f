package learning

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/learnbill-backend/internal/charges"
	"github.com/angelmondragon/learnbill-backend/internal/coverage"
	"github.com/angelmondragon/learnbill-backend/internal/learning"
	"github.com/angelmondragon/learnbill-backend/internal/ledger"
	"github.com/angelmondragon/learnbill-backend/internal/paymentmethods"
	"github.com/angelmondragon/learnbill-backend/internal/renewals"
	"github.com/angelmondragon/learnbill-backend/internal/subscriptions"
	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
)

// Service describes the learning billing operations used by the HTTP controllers.
type Service interface {
	LinkOfficeEvent(ctx context.Context, req learning.LinkRequest) (*learning.LinkResult, error)
	GetSession(ctx context.Context, agencyID, sessionID uuid.UUID) (*learning.SessionDetail, error)
	UpdateSessionStatus(ctx context.Context, agencyID, sessionID uuid.UUID, status enums.SessionStatus) (*models.ProgramSession, error)

	ApplyCoverage(ctx context.Context, req learning.CoverageRequest) (coverage.Result, error)
	GetCharge(ctx context.Context, agencyID, chargeID uuid.UUID) (*models.SessionCharge, error)
	PayCharge(ctx context.Context, input charges.PaymentInput) (*models.Payment, error)
	FailCharge(ctx context.Context, agencyID, chargeID uuid.UUID, reason string) (*models.SessionCharge, error)
	PendingCharges(ctx context.Context, agencyID uuid.UUID, olderThan time.Duration, limit int) ([]models.SessionCharge, error)

	Balance(ctx context.Context, agencyID, clientID uuid.UUID) (ledger.Balance, error)
	LedgerEntries(ctx context.Context, agencyID, clientID uuid.UUID, limit int) ([]models.TokenLedgerEntry, error)
	AdminCredit(ctx context.Context, input ledger.CreditInput) (*models.TokenLedgerEntry, error)

	CreatePlan(ctx context.Context, input subscriptions.PlanInput) (*models.SubscriptionPlan, error)
	CreateSubscription(ctx context.Context, input subscriptions.CreateInput) (*models.Subscription, error)
	GetSubscription(ctx context.Context, agencyID, subscriptionID uuid.UUID) (*models.Subscription, error)
	TransitionSubscription(ctx context.Context, input subscriptions.TransitionInput) (*models.Subscription, error)
	ReplenishSubscription(ctx context.Context, agencyID, subscriptionID uuid.UUID, actorID *uuid.UUID) (renewals.Grant, error)
	RunRenewals(ctx context.Context, agencyID uuid.UUID, actorID *uuid.UUID, limit int) (renewals.RunResult, error)

	AddPaymentMethod(ctx context.Context, input paymentmethods.AddInput) (*models.PaymentMethod, error)
	ListPaymentMethods(ctx context.Context, agencyID, clientID uuid.UUID) ([]models.PaymentMethod, error)
	SetDefaultPaymentMethod(ctx context.Context, agencyID, methodID uuid.UUID) (*models.PaymentMethod, error)
}

var _ Service = (*learning.Service)(nil)
