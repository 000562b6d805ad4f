package subscriptions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnbill-backend/pkg/errors"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
)

const defaultPeriodDays = 30

type ServiceParams struct {
	Repo       Repository
	Logger     *logger.Logger
	PeriodDays int
	Clock      func() time.Time
}

// Service manages learning subscription plans and subscription lifecycle.
type Service struct {
	repo       Repository
	logg       *logger.Logger
	periodDays int
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	days := params.PeriodDays
	if days <= 0 {
		days = defaultPeriodDays
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{repo: params.Repo, logg: params.Logger, periodDays: days, now: clock}, nil
}

// PlanInput defines a subscription plan.
type PlanInput struct {
	AgencyID                 uuid.UUID
	Name                     string
	IncludedIndividualTokens int64
	IncludedGroupTokens      int64
	PeriodDays               int
	PriceCents               int64
	Currency                 string
}

func (s *Service) CreatePlan(ctx context.Context, input PlanInput) (*models.SubscriptionPlan, error) {
	switch {
	case input.AgencyID == uuid.Nil || strings.TrimSpace(input.Name) == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agency id and name are required")
	case input.IncludedIndividualTokens < 0 || input.IncludedGroupTokens < 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "included tokens must be non-negative")
	case input.PriceCents < 0 || input.PeriodDays < 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price and period must be non-negative")
	}
	days := input.PeriodDays
	if days == 0 {
		days = s.periodDays
	}
	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = enums.CurrencyUSD.String()
	}
	plan := &models.SubscriptionPlan{
		AgencyID:                 input.AgencyID,
		Name:                     strings.TrimSpace(input.Name),
		IncludedIndividualTokens: input.IncludedIndividualTokens,
		IncludedGroupTokens:      input.IncludedGroupTokens,
		PeriodDays:               days,
		PriceCents:               input.PriceCents,
		Currency:                 currency,
		Active:                   true,
	}
	if err := s.repo.CreatePlan(ctx, plan); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription plan")
	}
	return plan, nil
}

// Plan loads a plan. tx may be nil.
func (s *Service) Plan(ctx context.Context, tx *gorm.DB, agencyID, planID uuid.UUID) (*models.SubscriptionPlan, error) {
	plan, err := s.repo.WithTx(tx).FindPlan(ctx, agencyID, planID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription plan")
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription plan not found")
	}
	return plan, nil
}

// PeriodOf is the length of one billing period of plan.
func (s *Service) PeriodOf(plan *models.SubscriptionPlan) time.Duration {
	days := s.periodDays
	if plan != nil && plan.PeriodDays > 0 {
		days = plan.PeriodDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// CreateInput starts a subscription for a client.
type CreateInput struct {
	AgencyID       uuid.UUID
	PlanID         uuid.UUID
	ClientID       uuid.UUID
	GuardianUserID *uuid.UUID
	StartAt        time.Time
	AutoRenew      *bool
}

// Create starts an ACTIVE subscription. A client may hold only one active
// subscription covering the start instant.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Subscription, error) {
	if input.AgencyID == uuid.Nil || input.ClientID == uuid.Nil || input.PlanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agency id, client id and plan id are required")
	}
	plan, err := s.Plan(ctx, nil, input.AgencyID, input.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "subscription plan is inactive")
	}

	start := input.StartAt
	if start.IsZero() {
		start = s.now()
	}
	start = start.UTC()

	current, err := s.FindActiveForClientAt(ctx, nil, input.AgencyID, input.ClientID, start)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "client already has an active subscription").
			WithDetails(map[string]any{"subscription_id": current.ID})
	}

	autoRenew := true
	if input.AutoRenew != nil {
		autoRenew = *input.AutoRenew
	}
	sub := &models.Subscription{
		ID:                 uuid.New(),
		AgencyID:           input.AgencyID,
		PlanID:             plan.ID,
		ClientID:           input.ClientID,
		GuardianUserID:     input.GuardianUserID,
		Status:             enums.SubscriptionStatusActive,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   start.Add(s.PeriodOf(plan)),
		AutoRenew:          autoRenew,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"agency_id":       sub.AgencyID.String(),
		"client_id":       sub.ClientID.String(),
		"subscription_id": sub.ID.String(),
	}), "subscription created")
	return sub, nil
}

func (s *Service) Get(ctx context.Context, agencyID, subscriptionID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.repo.FindByID(ctx, agencyID, subscriptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return sub, nil
}

// FindActiveForClientAt returns the client's current subscription at the
// instant, or nil. tx may be nil.
func (s *Service) FindActiveForClientAt(ctx context.Context, tx *gorm.DB, agencyID, clientID uuid.UUID, at time.Time) (*models.Subscription, error) {
	sub, err := s.repo.WithTx(tx).FindActiveForClientAt(ctx, agencyID, clientID, at)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup active subscription")
	}
	return sub, nil
}

// TransitionInput requests a status change on behalf of an actor.
type TransitionInput struct {
	AgencyID       uuid.UUID
	SubscriptionID uuid.UUID
	Status         enums.SubscriptionStatus
	ActorUserID    uuid.UUID
	ActorRole      enums.MemberRole
}

// TransitionStatus applies a lifecycle change. Guardians may only pause or
// cancel subscriptions they hold.
func (s *Service) TransitionStatus(ctx context.Context, input TransitionInput) (*models.Subscription, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid subscription status")
	}
	sub, err := s.Get(ctx, input.AgencyID, input.SubscriptionID)
	if err != nil {
		return nil, err
	}

	if input.ActorRole == enums.MemberRoleGuardian {
		if input.Status != enums.SubscriptionStatusPaused && input.Status != enums.SubscriptionStatusCancelled {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "guardians may only pause or cancel")
		}
		if sub.GuardianUserID == nil || *sub.GuardianUserID != input.ActorUserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "subscription belongs to another guardian")
		}
	}

	if sub.Status == input.Status {
		return sub, nil
	}
	if !sub.Status.CanTransitionTo(input.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "subscription status transition not allowed").
			WithDetails(map[string]any{"from": sub.Status, "to": input.Status})
	}

	now := s.now()
	updates := map[string]any{"updated_at": now}
	if input.Status == enums.SubscriptionStatusCancelled {
		updates["cancelled_at"] = now
		updates["auto_renew"] = false
	}
	ok, err := s.repo.UpdateStatus(ctx, sub.ID, sub.Status, input.Status, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription status")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "subscription status changed concurrently")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"agency_id":       sub.AgencyID.String(),
		"subscription_id": sub.ID.String(),
		"from":            sub.Status.String(),
		"to":              input.Status.String(),
		"actor_role":      input.ActorRole.String(),
	}), "subscription status changed")
	return s.Get(ctx, input.AgencyID, input.SubscriptionID)
}

// ListDueForRenewal returns ACTIVE auto-renewing subscriptions whose period
// has ended. A nil agencyID spans every agency.
func (s *Service) ListDueForRenewal(ctx context.Context, agencyID *uuid.UUID, limit int) ([]models.Subscription, error) {
	subs, err := s.repo.ListDueForRenewal(ctx, agencyID, s.now(), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due subscriptions")
	}
	return subs, nil
}

// ListDueAgencies returns every agency with a subscription due for renewal.
func (s *Service) ListDueAgencies(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := s.repo.ListDueAgencies(ctx, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list agencies with due subscriptions")
	}
	return ids, nil
}

// AdvancePeriod moves sub one period forward from its current end inside tx.
// It returns the new end, or an error if another writer moved it first.
func (s *Service) AdvancePeriod(ctx context.Context, tx *gorm.DB, sub *models.Subscription, plan *models.SubscriptionPlan) (time.Time, error) {
	start := sub.CurrentPeriodEnd.UTC()
	end := start.Add(s.PeriodOf(plan))
	ok, err := s.repo.WithTx(tx).AdvancePeriod(ctx, sub.ID, sub.CurrentPeriodEnd, start, end, s.now())
	if err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance subscription period")
	}
	if !ok {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeStateConflict, "subscription period already advanced")
	}
	return end, nil
}
