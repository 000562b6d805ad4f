// Package renewals runs the scheduled subscription renewal pass.
//
// Each due subscription is renewed at most once per period boundary. The
// claim is a row in learning_subscription_renewal_locks keyed by subscription
// and period end; the insert that loses the unique-key race skips the
// subscription. A failed renewal leaves its lock FAILED for operators and is
// not retried by later passes, and its boundary no longer counts as due.
// Agencies whose learning billing is disabled are skipped whole.
package renewals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnbill-backend/internal/ledger"
	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnbill-backend/pkg/errors"
	"github.com/angelmondragon/learnbill-backend/pkg/instance"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
	"github.com/angelmondragon/learnbill-backend/pkg/metrics"
)

const defaultBatchLimit = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type subscriptionStore interface {
	ListDueAgencies(ctx context.Context) ([]uuid.UUID, error)
	ListDueForRenewal(ctx context.Context, agencyID *uuid.UUID, limit int) ([]models.Subscription, error)
	Plan(ctx context.Context, tx *gorm.DB, agencyID, planID uuid.UUID) (*models.SubscriptionPlan, error)
	Get(ctx context.Context, agencyID, subscriptionID uuid.UUID) (*models.Subscription, error)
	AdvancePeriod(ctx context.Context, tx *gorm.DB, sub *models.Subscription, plan *models.SubscriptionPlan) (time.Time, error)
}

type tokenCreditor interface {
	LockAccount(ctx context.Context, tx *gorm.DB, agencyID, clientID uuid.UUID) error
	Credit(ctx context.Context, tx *gorm.DB, input ledger.CreditInput) (*models.TokenLedgerEntry, error)
}

type agencyGate interface {
	LearningBillingEnabled(ctx context.Context, agencyID uuid.UUID) (bool, error)
}

type ServiceParams struct {
	Repo          Repository
	TX            txRunner
	Gate          agencyGate
	Subscriptions subscriptionStore
	Ledger        tokenCreditor
	Metrics       *metrics.BillingMetrics
	Logger        *logger.Logger
	RunnerID      string
	Clock         func() time.Time
}

type Service struct {
	repo     Repository
	tx       txRunner
	gate     agencyGate
	subs     subscriptionStore
	ledger   tokenCreditor
	metrics  *metrics.BillingMetrics
	logg     *logger.Logger
	runnerID string
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repo == nil:
		return nil, errors.New("repo is required")
	case params.TX == nil:
		return nil, errors.New("tx runner is required")
	case params.Gate == nil:
		return nil, errors.New("agency gate is required")
	case params.Subscriptions == nil:
		return nil, errors.New("subscriptions are required")
	case params.Ledger == nil:
		return nil, errors.New("ledger is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	}
	runner := params.RunnerID
	if runner == "" {
		runner = instance.GetID()
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:     params.Repo,
		tx:       params.TX,
		gate:     params.Gate,
		subs:     params.Subscriptions,
		ledger:   params.Ledger,
		metrics:  params.Metrics,
		logg:     params.Logger,
		runnerID: runner,
		now:      clock,
	}, nil
}

// LockKey identifies one renewal of sub at the period boundary periodEnd.
func LockKey(subscriptionID uuid.UUID, periodEnd time.Time) string {
	return fmt.Sprintf("renewal:%s:%s", subscriptionID, periodEnd.UTC().Format(time.RFC3339))
}

// RunResult summarises one renewal pass.
type RunResult struct {
	Scanned int `json:"scanned"`
	Renewed int `json:"renewed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	// DisabledAgencies counts agencies with due subscriptions that were
	// skipped because learning billing is off for them.
	DisabledAgencies int `json:"disabled_agencies"`
}

// Grant is the token credit written for one renewal.
type Grant struct {
	SubscriptionID  uuid.UUID   `json:"subscription_id"`
	IndividualCount int64       `json:"individual_tokens"`
	GroupCount      int64       `json:"group_tokens"`
	EntryIDs        []uuid.UUID `json:"ledger_entry_ids"`
}

type lockResult struct {
	Grant
	PreviousPeriodEnd time.Time `json:"previous_period_end"`
	NewPeriodEnd      time.Time `json:"new_period_end"`
}

// RunDueRenewals renews every due subscription up to limit. A nil agencyID
// spans every agency. Per-subscription failures are counted and returned
// together; they never stop the pass.
func (s *Service) RunDueRenewals(ctx context.Context, agencyID *uuid.UUID, actorID *uuid.UUID, limit int) (RunResult, error) {
	if limit <= 0 {
		limit = defaultBatchLimit
	}
	agencies := []uuid.UUID{}
	if agencyID != nil {
		agencies = append(agencies, *agencyID)
	} else {
		ids, err := s.subs.ListDueAgencies(ctx)
		if err != nil {
			return RunResult{}, err
		}
		agencies = ids
	}

	var (
		result RunResult
		errs   error
	)
	remaining := limit
	for _, id := range agencies {
		if remaining <= 0 {
			break
		}
		enabled, err := s.gate.LearningBillingEnabled(ctx, id)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("agency %s: %w", id, err))
			continue
		}
		if !enabled {
			result.DisabledAgencies++
			s.logg.Warn(s.logg.WithAgencyID(ctx, id.String()), "renewals skipped, learning billing disabled")
			continue
		}

		agency := id
		due, err := s.subs.ListDueForRenewal(ctx, &agency, remaining)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("agency %s: %w", id, err))
			continue
		}
		remaining -= len(due)
		result.Scanned += len(due)
		for i := range due {
			renewed, err := s.renew(ctx, &due[i], actorID)
			switch {
			case err != nil:
				result.Failed++
				errs = multierr.Append(errs, fmt.Errorf("subscription %s: %w", due[i].ID, err))
			case renewed:
				result.Renewed++
			default:
				result.Skipped++
			}
		}
	}

	s.metrics.AddRenewals("renewed", result.Renewed)
	s.metrics.AddRenewals("skipped", result.Skipped)
	s.metrics.AddRenewals("failed", result.Failed)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"runner_id":         s.runnerID,
		"scanned":           result.Scanned,
		"renewed":           result.Renewed,
		"skipped":           result.Skipped,
		"failed":            result.Failed,
		"disabled_agencies": result.DisabledAgencies,
	}), "renewal pass finished")
	return result, errs
}

func (s *Service) renew(ctx context.Context, sub *models.Subscription, actorID *uuid.UUID) (bool, error) {
	lock := &models.RenewalLock{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		PeriodEndAt:    sub.CurrentPeriodEnd.UTC(),
		LockKey:        LockKey(sub.ID, sub.CurrentPeriodEnd),
		Status:         enums.RenewalLockRunning,
		RunnerID:       s.runnerID,
	}
	acquired, err := s.repo.Acquire(ctx, lock)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire renewal lock")
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"subscription_id": sub.ID.String(),
		"agency_id":       sub.AgencyID.String(),
		"lock_key":        lock.LockKey,
	})
	if !acquired {
		s.logg.Debug(logCtx, "renewal already claimed")
		return false, nil
	}

	var out lockResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		plan, err := s.subs.Plan(ctx, tx, sub.AgencyID, sub.PlanID)
		if err != nil {
			return err
		}
		grant, err := s.grant(ctx, tx, sub, plan, enums.LedgerReasonSubscriptionRenewal, actorID)
		if err != nil {
			return err
		}
		end, err := s.subs.AdvancePeriod(ctx, tx, sub, plan)
		if err != nil {
			return err
		}
		out = lockResult{Grant: grant, PreviousPeriodEnd: sub.CurrentPeriodEnd.UTC(), NewPeriodEnd: end}
		snapshot, err := json.Marshal(out)
		if err != nil {
			return err
		}
		return s.repo.WithTx(tx).Finish(ctx, lock.ID, enums.RenewalLockCompleted, snapshot, nil, s.now())
	})
	if err != nil {
		msg := err.Error()
		if finishErr := s.repo.Finish(ctx, lock.ID, enums.RenewalLockFailed, nil, &msg, s.now()); finishErr != nil {
			err = multierr.Append(err, finishErr)
		}
		s.logg.Error(logCtx, "subscription renewal failed", err)
		return false, err
	}

	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"individual_tokens": out.IndividualCount,
		"group_tokens":      out.GroupCount,
		"new_period_end":    out.NewPeriodEnd.Format(time.RFC3339),
	}), "subscription renewed")
	return true, nil
}

// grant credits the plan's included tokens. Zero quantities are skipped.
func (s *Service) grant(ctx context.Context, tx *gorm.DB, sub *models.Subscription, plan *models.SubscriptionPlan, reason enums.LedgerReason, actorID *uuid.UUID) (Grant, error) {
	out := Grant{SubscriptionID: sub.ID, EntryIDs: []uuid.UUID{}}
	if err := s.ledger.LockAccount(ctx, tx, sub.AgencyID, sub.ClientID); err != nil {
		return out, err
	}
	subID := sub.ID
	buckets := []struct {
		tokenType enums.TokenType
		quantity  int64
		count     *int64
	}{
		{enums.TokenTypeIndividual, plan.IncludedIndividualTokens, &out.IndividualCount},
		{enums.TokenTypeGroup, plan.IncludedGroupTokens, &out.GroupCount},
	}
	for _, b := range buckets {
		if b.quantity <= 0 {
			continue
		}
		entry, err := s.ledger.Credit(ctx, tx, ledger.CreditInput{
			AgencyID:       sub.AgencyID,
			ClientID:       sub.ClientID,
			TokenType:      b.tokenType,
			Quantity:       b.quantity,
			Reason:         reason,
			SubscriptionID: &subID,
			ActorUserID:    actorID,
		})
		if err != nil {
			return out, err
		}
		*b.count = b.quantity
		out.EntryIDs = append(out.EntryIDs, entry.ID)
	}
	return out, nil
}

// ReplenishForSubscription credits the plan's tokens immediately without
// touching the period. Each call writes new credits.
func (s *Service) ReplenishForSubscription(ctx context.Context, agencyID, subscriptionID uuid.UUID, actorID *uuid.UUID) (Grant, error) {
	sub, err := s.subs.Get(ctx, agencyID, subscriptionID)
	if err != nil {
		return Grant{}, err
	}
	if sub.Status != enums.SubscriptionStatusActive {
		return Grant{}, pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is not active").
			WithDetails(map[string]any{"status": sub.Status})
	}
	var out Grant
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		plan, err := s.subs.Plan(ctx, tx, sub.AgencyID, sub.PlanID)
		if err != nil {
			return err
		}
		out, err = s.grant(ctx, tx, sub, plan, enums.LedgerReasonSubscriptionReplenish, actorID)
		return err
	})
	if err != nil {
		return Grant{}, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"subscription_id":   sub.ID.String(),
		"individual_tokens": out.IndividualCount,
		"group_tokens":      out.GroupCount,
	}), "subscription replenished")
	return out, nil
}
