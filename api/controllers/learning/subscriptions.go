package learning

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/learnbill-backend/api/middleware"
	"github.com/angelmondragon/learnbill-backend/api/responses"
	"github.com/angelmondragon/learnbill-backend/api/validators"
	"github.com/angelmondragon/learnbill-backend/internal/subscriptions"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnbill-backend/pkg/errors"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
)

const (
	renewalRunDefaultLimit = 0
	renewalRunMaxLimit     = 1000
)

type planCreateRequest struct {
	Name                     string `json:"name" validate:"required,max=120"`
	IncludedIndividualTokens int64  `json:"included_individual_tokens" validate:"gte=0"`
	IncludedGroupTokens      int64  `json:"included_group_tokens" validate:"gte=0"`
	PeriodDays               int    `json:"period_days" validate:"gte=0"`
	PriceCents               int64  `json:"price_cents" validate:"gte=0"`
	Currency                 string `json:"currency,omitempty" validate:"omitempty,len=3"`
}

type subscriptionCreateRequest struct {
	PlanID         uuid.UUID  `json:"plan_id" validate:"required"`
	ClientID       uuid.UUID  `json:"client_id" validate:"required"`
	GuardianUserID *uuid.UUID `json:"guardian_user_id,omitempty"`
	StartAt        *time.Time `json:"start_at,omitempty"`
	AutoRenew      *bool      `json:"auto_renew,omitempty"`
}

type subscriptionStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func CreatePlan(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "learning service unavailable"))
			return
		}

		agencyID, err := agencyFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload planCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		plan, err := svc.CreatePlan(ctx, subscriptions.PlanInput{
			AgencyID:                 agencyID,
			Name:                     validators.SanitizeString(payload.Name, 120),
			IncludedIndividualTokens: payload.IncludedIndividualTokens,
			IncludedGroupTokens:      payload.IncludedGroupTokens,
			PeriodDays:               payload.PeriodDays,
			PriceCents:               payload.PriceCents,
			Currency:                 strings.ToLower(strings.TrimSpace(payload.Currency)),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPlanResponse(plan))
	}
}

func CreateSubscription(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "learning service unavailable"))
			return
		}

		agencyID, err := agencyFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload subscriptionCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		input := subscriptions.CreateInput{
			AgencyID:       agencyID,
			PlanID:         payload.PlanID,
			ClientID:       payload.ClientID,
			GuardianUserID: payload.GuardianUserID,
			AutoRenew:      payload.AutoRenew,
		}
		if payload.StartAt != nil {
			input.StartAt = *payload.StartAt
		}

		sub, err := svc.CreateSubscription(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newSubscriptionResponse(sub))
	}
}

func GetSubscription(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "learning service unavailable"))
			return
		}

		agencyID, err := agencyFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		subscriptionID, err := pathUUID(r, "subscriptionId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sub, err := svc.GetSubscription(ctx, agencyID, subscriptionID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

// TransitionSubscription pauses, resumes, cancels, or expires a subscription.
// Guardians are limited to pausing or cancelling their own.
func TransitionSubscription(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "learning service unavailable"))
			return
		}

		agencyID, err := agencyFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		subscriptionID, err := pathUUID(r, "subscriptionId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		userID, ok := middleware.UserUUID(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context required"))
			return
		}
		role, err := enums.ParseMemberRole(middleware.RoleFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "invalid role"))
			return
		}

		var payload subscriptionStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		status, err := enums.ParseSubscriptionStatus(strings.TrimSpace(payload.Status))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		sub, err := svc.TransitionSubscription(ctx, subscriptions.TransitionInput{
			AgencyID:       agencyID,
			SubscriptionID: subscriptionID,
			Status:         status,
			ActorUserID:    userID,
			ActorRole:      role,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

// ReplenishSubscription grants the plan's tokens for the current period
// outside the renewal schedule.
func ReplenishSubscription(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "learning service unavailable"))
			return
		}

		agencyID, err := agencyFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		subscriptionID, err := pathUUID(r, "subscriptionId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		grant, err := svc.ReplenishSubscription(ctx, agencyID, subscriptionID, actorUserID(r))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, grant)
	}
}

// RunRenewals renews the agency's due subscriptions now. The limit query
// parameter caps the batch; zero uses the configured default.
func RunRenewals(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "learning service unavailable"))
			return
		}

		agencyID, err := agencyFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", renewalRunDefaultLimit, 0, renewalRunMaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.RunRenewals(ctx, agencyID, actorUserID(r), limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
