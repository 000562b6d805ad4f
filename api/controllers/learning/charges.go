package learning

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/learnbill-backend/api/responses"
	"github.com/angelmondragon/learnbill-backend/api/validators"
	"github.com/angelmondragon/learnbill-backend/internal/charges"
	"github.com/angelmondragon/learnbill-backend/internal/learning"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnbill-backend/pkg/errors"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
)

const (
	pendingDefaultLimit = 100
	pendingMaxLimit     = 500
	pendingMaxAge       = 90 * 24 * time.Hour
)

type coverageRequest struct {
	Mode      string `json:"mode,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Strict    bool   `json:"strict,omitempty"`
}

type payChargeRequest struct {
	PaymentMethodID *uuid.UUID `json:"payment_method_id,omitempty"`
}

type failChargeRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type pendingChargesResponse struct {
	Charges []chargeResponse `json:"charges"`
}

// ApplyCoverage applies TOKEN, SUBSCRIPTION, or PAY_PER_EVENT coverage to a
// pending charge. An empty mode uses the session's payment mode.
func ApplyCoverage(svc Service, logg *logger.Logger) http.HandlerFunc {
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
		chargeID, err := pathUUID(r, "chargeId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload coverageRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var mode enums.PaymentMode
		if raw := strings.TrimSpace(payload.Mode); raw != "" {
			mode, err = enums.ParsePaymentMode(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid mode"))
				return
			}
		}
		tokenType, err := parseOptionalTokenType(payload.TokenType)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.ApplyCoverage(ctx, learning.CoverageRequest{
			AgencyID:  agencyID,
			ChargeID:  chargeID,
			Mode:      mode,
			TokenType: tokenType,
			Strict:    payload.Strict,
			Actor:     actorFromRequest(r),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCoverageResponse(&result))
	}
}

func GetCharge(svc Service, logg *logger.Logger) http.HandlerFunc {
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
		chargeID, err := pathUUID(r, "chargeId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		charge, err := svc.GetCharge(ctx, agencyID, chargeID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newChargeResponse(charge))
	}
}

// PayCharge captures a payable charge through the card-on-file flow.
func PayCharge(svc Service, logg *logger.Logger) http.HandlerFunc {
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
		chargeID, err := pathUUID(r, "chargeId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload payChargeRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		payment, err := svc.PayCharge(ctx, charges.PaymentInput{
			AgencyID:        agencyID,
			ChargeID:        chargeID,
			PaymentMethodID: payload.PaymentMethodID,
			Actor:           actorFromRequest(r),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPaymentResponse(payment))
	}
}

func FailCharge(svc Service, logg *logger.Logger) http.HandlerFunc {
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
		chargeID, err := pathUUID(r, "chargeId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload failChargeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		charge, err := svc.FailCharge(ctx, agencyID, chargeID, payload.Reason)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newChargeResponse(charge))
	}
}

// PendingCharges lists PENDING charges older than the older_than query
// duration (default 0, every pending charge).
func PendingCharges(svc Service, logg *logger.Logger) http.HandlerFunc {
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

		olderThan, err := validators.ParseQueryDuration(r, "older_than", 0, 0, pendingMaxAge)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pendingDefaultLimit, 1, pendingMaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		list, err := svc.PendingCharges(ctx, agencyID, olderThan, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, pendingChargesResponse{Charges: newChargeResponses(list)})
	}
}
