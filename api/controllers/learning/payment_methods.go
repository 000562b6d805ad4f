package learning

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/learnbill-backend/api/responses"
	"github.com/angelmondragon/learnbill-backend/api/validators"
	"github.com/angelmondragon/learnbill-backend/internal/paymentmethods"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnbill-backend/pkg/errors"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
)

type paymentMethodCreateRequest struct {
	Type      string `json:"type" validate:"required"`
	TokenRef  string `json:"token_ref" validate:"required,max=255"`
	Brand     string `json:"card_brand,omitempty" validate:"max=32"`
	Last4     string `json:"card_last4,omitempty" validate:"omitempty,len=4,numeric"`
	ExpMonth  int    `json:"card_exp_month,omitempty" validate:"omitempty,min=1,max=12"`
	ExpYear   int    `json:"card_exp_year,omitempty" validate:"omitempty,min=2000"`
	IsDefault bool   `json:"is_default,omitempty"`
}

type paymentMethodListResponse struct {
	Methods []paymentMethodResponse `json:"payment_methods"`
}

// AddPaymentMethod stores a tokenized card or bank account for a client.
func AddPaymentMethod(svc Service, logg *logger.Logger) http.HandlerFunc {
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
		clientID, err := pathUUID(r, "clientId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload paymentMethodCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		methodType, err := enums.ParsePaymentMethodType(strings.TrimSpace(payload.Type))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid type"))
			return
		}

		method, err := svc.AddPaymentMethod(ctx, paymentmethods.AddInput{
			AgencyID:  agencyID,
			ClientID:  clientID,
			Type:      methodType,
			TokenRef:  strings.TrimSpace(payload.TokenRef),
			Brand:     validators.SanitizeString(payload.Brand, 32),
			Last4:     strings.TrimSpace(payload.Last4),
			ExpMonth:  payload.ExpMonth,
			ExpYear:   payload.ExpYear,
			IsDefault: payload.IsDefault,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPaymentMethodResponse(method))
	}
}

func ListPaymentMethods(svc Service, logg *logger.Logger) http.HandlerFunc {
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
		clientID, err := pathUUID(r, "clientId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		methods, err := svc.ListPaymentMethods(ctx, agencyID, clientID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		out := make([]paymentMethodResponse, 0, len(methods))
		for i := range methods {
			out = append(out, newPaymentMethodResponse(&methods[i]))
		}
		responses.WriteSuccess(w, paymentMethodListResponse{Methods: out})
	}
}

func SetDefaultPaymentMethod(svc Service, logg *logger.Logger) http.HandlerFunc {
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
		methodID, err := pathUUID(r, "methodId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		method, err := svc.SetDefaultPaymentMethod(ctx, agencyID, methodID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentMethodResponse(method))
	}
}
