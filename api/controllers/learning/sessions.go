package learning

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/learnbill-backend/api/responses"
	"github.com/angelmondragon/learnbill-backend/api/validators"
	"github.com/angelmondragon/learnbill-backend/internal/learning"
	"github.com/angelmondragon/learnbill-backend/internal/sessions"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnbill-backend/pkg/errors"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
)

type linkSessionRequest struct {
	Event             sessions.OfficeEvent `json:"event"`
	ClientID          uuid.UUID            `json:"client_id" validate:"required"`
	OrganizationID    *uuid.UUID           `json:"organization_id,omitempty"`
	GuardianUserID    *uuid.UUID           `json:"guardian_user_id,omitempty"`
	LearningServiceID *uuid.UUID           `json:"learning_service_id,omitempty"`
	PaymentMode       string               `json:"payment_mode" validate:"required"`
	CredentialTier    string               `json:"credential_tier,omitempty" validate:"max=64"`
	TokenType         string               `json:"token_type,omitempty"`
	StrictCoverage    bool                 `json:"strict_coverage,omitempty"`
}

type linkSessionResponse struct {
	Session        *sessionResponse   `json:"session"`
	SessionCreated bool               `json:"session_created"`
	Charge         *chargeResponse    `json:"charge,omitempty"`
	ChargeCreated  bool               `json:"charge_created"`
	Coverage       *coverageResponse  `json:"coverage,omitempty"`
	ChargeError    *responses.APIError `json:"charge_error,omitempty"`
}

type sessionDetailResponse struct {
	Session *sessionResponse `json:"session"`
	Charges []chargeResponse `json:"charges"`
}

type sessionStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// LinkSession links a booked office event to a program session and bills it.
func LinkSession(svc Service, logg *logger.Logger) http.HandlerFunc {
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

		var payload linkSessionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		mode, err := enums.ParsePaymentMode(strings.TrimSpace(payload.PaymentMode))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_mode"))
			return
		}
		tokenType, err := parseOptionalTokenType(payload.TokenType)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.LinkOfficeEvent(ctx, learning.LinkRequest{
			LinkInput: sessions.LinkInput{
				AgencyID:          agencyID,
				OrganizationID:    payload.OrganizationID,
				Event:             payload.Event,
				ClientID:          payload.ClientID,
				GuardianUserID:    payload.GuardianUserID,
				LearningServiceID: payload.LearningServiceID,
				PaymentMode:       mode,
				CredentialTier:    validators.SanitizeString(payload.CredentialTier, 64),
			},
			TokenType:      tokenType,
			StrictCoverage: payload.StrictCoverage,
			Actor:          actorFromRequest(r),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := linkSessionResponse{
			Session:        newSessionResponse(result.Session),
			SessionCreated: result.SessionCreated,
			Charge:         newChargeResponse(result.Charge),
			ChargeCreated:  result.ChargeCreated,
			Coverage:       newCoverageResponse(result.Coverage),
		}
		if result.ChargeError != nil {
			body := responses.ErrorBody(result.ChargeError)
			resp.ChargeError = &body.Error
		}

		status := http.StatusOK
		if result.SessionCreated {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, resp)
	}
}

func GetSession(svc Service, logg *logger.Logger) http.HandlerFunc {
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
		sessionID, err := pathUUID(r, "sessionId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		detail, err := svc.GetSession(ctx, agencyID, sessionID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, sessionDetailResponse{
			Session: newSessionResponse(detail.Session),
			Charges: newChargeResponses(detail.Charges),
		})
	}
}

func UpdateSessionStatus(svc Service, logg *logger.Logger) http.HandlerFunc {
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
		sessionID, err := pathUUID(r, "sessionId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload sessionStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		status, err := enums.ParseSessionStatus(strings.TrimSpace(payload.Status))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		session, err := svc.UpdateSessionStatus(ctx, agencyID, sessionID, status)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSessionResponse(session))
	}
}

func parseOptionalTokenType(raw string) (enums.TokenType, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	tokenType, err := enums.ParseTokenType(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid token_type")
	}
	return tokenType, nil
}
