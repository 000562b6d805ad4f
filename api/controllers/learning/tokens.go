package learning

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/learnbill-backend/api/responses"
	"github.com/angelmondragon/learnbill-backend/api/validators"
	"github.com/angelmondragon/learnbill-backend/internal/ledger"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnbill-backend/pkg/errors"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
)

const (
	ledgerDefaultLimit = 100
	ledgerMaxLimit     = 500
)

type creditRequest struct {
	TokenType string          `json:"token_type" validate:"required"`
	Quantity  int64           `json:"quantity" validate:"required,gt=0"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	Note      string          `json:"note,omitempty" validate:"max=500"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

type balanceResponse struct {
	ClientID   string `json:"client_id"`
	Individual int64  `json:"individual"`
	Group      int64  `json:"group"`
}

type ledgerEntriesResponse struct {
	Entries []ledgerEntryResponse `json:"entries"`
}

func Balance(svc Service, logg *logger.Logger) http.HandlerFunc {
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

		balance, err := svc.Balance(ctx, agencyID, clientID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, balanceResponse{
			ClientID:   clientID.String(),
			Individual: balance.Individual,
			Group:      balance.Group,
		})
	}
}

func LedgerEntries(svc Service, logg *logger.Logger) http.HandlerFunc {
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
		limit, err := validators.ParseQueryInt(r, "limit", ledgerDefaultLimit, 1, ledgerMaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		entries, err := svc.LedgerEntries(ctx, agencyID, clientID, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		out := make([]ledgerEntryResponse, 0, len(entries))
		for i := range entries {
			out = append(out, newLedgerEntryResponse(&entries[i]))
		}
		responses.WriteSuccess(w, ledgerEntriesResponse{Entries: out})
	}
}

// AdminCredit grants tokens manually. The entry is recorded with the
// MANUAL_ADMIN_CREDIT reason and the calling admin as actor.
func AdminCredit(svc Service, logg *logger.Logger) http.HandlerFunc {
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

		var payload creditRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		tokenType, err := enums.ParseTokenType(strings.TrimSpace(payload.TokenType))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid token_type"))
			return
		}

		metadata := payload.Metadata
		if note := validators.SanitizeString(payload.Note, 500); note != "" && len(metadata) == 0 {
			metadata, _ = json.Marshal(map[string]string{"note": note})
		}

		entry, err := svc.AdminCredit(ctx, ledger.CreditInput{
			AgencyID:    agencyID,
			ClientID:    clientID,
			TokenType:   tokenType,
			Quantity:    payload.Quantity,
			Reason:      enums.LedgerReasonManualAdminCredit,
			ActorUserID: actorUserID(r),
			ExpiresAt:   payload.ExpiresAt,
			Metadata:    metadata,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newLedgerEntryResponse(entry))
	}
}
