package learning

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/learnbill-backend/api/middleware"
	pkgerrors "github.com/angelmondragon/learnbill-backend/pkg/errors"
	"github.com/angelmondragon/learnbill-backend/pkg/outbox"
)

func agencyFromRequest(r *http.Request) (uuid.UUID, error) {
	id, ok := middleware.AgencyUUID(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "agency context required")
	}
	return id, nil
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid path parameter").
			WithDetails(map[string]any{"field": param})
	}
	return id, nil
}

// actorFromRequest returns the caller as recorded on ledger entries and
// sync jobs. Requests without a parsable user id carry no actor.
func actorFromRequest(r *http.Request) *outbox.ActorRef {
	userID, ok := middleware.UserUUID(r.Context())
	if !ok {
		return nil
	}
	return &outbox.ActorRef{UserID: userID, Role: middleware.RoleFromContext(r.Context())}
}

func actorUserID(r *http.Request) *uuid.UUID {
	userID, ok := middleware.UserUUID(r.Context())
	if !ok {
		return nil
	}
	return &userID
}
