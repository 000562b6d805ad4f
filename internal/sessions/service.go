package sessions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnbill-backend/pkg/db"
	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnbill-backend/pkg/errors"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
	"github.com/angelmondragon/learnbill-backend/pkg/wallclock"
)

const officeEventConstraint = "learning_program_sessions_office_event_id_key"

// LinkInput links one booked office event to a client.
type LinkInput struct {
	AgencyID          uuid.UUID
	OrganizationID    *uuid.UUID
	Event             OfficeEvent
	ClientID          uuid.UUID
	GuardianUserID    *uuid.UUID
	LearningServiceID *uuid.UUID
	PaymentMode       enums.PaymentMode
	CredentialTier    string
}

type ServiceParams struct {
	Repo   Repository
	Logger *logger.Logger
	Clock  func() time.Time
}

type Service struct {
	repo Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{repo: params.Repo, logg: params.Logger, now: clock}, nil
}

// CreateFromOfficeEvent returns the session linked to the event, creating it
// when none exists. created is false when an earlier call (or a concurrent
// one) already linked the event.
func (s *Service) CreateFromOfficeEvent(ctx context.Context, tx *gorm.DB, input LinkInput) (*models.ProgramSession, bool, error) {
	if err := validateLink(input); err != nil {
		return nil, false, err
	}
	repo := s.repo.WithTx(tx)

	existing, err := repo.FindByOfficeEvent(ctx, input.Event.ID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup session by office event")
	}
	if existing != nil {
		if existing.AgencyID != input.AgencyID {
			return nil, false, pkgerrors.New(pkgerrors.CodeConflict, "office event is linked to another agency")
		}
		return existing, false, nil
	}

	if !IsBookedOfficeEvent(input.Event) {
		return nil, false, pkgerrors.New(pkgerrors.CodeStateConflict, "office event is not booked").
			WithDetails(map[string]any{
				"status":     input.Event.Status,
				"slot_state": input.Event.SlotState,
			})
	}

	startUTC, err := wallclock.ToUTC(input.Event.StartAt, input.Event.Timezone)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event start")
	}
	endUTC, err := wallclock.ToUTC(input.Event.EndAt, input.Event.Timezone)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event end")
	}
	if !endUTC.After(startUTC) {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "event must end after it starts")
	}

	eventID := input.Event.ID
	session := &models.ProgramSession{
		ID:                 uuid.New(),
		AgencyID:           input.AgencyID,
		OrganizationID:     input.OrganizationID,
		OfficeEventID:      &eventID,
		ClientID:           input.ClientID,
		GuardianUserID:     input.GuardianUserID,
		AssignedProviderID: input.Event.BookedProviderID,
		LearningServiceID:  input.LearningServiceID,
		ServiceCode:        normalizeCode(input.Event.ServiceCode),
		CredentialTier:     strings.TrimSpace(input.CredentialTier),
		PaymentMode:        input.PaymentMode,
		Status:             enums.SessionStatusScheduled,
		ScheduledStartAt:   strings.TrimSpace(input.Event.StartAt),
		ScheduledEndAt:     strings.TrimSpace(input.Event.EndAt),
		SourceTimezone:     input.Event.Timezone,
		StartAtUTC:         startUTC,
		EndAtUTC:           endUTC,
	}

	if err := repo.Create(ctx, session); err != nil {
		if db.IsUniqueViolation(err, officeEventConstraint) {
			winner, findErr := repo.FindByOfficeEvent(ctx, input.Event.ID)
			if findErr != nil {
				return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "reload linked session")
			}
			if winner != nil {
				return winner, false, nil
			}
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create program session")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"agency_id":       input.AgencyID.String(),
		"session_id":      session.ID.String(),
		"office_event_id": input.Event.ID.String(),
		"payment_mode":    input.PaymentMode.String(),
	}), "program session created")
	return session, true, nil
}

// Get loads a session scoped to its agency.
func (s *Service) Get(ctx context.Context, tx *gorm.DB, agencyID, sessionID uuid.UUID) (*models.ProgramSession, error) {
	session, err := s.repo.WithTx(tx).FindByID(ctx, agencyID, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load program session")
	}
	if session == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "program session not found")
	}
	return session, nil
}

// UpdateStatus applies a lifecycle change from the calendar. Only scheduled
// sessions move; repeating the current status is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, agencyID, sessionID uuid.UUID, next enums.SessionStatus) (*models.ProgramSession, error) {
	if !next.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid session status")
	}
	session, err := s.Get(ctx, nil, agencyID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == next {
		return session, nil
	}
	if session.Status != enums.SessionStatusScheduled || next == enums.SessionStatusScheduled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "session status cannot change").
			WithDetails(map[string]any{"from": session.Status, "to": next})
	}

	now := s.now()
	ok, err := s.repo.TransitionStatus(ctx, session.ID, session.Status, next, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update session status")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "session status changed concurrently")
	}
	session.Status = next
	session.UpdatedAt = now
	return session, nil
}

func validateLink(input LinkInput) error {
	switch {
	case input.AgencyID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "agency id is required")
	case input.Event.ID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "office event id is required")
	case input.ClientID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "client id is required")
	case !input.PaymentMode.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payment mode")
	case strings.TrimSpace(input.Event.Timezone) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "event timezone is required")
	}
	return nil
}

func normalizeCode(code *string) *string {
	trimmed := strings.TrimSpace(lo.FromPtr(code))
	if trimmed == "" {
		return nil
	}
	return lo.ToPtr(trimmed)
}
