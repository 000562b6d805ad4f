package sessions

import (
	"context"
	"io"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/learnbill-backend/internal/testdb"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnbill-backend/pkg/errors"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
)

func newService(t *testing.T) *Service {
	t.Helper()
	conn := testdb.New(t)
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(conn),
		Logger: logger.New(logger.Options{ServiceName: "sessions-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc
}

func bookedEvent() OfficeEvent {
	code := " 97153 "
	provider := uuid.New()
	return OfficeEvent{
		ID:               uuid.New(),
		SlotState:        SlotStateAssignedBooked,
		StartAt:          "2026-03-09 09:00:00",
		EndAt:            "2026-03-09 10:00:00",
		Timezone:         "America/Denver",
		BookedProviderID: &provider,
		ServiceCode:      &code,
	}
}

func TestIsBookedOfficeEvent(t *testing.T) {
	assert.True(t, IsBookedOfficeEvent(OfficeEvent{SlotState: "ASSIGNED_BOOKED"}))
	assert.True(t, IsBookedOfficeEvent(OfficeEvent{Status: "booked"}))
	assert.True(t, IsBookedOfficeEvent(OfficeEvent{Status: "BOOKED", SlotState: "OPEN"}))
	assert.False(t, IsBookedOfficeEvent(OfficeEvent{Status: "TENTATIVE", SlotState: "ASSIGNED"}))
	assert.False(t, IsBookedOfficeEvent(OfficeEvent{}))
}

func TestCreateFromOfficeEventIsIdempotent(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	event := bookedEvent()
	input := LinkInput{
		AgencyID:    uuid.New(),
		Event:       event,
		ClientID:    uuid.New(),
		PaymentMode: enums.PaymentModeToken,
	}

	first, created, err := svc.CreateFromOfficeEvent(ctx, nil, input)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, enums.SessionStatusScheduled, first.Status)
	assert.Equal(t, time.Date(2026, 3, 9, 15, 0, 0, 0, time.UTC), first.StartAtUTC)
	assert.Equal(t, 60, first.DurationMinutes())
	require.NotNil(t, first.ServiceCode)
	assert.Equal(t, "97153", *first.ServiceCode)
	assert.Equal(t, event.BookedProviderID, first.AssignedProviderID)

	input.ClientID = uuid.New()
	second, created, err := svc.CreateFromOfficeEvent(ctx, nil, input)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ClientID, second.ClientID, "re-linking returns the original unchanged")
}

func TestCreateFromOfficeEventRejectsUnbookedEvents(t *testing.T) {
	svc := newService(t)
	event := bookedEvent()
	event.SlotState = "OPEN"
	event.Status = "PENDING"

	_, _, err := svc.CreateFromOfficeEvent(context.Background(), nil, LinkInput{
		AgencyID: uuid.New(), Event: event, ClientID: uuid.New(), PaymentMode: enums.PaymentModePayPerEvent,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestCreateFromOfficeEventValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	bad := bookedEvent()
	bad.EndAt = bad.StartAt
	_, _, err := svc.CreateFromOfficeEvent(ctx, nil, LinkInput{
		AgencyID: uuid.New(), Event: bad, ClientID: uuid.New(), PaymentMode: enums.PaymentModeToken,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	badZone := bookedEvent()
	badZone.Timezone = "Mars/Olympus"
	_, _, err = svc.CreateFromOfficeEvent(ctx, nil, LinkInput{
		AgencyID: uuid.New(), Event: badZone, ClientID: uuid.New(), PaymentMode: enums.PaymentModeToken,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, _, err = svc.CreateFromOfficeEvent(ctx, nil, LinkInput{
		AgencyID: uuid.New(), Event: bookedEvent(), ClientID: uuid.New(), PaymentMode: "CASH",
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestCreateFromOfficeEventOtherAgencyConflicts(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	event := bookedEvent()

	_, _, err := svc.CreateFromOfficeEvent(ctx, nil, LinkInput{
		AgencyID: uuid.New(), Event: event, ClientID: uuid.New(), PaymentMode: enums.PaymentModeToken,
	})
	require.NoError(t, err)

	_, _, err = svc.CreateFromOfficeEvent(ctx, nil, LinkInput{
		AgencyID: uuid.New(), Event: event, ClientID: uuid.New(), PaymentMode: enums.PaymentModeToken,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestUpdateStatus(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	agencyID := uuid.New()

	session, _, err := svc.CreateFromOfficeEvent(ctx, nil, LinkInput{
		AgencyID: agencyID, Event: bookedEvent(), ClientID: uuid.New(), PaymentMode: enums.PaymentModeSubscription,
	})
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, agencyID, session.ID, enums.SessionStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, enums.SessionStatusCompleted, updated.Status)

	again, err := svc.UpdateStatus(ctx, agencyID, session.ID, enums.SessionStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, enums.SessionStatusCompleted, again.Status)

	_, err = svc.UpdateStatus(ctx, agencyID, session.ID, enums.SessionStatusCancelled)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	_, err = svc.UpdateStatus(ctx, uuid.New(), session.ID, enums.SessionStatusCancelled)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}
