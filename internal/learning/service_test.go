package learning

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnbill-backend/internal/charges"
	"github.com/angelmondragon/learnbill-backend/internal/coverage"
	"github.com/angelmondragon/learnbill-backend/internal/gate"
	"github.com/angelmondragon/learnbill-backend/internal/ledger"
	"github.com/angelmondragon/learnbill-backend/internal/paymentmethods"
	"github.com/angelmondragon/learnbill-backend/internal/policy"
	"github.com/angelmondragon/learnbill-backend/internal/renewals"
	"github.com/angelmondragon/learnbill-backend/internal/sessions"
	"github.com/angelmondragon/learnbill-backend/internal/subscriptions"
	"github.com/angelmondragon/learnbill-backend/internal/testdb"
	"github.com/angelmondragon/learnbill-backend/pkg/db"
	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnbill-backend/pkg/errors"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
	"github.com/angelmondragon/learnbill-backend/pkg/outbox"
)

type fixture struct {
	svc     *Service
	db      *gorm.DB
	policy  *policy.Service
	ledger  *ledger.Service
	agency  models.Agency
	service models.LearningService
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := testdb.New(t)
	logg := logger.New(logger.Options{ServiceName: "learning-test", Output: io.Discard})
	runner := db.Wrap(conn)

	checker, err := gate.NewChecker(gate.CheckerParams{Repo: gate.NewRepository(conn), Logger: logg})
	require.NoError(t, err)
	sessionSvc, err := sessions.NewService(sessions.ServiceParams{Repo: sessions.NewRepository(conn), Logger: logg})
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{Repo: ledger.NewRepository(conn), TX: runner, Logger: logg})
	require.NoError(t, err)
	policySvc, err := policy.NewService(policy.ServiceParams{Repo: policy.NewRepository(conn)})
	require.NoError(t, err)
	chargeSvc, err := charges.NewService(charges.ServiceParams{
		Repo:     charges.NewRepository(conn),
		TX:       runner,
		Policy:   policySvc,
		Accounts: ledgerSvc,
		Outbox:   outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:   logg,
	})
	require.NoError(t, err)
	subSvc, err := subscriptions.NewService(subscriptions.ServiceParams{Repo: subscriptions.NewRepository(conn), Logger: logg})
	require.NoError(t, err)
	coverageSvc, err := coverage.NewService(coverage.ServiceParams{
		TX:            runner,
		Ledger:        ledgerSvc,
		Subscriptions: subSvc,
		Charges:       chargeSvc,
		Logger:        logg,
	})
	require.NoError(t, err)
	renewalSvc, err := renewals.NewService(renewals.ServiceParams{
		Repo:          renewals.NewRepository(conn),
		TX:            runner,
		Gate:          checker,
		Subscriptions: subSvc,
		Ledger:        ledgerSvc,
		Logger:        logg,
		RunnerID:      "learning-test",
	})
	require.NoError(t, err)
	methodSvc, err := paymentmethods.NewService(paymentmethods.ServiceParams{
		Repo:   paymentmethods.NewRepository(conn),
		TX:     runner,
		Logger: logg,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Gate:           checker,
		Sessions:       sessionSvc,
		Charges:        chargeSvc,
		Coverage:       coverageSvc,
		Ledger:         ledgerSvc,
		Subscriptions:  subSvc,
		Renewals:       renewalSvc,
		PaymentMethods: methodSvc,
		Logger:         logg,
		RenewalLimit:   50,
	})
	require.NoError(t, err)

	agency := testdb.SeedAgency(t, conn, true)
	return fixture{
		svc:     svc,
		db:      conn,
		policy:  policySvc,
		ledger:  ledgerSvc,
		agency:  agency,
		service: testdb.SeedService(t, conn, agency.ID, "97153", "80.00"),
	}
}

func (f fixture) link(clientID uuid.UUID, mode enums.PaymentMode, start, end string) LinkRequest {
	return LinkRequest{LinkInput: sessions.LinkInput{
		AgencyID: f.agency.ID,
		Event: sessions.OfficeEvent{
			ID:        uuid.New(),
			SlotState: sessions.SlotStateAssignedBooked,
			StartAt:   start,
			EndAt:     end,
			Timezone:  "America/Chicago",
		},
		ClientID:          clientID,
		LearningServiceID: &f.service.ID,
		PaymentMode:       mode,
	}}
}

func TestDisabledAgencyIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plain := testdb.SeedAgency(t, f.db, false)

	_, err := f.svc.Balance(ctx, plain.ID, uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeFeatureDisabled))

	req := f.link(uuid.New(), enums.PaymentModeToken, "2026-03-09 09:00:00", "2026-03-09 10:00:00")
	req.AgencyID = plain.ID
	_, err = f.svc.LinkOfficeEvent(ctx, req)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeFeatureDisabled))

	var count int64
	require.NoError(t, f.db.Model(&models.ProgramSession{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestLinkOfficeEventCoversWithTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clientID := uuid.New()
	_, err := f.svc.AdminCredit(ctx, ledger.CreditInput{
		AgencyID:  f.agency.ID,
		ClientID:  clientID,
		TokenType: enums.TokenTypeIndividual,
		Quantity:  1,
	})
	require.NoError(t, err)

	req := f.link(clientID, enums.PaymentModeToken, "2026-03-09 09:00:00", "2026-03-09 10:00:00")
	first, err := f.svc.LinkOfficeEvent(ctx, req)
	require.NoError(t, err)
	assert.True(t, first.SessionCreated)
	assert.True(t, first.ChargeCreated)
	require.NotNil(t, first.Coverage)
	assert.True(t, first.Coverage.Captured)
	assert.Equal(t, enums.ChargeStatusCaptured, first.Charge.ChargeStatus)

	again, err := f.svc.LinkOfficeEvent(ctx, req)
	require.NoError(t, err)
	assert.False(t, again.SessionCreated)
	assert.False(t, again.ChargeCreated)
	assert.Equal(t, first.Session.ID, again.Session.ID)
	assert.Equal(t, first.Charge.ID, again.Charge.ID)

	balance, err := f.svc.Balance(ctx, f.agency.ID, clientID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.Individual)

	entries, err := f.svc.LedgerEntries(ctx, f.agency.ID, clientID, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	detail, err := f.svc.GetSession(ctx, f.agency.ID, first.Session.ID)
	require.NoError(t, err)
	require.Len(t, detail.Charges, 1)
	assert.Equal(t, first.Charge.ID, detail.Charges[0].ID)
}

func TestLinkOfficeEventFallsBackWithoutTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.LinkOfficeEvent(ctx, f.link(uuid.New(), enums.PaymentModeToken, "2026-03-09 09:00:00", "2026-03-09 10:00:00"))
	require.NoError(t, err)
	require.NotNil(t, res.Coverage)
	assert.True(t, res.Coverage.Fallback)
	assert.Equal(t, pkgerrors.CodeInsufficientTokens, res.Coverage.Reason)
	assert.Equal(t, enums.ChargeStatusPending, res.Charge.ChargeStatus)

	strict := f.link(uuid.New(), enums.PaymentModeToken, "2026-03-10 09:00:00", "2026-03-10 10:00:00")
	strict.StrictCoverage = true
	_, err = f.svc.LinkOfficeEvent(ctx, strict)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientTokens))
}

func TestLinkOfficeEventKeepsSessionWhenCapExceeded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	profile, err := f.policy.CreateProfile(ctx, f.agency.ID, "Default")
	require.NoError(t, err)
	_, err = f.policy.CreateRule(ctx, policy.RuleInput{ProfileID: profile.ID, ServiceCode: "97153", UnitMinutes: 15})
	require.NoError(t, err)
	_, err = f.policy.CreateDailyCap(ctx, profile.ID, "97153", "", 4)
	require.NoError(t, err)

	clientID := uuid.New()
	first, err := f.svc.LinkOfficeEvent(ctx, f.link(clientID, enums.PaymentModePayPerEvent, "2026-03-09 09:00:00", "2026-03-09 10:00:00"))
	require.NoError(t, err)
	require.NotNil(t, first.Charge)
	require.NotNil(t, first.Charge.Units)
	assert.Equal(t, 4, *first.Charge.Units)

	second, err := f.svc.LinkOfficeEvent(ctx, f.link(clientID, enums.PaymentModePayPerEvent, "2026-03-09 13:00:00", "2026-03-09 13:30:00"))
	require.NoError(t, err)
	assert.True(t, second.SessionCreated)
	assert.Nil(t, second.Charge)
	assert.Nil(t, second.Coverage)
	require.NotNil(t, second.ChargeError)
	assert.Equal(t, pkgerrors.CodeDailyCapExceeded, second.ChargeError.Code())
}

func TestPayChargeUsesDefaultMethod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clientID := uuid.New()

	res, err := f.svc.LinkOfficeEvent(ctx, f.link(clientID, enums.PaymentModePayPerEvent, "2026-03-09 09:00:00", "2026-03-09 10:00:00"))
	require.NoError(t, err)

	method, err := f.svc.AddPaymentMethod(ctx, paymentmethods.AddInput{
		AgencyID: f.agency.ID,
		ClientID: clientID,
		TokenRef: "pm_tok_default",
		Brand:    "visa",
		Last4:    "4242",
		ExpMonth: 12,
		ExpYear:  2030,
	})
	require.NoError(t, err)
	assert.True(t, method.IsDefault)

	payment, err := f.svc.PayCharge(ctx, charges.PaymentInput{AgencyID: f.agency.ID, ChargeID: res.Charge.ID})
	require.NoError(t, err)
	require.NotNil(t, payment.PaymentMethodID)
	assert.Equal(t, method.ID, *payment.PaymentMethodID)
	assert.Equal(t, int64(8000), payment.AmountCents)

	charge, err := f.svc.GetCharge(ctx, f.agency.ID, res.Charge.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ChargeStatusCaptured, charge.ChargeStatus)
}

func TestPayChargeRejectsForeignMethod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.LinkOfficeEvent(ctx, f.link(uuid.New(), enums.PaymentModePayPerEvent, "2026-03-09 09:00:00", "2026-03-09 10:00:00"))
	require.NoError(t, err)
	other, err := f.svc.AddPaymentMethod(ctx, paymentmethods.AddInput{
		AgencyID: f.agency.ID,
		ClientID: uuid.New(),
		TokenRef: "pm_tok_other",
		Brand:    "visa",
		Last4:    "1111",
		ExpMonth: 1,
		ExpYear:  2031,
	})
	require.NoError(t, err)

	_, err = f.svc.PayCharge(ctx, charges.PaymentInput{AgencyID: f.agency.ID, ChargeID: res.Charge.ID, PaymentMethodID: &other.ID})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	charge, err := f.svc.GetCharge(ctx, f.agency.ID, res.Charge.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ChargeStatusPending, charge.ChargeStatus)
}

func TestPendingChargesAndFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.LinkOfficeEvent(ctx, f.link(uuid.New(), enums.PaymentModePayPerEvent, "2026-03-09 09:00:00", "2026-03-09 10:00:00"))
	require.NoError(t, err)

	pending, err := f.svc.PendingCharges(ctx, f.agency.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, res.Charge.ID, pending[0].ID)

	failed, err := f.svc.FailCharge(ctx, f.agency.ID, res.Charge.ID, "card declined")
	require.NoError(t, err)
	assert.Equal(t, enums.ChargeStatusFailed, failed.ChargeStatus)

	pending, err = f.svc.PendingCharges(ctx, f.agency.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
