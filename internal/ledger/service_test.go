package ledger

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnbill-backend/internal/testdb"
	"github.com/angelmondragon/learnbill-backend/pkg/db"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnbill-backend/pkg/errors"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
)

var fixedNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	conn := testdb.New(t)
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(conn),
		TX:     db.Wrap(conn),
		Logger: logger.New(logger.Options{ServiceName: "ledger-test", Output: io.Discard}),
		Clock:  func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return svc, conn
}

func TestNewServiceRequiresDeps(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestBalanceIsSignedSumOfUnexpiredEntries(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	agencyID, clientID := uuid.New(), uuid.New()

	expired := fixedNow.Add(-time.Hour)
	future := fixedNow.Add(24 * time.Hour)
	inputs := []EntryInput{
		{TokenType: enums.TokenTypeIndividual, Direction: enums.LedgerDirectionCredit, Quantity: 5, Reason: enums.LedgerReasonManualAdminCredit},
		{TokenType: enums.TokenTypeIndividual, Direction: enums.LedgerDirectionDebit, Quantity: 2, Reason: enums.LedgerReasonSessionCoverage},
		{TokenType: enums.TokenTypeIndividual, Direction: enums.LedgerDirectionCredit, Quantity: 10, Reason: enums.LedgerReasonManualAdminCredit, ExpiresAt: &expired},
		{TokenType: enums.TokenTypeGroup, Direction: enums.LedgerDirectionCredit, Quantity: 3, Reason: enums.LedgerReasonSubscriptionRenewal, ExpiresAt: &future},
		{TokenType: enums.TokenTypeGroup, Direction: enums.LedgerDirectionDebit, Quantity: 0, Reason: enums.LedgerReasonSessionCoverage},
	}
	for _, in := range inputs {
		in.AgencyID, in.ClientID = agencyID, clientID
		_, err := svc.AddEntry(ctx, nil, in)
		require.NoError(t, err)
	}
	// another client's entries never leak in
	_, err := svc.AddEntry(ctx, nil, EntryInput{
		AgencyID: agencyID, ClientID: uuid.New(),
		TokenType: enums.TokenTypeIndividual, Direction: enums.LedgerDirectionCredit,
		Quantity: 7, Reason: enums.LedgerReasonManualAdminCredit,
	})
	require.NoError(t, err)

	balance, err := svc.GetBalance(ctx, agencyID, clientID)
	require.NoError(t, err)
	assert.Equal(t, Balance{Individual: 3, Group: 3}, balance)

	entries, err := svc.ListEntries(ctx, agencyID, clientID, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestAddEntryValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	base := EntryInput{
		AgencyID: uuid.New(), ClientID: uuid.New(),
		TokenType: enums.TokenTypeIndividual, Direction: enums.LedgerDirectionCredit,
		Quantity: 1, Reason: enums.LedgerReasonManualAdminCredit,
	}

	negative := base
	negative.Quantity = -1
	_, err := svc.AddEntry(ctx, nil, negative)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	badType := base
	badType.TokenType = "FAMILY"
	_, err = svc.AddEntry(ctx, nil, badType)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	noClient := base
	noClient.ClientID = uuid.Nil
	_, err = svc.AddEntry(ctx, nil, noClient)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestDebitForSessionIsIdempotent(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	agencyID, clientID, sessionID := uuid.New(), uuid.New(), uuid.New()

	_, err := svc.AdminCredit(ctx, CreditInput{
		AgencyID: agencyID, ClientID: clientID,
		TokenType: enums.TokenTypeIndividual, Quantity: 2,
	})
	require.NoError(t, err)

	runner := db.Wrap(conn)
	debit := func() (bool, uuid.UUID) {
		var debited bool
		var entryID uuid.UUID
		err := runner.WithTx(ctx, func(tx *gorm.DB) error {
			entry, ok, err := svc.DebitForSession(ctx, tx, DebitInput{
				AgencyID: agencyID, ClientID: clientID, SessionID: sessionID,
				TokenType: enums.TokenTypeIndividual,
			})
			if err != nil {
				return err
			}
			debited, entryID = ok, entry.ID
			return nil
		})
		require.NoError(t, err)
		return debited, entryID
	}

	first, firstID := debit()
	second, secondID := debit()
	assert.True(t, first)
	assert.False(t, second)
	assert.Equal(t, firstID, secondID)

	balance, err := svc.GetBalance(ctx, agencyID, clientID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), balance.Individual)

	has, err := svc.HasSessionDebit(ctx, agencyID, clientID, sessionID, enums.TokenTypeIndividual)
	require.NoError(t, err)
	assert.True(t, has)
	has, err = svc.HasSessionDebit(ctx, agencyID, clientID, sessionID, enums.TokenTypeGroup)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestDebitForSessionInsufficientTokens(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	agencyID, clientID := uuid.New(), uuid.New()

	_, err := svc.AdminCredit(ctx, CreditInput{
		AgencyID: agencyID, ClientID: clientID,
		TokenType: enums.TokenTypeIndividual, Quantity: 1,
	})
	require.NoError(t, err)

	runner := db.Wrap(conn)
	debit := func(sessionID uuid.UUID) error {
		return runner.WithTx(ctx, func(tx *gorm.DB) error {
			_, _, err := svc.DebitForSession(ctx, tx, DebitInput{
				AgencyID: agencyID, ClientID: clientID, SessionID: sessionID,
				TokenType: enums.TokenTypeIndividual,
			})
			return err
		})
	}

	require.NoError(t, debit(uuid.New()))
	err = debit(uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientTokens))

	balance, err := svc.GetBalance(ctx, agencyID, clientID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.Individual)
}

func TestDebitForSessionRequiresTransaction(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.DebitForSession(context.Background(), nil, DebitInput{SessionID: uuid.New()})
	require.Error(t, err)
}

func TestCreditValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AdminCredit(ctx, CreditInput{
		AgencyID: uuid.New(), ClientID: uuid.New(),
		TokenType: enums.TokenTypeGroup, Quantity: 0,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	past := fixedNow.Add(-time.Minute)
	_, err = svc.AdminCredit(ctx, CreditInput{
		AgencyID: uuid.New(), ClientID: uuid.New(),
		TokenType: enums.TokenTypeGroup, Quantity: 1, ExpiresAt: &past,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	entry, err := svc.AdminCredit(ctx, CreditInput{
		AgencyID: uuid.New(), ClientID: uuid.New(),
		TokenType: enums.TokenTypeGroup, Quantity: 2,
		Reason: enums.LedgerReasonSubscriptionRenewal,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.LedgerReasonManualAdminCredit, entry.ReasonCode)
}
