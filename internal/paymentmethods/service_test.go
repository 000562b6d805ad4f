package paymentmethods

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/learnbill-backend/internal/testdb"
	"github.com/angelmondragon/learnbill-backend/pkg/db"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/learnbill-backend/pkg/errors"
	"github.com/angelmondragon/learnbill-backend/pkg/logger"
)

func newService(t *testing.T) *Service {
	t.Helper()
	conn := testdb.New(t)
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(conn),
		TX:     db.Wrap(conn),
		Logger: logger.New(logger.Options{ServiceName: "paymentmethods-test", Output: io.Discard}),
		Clock:  func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return svc
}

func card(agencyID, clientID uuid.UUID, token string, isDefault bool) AddInput {
	return AddInput{
		AgencyID:  agencyID,
		ClientID:  clientID,
		TokenRef:  token,
		Brand:     "Visa",
		Last4:     "4242",
		ExpMonth:  12,
		ExpYear:   2028,
		IsDefault: isDefault,
	}
}

func TestAddDefaultsFirstCard(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	agencyID, clientID := uuid.New(), uuid.New()

	first, err := svc.Add(ctx, card(agencyID, clientID, "tok_1", false))
	require.NoError(t, err)
	assert.True(t, first.IsDefault)
	assert.Equal(t, enums.PaymentMethodTypeCard, first.Type)
	assert.Equal(t, "visa", *first.CardBrand)

	second, err := svc.Add(ctx, card(agencyID, clientID, "tok_2", false))
	require.NoError(t, err)
	assert.False(t, second.IsDefault)

	def, err := svc.Default(ctx, agencyID, clientID)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, first.ID, def.ID)
}

func TestAddExplicitDefaultMovesFlag(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	agencyID, clientID := uuid.New(), uuid.New()

	_, err := svc.Add(ctx, card(agencyID, clientID, "tok_1", false))
	require.NoError(t, err)
	second, err := svc.Add(ctx, card(agencyID, clientID, "tok_2", true))
	require.NoError(t, err)
	assert.True(t, second.IsDefault)

	methods, err := svc.List(ctx, agencyID, clientID)
	require.NoError(t, err)
	require.Len(t, methods, 2)
	assert.Equal(t, second.ID, methods[0].ID)
	assert.False(t, methods[1].IsDefault)
}

func TestSetDefault(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	agencyID, clientID := uuid.New(), uuid.New()

	first, err := svc.Add(ctx, card(agencyID, clientID, "tok_1", false))
	require.NoError(t, err)
	second, err := svc.Add(ctx, card(agencyID, clientID, "tok_2", false))
	require.NoError(t, err)

	updated, err := svc.SetDefault(ctx, agencyID, second.ID)
	require.NoError(t, err)
	assert.True(t, updated.IsDefault)

	def, err := svc.Default(ctx, agencyID, clientID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, def.ID)

	old, err := svc.Get(ctx, agencyID, first.ID)
	require.NoError(t, err)
	assert.False(t, old.IsDefault)

	_, err = svc.SetDefault(ctx, uuid.New(), second.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound), "methods are agency scoped")
}

func TestAddValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	agencyID, clientID := uuid.New(), uuid.New()

	tests := map[string]func(*AddInput){
		"missing token":  func(in *AddInput) { in.TokenRef = " " },
		"bad last4":      func(in *AddInput) { in.Last4 = "42a2" },
		"bad month":      func(in *AddInput) { in.ExpMonth = 13 },
		"expired":        func(in *AddInput) { in.ExpYear, in.ExpMonth = 2026, 4 },
		"unknown type":   func(in *AddInput) { in.Type = "crypto" },
		"missing client": func(in *AddInput) { in.ClientID = uuid.Nil },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			input := card(agencyID, clientID, "tok_"+name, false)
			mutate(&input)
			_, err := svc.Add(ctx, input)
			assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), err)
		})
	}

	_, err := svc.Add(ctx, card(agencyID, clientID, "tok_dup", false))
	require.NoError(t, err)
	_, err = svc.Add(ctx, card(agencyID, clientID, "tok_dup", false))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestBankAccountSkipsCardFields(t *testing.T) {
	svc := newService(t)
	method, err := svc.Add(context.Background(), AddInput{
		AgencyID: uuid.New(),
		ClientID: uuid.New(),
		Type:     enums.PaymentMethodTypeUSBankAccount,
		TokenRef: "ba_123",
	})
	require.NoError(t, err)
	assert.Nil(t, method.CardLast4)
	assert.True(t, method.IsDefault)
}
