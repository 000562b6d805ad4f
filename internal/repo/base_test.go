package repo

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/learnbill-backend/internal/testdb"
	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
)

type ctxKey struct{}

func TestBaseDBBindsContext(t *testing.T) {
	conn := testdb.New(t)
	base := NewBase(conn)

	ctx := context.WithValue(context.Background(), ctxKey{}, "value")
	withCtx := base.DB(ctx)
	require.NotNil(t, withCtx.Statement)
	assert.Equal(t, ctx, withCtx.Statement.Context)

	assert.Same(t, conn, base.DB(nil))
}

func TestBindPrefersTransaction(t *testing.T) {
	conn := testdb.New(t)
	base := NewBase(conn)

	assert.Same(t, conn, base.Bind(nil).DB(nil))

	err := conn.Transaction(func(tx *gorm.DB) error {
		assert.Same(t, tx, base.Bind(tx).DB(nil))
		return nil
	})
	require.NoError(t, err)
}

func TestFirstReturnsNilWhenMissing(t *testing.T) {
	conn := testdb.New(t)
	agency := testdb.SeedAgency(t, conn, true)

	found, err := First[models.Agency](conn.Where("id = ?", agency.ID))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, agency.Name, found.Name)

	missing, err := First[models.Agency](conn.Where("id = ?", uuid.New()))
	require.NoError(t, err)
	assert.Nil(t, missing)
}
