package dbtypes

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateScanAndValue(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan(time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-03-09", d.String())

	require.NoError(t, d.Scan("2026-11-03 00:00:00+00:00"))
	assert.Equal(t, Date{Year: 2026, Month: time.November, Day: 3}, d)

	require.NoError(t, d.Scan([]byte("2026-01-31")))
	v, err := d.Value()
	require.NoError(t, err)
	assert.Equal(t, "2026-01-31", v)

	require.NoError(t, d.Scan(nil))
	assert.True(t, d.IsZero())

	require.Error(t, d.Scan(42))
	require.Error(t, d.Scan("not-a-date"))
}

func TestDateOfUsesOwnLocation(t *testing.T) {
	denver, err := time.LoadLocation("America/Denver")
	require.NoError(t, err)
	late := time.Date(2026, 3, 9, 22, 30, 0, 0, denver)
	assert.Equal(t, "2026-03-09", DateOf(late).String())
	assert.Equal(t, "2026-03-10", DateOf(late.UTC()).String())
}
