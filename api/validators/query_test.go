package validators

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/learnbill-backend/pkg/errors"
)

func TestParseQueryInt(t *testing.T) {
	r := httptest.NewRequest("GET", "/learning/tokens/ledger?limit=25", nil)
	got, err := ParseQueryInt(r, "limit", 50, 1, 200)
	require.NoError(t, err)
	require.Equal(t, 25, got)

	got, err = ParseQueryInt(httptest.NewRequest("GET", "/learning/tokens/ledger", nil), "limit", 50, 1, 200)
	require.NoError(t, err)
	require.Equal(t, 50, got)

	_, err = ParseQueryInt(httptest.NewRequest("GET", "/x?limit=abc", nil), "limit", 50, 1, 200)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = ParseQueryInt(httptest.NewRequest("GET", "/x?limit=0", nil), "limit", 50, 1, 200)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestParseQueryDuration(t *testing.T) {
	maxAge := 90 * 24 * time.Hour

	got, err := ParseQueryDuration(httptest.NewRequest("GET", "/x?older_than=36h", nil), "older_than", 0, 0, maxAge)
	require.NoError(t, err)
	require.Equal(t, 36*time.Hour, got)

	got, err = ParseQueryDuration(httptest.NewRequest("GET", "/x", nil), "older_than", 0, 0, maxAge)
	require.NoError(t, err)
	require.Zero(t, got)

	for _, raw := range []string{"tomorrow", "-1h", "2200h"} {
		_, err := ParseQueryDuration(httptest.NewRequest("GET", "/x?older_than="+raw, nil), "older_than", 0, 0, maxAge)
		require.Truef(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "older_than=%s", raw)
	}
}
