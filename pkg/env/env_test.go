package env

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFirstTrimsAndFallsBack(t *testing.T) {
	t.Setenv("LEARNBILL_TEST_VALUE", "  console \n")
	require.Equal(t, "console", First("json", "LEARNBILL_TEST_VALUE"))

	t.Setenv("LEARNBILL_TEST_VALUE", "   ")
	require.Equal(t, "json", First("json", "LEARNBILL_TEST_VALUE"))
	require.Equal(t, "json", First("json"))
}

func TestFirstPrefersEarlierKeys(t *testing.T) {
	t.Setenv("LEARNBILL_LOG_FORMAT", "")
	t.Setenv("LOG_FORMAT", "console")
	require.Equal(t, "console", First("json", "LEARNBILL_LOG_FORMAT", "LOG_FORMAT"))

	t.Setenv("LEARNBILL_LOG_FORMAT", "json")
	require.Equal(t, "json", First("console", "LEARNBILL_LOG_FORMAT", "LOG_FORMAT"))

	t.Setenv("LOG_FORMAT", "")
	t.Setenv("LEARNBILL_LOG_FORMAT", "")
	require.Equal(t, "json", First("json", "LEARNBILL_LOG_FORMAT", "LOG_FORMAT"))
}
