package wallclock

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToUTCAcrossDenverTransitions(t *testing.T) {
	tests := []struct {
		name  string
		local string
		want  time.Time
	}{
		{name: "standard time", local: "2026-03-07 09:00:00", want: time.Date(2026, 3, 7, 16, 0, 0, 0, time.UTC)},
		{name: "daylight time after spring forward", local: "2026-03-09 09:00:00", want: time.Date(2026, 3, 9, 15, 0, 0, 0, time.UTC)},
		{name: "standard time after fall back", local: "2026-11-03 09:00:00", want: time.Date(2026, 11, 3, 16, 0, 0, 0, time.UTC)},
		{name: "spring forward gap shifts forward", local: "2026-03-08 02:30:00", want: time.Date(2026, 3, 8, 9, 30, 0, 0, time.UTC)},
		{name: "fall back ambiguity picks earlier", local: "2026-11-01 01:30:00", want: time.Date(2026, 11, 1, 7, 30, 0, 0, time.UTC)},
		{name: "T separator without seconds", local: "2026-07-01T12:15", want: time.Date(2026, 7, 1, 18, 15, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToUTC(tt.local, "America/Denver")
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestToUTCErrors(t *testing.T) {
	_, err := ToUTC("03/09/2026 9am", "America/Denver")
	require.Error(t, err)

	_, err = ToUTC("2026-03-09 09:00:00", "Mars/Olympus_Mons")
	require.Error(t, err)
}

func TestFormatRoundTrip(t *testing.T) {
	loc, err := time.LoadLocation("America/Denver")
	require.NoError(t, err)
	utc, err := ToUTC("2026-11-03 09:00:00", "America/Denver")
	require.NoError(t, err)
	assert.Equal(t, "2026-11-03 09:00:00", Format(utc, loc))
}
