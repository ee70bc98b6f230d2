package notification

import (
	"testing"
	"time"

	"cycle_reminder_bot/internal/domain/cycle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetDatesAndHours(t *testing.T) {
	start := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)
	s, err := cycle.Compute(start, 28, 5, start)
	require.NoError(t, err)

	tests := []struct {
		typ  Type
		date string
		hour int
	}{
		{TypeOvulationStart, "2025-09-28", 20},
		{TypeSafeZoneStart, "2025-10-02", 9},
		{TypePeriodIn3Days, "2025-10-10", 18},
		{TypePeriodTomorrow, "2025-10-12", 20},
		{TypePeriodConfirmation, "2025-10-13", 9},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.date, cycle.FormatDate(tt.typ.TargetDate(s)))
			assert.Equal(t, tt.hour, tt.typ.DeliveryHour())
		})
	}
}

func TestFireAt_UsesLocalHour(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)

	date := time.Date(2025, 10, 13, 0, 0, 0, 0, time.UTC)
	at := TypePeriodConfirmation.FireAt(date, loc)

	assert.Equal(t, time.Date(2025, 10, 13, 6, 0, 0, 0, time.UTC), at.UTC())
}

func TestTypeValid(t *testing.T) {
	for _, typ := range AllTypes {
		assert.True(t, typ.Valid())
	}
	assert.False(t, Type("PERIOD_IN_5_DAYS").Valid())
}
