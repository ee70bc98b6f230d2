package telegram

import (
	"errors"
	"fmt"
	"testing"

	"cycle_reminder_bot/internal/app"
	"cycle_reminder_bot/internal/domain/cycle"
	"cycle_reminder_bot/internal/domain/notification"
	idb "cycle_reminder_bot/internal/infra/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSetupArgs(t *testing.T) {
	start, cycleLength, periodLength, err := parseSetupArgs([]string{"2025-09-15", "28", "5"})
	require.NoError(t, err)
	assert.Equal(t, "2025-09-15", cycle.FormatDate(start))
	assert.Equal(t, 28, cycleLength)
	assert.Equal(t, 5, periodLength)

	_, _, _, err = parseSetupArgs([]string{"15.09.2025", "30", "4"})
	assert.NoError(t, err)

	_, _, _, err = parseSetupArgs([]string{"2025-09-15", "28"})
	assert.ErrorIs(t, err, errUsage)

	_, _, _, err = parseSetupArgs([]string{"yesterday", "28", "5"})
	ve, ok := cycle.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "date", ve.Field)

	_, _, _, err = parseSetupArgs([]string{"2025-09-15", "four", "5"})
	ve, ok = cycle.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "cycle_length", ve.Field)
}

func TestUserErrorText(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
		expected bool
	}{
		{"cycle range", &cycle.ValidationError{Field: "cycle_length", Value: "50", Min: 21, Max: 40}, "от 21 до 40", true},
		{"future date", &cycle.ValidationError{Field: "last_period_date", Reason: "must not be in the future"}, "в будущем", true},
		{"old date", &cycle.ValidationError{Field: "last_period_date", Max: cycle.MaxLastPeriodAgeDays, Reason: "too old"}, "90 дней", true},
		{"wrapped validation", fmt.Errorf("setup: %w", &cycle.ValidationError{Field: "period_length"}), "от 1 до 10", true},
		{"unknown user", idb.ErrUserNotFound, "/start", true},
		{"not configured", app.ErrNotConfigured, "/setup", true},
		{"bad timezone", app.ErrInvalidTimezone, "Europe/Moscow", true},
		{"internal", errors.New("connection reset"), "попробуйте позже", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, expected := userErrorText(tt.err)
			assert.Contains(t, text, tt.contains)
			assert.Equal(t, tt.expected, expected)
		})
	}
}

func TestNotificationsMarkup(t *testing.T) {
	settings := map[notification.Type]bool{}
	for _, typ := range notification.AllTypes {
		settings[typ] = true
	}
	settings[notification.TypeSafeZoneStart] = false

	markup := notificationsMarkup(settings)
	require.Len(t, markup.InlineKeyboard, len(notification.AllTypes))
	for i, typ := range notification.AllTypes {
		btn := markup.InlineKeyboard[i][0]
		assert.Equal(t, callbackToggleNotification, btn.Unique)
		assert.Equal(t, string(typ), btn.Data)
		assert.Contains(t, btn.Text, typ.Title())
	}
	assert.Contains(t, markup.InlineKeyboard[1][0].Text, "❌")
	assert.Contains(t, markup.InlineKeyboard[0][0].Text, "✅")
}
