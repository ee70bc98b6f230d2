package app

import (
	"context"
	"testing"
	"time"

	"cycle_reminder_bot/internal/domain/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminID int64 = 777

func TestAdminStats(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u := h.register(t, tgID)
	h.register(t, tgID+1)
	_, err := h.svc.SetupProfile(ctx, tgID, day(t, "2025-09-15"), 28, 5)
	require.NoError(t, err)

	_, err = h.jobs.ReplaceForUser(ctx, u.ID, []notification.ScheduledJob{{
		ID: "job-1", UserID: u.ID, Type: notification.TypePeriodTomorrow,
		ScheduledDate: day(t, "2025-10-12"), FireAt: day(t, "2025-10-12").Add(17 * time.Hour), Timezone: "Europe/Moscow",
	}})
	require.NoError(t, err)
	require.NoError(t, h.notifs.AppendLog(ctx, &notification.LogEntry{UserID: u.ID, Type: notification.TypePeriodTomorrow, ScheduledDate: day(t, "2025-10-12"), Status: notification.StatusScheduled}))

	svc := NewAdminService(h.users, h.jobs, h.notifs, adminID)

	_, err = svc.Stats(ctx, tgID)
	assert.ErrorIs(t, err, ErrAdminNotAuthorized)

	st, err := svc.Stats(ctx, adminID)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Users.Total)
	assert.Equal(t, 2, st.Users.Active)
	assert.Equal(t, 1, st.Users.WithProfile)
	assert.Equal(t, 1, st.PendingJobs)
	assert.Equal(t, 1, st.LogByStatus[notification.StatusScheduled])

	text := FormatStats(st)
	assert.Contains(t, text, "Пользователи: 2")
	assert.Contains(t, text, "SCHEDULED: 1")
}
