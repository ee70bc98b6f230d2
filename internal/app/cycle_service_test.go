package app

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"cycle_reminder_bot/internal/domain/cycle"
	"cycle_reminder_bot/internal/domain/notification"
	"cycle_reminder_bot/internal/domain/user"
	idb "cycle_reminder_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tgID int64 = 5001

type stubScheduler struct {
	mu          sync.Mutex
	schedules   map[int64]cycle.Schedule
	timezones   map[int64]string
	cancelled   []int64
	reschedules int
}

func newStubScheduler() *stubScheduler {
	return &stubScheduler{schedules: map[int64]cycle.Schedule{}, timezones: map[int64]string{}}
}

func (s *stubScheduler) RescheduleForUser(_ context.Context, userID int64, schedule cycle.Schedule, timezone string) ([]notification.ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reschedules++
	s.schedules[userID] = schedule
	s.timezones[userID] = timezone
	return nil, nil
}

func (s *stubScheduler) CancelAllForUser(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, userID)
	delete(s.schedules, userID)
	return nil
}

func (s *stubScheduler) PendingJobs(userID int64) []notification.ScheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule, ok := s.schedules[userID]
	if !ok {
		return nil
	}
	t := notification.TypePeriodConfirmation
	return []notification.ScheduledJob{{
		UserID:        userID,
		Type:          t,
		ScheduledDate: t.TargetDate(schedule),
		FireAt:        t.FireAt(t.TargetDate(schedule), time.UTC),
	}}
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := cycle.ParseDate(s)
	require.NoError(t, err)
	return d
}

type harness struct {
	svc       *CycleService
	users     *idb.UserRepository
	cycles    *idb.CycleRepository
	notifs    *idb.NotificationRepository
	jobs      *idb.JobRepository
	scheduler *stubScheduler
}

// 2025-10-01 09:00 UTC is 12:00 in Moscow.
var fixedNow = time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, opts ...ServiceOption) *harness {
	t.Helper()
	db := idb.SetupTestDB(t)
	h := &harness{
		users:     idb.NewUserRepository(db),
		cycles:    idb.NewCycleRepository(db),
		notifs:    idb.NewNotificationRepository(db),
		jobs:      idb.NewJobRepository(db),
		scheduler: newStubScheduler(),
	}
	opts = append([]ServiceOption{WithNow(func() time.Time { return fixedNow })}, opts...)
	h.svc = NewCycleService(h.users, h.cycles, h.notifs, h.notifs, h.scheduler, testLogger(), opts...)
	return h
}

func (h *harness) register(t *testing.T, telegramID int64) *user.User {
	t.Helper()
	u, _, err := h.svc.RegisterUser(context.Background(), telegramID, "")
	require.NoError(t, err)
	return u
}

func TestRegisterUser(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	u, created, err := h.svc.RegisterUser(ctx, tgID, "alice")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, u.IsActive)
	assert.Equal(t, user.DefaultTimezone, u.Timezone)

	again, created, err := h.svc.RegisterUser(ctx, tgID, "alice")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u.ID, again.ID)
}

func TestRegisterUser_ReactivatesAndReschedules(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u := h.register(t, tgID)
	_, err := h.svc.SetupProfile(ctx, tgID, day(t, "2025-09-15"), 28, 5)
	require.NoError(t, err)

	u.IsActive = false
	require.NoError(t, h.users.Update(ctx, u))
	before := h.scheduler.reschedules

	reactivated, created, err := h.svc.RegisterUser(ctx, tgID, "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, reactivated.IsActive)
	assert.Equal(t, before+1, h.scheduler.reschedules)
}

func TestSetupProfile(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u := h.register(t, tgID)

	st, err := h.svc.SetupProfile(ctx, tgID, day(t, "2025-09-15"), 28, 5)
	require.NoError(t, err)
	assert.Equal(t, "2025-10-13", cycle.FormatDate(st.Schedule.NextPeriodDate))
	assert.Len(t, st.Pending, 1)

	p, err := h.cycles.GetProfile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 28, p.CycleLength)
	assert.Equal(t, 5, p.PeriodLength)

	history, err := h.cycles.GetConfirmedHistory(ctx, u.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(t, "2025-09-15")}, history)

	assert.Equal(t, user.DefaultTimezone, h.scheduler.timezones[u.ID])
	assert.Equal(t, "2025-09-28", cycle.FormatDate(h.scheduler.schedules[u.ID].Alerts.Ovulation))
}

func TestSetupProfile_RejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u := h.register(t, tgID)

	tests := []struct {
		name              string
		start             string
		cycleLen, periodL int
		field             string
	}{
		{"cycle too short", "2025-09-15", 20, 5, "cycle_length"},
		{"period too long", "2025-09-15", 28, 11, "period_length"},
		{"future start", "2025-10-02", 28, 5, "last_period_date"},
		{"start too old", "2025-06-01", 28, 5, "last_period_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.SetupProfile(ctx, tgID, day(t, tt.start), tt.cycleLen, tt.periodL)
			ve, ok := cycle.AsValidationError(err)
			require.True(t, ok, "expected validation error, got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	_, err := h.cycles.GetProfile(ctx, u.ID)
	assert.ErrorIs(t, err, idb.ErrProfileNotFound)
	assert.Zero(t, h.scheduler.reschedules)
}

func TestSetupProfile_UnknownUser(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.SetupProfile(context.Background(), 42, day(t, "2025-09-15"), 28, 5)
	assert.ErrorIs(t, err, idb.ErrUserNotFound)
}

func TestConfirmPeriodStart_RecalculatesCycleLength(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u := h.register(t, tgID)
	_, err := h.svc.SetupProfile(ctx, tgID, day(t, "2025-09-03"), 28, 5)
	require.NoError(t, err)

	st, err := h.svc.ConfirmPeriodStart(ctx, tgID, day(t, "2025-09-30"))
	require.NoError(t, err)
	assert.Equal(t, 27, st.Profile.CycleLength)
	assert.Equal(t, "2025-09-30", cycle.FormatDate(st.Profile.LastPeriodDate))
	assert.Equal(t, "2025-10-27", cycle.FormatDate(h.scheduler.schedules[u.ID].NextPeriodDate))

	p, err := h.cycles.GetProfile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 27, p.CycleLength)
}

func TestConfirmPeriodStart_AfterCorrectedSetup(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, WithNow(func() time.Time { return time.Date(2025, 10, 14, 9, 0, 0, 0, time.UTC) }))
	u := h.register(t, tgID)

	_, err := h.svc.SetupProfile(ctx, tgID, day(t, "2025-09-10"), 28, 5)
	require.NoError(t, err)
	_, err = h.svc.SetupProfile(ctx, tgID, day(t, "2025-09-15"), 28, 5)
	require.NoError(t, err)

	st, err := h.svc.ConfirmPeriodStart(ctx, tgID, day(t, "2025-10-13"))
	require.NoError(t, err)
	assert.Equal(t, 28, st.Profile.CycleLength)

	history, err := h.cycles.GetConfirmedHistory(ctx, u.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(t, "2025-09-15"), day(t, "2025-10-13")}, history)
}

func TestConfirmPeriodStart_EarlyStartAfterOverdueAdvance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, WithNow(func() time.Time { return time.Date(2025, 10, 3, 9, 0, 0, 0, time.UTC) }))
	u := h.register(t, tgID)
	_, err := h.svc.SetupProfile(ctx, tgID, day(t, "2025-09-01"), 28, 5)
	require.NoError(t, err)

	n, err := h.svc.AdvanceOverdueProfiles(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	p, err := h.cycles.GetProfile(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "2025-09-29", cycle.FormatDate(p.LastPeriodDate))

	// The real start came two days before the predicted one.
	st, err := h.svc.ConfirmPeriodStart(ctx, tgID, day(t, "2025-09-27"))
	require.NoError(t, err)
	assert.Equal(t, "2025-09-27", cycle.FormatDate(st.Profile.LastPeriodDate))
	assert.Equal(t, 26, st.Profile.CycleLength)
	assert.Equal(t, "2025-10-23", cycle.FormatDate(h.scheduler.schedules[u.ID].NextPeriodDate))
}

func TestConfirmPeriodStart_AfterMissedCycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, WithNow(func() time.Time { return time.Date(2025, 10, 28, 9, 0, 0, 0, time.UTC) }))
	u := h.register(t, tgID)
	_, err := h.svc.SetupProfile(ctx, tgID, day(t, "2025-09-01"), 28, 5)
	require.NoError(t, err)

	_, err = h.svc.AdvanceOverdueProfiles(ctx)
	require.NoError(t, err)
	p, err := h.cycles.GetProfile(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "2025-10-27", cycle.FormatDate(p.LastPeriodDate))
	before := h.scheduler.reschedules

	// Confirming the predicted start is a real confirmation, and the 56-day gap counts as two cycles.
	st, err := h.svc.ConfirmPeriodStart(ctx, tgID, day(t, "2025-10-27"))
	require.NoError(t, err)
	assert.Equal(t, 28, st.Profile.CycleLength)
	assert.Equal(t, before+1, h.scheduler.reschedules)

	history, err := h.cycles.GetConfirmedHistory(ctx, u.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(t, "2025-09-01"), day(t, "2025-10-27")}, history)
}

func TestConfirmPeriodStart_SameDateIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, tgID)
	_, err := h.svc.SetupProfile(ctx, tgID, day(t, "2025-09-15"), 28, 5)
	require.NoError(t, err)
	before := h.scheduler.reschedules

	st, err := h.svc.ConfirmPeriodStart(ctx, tgID, day(t, "2025-09-15"))
	require.NoError(t, err)
	assert.Equal(t, 28, st.Profile.CycleLength)
	assert.Equal(t, before, h.scheduler.reschedules)
}

func TestConfirmPeriodStart_Rejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, tgID)

	_, err := h.svc.ConfirmPeriodStart(ctx, tgID, day(t, "2025-09-30"))
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = h.svc.SetupProfile(ctx, tgID, day(t, "2025-09-15"), 28, 5)
	require.NoError(t, err)

	_, err = h.svc.ConfirmPeriodStart(ctx, tgID, day(t, "2025-09-10"))
	ve, ok := cycle.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "start_date", ve.Field)

	_, err = h.svc.ConfirmPeriodStart(ctx, tgID, day(t, "2025-10-05"))
	_, ok = cycle.AsValidationError(err)
	assert.True(t, ok, "future start is rejected")
}

func TestGetStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, tgID)

	_, err := h.svc.GetStatus(ctx, tgID)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = h.svc.SetupProfile(ctx, tgID, day(t, "2025-09-15"), 28, 5)
	require.NoError(t, err)

	st, err := h.svc.GetStatus(ctx, tgID)
	require.NoError(t, err)
	assert.Equal(t, "2025-10-01", cycle.FormatDate(st.Today))
	assert.Equal(t, 17, st.Phase.DayOfCycle)
	assert.Equal(t, cycle.PhaseOvulation, st.Phase.Phase)

	text := FormatStatus(st)
	assert.Contains(t, text, "день 17")
	assert.Contains(t, text, "13.10")
}

func TestUpdateTimezone(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u := h.register(t, tgID)
	_, err := h.svc.SetupProfile(ctx, tgID, day(t, "2025-09-15"), 28, 5)
	require.NoError(t, err)

	tz, err := h.svc.UpdateTimezone(ctx, tgID, "  asia/yekaterinburg ")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Yekaterinburg", tz)
	assert.Equal(t, "Asia/Yekaterinburg", h.scheduler.timezones[u.ID])

	stored, err := h.users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Asia/Yekaterinburg", stored.Timezone)

	_, err = h.svc.UpdateTimezone(ctx, tgID, "Mars/Olympus")
	assert.ErrorIs(t, err, ErrInvalidTimezone)
	_, err = h.svc.UpdateTimezone(ctx, tgID, "")
	assert.ErrorIs(t, err, ErrInvalidTimezone)
}

func TestNormalizeTimezone(t *testing.T) {
	tests := map[string]string{
		"Europe/Moscow":          "Europe/Moscow",
		"europe/moscow":          "Europe/Moscow",
		"america/new york":       "America/New_York",
		"America/Port-au-Prince": "America/Port-au-Prince",
		"UTC":                    "UTC",
	}
	for in, want := range tests {
		got, err := normalizeTimezone(in)
		if assert.NoError(t, err, in) {
			assert.Equal(t, want, got)
		}
	}
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, tgID)
	_, err := h.svc.SetupProfile(ctx, tgID, day(t, "2025-08-06"), 28, 5)
	require.NoError(t, err)
	_, err = h.svc.ConfirmPeriodStart(ctx, tgID, day(t, "2025-09-02"))
	require.NoError(t, err)
	_, err = h.svc.ConfirmPeriodStart(ctx, tgID, day(t, "2025-09-30"))
	require.NoError(t, err)

	entries, err := h.svc.History(ctx, tgID, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2025-09-30", cycle.FormatDate(entries[0].Start))
	assert.Equal(t, 28, entries[0].CycleLength)
	assert.Equal(t, "2025-09-02", cycle.FormatDate(entries[1].Start))
	assert.Equal(t, 27, entries[1].CycleLength)

	all, err := h.svc.History(ctx, tgID, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Zero(t, all[2].CycleLength)
	assert.Contains(t, FormatHistory(all), "цикл 27 дн.")
}

func TestNotificationSettings(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, tgID)

	settings, err := h.svc.NotificationSettings(ctx, tgID)
	require.NoError(t, err)
	require.Len(t, settings, len(notification.AllTypes))
	for _, enabled := range settings {
		assert.True(t, enabled)
	}

	require.NoError(t, h.svc.SetNotificationEnabled(ctx, tgID, notification.TypeSafeZoneStart, false))
	settings, err = h.svc.NotificationSettings(ctx, tgID)
	require.NoError(t, err)
	assert.False(t, settings[notification.TypeSafeZoneStart])
	assert.True(t, settings[notification.TypeOvulationStart])

	assert.Error(t, h.svc.SetNotificationEnabled(ctx, tgID, notification.Type("BOGUS"), false))
}

func TestDeleteUserData(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u := h.register(t, tgID)
	_, err := h.svc.SetupProfile(ctx, tgID, day(t, "2025-09-15"), 28, 5)
	require.NoError(t, err)

	require.NoError(t, h.svc.DeleteUserData(ctx, tgID))
	assert.Equal(t, []int64{u.ID}, h.scheduler.cancelled)

	_, err = h.users.GetByTelegramID(ctx, tgID)
	assert.ErrorIs(t, err, idb.ErrUserNotFound)
	_, err = h.cycles.GetProfile(ctx, u.ID)
	assert.ErrorIs(t, err, idb.ErrProfileNotFound)
}

func TestExportUserData(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u := h.register(t, tgID)
	_, err := h.svc.SetupProfile(ctx, tgID, day(t, "2025-09-15"), 28, 5)
	require.NoError(t, err)
	require.NoError(t, h.notifs.AppendLog(ctx, &notification.LogEntry{
		UserID: u.ID, Type: notification.TypeOvulationStart, ScheduledDate: day(t, "2025-09-28"), Status: notification.StatusScheduled,
	}))

	raw, err := h.svc.ExportUserData(ctx, tgID)
	require.NoError(t, err)

	var doc struct {
		User struct {
			TelegramID int64  `json:"telegram_id"`
			Timezone   string `json:"timezone"`
		} `json:"user"`
		Profile struct {
			LastPeriodDate string `json:"last_period_date"`
			CycleLength    int    `json:"cycle_length"`
		} `json:"cycle_profile"`
		History       []string                 `json:"period_history"`
		Settings      map[string]bool          `json:"notification_settings"`
		Notifications []map[string]interface{} `json:"notification_log"`
		Pending       []map[string]interface{} `json:"pending_notifications"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, tgID, doc.User.TelegramID)
	assert.Equal(t, "2025-09-15", doc.Profile.LastPeriodDate)
	assert.Equal(t, 28, doc.Profile.CycleLength)
	assert.Equal(t, []string{"2025-09-15"}, doc.History)
	assert.Len(t, doc.Settings, len(notification.AllTypes))
	require.Len(t, doc.Notifications, 1)
	assert.Equal(t, "SCHEDULED", doc.Notifications[0]["status"])
	assert.Len(t, doc.Pending, 1)
}

func TestAdvanceOverdueProfiles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	overdue := h.register(t, tgID)
	require.NoError(t, h.cycles.SaveProfile(ctx, &cycle.Profile{UserID: overdue.ID, LastPeriodDate: day(t, "2025-08-01"), CycleLength: 28, PeriodLength: 5}))

	// Next period 2025-09-29, only two days late.
	recent := h.register(t, tgID+1)
	require.NoError(t, h.cycles.SaveProfile(ctx, &cycle.Profile{UserID: recent.ID, LastPeriodDate: day(t, "2025-09-01"), CycleLength: 28, PeriodLength: 5}))

	inactive := h.register(t, tgID+2)
	require.NoError(t, h.cycles.SaveProfile(ctx, &cycle.Profile{UserID: inactive.ID, LastPeriodDate: day(t, "2025-07-01"), CycleLength: 28, PeriodLength: 5}))
	inactive.IsActive = false
	require.NoError(t, h.users.Update(ctx, inactive))

	n, err := h.svc.AdvanceOverdueProfiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, err := h.cycles.GetProfile(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-09-26", cycle.FormatDate(p.LastPeriodDate))
	assert.Equal(t, "2025-10-24", cycle.FormatDate(h.scheduler.schedules[overdue.ID].NextPeriodDate))

	p, err = h.cycles.GetProfile(ctx, recent.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-09-01", cycle.FormatDate(p.LastPeriodDate))

	p, err = h.cycles.GetProfile(ctx, inactive.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-07-01", cycle.FormatDate(p.LastPeriodDate))

	history, err := h.cycles.GetConfirmedHistory(ctx, overdue.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, history, "predicted starts are not confirmed history")
}

func TestPurgeNotificationLog(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, WithNow(func() time.Time { return time.Now().Add(48 * time.Hour) }), WithLogRetention(1))
	u := h.register(t, tgID)

	require.NoError(t, h.notifs.AppendLog(ctx, &notification.LogEntry{UserID: u.ID, Type: notification.TypeOvulationStart, ScheduledDate: day(t, "2025-09-28"), Status: notification.StatusSent}))
	require.NoError(t, h.notifs.AppendLog(ctx, &notification.LogEntry{UserID: u.ID, Type: notification.TypeSafeZoneStart, ScheduledDate: day(t, "2025-10-02"), Status: notification.StatusScheduled}))

	n, err := h.svc.PurgeNotificationLog(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := h.notifs.ListLogForUser(ctx, u.ID, 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, notification.StatusScheduled, left[0].Status)
}
