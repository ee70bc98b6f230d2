// internal/app/cycle_service.go
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cycle_reminder_bot/internal/domain/cycle"
	"cycle_reminder_bot/internal/domain/notification"
	"cycle_reminder_bot/internal/domain/user"
	idb "cycle_reminder_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
)

var (
	ErrNotConfigured   = errors.New("cycle profile is not configured")
	ErrInvalidTimezone = errors.New("invalid timezone")
	ErrUserInactive    = errors.New("user is inactive")
)

// overdueGraceDays is how long an unconfirmed period may be late before the
// profile is rolled forward automatically.
const overdueGraceDays = 3

// JobScheduler is the part of the notification scheduler the service drives.
type JobScheduler interface {
	RescheduleForUser(ctx context.Context, userID int64, schedule cycle.Schedule, timezone string) ([]notification.ScheduledJob, error)
	CancelAllForUser(ctx context.Context, userID int64) error
	PendingJobs(userID int64) []notification.ScheduledJob
}

type ServiceOption func(*CycleService)

func WithNow(fn func() time.Time) ServiceOption {
	return func(s *CycleService) { s.now = fn }
}

func WithHistoryWindow(n int) ServiceOption {
	return func(s *CycleService) { s.historyWindow = n }
}

// WithDefaultTimezone sets the timezone assigned to newly registered users.
func WithDefaultTimezone(tz string) ServiceOption {
	return func(s *CycleService) { s.defaultTZ = tz }
}

func WithLogRetention(days int) ServiceOption {
	return func(s *CycleService) { s.logRetention = time.Duration(days) * 24 * time.Hour }
}

// CycleService implements the user-facing flows: onboarding, period
// confirmation, status and data management.
type CycleService struct {
	users         user.Repository
	cycles        cycle.Repository
	settings      notification.SettingsRepository
	logs          notification.LogRepository
	scheduler     JobScheduler
	now           func() time.Time
	historyWindow int
	defaultTZ     string
	logRetention  time.Duration
	logger        *logrus.Entry
}

func NewCycleService(
	ur user.Repository,
	cr cycle.Repository,
	sr notification.SettingsRepository,
	lr notification.LogRepository,
	js JobScheduler,
	logger *logrus.Entry,
	opts ...ServiceOption,
) *CycleService {
	s := &CycleService{
		users:         ur,
		cycles:        cr,
		settings:      sr,
		logs:          lr,
		scheduler:     js,
		now:           time.Now,
		historyWindow: cycle.DefaultHistoryWindow,
		defaultTZ:     user.DefaultTimezone,
		logRetention:  90 * 24 * time.Hour,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status is everything the /status screen shows.
type Status struct {
	User     *user.User
	Profile  *cycle.Profile
	Schedule cycle.Schedule
	Phase    cycle.PhaseInfo
	Today    time.Time
	Pending  []notification.ScheduledJob
}

// HistoryEntry is one confirmed period start. CycleLength is the number of days
// since the previous start, zero for the oldest entry.
type HistoryEntry struct {
	Start       time.Time
	CycleLength int
}

// RegisterUser creates the user on first contact. An inactive user is
// reactivated and, if configured, rescheduled.
func (s *CycleService) RegisterUser(ctx context.Context, telegramID int64, username string) (*user.User, bool, error) {
	logger := s.logger.WithField("telegram_id", telegramID)
	name := sql.NullString{String: username, Valid: username != ""}

	u, err := s.users.GetByTelegramID(ctx, telegramID)
	if errors.Is(err, idb.ErrUserNotFound) {
		u = &user.User{TelegramID: telegramID, Username: name, Timezone: s.defaultTZ, IsActive: true}
		if err := s.users.Create(ctx, u); err != nil {
			if !errors.Is(err, idb.ErrDuplicateTelegramID) {
				return nil, false, fmt.Errorf("failed to create user: %w", err)
			}
			// Lost a race with a concurrent /start.
			u, err = s.users.GetByTelegramID(ctx, telegramID)
			if err != nil {
				return nil, false, fmt.Errorf("failed to load user: %w", err)
			}
			return u, false, nil
		}
		logger.WithField("user_id", u.ID).Info("New user registered")
		return u, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load user: %w", err)
	}

	reactivated := !u.IsActive
	if !reactivated && u.Username == name {
		return u, false, nil
	}
	u.Username = name
	u.IsActive = true
	if err := s.users.Update(ctx, u); err != nil {
		return nil, false, fmt.Errorf("failed to update user: %w", err)
	}
	if reactivated {
		logger.WithField("user_id", u.ID).Info("User reactivated")
		if err := s.rescheduleIfConfigured(ctx, u); err != nil {
			return nil, false, err
		}
	}
	return u, false, nil
}

// SetupProfile validates and stores the cycle parameters, then schedules the
// reminders for the computed cycle.
func (s *CycleService) SetupProfile(ctx context.Context, telegramID int64, lastPeriod time.Time, cycleLength, periodLength int) (*Status, error) {
	u, err := s.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	loc, err := u.Location()
	if err != nil {
		return nil, err
	}
	today := s.now().In(loc)

	schedule, err := cycle.Compute(lastPeriod, cycleLength, periodLength, today)
	if err != nil {
		return nil, err
	}

	p := &cycle.Profile{
		UserID:         u.ID,
		LastPeriodDate: schedule.LastPeriodDate,
		CycleLength:    cycleLength,
		PeriodLength:   periodLength,
	}
	if err := s.cycles.SaveProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save cycle profile: %w", err)
	}
	if err := s.cycles.RecordSetupStart(ctx, u.ID, p.LastPeriodDate); err != nil {
		return nil, fmt.Errorf("failed to record period start: %w", err)
	}
	if _, err := s.scheduler.RescheduleForUser(ctx, u.ID, schedule, u.Timezone); err != nil {
		return nil, fmt.Errorf("failed to schedule notifications: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":      u.ID,
		"last_period":  cycle.FormatDate(p.LastPeriodDate),
		"cycle_length": cycleLength,
	}).Info("Cycle profile configured")
	return s.status(u, p, today)
}

// ConfirmPeriodStart records an actual period start, recalculates the average
// cycle length from the recorded history and moves the schedule to the new cycle.
// The start is checked against the last recorded start, not the predicted one a
// maintenance run may have rolled the profile to. Confirming the last recorded
// start again is a no-op.
func (s *CycleService) ConfirmPeriodStart(ctx context.Context, telegramID int64, start time.Time) (*Status, error) {
	u, p, err := s.userWithProfile(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	loc, err := u.Location()
	if err != nil {
		return nil, err
	}
	today := s.now().In(loc)

	start = cycle.Day(start)
	if err := cycle.ValidateLastPeriodDate(start, today); err != nil {
		return nil, err
	}
	last, err := s.lastRecordedStart(ctx, p)
	if err != nil {
		return nil, err
	}
	if start.Equal(last) {
		return s.status(u, p, today)
	}
	if start.Before(last) {
		return nil, &cycle.ValidationError{
			Field:  "start_date",
			Value:  cycle.FormatDate(start),
			Reason: "must be after the last recorded period start " + cycle.FormatDate(last),
		}
	}

	if err := s.cycles.AppendHistory(ctx, u.ID, start); err != nil {
		return nil, fmt.Errorf("failed to record period start: %w", err)
	}
	history, err := s.cycles.GetConfirmedHistory(ctx, u.ID, s.historyWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load period history: %w", err)
	}

	previousLength := p.CycleLength
	p.CycleLength = cycle.AverageCycleLength(history, s.historyWindow, p.CycleLength)
	p.LastPeriodDate = start

	schedule, err := cycle.Derive(*p)
	if err != nil {
		return nil, err
	}
	if err := s.cycles.SaveProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save cycle profile: %w", err)
	}
	if _, err := s.scheduler.RescheduleForUser(ctx, u.ID, schedule, u.Timezone); err != nil {
		return nil, fmt.Errorf("failed to schedule notifications: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":         u.ID,
		"start":           cycle.FormatDate(start),
		"previous_length": previousLength,
		"cycle_length":    p.CycleLength,
	}).Info("Period start confirmed")
	return s.status(u, p, today)
}

// ConfirmPeriodStartToday confirms a period that started today in the user's timezone.
func (s *CycleService) ConfirmPeriodStartToday(ctx context.Context, telegramID int64) (*Status, error) {
	u, err := s.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	loc, err := u.Location()
	if err != nil {
		return nil, err
	}
	return s.ConfirmPeriodStart(ctx, telegramID, cycle.Day(s.now().In(loc)))
}

// GetStatus reports the current cycle, today's phase and the pending reminders.
func (s *CycleService) GetStatus(ctx context.Context, telegramID int64) (*Status, error) {
	u, p, err := s.userWithProfile(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	loc, err := u.Location()
	if err != nil {
		return nil, err
	}
	return s.status(u, p, s.now().In(loc))
}

func (s *CycleService) status(u *user.User, p *cycle.Profile, today time.Time) (*Status, error) {
	schedule, err := cycle.Derive(*p)
	if err != nil {
		return nil, err
	}
	phase, err := cycle.CurrentPhase(*p, today)
	if err != nil {
		return nil, err
	}
	return &Status{
		User:     u,
		Profile:  p,
		Schedule: schedule,
		Phase:    phase,
		Today:    cycle.Day(today),
		Pending:  s.scheduler.PendingJobs(u.ID),
	}, nil
}

// UpdateTimezone stores a new IANA timezone and moves pending reminders to it.
func (s *CycleService) UpdateTimezone(ctx context.Context, telegramID int64, raw string) (string, error) {
	tz, err := normalizeTimezone(raw)
	if err != nil {
		return "", err
	}
	u, err := s.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return "", err
	}
	u.Timezone = tz
	if err := s.users.Update(ctx, u); err != nil {
		return "", fmt.Errorf("failed to update timezone: %w", err)
	}
	if err := s.rescheduleIfConfigured(ctx, u); err != nil {
		return "", err
	}
	s.logger.WithFields(logrus.Fields{"user_id": u.ID, "timezone": tz}).Info("Timezone updated")
	return tz, nil
}

func normalizeTimezone(raw string) (string, error) {
	candidate := strings.ReplaceAll(strings.TrimSpace(raw), " ", "_")
	if candidate == "" || strings.EqualFold(candidate, "local") {
		return "", ErrInvalidTimezone
	}
	if _, err := time.LoadLocation(candidate); err == nil {
		return candidate, nil
	}

	parts := strings.Split(strings.ToLower(candidate), "/")
	for i, part := range parts {
		words := strings.Split(part, "_")
		for j, w := range words {
			pieces := strings.Split(w, "-")
			for k, piece := range pieces {
				if piece != "" {
					pieces[k] = strings.ToUpper(piece[:1]) + piece[1:]
				}
			}
			words[j] = strings.Join(pieces, "-")
		}
		parts[i] = strings.Join(words, "_")
	}
	normalized := strings.Join(parts, "/")
	if _, err := time.LoadLocation(normalized); err != nil {
		return "", ErrInvalidTimezone
	}
	return normalized, nil
}

// History returns up to limit confirmed starts, newest first.
func (s *CycleService) History(ctx context.Context, telegramID int64, limit int) ([]HistoryEntry, error) {
	u, err := s.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	// One extra start so the oldest shown entry still gets its length.
	starts, err := s.cycles.GetConfirmedHistory(ctx, u.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to load period history: %w", err)
	}

	entries := make([]HistoryEntry, 0, len(starts))
	for i := len(starts) - 1; i >= 0 && len(entries) < limit; i-- {
		e := HistoryEntry{Start: starts[i]}
		if i > 0 {
			e.CycleLength = cycle.DaysBetween(starts[i-1], starts[i])
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// NotificationSettings returns the enabled flag of every reminder type.
func (s *CycleService) NotificationSettings(ctx context.Context, telegramID int64) (map[notification.Type]bool, error) {
	u, err := s.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	stored, err := s.settings.ListSettings(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification settings: %w", err)
	}
	all := make(map[notification.Type]bool, len(notification.AllTypes))
	for _, t := range notification.AllTypes {
		enabled, ok := stored[t]
		all[t] = !ok || enabled
	}
	return all, nil
}

// SetNotificationEnabled toggles one reminder type. Jobs stay scheduled; a
// disabled type is suppressed at delivery time.
func (s *CycleService) SetNotificationEnabled(ctx context.Context, telegramID int64, t notification.Type, enabled bool) error {
	if !t.Valid() {
		return fmt.Errorf("unknown notification type %q", t)
	}
	u, err := s.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return err
	}
	if err := s.settings.SetEnabled(ctx, u.ID, t, enabled); err != nil {
		return fmt.Errorf("failed to save notification setting: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"user_id":           u.ID,
		"notification_type": t,
		"enabled":           enabled,
	}).Info("Notification setting changed")
	return nil
}

// DeleteUserData cancels every pending reminder and removes the user with all
// owned rows.
func (s *CycleService) DeleteUserData(ctx context.Context, telegramID int64) error {
	u, err := s.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return err
	}
	if err := s.scheduler.CancelAllForUser(ctx, u.ID); err != nil {
		return fmt.Errorf("failed to cancel notifications: %w", err)
	}
	if err := s.users.Delete(ctx, u.ID); err != nil {
		return fmt.Errorf("failed to delete user data: %w", err)
	}
	s.logger.WithField("user_id", u.ID).Info("User data deleted")
	return nil
}

// AdvanceOverdueProfiles rolls forward profiles whose expected period passed
// more than overdueGraceDays ago without confirmation, so reminders continue
// on the predicted cycle. Returns the number of advanced profiles.
func (s *CycleService) AdvanceOverdueProfiles(ctx context.Context) (int, error) {
	profiles, err := s.cycles.ListProfiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list cycle profiles: %w", err)
	}

	advanced := 0
	for _, p := range profiles {
		logger := s.logger.WithField("user_id", p.UserID)
		u, err := s.users.GetByID(ctx, p.UserID)
		if err != nil {
			logger.WithError(err).Error("Failed to load profile owner")
			continue
		}
		if !u.IsActive {
			continue
		}
		loc, err := u.Location()
		if err != nil {
			logger.WithError(err).Warn("Skipping profile with invalid timezone")
			continue
		}

		today := cycle.Day(s.now().In(loc))
		next := cycle.AddDays(p.LastPeriodDate, p.CycleLength)
		if cycle.DaysBetween(next, today) <= overdueGraceDays {
			continue
		}

		elapsed := cycle.DaysBetween(p.LastPeriodDate, today)
		p.LastPeriodDate = cycle.AddDays(p.LastPeriodDate, elapsed/p.CycleLength*p.CycleLength)
		schedule, err := cycle.Derive(*p)
		if err != nil {
			logger.WithError(err).Warn("Skipping invalid cycle profile")
			continue
		}
		if err := s.cycles.SaveProfile(ctx, p); err != nil {
			logger.WithError(err).Error("Failed to advance cycle profile")
			continue
		}
		if _, err := s.scheduler.RescheduleForUser(ctx, u.ID, schedule, u.Timezone); err != nil {
			logger.WithError(err).Error("Failed to reschedule advanced profile")
			continue
		}
		logger.WithField("last_period", cycle.FormatDate(p.LastPeriodDate)).Info("Advanced overdue cycle profile")
		advanced++
	}
	return advanced, nil
}

// PurgeNotificationLog drops finished log rows older than the retention period.
func (s *CycleService) PurgeNotificationLog(ctx context.Context) (int64, error) {
	n, err := s.logs.PurgeLogBefore(ctx, s.now().Add(-s.logRetention))
	if err != nil {
		return 0, fmt.Errorf("failed to purge notification log: %w", err)
	}
	return n, nil
}

func (s *CycleService) userWithProfile(ctx context.Context, telegramID int64) (*user.User, *cycle.Profile, error) {
	u, err := s.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.cycles.GetProfile(ctx, u.ID)
	if errors.Is(err, idb.ErrProfileNotFound) {
		return nil, nil, ErrNotConfigured
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load cycle profile: %w", err)
	}
	return u, p, nil
}

// lastRecordedStart is the newest history entry, or the profile start for
// profiles that have no history.
func (s *CycleService) lastRecordedStart(ctx context.Context, p *cycle.Profile) (time.Time, error) {
	history, err := s.cycles.GetConfirmedHistory(ctx, p.UserID, 1)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load period history: %w", err)
	}
	if len(history) == 0 {
		return p.LastPeriodDate, nil
	}
	return history[0], nil
}

func (s *CycleService) rescheduleIfConfigured(ctx context.Context, u *user.User) error {
	p, err := s.cycles.GetProfile(ctx, u.ID)
	if errors.Is(err, idb.ErrProfileNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load cycle profile: %w", err)
	}
	schedule, err := cycle.Derive(*p)
	if err != nil {
		return err
	}
	if _, err := s.scheduler.RescheduleForUser(ctx, u.ID, schedule, u.Timezone); err != nil {
		return fmt.Errorf("failed to schedule notifications: %w", err)
	}
	return nil
}
