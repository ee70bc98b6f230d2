package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cycle_reminder_bot/internal/domain/cycle"
	"cycle_reminder_bot/internal/domain/notification"
	"cycle_reminder_bot/internal/domain/user"
	idb "cycle_reminder_bot/internal/infra/database" // For ErrLogEntryNotFound

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultMisfireGrace = 30 * time.Second
	defaultFireTimeout  = 2 * time.Minute
)

// ErrStopped is returned when jobs are installed after Teardown.
var ErrStopped = errors.New("notification scheduler is stopped")

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Timer is the handle returned by an AfterFunc.
type Timer interface {
	Stop() bool
}

// AfterFunc arms f to run once after d on another goroutine. It is called with
// the scheduler lock held, so it must never run f synchronously.
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Recorder receives scheduler metrics.
type Recorder interface {
	ObserveDelivery(t notification.Type, status notification.Status)
	IncReschedules()
	SetPendingJobs(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveDelivery(notification.Type, notification.Status) {}
func (nopRecorder) IncReschedules()                                        {}
func (nopRecorder) SetPendingJobs(int)                                     {}

type Option func(*NotificationScheduler)

func WithClock(c Clock) Option { return func(s *NotificationScheduler) { s.clock = c } }

func WithAfterFunc(fn AfterFunc) Option { return func(s *NotificationScheduler) { s.afterFunc = fn } }

// WithMisfireGrace sets how late a restored job may still fire after a restart.
func WithMisfireGrace(d time.Duration) Option {
	return func(s *NotificationScheduler) { s.misfireGrace = d }
}

func WithFireTimeout(d time.Duration) Option {
	return func(s *NotificationScheduler) { s.fireTimeout = d }
}

func WithRecorder(r Recorder) Option { return func(s *NotificationScheduler) { s.metrics = r } }

type pendingTimer struct {
	job   notification.ScheduledJob
	timer Timer
}

// NotificationScheduler keeps at most one pending job per (user, type), fires it
// at its local wall-clock instant and records the outcome in the dedup log.
type NotificationScheduler struct {
	store     notification.JobStore
	logs      notification.LogRepository
	deliverer notification.Deliverer
	logger    *logrus.Entry

	clock        Clock
	afterFunc    AfterFunc
	misfireGrace time.Duration
	fireTimeout  time.Duration
	metrics      Recorder

	mu       sync.Mutex
	timers   map[notification.JobKey]*pendingTimer
	stopped  bool
	inflight sync.WaitGroup
}

func NewNotificationScheduler(
	store notification.JobStore,
	logs notification.LogRepository,
	deliverer notification.Deliverer,
	logger *logrus.Entry,
	opts ...Option,
) *NotificationScheduler {
	s := &NotificationScheduler{
		store:        store,
		logs:         logs,
		deliverer:    deliverer,
		logger:       logger,
		clock:        systemClock{},
		afterFunc:    stdAfterFunc,
		misfireGrace: defaultMisfireGrace,
		fireTimeout:  defaultFireTimeout,
		metrics:      nopRecorder{},
		timers:       make(map[notification.JobKey]*pendingTimer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init restores pending jobs from the store. Jobs overdue by at most the misfire
// grace fire right away, older ones are dropped and logged as CANCELLED.
func (s *NotificationScheduler) Init(ctx context.Context) error {
	jobs, err := s.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending jobs: %w", err)
	}

	now := s.clock.Now()
	var missed []notification.ScheduledJob

	s.mu.Lock()
	s.stopped = false
	for _, job := range jobs {
		if now.Sub(job.FireAt) > s.misfireGrace {
			missed = append(missed, job)
			continue
		}
		s.armLocked(job, now)
	}
	restored := len(s.timers)
	s.mu.Unlock()

	for _, job := range missed {
		if err := s.store.DeleteJob(ctx, job.Key(), job.ID); err != nil {
			s.jobLogger(job).WithError(err).Error("Failed to drop missed job")
		}
		s.writeLog(ctx, job, notification.StatusCancelled, "missed while the bot was offline")
		s.jobLogger(job).Warn("Dropped job that was missed while offline")
	}

	s.metrics.SetPendingJobs(restored)
	s.logger.WithFields(logrus.Fields{"restored": restored, "missed": len(missed)}).Info("Notification scheduler initialized")
	return nil
}

// Teardown stops every timer without touching the store, so jobs are restored
// on the next Init, and waits for callbacks already running.
func (s *NotificationScheduler) Teardown(ctx context.Context) error {
	s.logger.Info("Stopping notification scheduler...")

	s.mu.Lock()
	s.stopped = true
	for key, pt := range s.timers {
		pt.timer.Stop()
		delete(s.timers, key)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("Notification scheduler gracefully stopped.")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight notifications: %w", ctx.Err())
	}
}

// RescheduleForUser cancels all pending jobs of the user and installs one job per
// reminder type derived from schedule in timezone (user.DefaultTimezone when
// empty). Reminders whose instant has already passed are not scheduled.
func (s *NotificationScheduler) RescheduleForUser(ctx context.Context, userID int64, schedule cycle.Schedule, timezone string) ([]notification.ScheduledJob, error) {
	timezone, loc, err := user.LoadLocation(timezone)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	jobs := planJobs(userID, schedule, timezone, loc, now)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrStopped
	}
	previous, err := s.store.ReplaceForUser(ctx, userID, jobs)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to store jobs for user %d: %w", userID, err)
	}
	s.stopUserLocked(userID)
	for _, job := range jobs {
		s.armLocked(job, now)
	}
	pending := len(s.timers)
	s.mu.Unlock()

	kept := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		kept[logKey(job)] = true
	}
	for _, old := range previous {
		if !kept[logKey(old)] {
			s.writeLog(ctx, old, notification.StatusCancelled, "superseded by reschedule")
		}
	}
	for _, job := range jobs {
		s.writeLog(ctx, job, notification.StatusScheduled, "")
	}

	s.metrics.IncReschedules()
	s.metrics.SetPendingJobs(pending)
	s.logger.WithFields(logrus.Fields{
		"user_id":   userID,
		"scheduled": len(jobs),
		"replaced":  len(previous),
	}).Info("Rescheduled user notifications")
	return jobs, nil
}

// CancelAllForUser removes every pending job of the user. Once it returns no job
// of the user can start firing.
func (s *NotificationScheduler) CancelAllForUser(ctx context.Context, userID int64) error {
	s.mu.Lock()
	s.stopUserLocked(userID)
	removed, err := s.store.DeleteForUser(ctx, userID)
	pending := len(s.timers)
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to delete jobs for user %d: %w", userID, err)
	}
	for _, job := range removed {
		s.writeLog(ctx, job, notification.StatusCancelled, "cancelled")
	}
	s.metrics.SetPendingJobs(pending)
	s.logger.WithFields(logrus.Fields{"user_id": userID, "cancelled": len(removed)}).Info("Cancelled user notifications")
	return nil
}

// OnFire delivers job unless the dedup log already has it as SENT, then records
// the outcome. A failed delivery is logged as FAILED and not retried.
func (s *NotificationScheduler) OnFire(ctx context.Context, job notification.ScheduledJob) (err error) {
	logger := s.jobLogger(job)
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("Recovered from panic while firing notification")
			err = fmt.Errorf("panic while firing %s for user %d: %v", job.Type, job.UserID, r)
		}
	}()

	existing, err := s.logs.FindLog(ctx, job.UserID, job.Type, job.ScheduledDate)
	switch {
	case err == nil && existing.Status == notification.StatusSent:
		logger.Info("Notification already sent, skipping")
		s.metrics.ObserveDelivery(job.Type, notification.StatusCancelled)
		return nil
	case err != nil && !errors.Is(err, idb.ErrLogEntryNotFound):
		// Sending twice is preferable to not sending at all.
		logger.WithError(err).Error("Dedup lookup failed, delivering anyway")
	}

	deliveryErr := s.deliverer.Deliver(ctx, job.UserID, job.Type)
	switch {
	case deliveryErr == nil:
		s.writeLog(ctx, job, notification.StatusSent, "")
		s.metrics.ObserveDelivery(job.Type, notification.StatusSent)
		logger.Info("Notification delivered")
		return nil
	case errors.Is(deliveryErr, notification.ErrSuppressed):
		s.writeLog(ctx, job, notification.StatusCancelled, deliveryErr.Error())
		s.metrics.ObserveDelivery(job.Type, notification.StatusCancelled)
		logger.WithError(deliveryErr).Info("Notification suppressed")
		return nil
	default:
		s.writeLog(ctx, job, notification.StatusFailed, deliveryErr.Error())
		s.metrics.ObserveDelivery(job.Type, notification.StatusFailed)
		logger.WithError(deliveryErr).Error("Notification delivery failed")
		return fmt.Errorf("delivering %s to user %d: %w", job.Type, job.UserID, deliveryErr)
	}
}

// PendingJobs returns the armed jobs of a user ordered by fire time.
func (s *NotificationScheduler) PendingJobs(userID int64) []notification.ScheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]notification.ScheduledJob, 0, len(notification.AllTypes))
	for key, pt := range s.timers {
		if key.UserID == userID {
			jobs = append(jobs, pt.job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].FireAt.Before(jobs[j].FireAt) })
	return jobs
}

// PendingCount is the number of armed jobs across all users.
func (s *NotificationScheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func planJobs(userID int64, schedule cycle.Schedule, timezone string, loc *time.Location, now time.Time) []notification.ScheduledJob {
	jobs := make([]notification.ScheduledJob, 0, len(notification.AllTypes))
	for _, t := range notification.AllTypes {
		date := t.TargetDate(schedule)
		fireAt := t.FireAt(date, loc)
		if !fireAt.After(now) {
			continue
		}
		jobs = append(jobs, notification.ScheduledJob{
			ID:            uuid.NewString(),
			UserID:        userID,
			Type:          t,
			ScheduledDate: cycle.Day(date),
			FireAt:        fireAt.UTC(),
			Timezone:      timezone,
			CreatedAt:     now.UTC(),
		})
	}
	return jobs
}

func (s *NotificationScheduler) armLocked(job notification.ScheduledJob, now time.Time) {
	delay := job.FireAt.Sub(now)
	if delay < 0 {
		delay = 0
	}
	key := job.Key()
	if old, ok := s.timers[key]; ok {
		old.timer.Stop()
	}
	s.timers[key] = &pendingTimer{
		job:   job,
		timer: s.afterFunc(delay, func() { s.fire(job) }),
	}
}

func (s *NotificationScheduler) stopUserLocked(userID int64) {
	for key, pt := range s.timers {
		if key.UserID == userID {
			pt.timer.Stop()
			delete(s.timers, key)
		}
	}
}

// fire is the timer callback. A timer whose job was replaced or cancelled in the
// meantime does nothing.
func (s *NotificationScheduler) fire(job notification.ScheduledJob) {
	key := job.Key()

	s.mu.Lock()
	pt, ok := s.timers[key]
	if s.stopped || !ok || pt.job.ID != job.ID {
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	s.inflight.Add(1)
	pending := len(s.timers)
	s.mu.Unlock()
	defer s.inflight.Done()

	s.metrics.SetPendingJobs(pending)

	ctx, cancel := context.WithTimeout(context.Background(), s.fireTimeout)
	defer cancel()

	if err := s.OnFire(ctx, job); err != nil {
		s.jobLogger(job).WithError(err).Warn("Notification job finished with error")
	}
	if err := s.store.DeleteJob(ctx, key, job.ID); err != nil {
		s.jobLogger(job).WithError(err).Error("Failed to remove fired job from store")
	}
}

// writeLog records status for the job. Failures are logged and swallowed: the
// log must never block or undo a delivery.
func (s *NotificationScheduler) writeLog(ctx context.Context, job notification.ScheduledJob, status notification.Status, message string) {
	entry := &notification.LogEntry{
		UserID:        job.UserID,
		Type:          job.Type,
		ScheduledDate: job.ScheduledDate,
		Status:        status,
	}
	if status == notification.StatusSent {
		entry.SentAt = sql.NullTime{Time: s.clock.Now().UTC(), Valid: true}
	}
	if message != "" {
		entry.ErrorMessage = sql.NullString{String: message, Valid: true}
	}
	if err := s.logs.AppendLog(ctx, entry); err != nil {
		s.jobLogger(job).WithError(err).WithField("status", status).Error("Failed to write notification log")
	}
}

func (s *NotificationScheduler) jobLogger(job notification.ScheduledJob) *logrus.Entry {
	return s.logger.WithFields(logrus.Fields{
		"user_id":           job.UserID,
		"notification_type": job.Type,
		"scheduled_date":    cycle.FormatDate(job.ScheduledDate),
		"job_id":            job.ID,
	})
}

func logKey(job notification.ScheduledJob) string {
	return string(job.Type) + "|" + cycle.FormatDate(job.ScheduledDate)
}
