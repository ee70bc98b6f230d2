package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// MaintenanceService is the housekeeping the daily cron job runs.
type MaintenanceService interface {
	AdvanceOverdueProfiles(ctx context.Context) (int, error)
	PurgeNotificationLog(ctx context.Context) (int64, error)
}

// Maintenance runs periodic housekeeping on a cron schedule.
type Maintenance struct {
	cronEngine *cron.Cron
	service    MaintenanceService
	scheduler  *NotificationScheduler // For the pending jobs gauge
	metrics    Recorder
	logger     *logrus.Entry
	cronSpec   string
	timeout    time.Duration
}

func NewMaintenance(
	service MaintenanceService,
	scheduler *NotificationScheduler,
	metrics Recorder,
	logger *logrus.Entry,
	cronSpec string, // e.g., "15 3 * * *" (03:15 daily)
	loc *time.Location,
) *Maintenance {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Maintenance{
		cronEngine: cron.New(cron.WithLocation(loc)),
		service:    service,
		scheduler:  scheduler,
		metrics:    metrics,
		logger:     logger,
		cronSpec:   cronSpec,
		timeout:    10 * time.Minute,
	}
}

func (m *Maintenance) Start() error {
	m.logger.Info("Starting maintenance scheduler...")

	_, err := m.cronEngine.AddFunc(m.cronSpec, func() {
		m.logger.Info("Cron job triggered for daily maintenance.")
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		m.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("could not add maintenance cron job %q: %w", m.cronSpec, err)
	}

	m.cronEngine.Start()
	m.logger.WithField("cron_spec", m.cronSpec).Info("Maintenance scheduler started.")
	return nil
}

// RunOnce performs one maintenance pass. Each step is independent: a failing
// step is logged and the next one still runs.
func (m *Maintenance) RunOnce(ctx context.Context) {
	if advanced, err := m.service.AdvanceOverdueProfiles(ctx); err != nil {
		m.logger.WithError(err).Error("Error advancing overdue cycle profiles")
	} else {
		m.logger.WithField("advanced", advanced).Info("Overdue cycle profiles advanced")
	}

	if purged, err := m.service.PurgeNotificationLog(ctx); err != nil {
		m.logger.WithError(err).Error("Error purging notification log")
	} else {
		m.logger.WithField("purged", purged).Info("Old notification log entries purged")
	}

	if m.scheduler != nil {
		m.metrics.SetPendingJobs(m.scheduler.PendingCount())
	}
}

func (m *Maintenance) Stop() {
	m.logger.Info("Stopping maintenance scheduler...")
	ctx := m.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	m.logger.Info("Maintenance scheduler gracefully stopped.")
}
