// internal/domain/notification/repository.go
package notification

import (
	"context"
	"time"
)

// LogRepository persists the dedup log.
type LogRepository interface {
	// AppendLog upserts on (user, type, scheduled date). A SENT row is never overwritten.
	AppendLog(ctx context.Context, e *LogEntry) error
	FindLog(ctx context.Context, userID int64, t Type, scheduledDate time.Time) (*LogEntry, error)
	ListLogForUser(ctx context.Context, userID int64, limit int) ([]*LogEntry, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
	// PurgeLogBefore deletes finished entries created before the cutoff.
	PurgeLogBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// JobStore is the durable store of pending jobs. The scheduler is its only writer.
type JobStore interface {
	// ReplaceForUser atomically swaps all jobs of a user and returns the replaced ones.
	ReplaceForUser(ctx context.Context, userID int64, jobs []ScheduledJob) ([]ScheduledJob, error)
	DeleteForUser(ctx context.Context, userID int64) ([]ScheduledJob, error)
	// DeleteJob removes the job for key only if it still carries jobID.
	DeleteJob(ctx context.Context, key JobKey, jobID string) error
	ListPending(ctx context.Context) ([]ScheduledJob, error)
	ListJobsForUser(ctx context.Context, userID int64) ([]ScheduledJob, error)
	CountJobs(ctx context.Context) (int, error)
}

// SettingsRepository stores per-type opt-outs. A missing row means enabled.
type SettingsRepository interface {
	IsEnabled(ctx context.Context, userID int64, t Type) (bool, error)
	SetEnabled(ctx context.Context, userID int64, t Type, enabled bool) error
	ListSettings(ctx context.Context, userID int64) (map[Type]bool, error)
}

// Deliverer sends the reminder of type t to the user.
type Deliverer interface {
	Deliver(ctx context.Context, userID int64, t Type) error
}
