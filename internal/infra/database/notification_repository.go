// internal/infra/database/notification_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cycle_reminder_bot/internal/domain/cycle"
	"cycle_reminder_bot/internal/domain/notification"
)

// NotificationRepository implements notification.LogRepository and
// notification.SettingsRepository.
type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// --- Notification Log Methods ---

const logColumns = `id, user_id, notification_type, scheduled_date, sent_at, status, error_message, created_at, updated_at`

func scanLogEntry(row interface{ Scan(dest ...any) error }) (*notification.LogEntry, error) {
	e := &notification.LogEntry{}
	err := row.Scan(&e.ID, &e.UserID, &e.Type, &e.ScheduledDate, &e.SentAt, &e.Status, &e.ErrorMessage, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.ScheduledDate = cycle.Day(e.ScheduledDate)
	return e, nil
}

// AppendLog inserts or updates the entry for (user, type, scheduled date).
// An existing SENT row is left untouched so a late CANCELLED or FAILED can not
// erase the proof of delivery.
func (r *NotificationRepository) AppendLog(ctx context.Context, e *notification.LogEntry) error {
	query := `INSERT INTO notification_log
                   (user_id, notification_type, scheduled_date, sent_at, status, error_message, created_at, updated_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
               ON CONFLICT (user_id, notification_type, scheduled_date) DO UPDATE
               SET sent_at = excluded.sent_at,
                   status = excluded.status,
                   error_message = excluded.error_message,
                   updated_at = excluded.updated_at
               WHERE notification_log.status <> 'SENT'`

	now := nowUTC()
	e.ScheduledDate = cycle.Day(e.ScheduledDate)
	_, err := r.db.ExecContext(ctx, query,
		e.UserID, e.Type, e.ScheduledDate, e.SentAt, e.Status, e.ErrorMessage, now,
	)
	if err != nil {
		return fmt.Errorf("error writing notification log entry: %w", err)
	}
	e.UpdatedAt = now
	return nil
}

func (r *NotificationRepository) FindLog(ctx context.Context, userID int64, t notification.Type, scheduledDate time.Time) (*notification.LogEntry, error) {
	query := `SELECT ` + logColumns + ` FROM notification_log
               WHERE user_id = $1 AND notification_type = $2 AND scheduled_date = $3`
	e, err := scanLogEntry(r.db.QueryRowContext(ctx, query, userID, t, cycle.Day(scheduledDate)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLogEntryNotFound
		}
		return nil, fmt.Errorf("error finding notification log entry: %w", err)
	}
	return e, nil
}

func (r *NotificationRepository) ListLogForUser(ctx context.Context, userID int64, limit int) ([]*notification.LogEntry, error) {
	query := `SELECT ` + logColumns + ` FROM notification_log
               WHERE user_id = $1
               ORDER BY scheduled_date DESC, id DESC
               LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying notification log: %w", err)
	}
	defer rows.Close()

	entries := make([]*notification.LogEntry, 0)
	for rows.Next() {
		e, err := scanLogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning notification log row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification log rows: %w", err)
	}
	return entries, nil
}

func (r *NotificationRepository) CountByStatus(ctx context.Context) (map[notification.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM notification_log GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("error counting notification log: %w", err)
	}
	defer rows.Close()

	counts := make(map[notification.Status]int)
	for rows.Next() {
		var status notification.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("error scanning notification log count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification log counts: %w", err)
	}
	return counts, nil
}

// PurgeLogBefore drops entries older than cutoff. SCHEDULED rows are kept since
// their job may still be pending.
func (r *NotificationRepository) PurgeLogBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM notification_log WHERE created_at < $1 AND status <> 'SCHEDULED'`
	res, err := r.db.ExecContext(ctx, query, cutoff.UTC().Truncate(time.Second))
	if err != nil {
		return 0, fmt.Errorf("error purging notification log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error counting purged notification log rows: %w", err)
	}
	return n, nil
}

// --- Notification Settings Methods ---

func (r *NotificationRepository) IsEnabled(ctx context.Context, userID int64, t notification.Type) (bool, error) {
	query := `SELECT is_enabled FROM notification_settings WHERE user_id = $1 AND notification_type = $2`
	var enabled bool
	err := r.db.QueryRowContext(ctx, query, userID, t).Scan(&enabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return true, nil // Enabled unless the user opted out
		}
		return false, fmt.Errorf("error reading notification setting: %w", err)
	}
	return enabled, nil
}

func (r *NotificationRepository) SetEnabled(ctx context.Context, userID int64, t notification.Type, enabled bool) error {
	query := `INSERT INTO notification_settings (user_id, notification_type, is_enabled, updated_at)
               VALUES ($1, $2, $3, $4)
               ON CONFLICT (user_id, notification_type) DO UPDATE
               SET is_enabled = excluded.is_enabled, updated_at = excluded.updated_at`
	if _, err := r.db.ExecContext(ctx, query, userID, t, enabled, nowUTC()); err != nil {
		return fmt.Errorf("error saving notification setting: %w", err)
	}
	return nil
}

func (r *NotificationRepository) ListSettings(ctx context.Context, userID int64) (map[notification.Type]bool, error) {
	settings := make(map[notification.Type]bool, len(notification.AllTypes))
	for _, t := range notification.AllTypes {
		settings[t] = true
	}

	rows, err := r.db.QueryContext(ctx, `SELECT notification_type, is_enabled FROM notification_settings WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing notification settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t notification.Type
		var enabled bool
		if err := rows.Scan(&t, &enabled); err != nil {
			return nil, fmt.Errorf("error scanning notification setting: %w", err)
		}
		if t.Valid() {
			settings[t] = enabled
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification settings: %w", err)
	}
	return settings, nil
}
