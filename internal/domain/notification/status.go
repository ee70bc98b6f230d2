// internal/domain/notification/status.go
package notification

import (
	"database/sql"
	"time"
)

// JobKey identifies the single pending job a user may have per reminder type.
type JobKey struct {
	UserID int64
	Type   Type
}

// ScheduledJob is one pending reminder delivery.
// Corresponds to the 'scheduled_jobs' table.
type ScheduledJob struct {
	ID            string // UUID, changes every time the key is rescheduled
	UserID        int64
	Type          Type
	ScheduledDate time.Time // Calendar date the reminder belongs to
	FireAt        time.Time // Absolute instant, UTC
	Timezone      string
	CreatedAt     time.Time
}

func (j ScheduledJob) Key() JobKey {
	return JobKey{UserID: j.UserID, Type: j.Type}
}

// LogEntry records the outcome for one (user, type, scheduled date).
// Corresponds to the 'notification_log' table.
type LogEntry struct {
	ID            int64
	UserID        int64
	Type          Type
	ScheduledDate time.Time
	SentAt        sql.NullTime
	Status        Status
	ErrorMessage  sql.NullString
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
