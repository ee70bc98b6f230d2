// internal/domain/notification/shared_types.go
package notification

import "errors"

// Type identifies one of the five cycle reminders.
type Type string

const (
	TypeOvulationStart     Type = "OVULATION_START"     // Day before ovulation, 20:00
	TypeSafeZoneStart      Type = "SAFE_ZONE_START"     // First day after the fertile window, 09:00
	TypePeriodIn3Days      Type = "PERIOD_IN_3_DAYS"    // 18:00
	TypePeriodTomorrow     Type = "PERIOD_TOMORROW"     // 20:00
	TypePeriodConfirmation Type = "PERIOD_CONFIRMATION" // Expected start day, 09:00
)

// AllTypes lists every reminder in the order they fire within a cycle.
var AllTypes = []Type{
	TypeOvulationStart,
	TypeSafeZoneStart,
	TypePeriodIn3Days,
	TypePeriodTomorrow,
	TypePeriodConfirmation,
}

func (t Type) Valid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Status is the outcome recorded in the notification log.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusSent      Status = "SENT"
	StatusFailed    Status = "FAILED"
	StatusRetry     Status = "RETRY" // Reserved; the scheduler never retries
	StatusCancelled Status = "CANCELLED"
)

// ErrSuppressed is returned by a Deliverer when the reminder must not be sent
// (user opted out of the type or is inactive). It is not a delivery failure.
var ErrSuppressed = errors.New("notification suppressed")

var titles = map[Type]string{
	TypeOvulationStart:     "Овуляция (за день)",
	TypeSafeZoneStart:      "Начало безопасного периода",
	TypePeriodIn3Days:      "Месячные через 3 дня",
	TypePeriodTomorrow:     "Месячные завтра",
	TypePeriodConfirmation: "Подтверждение начала цикла",
}

// Title is the human readable name shown in settings and status screens.
func (t Type) Title() string {
	if title, ok := titles[t]; ok {
		return title
	}
	return string(t)
}
