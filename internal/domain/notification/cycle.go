// internal/domain/notification/cycle.go
package notification

import (
	"time"

	"cycle_reminder_bot/internal/domain/cycle"
)

var deliveryHours = map[Type]int{
	TypeOvulationStart:     20,
	TypeSafeZoneStart:      9,
	TypePeriodIn3Days:      18,
	TypePeriodTomorrow:     20,
	TypePeriodConfirmation: 9,
}

// DeliveryHour is the fixed local hour the reminder is sent at.
func (t Type) DeliveryHour() int {
	return deliveryHours[t]
}

// TargetDate picks the calendar date this reminder is due on within the schedule.
func (t Type) TargetDate(s cycle.Schedule) time.Time {
	switch t {
	case TypeOvulationStart:
		return s.Alerts.Ovulation
	case TypeSafeZoneStart:
		return s.Alerts.SafeZone
	case TypePeriodIn3Days:
		return s.Alerts.PeriodIn3Days
	case TypePeriodTomorrow:
		return s.Alerts.PeriodTomorrow
	case TypePeriodConfirmation:
		return s.Alerts.Confirmation
	}
	return time.Time{}
}

// FireAt combines a calendar date with the reminder's hour in loc.
func (t Type) FireAt(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, t.DeliveryHour(), 0, 0, 0, loc)
}
