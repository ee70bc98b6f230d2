// internal/domain/cycle/cycle.go
package cycle

import (
	"time"
)

const (
	MinCycleLength  = 21
	MaxCycleLength  = 40
	MinPeriodLength = 1
	MaxPeriodLength = 10

	// MaxLastPeriodAgeDays bounds how far back a reported period start may be.
	MaxLastPeriodAgeDays = 90

	lutealPhaseDays     = 14
	fertileWindowRadius = 2
)

// Profile holds a user's current cycle parameters.
// Corresponds to the 'cycle_profiles' table.
type Profile struct {
	UserID         int64
	LastPeriodDate time.Time // Calendar date, midnight UTC
	CycleLength    int
	PeriodLength   int
	UpdatedAt      time.Time
}

// Window is an inclusive range of calendar dates.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the calendar date of d falls inside the window.
func (w Window) Contains(d time.Time) bool {
	day := Day(d)
	return !day.Before(w.Start) && !day.After(w.End)
}

// Alerts are the calendar dates on which each reminder is due.
type Alerts struct {
	Ovulation      time.Time
	SafeZone       time.Time
	PeriodIn3Days  time.Time
	PeriodTomorrow time.Time
	Confirmation   time.Time
}

// Schedule is derived from a Profile and never stored.
type Schedule struct {
	LastPeriodDate  time.Time
	CycleLength     int
	PeriodLength    int
	PeriodEnd       time.Time
	OvulationDay    time.Time
	FertileWindow   Window
	SafePeriodStart time.Time
	NextPeriodDate  time.Time
	Alerts          Alerts
}

// Compute validates the inputs against now and derives the schedule.
// now is interpreted as a calendar date in its own location.
func Compute(lastPeriod time.Time, cycleLength, periodLength int, now time.Time) (Schedule, error) {
	if err := ValidateLengths(cycleLength, periodLength); err != nil {
		return Schedule{}, err
	}
	if err := ValidateLastPeriodDate(lastPeriod, now); err != nil {
		return Schedule{}, err
	}
	return derive(Day(lastPeriod), cycleLength, periodLength), nil
}

// Derive builds the schedule for a stored profile. Unlike Compute it does not
// check how old the last period date is.
func Derive(p Profile) (Schedule, error) {
	if err := ValidateLengths(p.CycleLength, p.PeriodLength); err != nil {
		return Schedule{}, err
	}
	return derive(Day(p.LastPeriodDate), p.CycleLength, p.PeriodLength), nil
}

func derive(start time.Time, cycleLength, periodLength int) Schedule {
	ovulation := AddDays(start, cycleLength-lutealPhaseDays)
	fertile := Window{
		Start: AddDays(ovulation, -fertileWindowRadius),
		End:   AddDays(ovulation, fertileWindowRadius),
	}
	safeStart := AddDays(fertile.End, 1)
	next := AddDays(start, cycleLength)

	return Schedule{
		LastPeriodDate:  start,
		CycleLength:     cycleLength,
		PeriodLength:    periodLength,
		PeriodEnd:       AddDays(start, periodLength-1),
		OvulationDay:    ovulation,
		FertileWindow:   fertile,
		SafePeriodStart: safeStart,
		NextPeriodDate:  next,
		Alerts: Alerts{
			Ovulation:      AddDays(ovulation, -1),
			SafeZone:       safeStart,
			PeriodIn3Days:  AddDays(next, -3),
			PeriodTomorrow: AddDays(next, -1),
			Confirmation:   next,
		},
	}
}

// ValidateLengths checks cycle and period length against their accepted ranges.
func ValidateLengths(cycleLength, periodLength int) error {
	if cycleLength < MinCycleLength || cycleLength > MaxCycleLength {
		return newRangeError("cycle_length", cycleLength, MinCycleLength, MaxCycleLength)
	}
	if periodLength < MinPeriodLength || periodLength > MaxPeriodLength {
		return newRangeError("period_length", periodLength, MinPeriodLength, MaxPeriodLength)
	}
	return nil
}

// ValidateLastPeriodDate rejects dates in the future or older than MaxLastPeriodAgeDays.
func ValidateLastPeriodDate(lastPeriod, now time.Time) error {
	start, today := Day(lastPeriod), Day(now)
	if start.After(today) {
		return &ValidationError{
			Field:  "last_period_date",
			Value:  FormatDate(start),
			Reason: "must not be in the future",
		}
	}
	if DaysBetween(start, today) > MaxLastPeriodAgeDays {
		return &ValidationError{
			Field:  "last_period_date",
			Value:  FormatDate(start),
			Min:    0,
			Max:    MaxLastPeriodAgeDays,
			Reason: "must be at most 90 days in the past",
		}
	}
	return nil
}
