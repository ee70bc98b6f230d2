package cycle

import "time"

// Phase is the part of the cycle a given day falls into.
type Phase string

const (
	PhaseMenstruation    Phase = "MENSTRUATION"
	PhaseFollicular      Phase = "FOLLICULAR"
	PhaseOvulation       Phase = "OVULATION"
	PhaseLuteal          Phase = "LUTEAL"
	PhasePreMenstruation Phase = "PRE_MENSTRUATION"
)

const preMenstruationDays = 3

// PhaseInfo describes where today sits inside the (possibly projected) current cycle.
type PhaseInfo struct {
	Phase      Phase
	DayOfCycle int       // 1-based
	CycleStart time.Time // Start of the cycle containing today
	Schedule   Schedule  // Schedule of that cycle
}

// CurrentPhase projects the profile forward by whole cycles until today is inside
// a cycle and classifies the day.
func CurrentPhase(p Profile, today time.Time) (PhaseInfo, error) {
	if err := ValidateLengths(p.CycleLength, p.PeriodLength); err != nil {
		return PhaseInfo{}, err
	}
	start, day := Day(p.LastPeriodDate), Day(today)
	if day.Before(start) {
		return PhaseInfo{}, &ValidationError{
			Field:  "last_period_date",
			Value:  FormatDate(start),
			Reason: "must not be in the future",
		}
	}

	elapsed := DaysBetween(start, day)
	cycles := elapsed / p.CycleLength
	start = AddDays(start, cycles*p.CycleLength)
	elapsed -= cycles * p.CycleLength

	s := derive(start, p.CycleLength, p.PeriodLength)
	info := PhaseInfo{DayOfCycle: elapsed + 1, CycleStart: start, Schedule: s}

	switch {
	case info.DayOfCycle <= p.PeriodLength:
		info.Phase = PhaseMenstruation
	case day.Before(s.FertileWindow.Start):
		info.Phase = PhaseFollicular
	case s.FertileWindow.Contains(day):
		info.Phase = PhaseOvulation
	case day.Before(AddDays(start, p.CycleLength-preMenstruationDays)):
		info.Phase = PhaseLuteal
	default:
		info.Phase = PhasePreMenstruation
	}
	return info, nil
}
