package cycle

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date format accepted from users and stored in the DB.
const DateLayout = "2006-01-02"

// Day truncates t to its calendar date (in t's own location) at midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func AddDays(d time.Time, n int) time.Time {
	return d.AddDate(0, 0, n)
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// ParseDate parses YYYY-MM-DD (DD.MM.YYYY is also accepted).
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{DateLayout, "02.01.2006"} {
		if d, err := time.Parse(layout, s); err == nil {
			return Day(d), nil
		}
	}
	return time.Time{}, &ValidationError{
		Field:  "date",
		Value:  s,
		Reason: fmt.Sprintf("expected format %s", DateLayout),
	}
}
