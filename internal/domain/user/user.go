package user

import (
	"database/sql"
	"fmt"
	"time"
)

// DefaultTimezone is assigned to users that never set one.
const DefaultTimezone = "Europe/Moscow"

// User is a Telegram user of the bot.
type User struct {
	ID         int64
	TelegramID int64
	Username   sql.NullString // Telegram username is optional
	Timezone   string         // IANA name
	IsActive   bool           // False once the user blocked the bot
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Location resolves the user's timezone.
func (u *User) Location() (*time.Location, error) {
	_, loc, err := LoadLocation(u.Timezone)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", u.ID, err)
	}
	return loc, nil
}

// LoadLocation resolves an IANA timezone name. An empty name means
// DefaultTimezone; the resolved name is returned alongside the location.
func LoadLocation(tz string) (string, *time.Location, error) {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return tz, loc, nil
}

// Stats are aggregate user counters for the admin report.
type Stats struct {
	Total       int
	Active      int
	WithProfile int
}
