package database

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Custom errors
var ErrUserNotFound = fmt.Errorf("user not found")
var ErrDuplicateTelegramID = fmt.Errorf("user with this Telegram ID already exists")
var ErrProfileNotFound = fmt.Errorf("cycle profile not found")
var ErrLogEntryNotFound = fmt.Errorf("notification log entry not found")

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
