package cycle

import (
	"errors"
	"fmt"
	"strconv"
)

// ValidationError reports a rejected cycle input. It is a user error, not a system fault.
type ValidationError struct {
	Field  string
	Value  string
	Min    int
	Max    int
	Reason string
}

func newRangeError(field string, value, min, max int) *ValidationError {
	return &ValidationError{Field: field, Value: strconv.Itoa(value), Min: min, Max: max}
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s %s: must be between %d and %d", e.Field, e.Value, e.Min, e.Max)
}

// AsValidationError unwraps err into a *ValidationError if it contains one.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
