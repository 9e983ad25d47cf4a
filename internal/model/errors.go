package model

import "errors"

var (
	// ErrNoActiveEntry is returned when there is nothing to stop or resume.
	ErrNoActiveEntry = errors.New("no time entry to stop or resume")
	// ErrOpenEntry is returned when a duration is requested for a running entry.
	ErrOpenEntry = errors.New("unended time entries cannot have a duration")
)

// ValidationError reports caller input that violates an entry or timeline
// invariant. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid time entry: " + e.Reason
	}
	return "invalid time entry " + e.Field + ": " + e.Reason
}

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
