package assessment

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound is wrapped when an assessment type has no config.
	ErrConfigNotFound = errors.New("no configuration registered for assessment")
	// ErrItemsNotArray is wrapped when a section's itemsFrom path resolves
	// to a present value that is not an array.
	ErrItemsNotArray = errors.New("itemsFrom does not resolve to an array")
)

// ConfigurationError reports structural misconfiguration. Unlike missing
// data, it is surfaced to the caller and never retried.
type ConfigurationError struct {
	AssessmentID string
	Section      string
	Path         string
	Err          error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.AssessmentID != "" {
		msg += fmt.Sprintf(" for %q", e.AssessmentID)
	}
	if e.Section != "" {
		msg += fmt.Sprintf(" in section %q", e.Section)
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" at %q", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
