package trustscore

import (
	"errors"
	"fmt"
)

// InvalidSignalError reports a present signal field whose value is outside
// its declared domain. It is a caller bug, never retryable here.
type InvalidSignalError struct {
	// Field is the offending signal field, in wire naming.
	Field string
	// Value holds the out-of-domain numeric value when applicable.
	Value float64
	// Detail carries the rejected raw value for non-numeric fields.
	Detail string
}

func (e *InvalidSignalError) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail != "" {
		return fmt.Sprintf("invalid signal %s: unrecognized value %q", e.Field, e.Detail)
	}
	return fmt.Sprintf("invalid signal %s: value %g outside declared domain", e.Field, e.Value)
}

// IsInvalidSignal reports whether err wraps an InvalidSignalError.
func IsInvalidSignal(err error) bool {
	var target *InvalidSignalError
	return errors.As(err, &target)
}

// ConfigurationError reports an unusable scoring policy. It is raised once at
// process start; a service must not come up with an invalid policy.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ""
	}
	return "invalid scoring policy: " + e.Reason
}
