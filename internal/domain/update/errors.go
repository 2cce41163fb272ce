package update

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownCheckType is returned when a target's check type is not recognized.
	ErrUnknownCheckType = errors.New("unknown check type")
	// ErrUnknownUpdateType is returned when a target carries no recognized update mechanism.
	ErrUnknownUpdateType = errors.New("unknown update type")
	// ErrConfigurationInvalid is returned when required configuration fields are missing or conflicting.
	ErrConfigurationInvalid = errors.New("configuration invalid")
	// ErrStrategyExecution is the catch-all for a strategy's internal failure.
	ErrStrategyExecution = errors.New("strategy execution failed")
	// ErrJobActive is returned when the managed device is busy and must not be updated.
	ErrJobActive = errors.New("device job is active")
)

// UpdateError is a strategy failure that carries a structured payload for observers.
type UpdateError struct {
	// Data is reported verbatim as the failure reason.
	Data any
	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *UpdateError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("update failed: %v", e.Data)
	}

	return fmt.Sprintf("update failed: %v", e.Err)
}

// Unwrap exposes the underlying cause.
func (e *UpdateError) Unwrap() error {
	return e.Err
}

// RestartFailedError reports a restart command that could not be launched or exited non-zero.
type RestartFailedError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

// Error implements error.
func (e *RestartFailedError) Error() string {
	return fmt.Sprintf("restart command %q failed with exit code %d: %v", e.Command, e.ExitCode, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *RestartFailedError) Unwrap() error {
	return e.Err
}

// invalidf wraps ErrConfigurationInvalid with a formatted detail.
func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfigurationInvalid, fmt.Sprintf(format, args...))
}

// IsConfigurationError reports whether err is client-correctable configuration trouble.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfigurationInvalid) ||
		errors.Is(err, ErrUnknownCheckType) ||
		errors.Is(err, ErrUnknownUpdateType)
}
