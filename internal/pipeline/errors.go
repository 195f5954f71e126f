package pipeline

import "fmt"

// ErrorCode represents specific batch-level failure types.
type ErrorCode string

const (
	ErrCodeCancelled    ErrorCode = "CANCELLED"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// Error is a structured error for failures that stop a whole batch.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ConfigError reports configuration that makes processing unsafe. The orchestrator refuses
// to start rather than fall back to defaults.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}
