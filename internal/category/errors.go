package category

import "fmt"

// ClassifierErrorCode represents specific classifier failure types.
type ClassifierErrorCode string

const (
	ErrClassifierUnavailable ClassifierErrorCode = "CLASSIFIER_UNAVAILABLE"
	ErrClassifierTimeout     ClassifierErrorCode = "CLASSIFIER_TIMEOUT"
	ErrClassifierRejected    ClassifierErrorCode = "CLASSIFIER_REJECTED"
	ErrClassifierBadResponse ClassifierErrorCode = "CLASSIFIER_BAD_RESPONSE"
)

// ClassifierError is a structured error for classifier failures.
type ClassifierError struct {
	Code      ClassifierErrorCode
	Message   string
	Retryable bool
	Cause     error
}

func (e *ClassifierError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ClassifierError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns whether this error is retryable.
func (e *ClassifierError) IsRetryable() bool {
	return e.Retryable
}
