package extraction

import "fmt"

// OCRErrorCode represents specific OCR failure types.
type OCRErrorCode string

const (
	ErrOCRUnavailable   OCRErrorCode = "OCR_UNAVAILABLE"
	ErrOCRTimeout       OCRErrorCode = "OCR_TIMEOUT"
	ErrOCRRateLimited   OCRErrorCode = "OCR_RATE_LIMITED"
	ErrInvalidDocument  OCRErrorCode = "INVALID_DOCUMENT"
	ErrMalformedResults OCRErrorCode = "MALFORMED_RESULTS"
)

// OCRError is a structured error for OCR service failures.
type OCRError struct {
	Code      OCRErrorCode
	Message   string
	Status    int
	Retryable bool
	Cause     error
}

func (e *OCRError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *OCRError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns whether this error is retryable.
func (e *OCRError) IsRetryable() bool {
	return e.Retryable
}

// classifyOCRStatus maps a non-200 response to an OCRError.
func classifyOCRStatus(status int, body string) *OCRError {
	msg := fmt.Sprintf("ocr failed: status %d, body: %s", status, body)
	switch {
	case status == 429:
		return &OCRError{Code: ErrOCRRateLimited, Message: msg, Status: status, Retryable: true}
	case status == 408 || status == 504:
		return &OCRError{Code: ErrOCRTimeout, Message: msg, Status: status, Retryable: true}
	case status >= 500:
		return &OCRError{Code: ErrOCRUnavailable, Message: msg, Status: status, Retryable: true}
	default:
		return &OCRError{Code: ErrInvalidDocument, Message: msg, Status: status}
	}
}
