package serrors

import "fmt"

// BaseError is a coded error suitable for machine-readable API envelopes.
type BaseError struct {
	Code    string
	Message string
	Details string
}

func NewError(code, message, details string) *BaseError {
	return &BaseError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

func (e *BaseError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
}
