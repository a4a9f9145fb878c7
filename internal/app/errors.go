package app

import "fmt"

// DomainError is a failure that belongs to the API contract: Status and Code
// drive the HTTP error envelope, Message is safe to return to the client.
// Anything else that reaches mapError is reported as a plain server error.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
