package app

import (
	"fmt"
	"net/http"
)

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

// PublicMessage is the text safe to show the client that caused the error.
func (e *DomainError) PublicMessage() string {
	return e.Message
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

func notFoundError(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

// persistenceFailure wraps a store error so the cause stays inspectable with
// errors.Is while the client only sees message.
type persistenceFailure struct {
	*DomainError
	cause error
}

func (e *persistenceFailure) Unwrap() error { return e.cause }

func (e *persistenceFailure) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
}

func newPersistenceFailure(message string, cause error) error {
	return &persistenceFailure{
		DomainError: domainError(http.StatusInternalServerError, "SERVER_ERROR", message, nil),
		cause:       cause,
	}
}

func (e *persistenceFailure) As(target any) bool {
	if t, ok := target.(**DomainError); ok {
		*t = e.DomainError
		return true
	}
	return false
}
