package app

import (
	"fmt"
	"net/http"
)

const (
	codeValidation        = "VALIDATION_ERROR"
	codeUnauthorized      = "UNAUTHORIZED"
	codeForbidden         = "FORBIDDEN"
	codeNotFound          = "NOT_FOUND"
	codeConflict          = "CONFLICT"
	codeStorage           = "STORAGE_ERROR"
	codeRateLimited       = "RATE_LIMITED"
	codeExportUnavailable = "EXPORT_UNAVAILABLE"
	codeServer            = "SERVER_ERROR"
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

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string, details any) *DomainError {
	return domainError(http.StatusBadRequest, codeValidation, message, details)
}

func unauthorizedError(message string) *DomainError {
	return domainError(http.StatusUnauthorized, codeUnauthorized, message, nil)
}

func authorizationError(message string) *DomainError {
	return domainError(http.StatusForbidden, codeForbidden, message, nil)
}

func notFoundError(message string) *DomainError {
	return domainError(http.StatusNotFound, codeNotFound, message, nil)
}

func conflictError(message string) *DomainError {
	return domainError(http.StatusConflict, codeConflict, message, nil)
}

// storageError hides the driver error from Message but keeps it in Details.
func storageError(op string, err error) *DomainError {
	return domainError(http.StatusInternalServerError, codeStorage, "Failed to "+op, err.Error())
}

func rateLimitedError() *DomainError {
	return domainError(http.StatusTooManyRequests, codeRateLimited, "Too many write requests", nil)
}

func exportUnavailableError(err error) *DomainError {
	return domainError(http.StatusServiceUnavailable, codeExportUnavailable, "PDF export is not available on this server", err.Error())
}
