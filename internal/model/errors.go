package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorClass groups provider failures by how the caller should react.
type ErrorClass string

const (
	ClassTimeout   ErrorClass = "timeout"
	ClassAuth      ErrorClass = "auth"
	ClassRateLimit ErrorClass = "rate_limit"
	ClassMalformed ErrorClass = "malformed"
	ClassUnknown   ErrorClass = "unknown"
)

// ParseErrorClass maps a class name to an ErrorClass. Unknown names map
// to ClassUnknown.
func ParseErrorClass(name string) ErrorClass {
	switch c := ErrorClass(strings.ToLower(strings.TrimSpace(name))); c {
	case ClassTimeout, ClassAuth, ClassRateLimit, ClassMalformed:
		return c
	default:
		return ClassUnknown
	}
}

// ProviderError is a classified failure of a provider call.
type ProviderError struct {
	Provider   string
	Class      ErrorClass
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider error class=%s status=%d: %v", e.Provider, e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s provider error class=%s: %v", e.Provider, e.Class, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same request may succeed later.
func (e *ProviderError) Retryable() bool {
	return e.Class == ClassTimeout || e.Class == ClassRateLimit
}

// NewError classifies err using the HTTP status code (0 when unknown)
// and context cancellation.
func NewError(provider string, statusCode int, err error) *ProviderError {
	class := ClassifyStatus(statusCode)
	if class == ClassUnknown && (errors.Is(err, context.DeadlineExceeded) || isTimeoutText(err)) {
		class = ClassTimeout
	}
	return &ProviderError{Provider: provider, Class: class, StatusCode: statusCode, Err: err}
}

// ClassifyStatus maps an HTTP status code to an ErrorClass.
func ClassifyStatus(statusCode int) ErrorClass {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ClassAuth
	case http.StatusTooManyRequests:
		return ClassRateLimit
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ClassTimeout
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ClassMalformed
	default:
		return ClassUnknown
	}
}

// IsRetryable reports whether err is a retryable *ProviderError.
func IsRetryable(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr) && perr.Retryable()
}

// Malformed reports an unusable provider response.
func Malformed(provider, format string, args ...any) *ProviderError {
	return &ProviderError{Provider: provider, Class: ClassMalformed, Err: fmt.Errorf(format, args...)}
}

func isTimeoutText(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}
