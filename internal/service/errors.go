package service

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/postwave/postwave/internal/service/reddit"
)

// ErrorKind classifies a failure for retry and reporting decisions.
type ErrorKind int

const (
	// ErrorUnknown is anything unclassified; treated as fatal.
	ErrorUnknown ErrorKind = iota
	// ErrorAuth means the credential or token is invalid or
	// unrefreshable. Never retried.
	ErrorAuth
	// ErrorRateLimit is an upstream 429. Retried with backoff and may
	// trigger proactive rotation.
	ErrorRateLimit
	// ErrorTransient covers 5xx, network and timeout failures. Retried
	// with backoff.
	ErrorTransient
	// ErrorValidation is malformed post data. Fatal, surfaced
	// immediately, no network call involved.
	ErrorValidation
	// ErrorQuota is an upstream 402-equivalent: billing or quota
	// exhausted. Fatal, needs operator intervention.
	ErrorQuota
	// ErrorUpstream is any other 4xx. Fatal.
	ErrorUpstream
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorAuth:
		return "auth"
	case ErrorRateLimit:
		return "rate_limit"
	case ErrorTransient:
		return "transient"
	case ErrorValidation:
		return "validation"
	case ErrorQuota:
		return "quota_exhausted"
	case ErrorUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Error is a classified failure crossing a service boundary.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewAuthError(message string, err error) *Error {
	return &Error{Kind: ErrorAuth, Message: message, Err: err}
}

func NewValidationError(message string) *Error {
	return &Error{Kind: ErrorValidation, Message: message}
}

// Classify maps an arbitrary error onto the taxonomy. HTTP statuses
// come from the Reddit client's typed errors; everything network- or
// deadline-shaped is transient.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorUnknown
	}

	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}

	var valErr *reddit.ValidationError
	if errors.As(err, &valErr) {
		return ErrorValidation
	}

	var apiErr *reddit.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 402:
			return ErrorQuota
		case apiErr.StatusCode == 429:
			return ErrorRateLimit
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return ErrorAuth
		case apiErr.StatusCode >= 500:
			return ErrorTransient
		case apiErr.StatusCode >= 400:
			return ErrorUpstream
		default:
			return ErrorUnknown
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorTransient
	}

	return ErrorUnknown
}

// Retryable reports whether a failure of this kind is worth another
// attempt.
func Retryable(kind ErrorKind) bool {
	return kind == ErrorRateLimit || kind == ErrorTransient
}
