package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a provider failure.
type Kind string

const (
	KindConfiguration  Kind = "configuration"
	KindRateLimited    Kind = "rate_limited"
	KindAuthentication Kind = "authentication"
	KindInvalidRequest Kind = "invalid_request"
	KindUnavailable    Kind = "unavailable"
	KindTransient      Kind = "transient"
	KindTimeout        Kind = "timeout"
)

// Retryable reports whether an immediate retry may succeed.
func (k Kind) Retryable() bool {
	return k == KindUnavailable || k == KindTransient
}

// Error is a classified failure from a provider binding.
type Error struct {
	Provider   Provider
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Provider))
	b.WriteString(": ")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, "http %d: ", e.StatusCode)
	}
	switch {
	case e.Message != "":
		b.WriteString(e.Message)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		b.WriteString(string(e.Kind))
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindForStatus maps an upstream HTTP status to a failure kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuthentication
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusBadRequest, status == http.StatusNotFound,
		status == http.StatusRequestEntityTooLarge, status == http.StatusUnprocessableEntity:
		return KindInvalidRequest
	case status == http.StatusRequestTimeout:
		return KindTransient
	case status >= 500:
		return KindUnavailable
	}
	return KindTransient
}

// StatusError builds an *Error for a non-2xx upstream response.
func StatusError(p Provider, status int, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{Provider: p, Kind: KindForStatus(status), StatusCode: status, Message: message}
}

// TransportError wraps a failure to reach the provider at all.
func TransportError(p Provider, err error) *Error {
	kind := KindTransient
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Provider: p, Kind: kind, Err: err}
}

// KindOf classifies err. Typed errors report their own kind; anything else
// is matched on its message and defaults to transient.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"):
		return KindRateLimited
	case strings.Contains(msg, "authentication"):
		return KindAuthentication
	case strings.Contains(msg, "invalid"):
		return KindInvalidRequest
	}
	return KindTransient
}
