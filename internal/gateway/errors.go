package gateway

import (
	"errors"
	"fmt"

	"github.com/tokligence/labgate/internal/adapter"
)

var (
	ErrNotConfigured       = errors.New("no model provider is configured")
	ErrRateLimited         = errors.New("provider rate limit reached")
	ErrAuthentication      = errors.New("provider authentication failed")
	ErrInvalidRequest      = errors.New("provider rejected the request as invalid")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrTransient           = errors.New("transient provider failure")
	ErrTimeout             = errors.New("model call exceeded its time budget")
)

var sentinels = map[adapter.Kind]error{
	adapter.KindConfiguration:  ErrNotConfigured,
	adapter.KindRateLimited:    ErrRateLimited,
	adapter.KindAuthentication: ErrAuthentication,
	adapter.KindInvalidRequest: ErrInvalidRequest,
	adapter.KindUnavailable:    ErrProviderUnavailable,
	adapter.KindTransient:      ErrTransient,
	adapter.KindTimeout:        ErrTimeout,
}

// Error is the failure returned by Generate. It matches the sentinel for its
// Kind with errors.Is and unwraps to the last provider error.
type Error struct {
	Kind     adapter.Kind
	Provider adapter.Provider
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Kind == adapter.KindConfiguration {
		if e.Err != nil {
			return fmt.Sprintf("gateway: %v: %v", ErrNotConfigured, e.Err)
		}
		return "gateway: " + ErrNotConfigured.Error()
	}
	msg := fmt.Sprintf("gateway: %s %s after %d attempt(s)", e.Provider, e.Kind, e.Attempts)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// Retryable reports whether the failure was transient in nature, i.e. the
// caller may try again later.
func (e *Error) Retryable() bool { return e.Kind.Retryable() }
