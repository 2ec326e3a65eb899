package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for proxy operations.
var (
	// ErrTransport indicates that the backend could not be reached or
	// the exchange failed below the HTTP status level.
	ErrTransport = errors.New("backend transport failed")

	// ErrBackendTimeout indicates that the outbound call hit a deadline.
	ErrBackendTimeout = errors.New("backend request timed out")
)

// TransportError describes a failed outbound call.
type TransportError struct {
	Service     string
	Environment string
	Target      string
	Cause       error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("backend call for %s (environment %q) to %s failed: %v",
		e.Service, e.Environment, e.Target, e.Cause)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *TransportError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return true
	case ErrBackendTimeout:
		return e.Timeout()
	}
	_, ok := target.(*TransportError)
	return ok || errors.Is(e.Cause, target)
}

// Timeout reports whether the call failed on a deadline.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Cause, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Cause, &netErr) && netErr.Timeout()
}

// Canceled reports whether the call was abandoned because the inbound
// request went away.
func (e *TransportError) Canceled() bool {
	return errors.Is(e.Cause, context.Canceled)
}

// IsTransportError checks if an error is a TransportError.
func IsTransportError(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
