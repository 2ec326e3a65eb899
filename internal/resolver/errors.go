package resolver

import (
	"errors"
	"fmt"
)

// Sentinel errors for backend resolution.
var (
	// ErrEnvironmentNotConfigured indicates that the PROXY_{NAME}_ENV
	// variable of a service is not set.
	ErrEnvironmentNotConfigured = errors.New("environment not configured")

	// ErrEnvironmentURLMissing indicates that the selected environment
	// has no entry in the service's environmentUrls.
	ErrEnvironmentURLMissing = errors.New("environment URL missing")

	// ErrInvalidBackendURL indicates that the configured base URL or the
	// rewritten backend URL cannot be parsed.
	ErrInvalidBackendURL = errors.New("invalid backend URL")
)

// ResolveError describes a failure to resolve the backend URL of a
// service. It always happens before any outbound I/O.
type ResolveError struct {
	Service     string
	Environment string
	Variable    string
	Cause       error
}

// Error implements the error interface.
func (e *ResolveError) Error() string {
	switch {
	case errors.Is(e.Cause, ErrEnvironmentNotConfigured):
		return fmt.Sprintf("environment for %s not specified: set %s", e.Service, e.Variable)
	case errors.Is(e.Cause, ErrEnvironmentURLMissing):
		return fmt.Sprintf("service %s has no URL for environment %q", e.Service, e.Environment)
	default:
		return fmt.Sprintf("resolve %s (environment %q): %v", e.Service, e.Environment, e.Cause)
	}
}

// Unwrap returns the underlying error.
func (e *ResolveError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ResolveError) Is(target error) bool {
	_, ok := target.(*ResolveError)
	return ok || errors.Is(e.Cause, target)
}

// IsResolveError checks if an error is a ResolveError.
func IsResolveError(err error) bool {
	var resolveErr *ResolveError
	return errors.As(err, &resolveErr)
}
