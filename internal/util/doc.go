// Package util provides the error conventions shared by the proxy
// packages.
//
// # Error Types
//
// Structured error types for consistent error handling:
//
//   - ConfigError: configuration validation errors
//   - Common sentinel errors: ErrNotFound, ErrConfigInvalid
package util
