// Package middleware provides the gin middleware of the ingress engine:
// request ids, panic recovery, access logging, the per-service
// diagnostics line, tracing, metrics and an optional rate limit.
package middleware
