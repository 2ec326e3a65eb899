// Package resolver turns an inbound request path into the backend URL
// of a proxied service.
//
// The backend is chosen per request from the service's environmentUrls
// using the environment named by the PROXY_{NAME}_ENV variable. The
// mount prefix is rewritten with a single literal substitution, not a
// segment-aware match: a service mounted on /api rewrites the first
// "/api" of "/api/apiary" and nothing else.
package resolver

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/vyrodovalexey/envproxy/internal/config"
)

// LookupFunc reads an environment variable.
type LookupFunc func(key string) (string, bool)

// Target is the result of resolving a request.
type Target struct {
	Environment string
	URL         *url.URL
}

// Resolver selects environments and builds backend URLs. It holds no
// per-request state.
type Resolver struct {
	lookupEnv LookupFunc
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLookupEnv replaces the environment variable source.
func WithLookupEnv(fn LookupFunc) Option {
	return func(r *Resolver) {
		r.lookupEnv = fn
	}
}

// New creates a Resolver reading the process environment.
func New(opts ...Option) *Resolver {
	r := &Resolver{lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnvVarName returns the variable that selects the environment of a
// service, e.g. PROXY_BILLING_ENV for "billing".
func EnvVarName(service string) string {
	// A Caser is stateful, so one is built per call.
	return "PROXY_" + cases.Upper(language.Und).String(service) + "_ENV"
}

// Environment returns the active environment of the service.
func (r *Resolver) Environment(svc *config.ServiceConfig) (string, error) {
	variable := EnvVarName(svc.Name)
	env, ok := r.lookupEnv(variable)
	if !ok {
		return "", &ResolveError{
			Service:  svc.Name,
			Variable: variable,
			Cause:    ErrEnvironmentNotConfigured,
		}
	}
	return env, nil
}

// ResolveRequest selects the active environment and resolves the
// backend URL for the request path and raw query.
func (r *Resolver) ResolveRequest(svc *config.ServiceConfig, requestPath, rawQuery string) (*Target, error) {
	env, err := r.Environment(svc)
	if err != nil {
		return nil, err
	}

	u, err := Resolve(svc, env, requestPath, rawQuery)
	if err != nil {
		return nil, err
	}

	return &Target{Environment: env, URL: u}, nil
}

// Resolve builds the backend URL of svc in environment env.
//
// The escaped request path is appended to the base URL's path, then the
// first literal occurrence of the escaped originalPath inside the
// appended portion is replaced with the escaped proxiedPath when the two
// differ. The raw query is appended afterwards and never rewritten.
func Resolve(svc *config.ServiceConfig, env, requestPath, rawQuery string) (*url.URL, error) {
	base, ok := svc.EnvironmentURLs[env]
	if !ok {
		return nil, &ResolveError{
			Service:     svc.Name,
			Environment: env,
			Variable:    EnvVarName(svc.Name),
			Cause:       ErrEnvironmentURLMissing,
		}
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, &ResolveError{
			Service:     svc.Name,
			Environment: env,
			Cause:       fmt.Errorf("%w: %s: %w", ErrInvalidBackendURL, base, err),
		}
	}

	baseQuery := baseURL.RawQuery
	baseURL.RawQuery = ""
	baseURL.ForceQuery = false
	baseURL.Fragment = ""
	baseURL.RawFragment = ""

	combined, offset := join(baseURL.String(), requestPath)
	if svc.Rewrites() {
		combined = Rewrite(combined, offset, escapePath(svc.OriginalPath), escapePath(svc.ProxiedPath))
	}

	target, err := url.Parse(combined)
	if err != nil {
		return nil, &ResolveError{
			Service:     svc.Name,
			Environment: env,
			Cause:       fmt.Errorf("%w: %s: %w", ErrInvalidBackendURL, combined, err),
		}
	}
	target.RawQuery = mergeQuery(baseQuery, rawQuery)

	return target, nil
}

// escapePath returns the form p takes inside an escaped request path,
// so mounts such as "/my docs" match "/my%20docs".
func escapePath(p string) string {
	return (&url.URL{Path: p}).EscapedPath()
}

// join appends requestPath to base and returns the combined string with
// the offset at which the request path begins.
func join(base, requestPath string) (string, int) {
	base = strings.TrimSuffix(base, "/")
	if requestPath != "" && !strings.HasPrefix(requestPath, "/") {
		requestPath = "/" + requestPath
	}
	return base + requestPath, len(base)
}

// Rewrite replaces the first literal occurrence of original at or after
// offset in s with replacement. Exactly one substitution happens at
// most; later occurrences are left untouched.
func Rewrite(s string, offset int, original, replacement string) string {
	if original == "" || offset < 0 || offset > len(s) {
		return s
	}
	i := strings.Index(s[offset:], original)
	if i < 0 {
		return s
	}
	i += offset
	return s[:i] + replacement + s[i+len(original):]
}

// mergeQuery appends the request query to any query carried by the
// base URL.
func mergeQuery(base, request string) string {
	switch {
	case base == "":
		return request
	case request == "":
		return base
	default:
		return base + "&" + request
	}
}
