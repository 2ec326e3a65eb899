package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/vyrodovalexey/envproxy/internal/util"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, e[i].Error())
	}
	return sb.String()
}

// Is reports a match against util.ErrConfigInvalid.
func (e ValidationErrors) Is(target error) bool {
	return target == util.ErrConfigInvalid
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates proxy configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// ValidateConfig validates a proxy configuration.
func ValidateConfig(cfg *ProxyConfig) error {
	return NewValidator().Validate(cfg)
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(cfg *ProxyConfig) error {
	v.errors = make(ValidationErrors, 0)

	if cfg == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateListener(&cfg.Listener)
	v.validateClient(&cfg.Client)
	v.validateObservability(&cfg.Observability)
	v.validateServices(cfg.Services)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateListener(l *ListenerConfig) {
	if l.Port < 1 || l.Port > 65535 {
		v.addError("listener.port", fmt.Sprintf("port %d out of range 1-65535", l.Port))
	}
	if l.MaxHeaderBytes < 0 {
		v.addError("listener.maxHeaderBytes", "must not be negative")
	}
	if l.RateLimit != nil && l.RateLimit.Enabled {
		if l.RateLimit.RequestsPerSecond <= 0 {
			v.addError("listener.rateLimit.requestsPerSecond", "must be positive when rate limiting is enabled")
		}
		if l.RateLimit.Burst < 0 {
			v.addError("listener.rateLimit.burst", "must not be negative")
		}
	}
}

func (v *Validator) validateClient(c *ClientConfig) {
	if c.Timeout < 0 {
		v.addError("client.timeout", "must not be negative")
	}
	if c.MaxIdleConnsPerHost < 0 {
		v.addError("client.maxIdleConnsPerHost", "must not be negative")
	}
}

func (v *Validator) validateObservability(o *ObservabilityConfig) {
	if o.Metrics.Enabled {
		if o.Metrics.Port < 1 || o.Metrics.Port > 65535 {
			v.addError("observability.metrics.port", fmt.Sprintf("port %d out of range 1-65535", o.Metrics.Port))
		}
		if !strings.HasPrefix(o.Metrics.Path, "/") {
			v.addError("observability.metrics.path", "must start with '/'")
		}
	}
	if o.Tracing.SamplingRate < 0 || o.Tracing.SamplingRate > 1 {
		v.addError("observability.tracing.samplingRate", "must be between 0 and 1")
	}
}

func (v *Validator) validateServices(services ServiceList) {
	if len(services) == 0 {
		v.addError("reverseProxySettings", "at least one service is required")
		return
	}

	names := make(map[string]bool, len(services))
	for i := range services {
		svc := &services[i]
		path := "reverseProxySettings." + svc.Name

		switch {
		case strings.TrimSpace(svc.Name) == "":
			v.addError(fmt.Sprintf("reverseProxySettings[%d]", i), "service name is required")
		case names[svc.Name]:
			v.addError(path, "duplicate service name")
		default:
			names[svc.Name] = true
		}

		v.validateOriginalPath(svc, path)
		v.validateEnvironmentURLs(svc, path)
	}

	v.validateMountConflicts(services)
}

func (v *Validator) validateOriginalPath(svc *ServiceConfig, path string) {
	switch {
	case svc.OriginalPath == "":
		v.addError(path+".originalPath", "originalPath is required")
	case !strings.HasPrefix(svc.OriginalPath, "/"):
		v.addError(path+".originalPath", "must start with '/'")
	case svc.OriginalPath != "/" && strings.HasSuffix(svc.OriginalPath, "/"):
		v.addError(path+".originalPath", "must not end with '/'")
	case strings.ContainsAny(svc.OriginalPath, ":*?#"):
		v.addError(path+".originalPath", "must not contain ':', '*', '?' or '#'")
	}
}

func (v *Validator) validateEnvironmentURLs(svc *ServiceConfig, path string) {
	if len(svc.EnvironmentURLs) == 0 {
		v.addError(path+".environmentUrls", "at least one environment URL is required")
		return
	}

	for env, raw := range svc.EnvironmentURLs {
		field := path + ".environmentUrls." + env
		if env == "" {
			v.addError(field, "environment name must not be empty")
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			v.addError(field, fmt.Sprintf("invalid URL: %v", err))
			continue
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			v.addError(field, "URL scheme must be http or https")
		}
		if u.Host == "" {
			v.addError(field, "URL must include a host")
		}
	}
}

// validateMountConflicts rejects services whose mount points collide:
// the ingress router cannot register one catch-all inside another.
func (v *Validator) validateMountConflicts(services ServiceList) {
	for i := range services {
		for j := i + 1; j < len(services); j++ {
			a, b := services[i].OriginalPath, services[j].OriginalPath
			if a == "" || b == "" {
				continue
			}
			if a == b || isPathPrefix(a, b) || isPathPrefix(b, a) {
				v.addError("reverseProxySettings."+services[j].Name+".originalPath",
					fmt.Sprintf("mount %q conflicts with service %s (%q)", b, services[i].Name, a))
			}
		}
	}
}

// isPathPrefix reports whether prefix mounts above path on a segment boundary.
func isPathPrefix(prefix, path string) bool {
	if prefix == "/" {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

// addError adds a validation error.
func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{
		Path:    path,
		Message: message,
	})
}
