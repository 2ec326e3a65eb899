package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// LogLevel controls the per-service diagnostics line.
type LogLevel string

const (
	// LogLevelInformation logs path and status code.
	LogLevelInformation LogLevel = "Information"
	// LogLevelDebug additionally logs headers and cookies.
	LogLevelDebug LogLevel = "Debug"
	// LogLevelNone disables the diagnostics line.
	LogLevelNone LogLevel = "None"
)

// Normalize maps case variants of the known levels onto their
// canonical spelling. Unknown levels are returned unchanged and are
// treated as silent.
func (l LogLevel) Normalize() LogLevel {
	switch {
	case strings.EqualFold(string(l), string(LogLevelInformation)):
		return LogLevelInformation
	case strings.EqualFold(string(l), string(LogLevelDebug)):
		return LogLevelDebug
	default:
		return l
	}
}

// ServiceConfig describes one proxied service.
type ServiceConfig struct {
	// Name is the map key of the service in the settings file.
	Name string `yaml:"-"`

	// OriginalPath is the prefix the service is mounted on at ingress.
	OriginalPath string `yaml:"originalPath"`

	// ProxiedPath replaces OriginalPath in the backend URL. Empty strips
	// the prefix. When absent from the file it equals OriginalPath.
	ProxiedPath string `yaml:"proxiedPath"`

	// AdditionalHeaders are set on every outbound request.
	AdditionalHeaders map[string]string `yaml:"additionalHeaders,omitempty"`

	// EnvironmentURLs maps an environment name to a base backend URL.
	EnvironmentURLs map[string]string `yaml:"environmentUrls"`

	// LogLevel is the diagnostics verbosity for this service.
	LogLevel LogLevel `yaml:"logLevel,omitempty"`
}

// Rewrites reports whether the backend URL differs from the request path.
func (s *ServiceConfig) Rewrites() bool {
	return s.OriginalPath != s.ProxiedPath
}

// UnmarshalYAML implements yaml.Unmarshaler so that an absent
// proxiedPath can be told apart from an explicitly empty one.
func (s *ServiceConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		OriginalPath      string            `yaml:"originalPath"`
		ProxiedPath       *string           `yaml:"proxiedPath"`
		AdditionalHeaders map[string]string `yaml:"additionalHeaders"`
		EnvironmentURLs   map[string]string `yaml:"environmentUrls"`
		LogLevel          LogLevel          `yaml:"logLevel"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	s.OriginalPath = raw.OriginalPath
	s.ProxiedPath = raw.OriginalPath
	if raw.ProxiedPath != nil {
		s.ProxiedPath = *raw.ProxiedPath
	}
	s.AdditionalHeaders = raw.AdditionalHeaders
	s.EnvironmentURLs = raw.EnvironmentURLs
	s.LogLevel = raw.LogLevel

	return nil
}

// ServiceList is the ordered list of configured services.
type ServiceList []ServiceConfig

// UnmarshalYAML decodes a mapping of service name to settings while
// keeping document order.
func (l *ServiceList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: reverseProxySettings must be a mapping of service name to settings", value.Line)
	}

	services := make(ServiceList, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode, valueNode := value.Content[i], value.Content[i+1]

		var svc ServiceConfig
		if err := valueNode.Decode(&svc); err != nil {
			return fmt.Errorf("service %q: %w", keyNode.Value, err)
		}
		svc.Name = keyNode.Value
		services = append(services, svc)
	}

	*l = services
	return nil
}

// Names returns the service names in configuration order.
func (l ServiceList) Names() []string {
	names := make([]string, len(l))
	for i := range l {
		names[i] = l[i].Name
	}
	return names
}
