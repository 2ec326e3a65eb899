package config

import (
	"time"
)

// Default values applied by ApplyDefaults.
const (
	DefaultPort                = 8080
	DefaultReadTimeout         = 30 * time.Second
	DefaultIdleTimeout         = 120 * time.Second
	DefaultMaxHeaderBytes      = 1 << 20
	DefaultDialTimeout         = 30 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second
	DefaultMaxIdleConnsPerHost = 32
	DefaultMetricsPort         = 9090
	DefaultMetricsPath         = "/metrics"
	DefaultServiceName         = "envproxy"
)

// ProxyConfig is the root of the configuration file.
type ProxyConfig struct {
	Listener      ListenerConfig      `yaml:"listener"`
	Client        ClientConfig        `yaml:"client"`
	Observability ObservabilityConfig `yaml:"observability"`
	Services      ServiceList         `yaml:"reverseProxySettings"`
}

// ListenerConfig configures the ingress HTTP server.
type ListenerConfig struct {
	Address        string           `yaml:"address"`
	Port           int              `yaml:"port"`
	ReadTimeout    Duration         `yaml:"readTimeout"`
	WriteTimeout   Duration         `yaml:"writeTimeout"`
	IdleTimeout    Duration         `yaml:"idleTimeout"`
	MaxHeaderBytes int              `yaml:"maxHeaderBytes"`
	RateLimit      *RateLimitConfig `yaml:"rateLimit,omitempty"`
}

// RateLimitConfig configures the optional ingress token bucket.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerSecond int  `yaml:"requestsPerSecond"`
	Burst             int  `yaml:"burst"`
}

// ClientConfig configures the shared outbound HTTP client.
type ClientConfig struct {
	Timeout             Duration `yaml:"timeout"`
	DialTimeout         Duration `yaml:"dialTimeout"`
	TLSHandshakeTimeout Duration `yaml:"tlsHandshakeTimeout"`
	MaxIdleConnsPerHost int      `yaml:"maxIdleConnsPerHost"`
	InsecureSkipVerify  bool     `yaml:"insecureSkipVerify"`
}

// ObservabilityConfig groups metrics and tracing settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig configures the metrics and health server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	ServiceName  string  `yaml:"serviceName"`
}

// ApplyDefaults fills zero values with their defaults.
func (c *ProxyConfig) ApplyDefaults() {
	if c.Listener.Port == 0 {
		c.Listener.Port = DefaultPort
	}
	if c.Listener.ReadTimeout == 0 {
		c.Listener.ReadTimeout = Duration(DefaultReadTimeout)
	}
	if c.Listener.IdleTimeout == 0 {
		c.Listener.IdleTimeout = Duration(DefaultIdleTimeout)
	}
	if c.Listener.MaxHeaderBytes == 0 {
		c.Listener.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	if c.Client.DialTimeout == 0 {
		c.Client.DialTimeout = Duration(DefaultDialTimeout)
	}
	if c.Client.TLSHandshakeTimeout == 0 {
		c.Client.TLSHandshakeTimeout = Duration(DefaultTLSHandshakeTimeout)
	}
	if c.Client.MaxIdleConnsPerHost == 0 {
		c.Client.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}

	if c.Observability.Metrics.Port == 0 {
		c.Observability.Metrics.Port = DefaultMetricsPort
	}
	if c.Observability.Metrics.Path == "" {
		c.Observability.Metrics.Path = DefaultMetricsPath
	}
	if c.Observability.Tracing.ServiceName == "" {
		c.Observability.Tracing.ServiceName = DefaultServiceName
	}

	for i := range c.Services {
		if c.Services[i].LogLevel == "" {
			c.Services[i].LogLevel = LogLevelInformation
		}
	}
}
