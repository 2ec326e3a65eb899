package proxy

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vyrodovalexey/envproxy/internal/resolver"
)

// Error type label values.
const (
	errorTypeEnvNotConfigured = "environment_not_configured"
	errorTypeEnvURLMissing    = "environment_url_missing"
	errorTypeInvalidURL       = "invalid_backend_url"
	errorTypeTimeout          = "timeout"
	errorTypeCanceled         = "canceled"
	errorTypeTransport        = "transport"
	errorTypeRelay            = "relay"
)

// Metrics contains Prometheus metrics for outbound calls.
type Metrics struct {
	backendRequests *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
	relayedBytes    *prometheus.CounterVec
}

// NewMetrics registers the proxy metrics with registerer. A nil
// registerer falls back to the default one.
func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "envproxy"
	}
	factory := promauto.With(registerer)

	return &Metrics{
		backendRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "requests_total",
				Help:      "Total number of outbound backend requests by response status",
			},
			[]string{"service", "environment", "status"},
		),
		backendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "duration_seconds",
				Help:      "Time until backend response headers arrived",
				Buckets: []float64{
					.001, .005, .01, .025,
					.05, .1, .25, .5,
					1, 2.5, 5, 10,
				},
			},
			[]string{"service", "environment"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "errors_total",
				Help:      "Total number of proxy pipeline failures",
			},
			[]string{"service", "error_type"},
		),
		relayedBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "relayed_bytes_total",
				Help:      "Total number of response body bytes relayed to clients",
			},
			[]string{"service"},
		),
	}
}

// InitServices pre-populates label combinations so every mounted
// service shows up in /metrics right after startup.
func (m *Metrics) InitServices(services []string) {
	if m == nil {
		return
	}
	for _, svc := range services {
		for _, et := range []string{
			errorTypeEnvNotConfigured,
			errorTypeEnvURLMissing,
			errorTypeTimeout,
			errorTypeTransport,
		} {
			m.errorsTotal.WithLabelValues(svc, et)
		}
		m.relayedBytes.WithLabelValues(svc)
	}
}

func (m *Metrics) recordBackend(service, env string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.backendRequests.WithLabelValues(service, env, strconv.Itoa(status)).Inc()
	m.backendDuration.WithLabelValues(service, env).Observe(duration.Seconds())
}

func (m *Metrics) recordError(service, errorType string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(service, errorType).Inc()
}

func (m *Metrics) recordRelayed(service string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.relayedBytes.WithLabelValues(service).Add(float64(n))
}

// errorType maps a pipeline error onto its metric label.
func errorType(err error) string {
	var transportErr *TransportError
	switch {
	case errors.Is(err, resolver.ErrEnvironmentNotConfigured):
		return errorTypeEnvNotConfigured
	case errors.Is(err, resolver.ErrEnvironmentURLMissing):
		return errorTypeEnvURLMissing
	case errors.Is(err, resolver.ErrInvalidBackendURL):
		return errorTypeInvalidURL
	case errors.As(err, &transportErr) && transportErr.Canceled():
		return errorTypeCanceled
	case errors.As(err, &transportErr) && transportErr.Timeout():
		return errorTypeTimeout
	default:
		return errorTypeTransport
	}
}
