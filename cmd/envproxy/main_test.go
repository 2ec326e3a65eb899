package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/envproxy/internal/config"
	"github.com/vyrodovalexey/envproxy/internal/health"
	"github.com/vyrodovalexey/envproxy/internal/observability"
	"github.com/vyrodovalexey/envproxy/internal/resolver"
)

func observedLogger() (observability.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return observability.NewLoggerFromZap(zap.New(core)), logs
}

func lookupFrom(env map[string]string) resolver.Option {
	return resolver.WithLookupEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
}

func testConfig(backendURL string) *config.ProxyConfig {
	cfg := &config.ProxyConfig{
		Observability: config.ObservabilityConfig{
			Metrics: config.MetricsConfig{Enabled: true},
		},
		Services: config.ServiceList{
			{
				Name:              "billing",
				OriginalPath:      "/billing",
				ProxiedPath:       "/billing-svc",
				AdditionalHeaders: map[string]string{"X-Tier": "internal"},
				EnvironmentURLs:   map[string]string{"prod": backendURL},
			},
			{
				Name:            "search",
				OriginalPath:    "/search",
				ProxiedPath:     "/search",
				EnvironmentURLs: map[string]string{"prod": backendURL},
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		set      bool
		expected string
	}{
		{name: "returns default when env not set", expected: "default-value"},
		{name: "returns env value when set", value: "env-value", set: true, expected: "env-value"},
		{name: "returns default when env is empty string", value: "", set: true, expected: "default-value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const key = "ENVPROXY_TEST_GETENV"
			if tt.set {
				t.Setenv(key, tt.value)
			}
			assert.Equal(t, tt.expected, getEnvOrDefault(key, "default-value"))
		})
	}
}

func TestParseFlags(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		flags := parseFlags(flag.NewFlagSet("test", flag.ContinueOnError), nil)

		assert.Equal(t, "configs/envproxy.yaml", flags.configPath)
		assert.Equal(t, "info", flags.logLevel)
		assert.Equal(t, "json", flags.logFormat)
		assert.False(t, flags.showVersion)
	})

	t.Run("environment supplies defaults", func(t *testing.T) {
		t.Setenv("ENVPROXY_CONFIG_PATH", "/etc/envproxy.yaml")
		t.Setenv("ENVPROXY_LOG_LEVEL", "debug")

		flags := parseFlags(flag.NewFlagSet("test", flag.ContinueOnError), nil)

		assert.Equal(t, "/etc/envproxy.yaml", flags.configPath)
		assert.Equal(t, "debug", flags.logLevel)
	})

	t.Run("flags override environment", func(t *testing.T) {
		t.Setenv("ENVPROXY_LOG_FORMAT", "json")

		flags := parseFlags(flag.NewFlagSet("test", flag.ContinueOnError),
			[]string{"-config", "other.yaml", "-log-format", "console", "-version"})

		assert.Equal(t, "other.yaml", flags.configPath)
		assert.Equal(t, "console", flags.logFormat)
		assert.True(t, flags.showVersion)
	})
}

func TestTracerConfig(t *testing.T) {
	t.Parallel()

	got := tracerConfig(config.TracingConfig{
		Enabled:      true,
		OTLPEndpoint: "collector:4317",
		SamplingRate: 0.5,
		ServiceName:  "envproxy-test",
	})

	assert.Equal(t, observability.TracerConfig{
		ServiceName:  "envproxy-test",
		OTLPEndpoint: "collector:4317",
		SamplingRate: 0.5,
		Enabled:      true,
	}, got)
}

func TestBuildMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		tracing   bool
		rateLimit *config.RateLimitConfig
		expected  int
	}{
		{name: "base chain", expected: 4},
		{name: "with tracing", tracing: true, expected: 5},
		{name: "disabled rate limit", rateLimit: &config.RateLimitConfig{Enabled: false}, expected: 4},
		{
			name:      "tracing and rate limit",
			tracing:   true,
			rateLimit: &config.RateLimitConfig{Enabled: true, RequestsPerSecond: 10, Burst: 10},
			expected:  6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &config.ProxyConfig{}
			cfg.Observability.Tracing.Enabled = tt.tracing
			cfg.Listener.RateLimit = tt.rateLimit

			chain := buildMiddleware(cfg, observability.NopLogger(), observability.NewMetrics("test"))
			assert.Len(t, chain, tt.expected)
		})
	}
}

func TestNewApplication_ProxiesThroughMountedServices(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Path", r.URL.Path)
		w.Header().Set("X-Seen-Tier", r.Header.Get("X-Tier"))
		w.Header().Set("X-Seen-Forwarded-Path", r.Header.Get("X-Forwarded-Path"))
		_, _ = io.WriteString(w, "ok")
	}))
	defer backend.Close()

	app, err := newApplication(testConfig(backend.URL), observability.NopLogger(),
		lookupFrom(map[string]string{"PROXY_BILLING_ENV": "prod", "PROXY_SEARCH_ENV": "prod"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"billing", "search"}, app.registry.Names())

	rec := httptest.NewRecorder()
	app.server.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/billing/invoices/42", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "/billing-svc/invoices/42", rec.Header().Get("X-Seen-Path"))
	assert.Equal(t, "internal", rec.Header().Get("X-Seen-Tier"))
	assert.Equal(t, "/billing/invoices/42", rec.Header().Get("X-Seen-Forwarded-Path"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	app.server.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search/q", nil))
	assert.Equal(t, "/search/q", rec.Header().Get("X-Seen-Path"))
}

func TestNewApplication_WithTracing(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Observability.Tracing.Enabled = true
	cfg.Observability.Tracing.SamplingRate = 1.0

	app, err := newApplication(cfg, observability.NopLogger(), lookupFrom(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.tracer.Shutdown(context.Background()) })

	assert.True(t, app.tracer.Enabled())
}

func TestNewApplication_MissingEnvironment(t *testing.T) {
	t.Parallel()

	app, err := newApplication(testConfig("http://127.0.0.1:1"), observability.NopLogger(),
		lookupFrom(nil))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	app.server.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/billing/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "PROXY_BILLING_ENV")
}

func TestNewApplication_MountConflict(t *testing.T) {
	t.Parallel()

	cfg := testConfig("http://127.0.0.1:1")
	cfg.Services[1].OriginalPath = "/billing"

	_, err := newApplication(cfg, observability.NopLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to mount services")
}

func TestNewApplication_DuplicateService(t *testing.T) {
	t.Parallel()

	cfg := testConfig("http://127.0.0.1:1")
	cfg.Services[1].Name = "billing"

	_, err := newApplication(cfg, observability.NopLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to build service registry")
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer backend.Close()

	app, err := newApplication(testConfig(backend.URL), observability.NopLogger(),
		lookupFrom(map[string]string{"PROXY_BILLING_ENV": "prod"}))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	app.server.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/billing/ping", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	handler := newMetricsHandler(app.config.Observability.Metrics.Path, app.metrics, app.healthChecker)

	t.Run("metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "envproxy_requests_total")
		assert.Contains(t, body, "envproxy_backend_requests_total")
		assert.Contains(t, body, `service="billing"`)
	})

	t.Run("readiness reports the unselected service", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, health.PathReady, nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var resp health.ReadinessResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, health.StatusHealthy, resp.Checks["service:billing"].Status)
		assert.Equal(t, health.StatusUnhealthy, resp.Checks["service:search"].Status)
	})

	t.Run("liveness", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, health.PathLive, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestCreateMetricsServer(t *testing.T) {
	t.Parallel()

	logger, logs := observedLogger()
	srv := createMetricsServer(9191, "/metrics", observability.NewMetrics("test"),
		health.NewChecker("test"), logger)

	assert.Equal(t, ":9191", srv.Addr)
	assert.NotNil(t, srv.Handler)
	assert.Equal(t, 1, logs.FilterMessage("starting metrics server").Len())
}

func TestLogStartupSummary(t *testing.T) {
	t.Parallel()

	logger, logs := observedLogger()
	app, err := newApplication(testConfig("https://api.internal/billing-svc"), logger,
		lookupFrom(map[string]string{"PROXY_BILLING_ENV": "prod", "PROXY_SEARCH_ENV": "staging"}))
	require.NoError(t, err)

	logStartupSummary(app)

	mounted := logs.FilterMessage("service mounted").FilterField(zap.String("service", "billing"))
	require.Equal(t, 1, mounted.FilterLevelExact(zapcore.InfoLevel).Len())
	fields := mounted.FilterLevelExact(zapcore.InfoLevel).All()[0].ContextMap()
	assert.Equal(t, "prod", fields["environment"])
	assert.Equal(t, "/billing", fields["originalPath"])
	assert.Equal(t, "/billing-svc", fields["proxiedPath"])
	assert.Equal(t, "PROXY_BILLING_ENV", fields["variable"])

	noURL := logs.FilterMessage("service environment has no URL").All()
	require.Len(t, noURL, 1)
	assert.Equal(t, "search", noURL[0].ContextMap()["service"])
	assert.Equal(t, "staging", noURL[0].ContextMap()["environment"])
}

func TestLogStartupSummary_UnsetVariable(t *testing.T) {
	t.Parallel()

	logger, logs := observedLogger()
	app, err := newApplication(testConfig("https://api.internal"), logger, lookupFrom(nil))
	require.NoError(t, err)

	logStartupSummary(app)

	assert.Equal(t, 2, logs.FilterMessage("service environment not selected").
		FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestShutdown_NotStarted(t *testing.T) {
	t.Parallel()

	logger, logs := observedLogger()
	app, err := newApplication(testConfig("https://api.internal"), logger, lookupFrom(nil))
	require.NoError(t, err)

	shutdown(context.Background(), app)

	assert.Equal(t, 1, logs.FilterMessage("envproxy stopped").Len())
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}
