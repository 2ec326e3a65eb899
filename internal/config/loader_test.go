package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/envproxy/internal/util"
)

const sampleConfig = `
listener:
  port: 8081
  readTimeout: 5s
client:
  timeout: 15s
observability:
  metrics:
    enabled: true
reverseProxySettings:
  zeta:
    originalPath: /zeta
    environmentUrls:
      prod: https://zeta.internal
  billing:
    originalPath: /billing
    proxiedPath: ""
    additionalHeaders:
      X-Forwarded-Proto: https
    environmentUrls:
      prod: https://api.internal/billing-svc
      staging: https://staging.internal/billing-svc
    logLevel: Debug
  alpha:
    originalPath: /alpha
    proxiedPath: /v2/alpha
    environmentUrls:
      dev: http://localhost:9000
`

func TestLoader_Load(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "envproxy.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(sampleConfig), 0o600))

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Listener.Port)
	assert.Equal(t, 5*time.Second, cfg.Listener.ReadTimeout.Duration())
	assert.Equal(t, DefaultIdleTimeout, cfg.Listener.IdleTimeout.Duration())
	assert.Equal(t, 15*time.Second, cfg.Client.Timeout.Duration())
	assert.Equal(t, DefaultMetricsPort, cfg.Observability.Metrics.Port)
	assert.Equal(t, DefaultMetricsPath, cfg.Observability.Metrics.Path)

	require.Len(t, cfg.Services, 3)
	assert.Equal(t, []string{"zeta", "billing", "alpha"}, cfg.Services.Names())
}

func TestLoader_ProxiedPathDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfigFromReader(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	zeta, billing, alpha := cfg.Services[0], cfg.Services[1], cfg.Services[2]

	assert.Equal(t, "/zeta", zeta.ProxiedPath, "absent proxiedPath keeps the mount path")
	assert.False(t, zeta.Rewrites())

	assert.Equal(t, "", billing.ProxiedPath, "explicit empty proxiedPath strips the prefix")
	assert.True(t, billing.Rewrites())
	assert.Equal(t, "https", billing.AdditionalHeaders["X-Forwarded-Proto"])
	assert.Equal(t, LogLevelDebug, billing.LogLevel)

	assert.Equal(t, "/v2/alpha", alpha.ProxiedPath)
	assert.Equal(t, LogLevelInformation, alpha.LogLevel, "log level defaults to Information")
}

func TestLoader_Load_FileNotFound(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig("/nonexistent/path/envproxy.yaml")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoader_Load_EmptyPath(t *testing.T) {
	t.Parallel()

	_, err := NewLoader().Load("")

	var cfgErr *util.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "path", cfgErr.Field)
	assert.ErrorIs(t, err, util.ErrConfigInvalid)
}

func TestLoader_InvalidYAML(t *testing.T) {
	t.Parallel()

	_, err := LoadConfigFromReader(strings.NewReader("listener: [unterminated"))

	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrConfigInvalid)
}

func TestLoader_ServicesMustBeMapping(t *testing.T) {
	t.Parallel()

	_, err := LoadConfigFromReader(strings.NewReader("reverseProxySettings:\n  - billing\n"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a mapping")
}

func TestLoader_SubstituteEnvVars(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"BILLING_PROD_URL": "https://billing.example.com",
		"EMPTY":            "",
	}
	loader := &Loader{lookupEnv: func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "set variable", input: "${BILLING_PROD_URL}", expected: "https://billing.example.com"},
		{name: "unset with default", input: "${MISSING:-fallback}", expected: "fallback"},
		{name: "unset without default", input: "x${MISSING}y", expected: "xy"},
		{name: "set but empty wins over default", input: "${EMPTY:-fallback}", expected: ""},
		{name: "escaped dollar", input: "$${BILLING_PROD_URL}", expected: "${BILLING_PROD_URL}"},
		{name: "no pattern", input: "plain", expected: "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, loader.substituteEnvVars(tt.input))
		})
	}
}

func TestLoader_LoadFromReader_WithEnv(t *testing.T) {
	t.Setenv("ENVPROXY_TEST_BACKEND", "https://from-env.internal")

	cfg, err := LoadConfigFromReader(strings.NewReader(`
reverseProxySettings:
  svc:
    originalPath: /svc
    environmentUrls:
      prod: ${ENVPROXY_TEST_BACKEND}
`))
	require.NoError(t, err)
	assert.Equal(t, "https://from-env.internal", cfg.Services[0].EnvironmentURLs["prod"])
}

func TestDuration_InvalidValue(t *testing.T) {
	t.Parallel()

	_, err := LoadConfigFromReader(strings.NewReader("listener:\n  readTimeout: soon\n"))
	assert.Error(t, err)
}

func TestLoadConfig_ExampleFile(t *testing.T) {
	loader := &Loader{lookupEnv: func(string) (string, bool) { return "", false }}

	cfg, err := loader.Load(filepath.Join("..", "..", "configs", "envproxy.yaml"))
	require.NoError(t, err)
	require.NoError(t, ValidateConfig(cfg))

	assert.Equal(t, 8080, cfg.Listener.Port)
	assert.Equal(t, []string{"billing", "search"}, cfg.Services.Names())
	assert.Equal(t, "/billing-svc", cfg.Services[0].ProxiedPath)
	assert.Equal(t, "/search", cfg.Services[1].ProxiedPath)
	assert.Equal(t, LogLevelDebug, cfg.Services[1].LogLevel)
	assert.Empty(t, cfg.Observability.Tracing.OTLPEndpoint)
}
