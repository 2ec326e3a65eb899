package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/envproxy/internal/config"
	"github.com/vyrodovalexey/envproxy/internal/health"
	"github.com/vyrodovalexey/envproxy/internal/middleware"
	"github.com/vyrodovalexey/envproxy/internal/observability"
	"github.com/vyrodovalexey/envproxy/internal/proxy"
	"github.com/vyrodovalexey/envproxy/internal/registry"
	"github.com/vyrodovalexey/envproxy/internal/resolver"
	"github.com/vyrodovalexey/envproxy/internal/server"
)

// metricsNamespace prefixes every exported metric.
const metricsNamespace = "envproxy"

// application holds the wired components of a running proxy.
type application struct {
	config        *config.ProxyConfig
	logger        observability.Logger
	registry      *registry.Registry
	resolver      *resolver.Resolver
	server        *server.Server
	metrics       *observability.Metrics
	tracer        *observability.Tracer
	healthChecker *health.Checker
	metricsServer *http.Server
}

// newApplication wires every component from cfg. Nothing listens until
// run is called.
func newApplication(cfg *config.ProxyConfig, logger observability.Logger, opts ...resolver.Option) (*application, error) {
	reg, err := registry.New(cfg.Services)
	if err != nil {
		return nil, fmt.Errorf("failed to build service registry: %w", err)
	}

	metrics := observability.NewMetrics(metricsNamespace)
	metrics.SetBuildInfo(version, gitCommit, buildTime)

	proxyMetrics := proxy.NewMetrics(metricsNamespace, metrics.Registry())
	proxyMetrics.InitServices(reg.Names())

	tracer, err := observability.NewTracer(context.Background(), tracerConfig(cfg.Observability.Tracing), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	res := resolver.New(opts...)
	fwd := proxy.NewForwarder(proxy.NewClient(cfg.Client),
		proxy.WithLogger(logger),
		proxy.WithResolver(res),
		proxy.WithTracer(tracer),
		proxy.WithMetrics(proxyMetrics),
	)

	srv := server.New(server.ConfigFromListener(cfg.Listener),
		server.WithLogger(logger),
		server.WithMiddleware(buildMiddleware(cfg, logger, metrics)...),
	)
	if err := srv.MountRegistry(reg, fwd); err != nil {
		return nil, fmt.Errorf("failed to mount services: %w", err)
	}

	checker := health.NewChecker(version)
	health.RegisterServices(checker, reg, res)

	return &application{
		config:        cfg,
		logger:        logger,
		registry:      reg,
		resolver:      res,
		server:        srv,
		metrics:       metrics,
		tracer:        tracer,
		healthChecker: checker,
	}, nil
}

// tracerConfig converts the tracing section of the settings file.
func tracerConfig(cfg config.TracingConfig) observability.TracerConfig {
	return observability.TracerConfig{
		ServiceName:  cfg.ServiceName,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.SamplingRate,
		Enabled:      cfg.Enabled,
	}
}

// buildMiddleware builds the global middleware chain.
// The execution order (outermost executes first):
// Recovery -> RequestID -> Tracing -> Metrics -> Logging -> RateLimit -> [diagnostics -> proxy]
func buildMiddleware(
	cfg *config.ProxyConfig,
	logger observability.Logger,
	metrics *observability.Metrics,
) []gin.HandlerFunc {
	chain := []gin.HandlerFunc{
		middleware.Recovery(logger),
		middleware.RequestID(),
	}

	if cfg.Observability.Tracing.Enabled {
		chain = append(chain, middleware.Tracing(cfg.Observability.Tracing.ServiceName))
	}

	chain = append(chain,
		middleware.Metrics(metrics),
		middleware.Logging(logger),
	)

	if rl := cfg.Listener.RateLimit; rl != nil && rl.Enabled {
		chain = append(chain, middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: rl.RequestsPerSecond,
			Burst:             rl.Burst,
			Logger:            logger,
		}))
	}

	return chain
}

// logStartupSummary logs every mounted service together with the
// environment it currently resolves to.
func logStartupSummary(app *application) {
	_ = app.registry.Each(func(svc *config.ServiceConfig) error {
		fields := []observability.Field{
			observability.String("service", svc.Name),
			observability.String("originalPath", svc.OriginalPath),
			observability.String("proxiedPath", svc.ProxiedPath),
			observability.String("variable", resolver.EnvVarName(svc.Name)),
		}

		env, err := app.resolver.Environment(svc)
		if err != nil {
			app.logger.Warn("service environment not selected", append(fields, observability.Error(err))...)
			return nil
		}

		if _, ok := svc.EnvironmentURLs[env]; !ok {
			app.logger.Warn("service environment has no URL",
				append(fields, observability.String("environment", env))...)
			return nil
		}

		app.logger.Info("service mounted",
			append(fields,
				observability.String("environment", env),
				observability.String("backend", svc.EnvironmentURLs[env]),
			)...)
		return nil
	})
}
