// Package observability provides logging, metrics, and tracing
// functionality for the proxy.
//
// Structured logging goes through the Logger interface backed by zap:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("request proxied",
//	    observability.String("service", "billing"),
//	    observability.Int("status", 200),
//	)
//
// Metrics are exported by a private Prometheus registry so the proxy
// packages can register their own collectors next to the ingress ones.
// Tracing uses OpenTelemetry with an optional OTLP gRPC exporter and
// W3C trace-context propagation.
package observability
