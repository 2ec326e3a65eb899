package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/vyrodovalexey/envproxy/internal/health"
	"github.com/vyrodovalexey/envproxy/internal/observability"
)

// newMetricsHandler serves metrics and the health probes.
func newMetricsHandler(path string, metrics *observability.Metrics, checker *health.Checker) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler())
	checker.Register(mux)
	return mux
}

// createMetricsServer creates the metrics HTTP server.
func createMetricsServer(
	port int,
	path string,
	metrics *observability.Metrics,
	checker *health.Checker,
	logger observability.Logger,
) *http.Server {
	addr := ":" + strconv.Itoa(port)
	logger.Info("starting metrics server",
		observability.String("address", addr),
		observability.String("metrics_path", path),
	)

	return &http.Server{
		Addr:              addr,
		Handler:           newMetricsHandler(path, metrics, checker),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// runMetricsServer runs the metrics HTTP server.
func runMetricsServer(server *http.Server, logger observability.Logger) {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server error", observability.Error(err))
	}
}

// startMetricsServerIfEnabled starts the metrics server if enabled.
func startMetricsServerIfEnabled(app *application) {
	m := app.config.Observability.Metrics
	if !m.Enabled {
		return
	}

	app.metricsServer = createMetricsServer(m.Port, m.Path, app.metrics, app.healthChecker, app.logger)
	go runMetricsServer(app.metricsServer, app.logger)
}
