package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vyrodovalexey/envproxy/internal/observability"
)

// shutdownTimeout bounds the graceful drain.
const shutdownTimeout = 30 * time.Second

// run starts the proxy and blocks until a shutdown signal arrives or
// the ingress server fails.
func run(app *application) {
	logStartupSummary(app)
	startMetricsServerIfEnabled(app)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.server.Start(context.Background())
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		app.logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			app.logger.Error("proxy server failed", observability.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdown(ctx, app)
}

// shutdown stops the ingress server, the metrics server and the tracer.
func shutdown(ctx context.Context, app *application) {
	if err := app.server.Stop(ctx); err != nil {
		app.logger.Error("failed to stop proxy server gracefully", observability.Error(err))
	}

	if app.metricsServer != nil {
		app.logger.Info("stopping metrics server")
		if err := app.metricsServer.Shutdown(ctx); err != nil {
			app.logger.Error("failed to stop metrics server gracefully", observability.Error(err))
		}
	}

	if err := app.tracer.Shutdown(ctx); err != nil {
		app.logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	app.logger.Info("envproxy stopped")
}
