package proxy

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vyrodovalexey/envproxy/internal/config"
	"github.com/vyrodovalexey/envproxy/internal/observability"
	"github.com/vyrodovalexey/envproxy/internal/resolver"
)

// StatusClientClosedRequest marks requests abandoned by the client
// before the backend answered. It is recorded, never written.
const StatusClientClosedRequest = 499

// errorResponse is the JSON body written for pipeline failures.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Outcome summarises one pass through the pipeline.
type Outcome struct {
	Environment string
	Status      int
	Bytes       int64
	Err         error
}

// Handler serves one mounted service.
type Handler struct {
	forwarder *Forwarder
	service   *config.ServiceConfig
	logger    observability.Logger
}

// NewHandler creates the handler of svc.
func NewHandler(fwd *Forwarder, svc *config.ServiceConfig) *Handler {
	return &Handler{
		forwarder: fwd,
		service:   svc,
		logger:    fwd.logger,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Proxy(w, r)
}

// Proxy runs resolve, forward and relay for r. Failures before the
// backend answered are turned into an error response; a failure while
// streaming the body aborts the connection.
func (h *Handler) Proxy(w http.ResponseWriter, r *http.Request) Outcome {
	ctx := observability.ContextWithService(r.Context(), h.service.Name)
	r = r.WithContext(ctx)

	resp, target, err := h.forwarder.Forward(ctx, r, h.service)
	if err != nil {
		return h.handleError(w, r, target, err)
	}
	ctx = observability.ContextWithEnvironment(ctx, target.Environment)

	n, err := Relay(ctx, resp, w)
	h.forwarder.metrics.recordRelayed(h.service.Name, n)
	outcome := Outcome{
		Environment: target.Environment,
		Status:      resp.StatusCode,
		Bytes:       n,
	}
	if err == nil {
		return outcome
	}

	outcome.Err = err
	logger := h.logger.WithContext(ctx)
	if ctx.Err() != nil {
		logger.Debug("relay abandoned, client went away",
			observability.Int64("bytes", n),
			observability.Error(err),
		)
		return outcome
	}

	h.forwarder.metrics.recordError(h.service.Name, errorTypeRelay)
	logger.Error("relay failed after response headers were sent",
		observability.Int("status", resp.StatusCode),
		observability.Int64("bytes", n),
		observability.Error(err),
	)
	panic(http.ErrAbortHandler)
}

func (h *Handler) handleError(
	w http.ResponseWriter,
	r *http.Request,
	target *resolver.Target,
	err error,
) Outcome {
	outcome := Outcome{Err: err}
	if target != nil {
		outcome.Environment = target.Environment
	}

	var transportErr *TransportError
	switch {
	case resolver.IsResolveError(err):
		h.logger.WithContext(r.Context()).Error("backend resolution failed",
			observability.String("path", r.URL.Path),
			observability.Error(err),
		)
		outcome.Status = http.StatusInternalServerError
		writeError(w, outcome.Status, "configuration error", err.Error())
	case errors.As(err, &transportErr) && transportErr.Canceled():
		// Nobody is left to read a response.
		outcome.Status = StatusClientClosedRequest
		return outcome
	case errors.As(err, &transportErr) && transportErr.Timeout():
		outcome.Status = http.StatusGatewayTimeout
		writeError(w, outcome.Status, "gateway timeout", "backend did not respond in time")
	case errors.As(err, &transportErr):
		outcome.Status = http.StatusBadGateway
		writeError(w, outcome.Status, "bad gateway", "failed to reach backend")
	default:
		h.logger.WithContext(r.Context()).Error("proxy request failed",
			observability.String("path", r.URL.Path),
			observability.Error(err),
		)
		outcome.Status = http.StatusBadGateway
		writeError(w, outcome.Status, "bad gateway", "failed to proxy request")
	}
	return outcome
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: code, Message: message})
}
