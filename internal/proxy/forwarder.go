package proxy

import (
	"context"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/envproxy/internal/config"
	"github.com/vyrodovalexey/envproxy/internal/observability"
	"github.com/vyrodovalexey/envproxy/internal/resolver"
)

// HeaderForwardedPath carries the inbound request path to the backend.
const HeaderForwardedPath = "X-Forwarded-Path"

// hopRequestHeaders are connection-scoped request headers that are
// never forwarded.
var hopRequestHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Forwarder sends inbound requests to the backend of a service. It is
// safe for concurrent use; all per-request state lives on the stack.
type Forwarder struct {
	client   *http.Client
	resolver *resolver.Resolver
	logger   observability.Logger
	tracer   *observability.Tracer
	metrics  *Metrics
}

// Option is a functional option for configuring the forwarder.
type Option func(*Forwarder)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// WithResolver sets the URL resolver.
func WithResolver(r *resolver.Resolver) Option {
	return func(f *Forwarder) {
		f.resolver = r
	}
}

// WithTracer sets the tracer used for client spans.
func WithTracer(tracer *observability.Tracer) Option {
	return func(f *Forwarder) {
		f.tracer = tracer
	}
}

// WithMetrics sets the backend metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(f *Forwarder) {
		f.metrics = metrics
	}
}

// NewForwarder creates a forwarder sending through client. A nil
// client gets the default client configuration.
func NewForwarder(client *http.Client, opts ...Option) *Forwarder {
	f := &Forwarder{
		client:   client,
		resolver: resolver.New(),
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = NewClient(config.ClientConfig{})
	}
	return f
}

// Forward resolves the backend of svc and sends the inbound request to
// it. Resolution errors are returned before any network I/O. Any
// backend status is a successful result; only transport failures are
// returned as *TransportError, after being logged.
//
// The caller owns the response body.
func (f *Forwarder) Forward(
	ctx context.Context,
	in *http.Request,
	svc *config.ServiceConfig,
) (*http.Response, *resolver.Target, error) {
	target, err := f.resolver.ResolveRequest(svc, in.URL.EscapedPath(), in.URL.RawQuery)
	if err != nil {
		f.metrics.recordError(svc.Name, errorType(err))
		return nil, nil, err
	}
	ctx = observability.ContextWithEnvironment(observability.ContextWithService(ctx, svc.Name), target.Environment)

	ctx, span := f.startSpan(ctx, in.Method, svc, target)
	if span != nil {
		defer span.End()
	}

	out, err := newOutboundRequest(ctx, in, svc, target)
	if err != nil {
		return nil, target, err
	}

	resp, err := f.do(out, svc, target)
	if span != nil {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "backend call failed")
		} else {
			span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
		}
	}
	if err != nil {
		return nil, target, err
	}
	return resp, target, nil
}

// startSpan opens the client span of a backend call. It returns a nil
// span when no tracer is configured.
func (f *Forwarder) startSpan(
	ctx context.Context,
	method string,
	svc *config.ServiceConfig,
	target *resolver.Target,
) (context.Context, trace.Span) {
	if f.tracer == nil {
		return ctx, nil
	}
	return f.tracer.StartSpan(ctx, "proxy.forward",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", target.URL.String()),
			attribute.String("envproxy.service", svc.Name),
			attribute.String("envproxy.environment", target.Environment),
		),
	)
}

func (f *Forwarder) do(
	out *http.Request,
	svc *config.ServiceConfig,
	target *resolver.Target,
) (*http.Response, error) {
	start := time.Now()
	resp, err := f.client.Do(out)
	if err != nil {
		transportErr := &TransportError{
			Service:     svc.Name,
			Environment: target.Environment,
			Target:      target.URL.Redacted(),
			Cause:       err,
		}
		f.metrics.recordError(svc.Name, errorType(transportErr))
		f.logTransportError(out, transportErr)
		return nil, transportErr
	}

	f.metrics.recordBackend(svc.Name, target.Environment, resp.StatusCode, time.Since(start))
	f.logger.WithContext(out.Context()).Debug("backend responded",
		observability.String("target", target.URL.Redacted()),
		observability.Int("status", resp.StatusCode),
		observability.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

func (f *Forwarder) logTransportError(out *http.Request, err *TransportError) {
	logger := f.logger.WithContext(out.Context())
	fields := []observability.Field{
		observability.String("method", out.Method),
		observability.String("target", err.Target),
		observability.Error(err.Cause),
	}
	if err.Canceled() {
		logger.Debug("backend call abandoned, client went away", fields...)
		return
	}
	logger.Error("backend call failed", fields...)
}

// newOutboundRequest builds the backend request. Header precedence is
// inbound headers, then the trace context of ctx, then the service's
// additional headers, then the forwarding marker.
func newOutboundRequest(
	ctx context.Context,
	in *http.Request,
	svc *config.ServiceConfig,
	target *resolver.Target,
) (*http.Request, error) {
	body := in.Body
	if in.ContentLength == 0 || body == nil {
		body = http.NoBody
	}

	out, err := http.NewRequestWithContext(ctx, in.Method, target.URL.String(), body)
	if err != nil {
		return nil, err
	}
	out.ContentLength = in.ContentLength
	if body == http.NoBody {
		out.ContentLength = 0
	}

	out.Header = in.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	removeHopRequestHeaders(out.Header)
	// Length and framing are derived from the body stream.
	out.Header.Del("Content-Length")
	observability.InjectTraceContext(ctx, out.Header)

	for name, value := range svc.AdditionalHeaders {
		out.Header.Set(name, value)
	}
	out.Header.Set(HeaderForwardedPath, in.URL.Path)

	return out, nil
}

// removeHopRequestHeaders drops hop-by-hop headers, including any
// named by the Connection header.
func removeHopRequestHeaders(h http.Header) {
	for _, value := range h.Values("Connection") {
		for _, name := range strings.Split(value, ",") {
			if name = textproto.TrimString(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopRequestHeaders {
		h.Del(name)
	}
}
