// Package proxy implements the per-request proxy pipeline: the request
// forwarder, the response relay and the HTTP handler that chains them.
//
// A request is handled as a plain sequence with no shared mutable
// state:
//
//  1. the backend URL is resolved from the service configuration and
//     the active environment; failures stop the pipeline before any
//     outbound I/O,
//  2. the outbound request is sent with the inbound method, headers
//     merged with the service's additional headers and the
//     X-Forwarded-Path marker,
//  3. the backend response is relayed verbatim except for hop-by-hop
//     headers, with the body suppressed for 1xx, 204, 205 and 304.
//
// Redirects returned by a backend are relayed, never followed. Backend
// 4xx and 5xx responses are valid responses, not errors. Cancellation
// of the inbound request propagates to the outbound call and to the
// body copy.
//
// # Usage
//
//	fwd := proxy.NewForwarder(
//	    proxy.NewClient(cfg.Client),
//	    proxy.WithLogger(logger),
//	    proxy.WithTracer(tracer),
//	)
//	http.Handle("/billing/", proxy.NewHandler(fwd, svc))
package proxy
