// Package health serves the liveness and readiness probes of the proxy.
//
// Readiness runs one check per mounted service: the service is ready
// when its PROXY_{NAME}_ENV variable is set and names an environment
// with a configured, parseable backend URL. Backends are never
// contacted.
//
//	checker := health.NewChecker(version)
//	health.RegisterServices(checker, reg, resolver.New())
//	checker.Register(mux)
package health
