// Package pluginguard provides shared plumbing for the plugin fault-isolation
// library: context helpers carrying the structured logger and metrics factory
// used by the boundary and watchdog subpackages.
//
// Typical usage at call ingress:
//
//	ctx = pluginguard.ContextWithLogger(ctx, logger)
//	ctx = pluginguard.ContextWithMetricsFactory(ctx, factory)
//
// Specialized concerns live in subpackages: boundary (the fault-isolation
// core), log and zap (structured logging), backoff, opentelemetry/metrics,
// and net/http (the administrative surface).
package pluginguard
