package pluginguard

import (
	"context"

	"github.com/novara-labs/lib-pluginguard/pluginguard/log"
	"github.com/novara-labs/lib-pluginguard/pluginguard/opentelemetry/metrics"
)

type customContextKey string

// CustomContextKey is the context key used to store CustomContextKeyValue.
var CustomContextKey = customContextKey("custom_context")

// CustomContextKeyValue holds the request-scoped facilities attached to a context.
type CustomContextKeyValue struct {
	Logger        log.Logger
	MetricFactory *metrics.MetricsFactory
}

// NewLoggerFromContext extracts the Logger stored in ctx, falling back to a
// no-op logger when none is present.
//
//nolint:ireturn
func NewLoggerFromContext(ctx context.Context) log.Logger {
	if customContext, ok := ctx.Value(CustomContextKey).(*CustomContextKeyValue); ok &&
		customContext.Logger != nil {
		return customContext.Logger
	}

	return &log.NopLogger{}
}

// ContextWithLogger returns a context carrying the given Logger.
func ContextWithLogger(ctx context.Context, logger log.Logger) context.Context {
	values, _ := ctx.Value(CustomContextKey).(*CustomContextKeyValue)
	if values == nil {
		values = &CustomContextKeyValue{}
	}

	values.Logger = logger

	return context.WithValue(ctx, CustomContextKey, values)
}

// NewMetricsFactoryFromContext extracts the MetricsFactory stored in ctx,
// falling back to a no-op factory when none is present.
func NewMetricsFactoryFromContext(ctx context.Context) *metrics.MetricsFactory {
	if customContext, ok := ctx.Value(CustomContextKey).(*CustomContextKeyValue); ok &&
		customContext.MetricFactory != nil {
		return customContext.MetricFactory
	}

	return metrics.NewNopFactory()
}

// ContextWithMetricsFactory returns a context carrying the given MetricsFactory.
func ContextWithMetricsFactory(ctx context.Context, factory *metrics.MetricsFactory) context.Context {
	values, _ := ctx.Value(CustomContextKey).(*CustomContextKeyValue)
	if values == nil {
		values = &CustomContextKeyValue{}
	}

	values.MetricFactory = factory

	return context.WithValue(ctx, CustomContextKey, values)
}
