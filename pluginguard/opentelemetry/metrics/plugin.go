package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// RecordPluginError counts one recorded plugin error, labeled by plugin and severity.
func (f *MetricsFactory) RecordPluginError(ctx context.Context, plugin, severity string, attributes ...attribute.KeyValue) {
	//nolint:errcheck
	_ = f.Counter(MetricPluginErrorsRecorded).
		WithLabels(map[string]string{"plugin": plugin, "severity": severity}).
		WithAttributes(attributes...).
		AddOne(ctx)
}

// RecordRecoveryAttempt counts one plugin recovery attempt.
func (f *MetricsFactory) RecordRecoveryAttempt(ctx context.Context, plugin string, attributes ...attribute.KeyValue) {
	//nolint:errcheck
	_ = f.Counter(MetricRecoveryAttempts).
		WithLabels(map[string]string{"plugin": plugin}).
		WithAttributes(attributes...).
		AddOne(ctx)
}

// RecordRecoverySucceeded counts one recovery attempt that healed a plugin.
func (f *MetricsFactory) RecordRecoverySucceeded(ctx context.Context, plugin string, attributes ...attribute.KeyValue) {
	//nolint:errcheck
	_ = f.Counter(MetricRecoveriesSucceeded).
		WithLabels(map[string]string{"plugin": plugin}).
		WithAttributes(attributes...).
		AddOne(ctx)
}

// RecordPluginState reports a plugin's current health state code, labeled
// with the state name for dashboard readability.
func (f *MetricsFactory) RecordPluginState(ctx context.Context, plugin, state string, code int64) {
	//nolint:errcheck
	_ = f.Gauge(MetricPluginState).
		WithLabels(map[string]string{"plugin": plugin, "state": state}).
		Record(ctx, code)
}

// RecordWatchdogPoll counts one watchdog poll cycle.
func (f *MetricsFactory) RecordWatchdogPoll(ctx context.Context) {
	//nolint:errcheck
	_ = f.Counter(MetricWatchdogPolls).AddOne(ctx)
}

// RecordRecoveryDuration records how long a successful recovery took, in seconds.
func (f *MetricsFactory) RecordRecoveryDuration(ctx context.Context, plugin string, seconds float64) {
	//nolint:errcheck
	_ = f.Histogram(MetricRecoveryDuration).
		WithLabels(map[string]string{"plugin": plugin}).
		Record(ctx, seconds)
}
